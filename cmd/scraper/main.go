package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aluiziolira/tululu-books/config"
	"github.com/aluiziolira/tululu-books/models"
	"github.com/aluiziolira/tululu-books/pipeline"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cmd, err := newRootCmd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := cmd.Execute(); err != nil {
		slog.Error("run failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		base := strings.TrimSuffix(strings.TrimSuffix(filename, ".json"), ".csv")
		return pipeline.NewDualWriter(base+".csv", base+".json")
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(w io.Writer, result *models.ScraperResult, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Scrape complete")

	fmt.Fprintf(w, "  Books:         %d\n", result.TotalCount)
	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Errors:        %d\n", result.ErrorCount)
	fmt.Fprintf(w, "  Skipped:       %d\n", len(result.SkippedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	if dropped, ok := metrics["dropped_books"].(int64); ok && dropped > 0 {
		fmt.Fprintf(w, "  Replaced:      %d\n", dropped)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Fprintf(w, "  Validation:    %v\n", valErrors)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(w, separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
