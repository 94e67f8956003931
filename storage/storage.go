// Package storage writes downloaded books and covers to local folders.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxFilenameBytes = 255

var invalidFilenameChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1F\x7F]`)

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeFilename removes characters that are illegal in file names on
// common filesystems.
func SanitizeFilename(name string) string {
	cleaned := invalidFilenameChars.ReplaceAllString(name, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimRight(cleaned, " .")

	ext := filepath.Ext(cleaned)
	stem := strings.TrimSuffix(cleaned, ext)
	if _, ok := reservedNames[strings.ToUpper(stem)]; ok {
		stem += "_"
	}
	if len(stem)+len(ext) > maxFilenameBytes {
		stem = truncateBytes(stem, maxFilenameBytes-len(ext))
	}
	return stem + ext
}

func truncateBytes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// EnsureDirs creates every directory, including parents.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WriteFile stores data as folder/name and returns the written path. name
// must be a bare file name. The folder is expected to exist.
func WriteFile(folder, name string, data []byte) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid file name %q", name)
	}

	path := filepath.Join(folder, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
