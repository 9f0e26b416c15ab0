package fs

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadFileList reads a file list: one path per line, surrounding
// whitespace trimmed, blank lines dropped. Paths are not checked for
// existence.
func ReadFileList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file list: %w", err)
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading file list %s: %w", path, err)
	}
	return entries, nil
}
