package shell

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/manifoldco/promptui"

	"s3backup/internal/sb"
)

// PickArchive lets the operator choose one of archives, newest first.
// A single candidate is returned without prompting.
func PickArchive(archives []sb.Located) (*sb.Located, error) {
	if len(archives) == 0 {
		return nil, sb.ErrNoBackups
	}
	if len(archives) == 1 {
		return &archives[0], nil
	}

	sorted := slices.Clone(archives)
	slices.SortFunc(sorted, func(a, b sb.Located) int {
		return strings.Compare(b.Key, a.Key)
	})

	size := min(len(sorted), 10)
	selector := promptui.Select{
		Label: "Select the archive to browse",
		Items: sorted,
		Searcher: func(input string, idx int) bool {
			return strings.Contains(sorted[idx].Key, input)
		},
		StartInSearchMode: false,
		HideSelected:      true,
		Size:              size,
		Templates: &promptui.SelectTemplates{
			Active:   fmt.Sprintf("%s {{ .Date | cyan }} {{ .Schedule }}", promptui.IconSelect),
			Inactive: "  {{ .Date }} {{ .Schedule }}",
			Details: `
{{ "Key:" | bold }}	{{ .Key }}`,
			Selected: "{{ .Key }}",
		},
		// Keep stdout free for listings.
		Stdout: os.Stderr,
	}

	index, _, err := selector.Run()
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return nil, fmt.Errorf("no archive selected: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("selecting archive: %w", err)
	}
	return &sorted[index], nil
}
