package shell

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s3backup/internal/sb"
)

func members(n int) []sb.Member {
	out := make([]sb.Member, n)
	for i := range out {
		out[i] = sb.Member{
			Name:    fmt.Sprintf("home/user/file%02d.txt", i+1),
			Size:    int64(100 * (i + 1)),
			ModTime: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		}
	}
	return out
}

func run(t *testing.T, input string, list []sb.Member) ([]sb.Member, bool, string) {
	t.Helper()
	var out bytes.Buffer
	sh := New(strings.NewReader(input), &out)
	selected, ok, err := sh.Browse(list)
	require.NoError(t, err)
	return selected, ok, out.String()
}

// listed returns the names printed as listing rows in output.
func listed(output string, list []sb.Member) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		for _, m := range list {
			if strings.Contains(line, m.Name) {
				names = append(names, m.Name)
			}
		}
	}
	return names
}

func TestBrowse_RestoreShowCancel(t *testing.T) {
	list := members(3)

	t.Run("restore 2 then show restore lists only member 2", func(t *testing.T) {
		_, _, out := run(t, "restore 2\nshow restore\nquit\n", list)
		assert.Equal(t, []string{list[1].Name}, listed(out, list))
		assert.Contains(t, out, "2   * "+list[1].Name)
	})

	t.Run("cancel 2 empties the selection", func(t *testing.T) {
		_, _, out := run(t, "restore 2\ncancel 2\nshow restore\nquit\n", list)
		assert.Empty(t, listed(out, list))
	})

	t.Run("restore 5 is out of range", func(t *testing.T) {
		selected, ok, out := run(t, "restore 5\nfinish\n", list)
		assert.True(t, ok)
		assert.Empty(t, selected)
		assert.Contains(t, out, "there is no member 5")
	})
}

func TestBrowse_Finish(t *testing.T) {
	list := members(4)

	selected, ok, _ := run(t, "restore 3\nrestore 1\nrestore 3\nfinish\n", list)
	require.True(t, ok)
	// Insertion order, no duplicates.
	assert.Equal(t, []sb.Member{list[2], list[0]}, selected)
}

func TestBrowse_QuitDiscards(t *testing.T) {
	selected, ok, _ := run(t, "restore 1\nquit\n", members(2))
	assert.False(t, ok)
	assert.Nil(t, selected)
}

func TestBrowse_EndOfInputIsQuit(t *testing.T) {
	selected, ok, _ := run(t, "restore 1\n", members(2))
	assert.False(t, ok)
	assert.Nil(t, selected)
}

func TestBrowse_FinalLineWithoutNewline(t *testing.T) {
	selected, ok, _ := run(t, "restore 2\nfinish", members(2))
	assert.True(t, ok)
	assert.Len(t, selected, 1)
}

func TestBrowse_UserErrorsAreRecoverable(t *testing.T) {
	list := members(3)
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unknown command", "frobnicate\n", "unrecognized command"},
		{"commands are case sensitive", "RESTORE 1\n", "unrecognized command"},
		{"non-numeric index", "restore two\n", `"two" is not a member number`},
		{"missing index", "restore\n", "missing member number"},
		{"zero index", "cancel 0\n", "there is no member 0"},
		{"unknown show argument", "show all\n", "unrecognized command"},
		{"cancel unmarked", "cancel 1\n", "1 is not marked"},
		{"already marked", "restore 1\nrestore 1\n", "1 is already marked"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, ok, out := run(t, tt.input+"restore 3\nfinish\n", list)
			assert.Contains(t, out, tt.want)
			require.True(t, ok)
			assert.Contains(t, selected, list[2])
		})
	}
}

func TestBrowse_ShowMarksSelection(t *testing.T) {
	list := members(2)
	_, _, out := run(t, "restore 2\nshow\nquit\n", list)

	assert.Contains(t, out, "1     "+list[0].Name)
	assert.Contains(t, out, "2   * "+list[1].Name)
}

func TestBrowse_Page(t *testing.T) {
	list := members(5)

	t.Run("stops on q", func(t *testing.T) {
		var out bytes.Buffer
		sh := New(strings.NewReader("page\nq\nquit\n"), &out)
		sh.SetPageSize(2)
		_, _, err := sh.Browse(list)
		require.NoError(t, err)

		assert.Equal(t, []string{list[0].Name, list[1].Name}, listed(out.String(), list))
		assert.Equal(t, 1, strings.Count(out.String(), "q to quit, Enter to continue: "))
	})

	t.Run("enter continues to the end", func(t *testing.T) {
		var out bytes.Buffer
		sh := New(strings.NewReader("page\n\n\nquit\n"), &out)
		sh.SetPageSize(2)
		_, _, err := sh.Browse(list)
		require.NoError(t, err)

		assert.Len(t, listed(out.String(), list), 5)
		assert.Equal(t, 2, strings.Count(out.String(), "q to quit, Enter to continue: "))
	})

	t.Run("page restore keeps full-list numbers", func(t *testing.T) {
		var out bytes.Buffer
		sh := New(strings.NewReader("restore 4\nrestore 5\npage restore\nquit\n"), &out)
		sh.SetPageSize(30)
		_, _, err := sh.Browse(list)
		require.NoError(t, err)

		assert.Contains(t, out.String(), "4   * "+list[3].Name)
		assert.Contains(t, out.String(), "5   * "+list[4].Name)
		assert.Equal(t, []string{list[3].Name, list[4].Name}, listed(out.String(), list))
	})
}

func TestBrowse_Help(t *testing.T) {
	_, _, out := run(t, "h\nquit\n", members(1))
	// Once on entry and once for "h".
	assert.Equal(t, 2, strings.Count(out, `"finish" leaves and restores the marked members.`))
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"n\n", false},
		{"yes\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			var out bytes.Buffer
			sh := New(strings.NewReader(tt.input), &out)
			got, err := sh.Confirm("Restore etc/hosts?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Restore etc/hosts? [y|n] ")
		})
	}
}

func TestConfirm_Sequence(t *testing.T) {
	sh := New(strings.NewReader("y\nn\n"), &bytes.Buffer{})

	first, err := sh.Confirm("a?")
	require.NoError(t, err)
	second, err := sh.Confirm("b?")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestPickArchive(t *testing.T) {
	t.Run("no archives", func(t *testing.T) {
		_, err := PickArchive(nil)
		assert.ErrorIs(t, err, sb.ErrNoBackups)
	})

	t.Run("single archive is returned without prompting", func(t *testing.T) {
		only := sb.Located{Key: "host1/daily/20240115.tar.bz2", Schedule: sb.Daily, Date: "20240115", Kind: sb.TarBzip2}
		got, err := PickArchive([]sb.Located{only})
		require.NoError(t, err)
		assert.Equal(t, only, *got)
	})
}
