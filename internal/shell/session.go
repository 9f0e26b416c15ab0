package shell

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"s3backup/internal/sb"
)

var (
	errNoIndex     = errors.New("missing member number")
	errBadArgument = errors.New("unrecognized command")
)

// session is the state of one browse loop. selected holds indexes into
// members in the order they were marked.
type session struct {
	shell    *Shell
	members  []sb.Member
	selected []int
	done     bool
	proceed  bool
}

type handler func(s *session, arg string) error

var handlers = map[string]handler{
	"restore": (*session).restore,
	"cancel":  (*session).cancel,
	"show":    (*session).show,
	"page":    (*session).page,
	"h":       (*session).help,
	"quit":    (*session).quit,
	"finish":  (*session).finish,
}

func (s *session) dispatch(line string) error {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	h, ok := handlers[cmd]
	if !ok {
		fmt.Fprintln(s.shell.out, "unrecognized command")
		return nil
	}
	return h(s, strings.TrimSpace(arg))
}

func (s *session) restore(arg string) error {
	i, err := s.index(arg)
	if err != nil {
		return err
	}
	if slices.Contains(s.selected, i) {
		fmt.Fprintf(s.shell.out, "%d is already marked\n", i+1)
		return nil
	}
	s.selected = append(s.selected, i)
	return nil
}

func (s *session) cancel(arg string) error {
	i, err := s.index(arg)
	if err != nil {
		return err
	}
	pos := slices.Index(s.selected, i)
	if pos < 0 {
		fmt.Fprintf(s.shell.out, "%d is not marked\n", i+1)
		return nil
	}
	s.selected = slices.Delete(s.selected, pos, pos+1)
	return nil
}

func (s *session) show(arg string) error {
	rows, err := s.rows(arg)
	if err != nil {
		return err
	}
	for _, i := range rows {
		s.printRow(i)
	}
	return nil
}

func (s *session) page(arg string) error {
	rows, err := s.rows(arg)
	if err != nil {
		return err
	}
	size := s.shell.pageSize
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		for _, i := range rows[start:end] {
			s.printRow(i)
		}
		if end == len(rows) {
			break
		}
		fmt.Fprint(s.shell.out, "\nq to quit, Enter to continue: ")
		answer, err := s.shell.readLine()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.shell.out)
			return nil
		}
		if err != nil {
			return err
		}
		if answer == "q" {
			return nil
		}
	}
	return nil
}

func (s *session) help(arg string) error {
	if arg != "" {
		return errBadArgument
	}
	fmt.Fprint(s.shell.out, helpText)
	return nil
}

func (s *session) quit(arg string) error {
	if arg != "" {
		return errBadArgument
	}
	s.done = true
	s.proceed = false
	return nil
}

func (s *session) finish(arg string) error {
	if arg != "" {
		return errBadArgument
	}
	s.done = true
	s.proceed = true
	return nil
}

// index converts a 1-based member number into an index into members.
func (s *session) index(arg string) (int, error) {
	if arg == "" {
		return 0, errNoIndex
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%q is not a member number", arg)
	}
	if n < 1 || n > len(s.members) {
		return 0, fmt.Errorf("there is no member %d", n)
	}
	return n - 1, nil
}

// rows returns the member indexes listed by show and page. "restore"
// restricts them to the selection, keeping full-list numbering.
func (s *session) rows(arg string) ([]int, error) {
	switch arg {
	case "":
		rows := make([]int, len(s.members))
		for i := range rows {
			rows[i] = i
		}
		return rows, nil
	case "restore":
		return slices.Clone(s.selected), nil
	default:
		return nil, errBadArgument
	}
}

func (s *session) printRow(i int) {
	m := s.members[i]
	mark := " "
	if slices.Contains(s.selected, i) {
		mark = "*"
	}
	fmt.Fprintf(s.shell.out, "%-3d %s %-50s %8d  %s\n",
		i+1, mark, m.Name, m.Size, m.ModTime.Local().Format("2006-01-02 15:04:05"))
}

func (s *session) selection() []sb.Member {
	out := make([]sb.Member, len(s.selected))
	for j, i := range s.selected {
		out[j] = s.members[i]
	}
	return out
}
