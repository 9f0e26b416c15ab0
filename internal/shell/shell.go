// Package shell implements the interactive prompts used during restores:
// yes/no confirmation and the numbered browse loop that selects archive
// members for extraction.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"s3backup/internal/sb"
)

// DefaultPageSize is the number of rows printed per page by "page".
const DefaultPageSize = 30

// Shell reads commands from in and writes listings to out.
type Shell struct {
	in       *bufio.Reader
	out      io.Writer
	pageSize int
}

// New creates a Shell over the given streams.
func New(in io.Reader, out io.Writer) *Shell {
	return &Shell{
		in:       bufio.NewReader(in),
		out:      out,
		pageSize: DefaultPageSize,
	}
}

// SetPageSize changes the number of rows per page. Values below 1 are ignored.
func (s *Shell) SetPageSize(n int) {
	if n > 0 {
		s.pageSize = n
	}
}

// Confirm asks question and reports whether the answer was y or Y.
// End of input counts as no.
func (s *Shell) Confirm(question string) (bool, error) {
	fmt.Fprintf(s.out, "%s [y|n] ", question)
	line, err := s.readLine()
	if errors.Is(err, io.EOF) {
		fmt.Fprintln(s.out)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return line == "y" || line == "Y", nil
}

// Browse runs the command loop over members. It returns the selection in
// the order it was made and ok=true on "finish", or ok=false on "quit" or
// end of input.
func (s *Shell) Browse(members []sb.Member) ([]sb.Member, bool, error) {
	sess := &session{shell: s, members: members}
	fmt.Fprint(s.out, helpText)

	for !sess.done {
		fmt.Fprint(s.out, "\n-> ")
		line, err := s.readLine()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.out)
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("reading command: %w", err)
		}
		if err := sess.dispatch(line); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}

	if !sess.proceed {
		return nil, false, nil
	}
	return sess.selection(), true, nil
}

var _ sb.Prompter = (*Shell)(nil)

// readLine returns the next line without its terminator. A final line
// without a newline is returned before io.EOF.
func (s *Shell) readLine() (string, error) {
	line, err := s.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

const helpText = `
"restore N" marks member N for restoration.
"cancel N" removes the mark from member N.
N is always the number shown by "show".

"show" prints every member of the archive.
"show restore" prints the members marked for restoration.
"page" prints the members thirty at a time.
"page restore" prints the marked members thirty at a time.
"quit" leaves without restoring anything.
"finish" leaves and restores the marked members.
"h" shows this message. All commands are case-sensitive.
`
