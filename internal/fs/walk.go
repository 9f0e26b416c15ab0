package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Entry is a path found by Walk together with its lstat info.
type Entry struct {
	Path string
	Info fs.FileInfo
}

// Walk lists root and, when root is a directory, everything below it in
// depth-first lexical order with root first. Symlinks are reported but
// never followed. An explicit stack keeps deep trees off the call stack.
//
// A missing root is an error. Descendants that disappear while the tree
// is being read are left out and the rest of the tree is still listed.
func Walk(root string) ([]Entry, error) {
	return walker{readDir: os.ReadDir}.walk(root)
}

type walker struct {
	readDir func(name string) ([]os.DirEntry, error)
}

func (w walker) walk(root string) ([]Entry, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}

	var out []Entry
	stack := []Entry{{Path: root, Info: info}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var children []os.DirEntry
		if e.Info.IsDir() {
			children, err = w.readDir(e.Path)
			if errors.Is(err, fs.ErrNotExist) && e.Path != root {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("reading directory %s: %w", e.Path, err)
			}
		}
		out = append(out, e)

		// ReadDir sorts by name; push in reverse so the first name pops first.
		for i := len(children) - 1; i >= 0; i-- {
			child := children[i]
			path := filepath.Join(e.Path, child.Name())
			ci, err := child.Info()
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", path, err)
			}
			stack = append(stack, Entry{Path: path, Info: ci})
		}
	}
	return out, nil
}
