// Package filetree feeds configuration dumps to a processing
// function, either from single files or from whole directory trees.
package filetree

import (
	"os"
	"path"
	"path/filepath"

	"github.com/fortiscope/fortiscope/pkg/fileop"
	"github.com/pkg/errors"
)

type Context struct {
	Path string
	Data string
}

type processor func(*Context) error

func processFile(fname string, fn processor) error {
	content, err := os.ReadFile(fname)
	if err != nil {
		return errors.Wrapf(err, "reading %s", fname)
	}
	return fn(&Context{Path: fname, Data: string(content)})
}

// Walk processes fname by fn. A directory is walked recursively in
// lexical order; hidden files and directories are skipped.
func Walk(fname string, fn processor) error {
	var walk func(string) error
	walk = func(fname string) error {
		base := path.Base(fname)
		if base != "." && base[0] == '.' {
			return nil
		}
		if !fileop.IsDir(fname) {
			return processFile(fname, fn)
		}
		files, err := os.ReadDir(fname)
		if err != nil {
			return errors.Wrapf(err, "reading directory %s", fname)
		}
		for _, file := range files {
			if err := walk(filepath.Join(fname, file.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(fname)
}
