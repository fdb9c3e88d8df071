// Package oslink carries the process environment of a command line
// tool, so that Main functions stay testable with captured output.
package oslink

import (
	"io"
	"os"
)

type Data struct {
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
}

func Get() Data {
	return Data{
		Args:   os.Args,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}
