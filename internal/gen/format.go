package gen

import (
	"fmt"

	"golang.org/x/tools/imports"
)

var formatOptions = &imports.Options{
	Comments:  true,
	TabIndent: true,
	TabWidth:  8,
}

// FormatError is generated source that does not parse. It carries the
// source so the template fault can be located.
type FormatError struct {
	File   string
	Source []byte
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format %s: %v", e.File, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// format gofmts src and removes the imports it does not use. Every import a
// file may need is written by the templates, so no lookup in the build
// environment happens.
func format(file string, src []byte) ([]byte, error) {
	out, err := imports.Process(file, src, formatOptions)
	if err != nil {
		return nil, &FormatError{File: file, Source: src, Err: err}
	}
	return out, nil
}
