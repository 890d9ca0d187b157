package client

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// StdinArg selects standard input as the content source.
const StdinArg = "-"

type Source struct {
	Path  string // empty for stdin
	Stdin bool
}

// ParseArgs validates the positional content argument of a command. No
// argument, or "-", means standard input.
func ParseArgs(args []string) (Source, error) {
	if len(args) > 1 {
		return Source{}, &ValidationError{Arg: strings.Join(args, " "), Cause: "only one file can be shared at a time"}
	}
	if len(args) == 0 || args[0] == StdinArg {
		return Source{Stdin: true}, nil
	}

	raw := args[0]
	p := filepath.Clean(raw)
	info, err := os.Stat(p)
	if err != nil {
		return Source{}, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
	}
	if info.IsDir() {
		return Source{}, &ValidationError{Arg: raw, Cause: "is a directory"}
	}

	return Source{Path: p}, nil
}

// Document is content ready to be shared.
type Document struct {
	Content     string
	ContentType string
	Language    string
}

// Read loads the source, refusing content over maxSize bytes or content
// that is not valid UTF-8 text.
func (s Source) Read(stdin io.Reader, maxSize int) (*Document, error) {
	r := stdin
	name := "<stdin>"
	if !s.Stdin {
		f, err := os.Open(s.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", s.Path, err)
		}
		defer f.Close()
		r = f
		name = s.Path
	}

	data, err := io.ReadAll(io.LimitReader(r, int64(maxSize)+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil, &ValidationError{Arg: name, Cause: "is empty"}
	}
	if len(data) > maxSize {
		return nil, &ValidationError{Arg: name, Cause: fmt.Sprintf("exceeds %d bytes", maxSize)}
	}
	if !utf8.Valid(data) {
		return nil, &ValidationError{Arg: name, Cause: "is not UTF-8 text"}
	}

	doc := &Document{Content: string(data), ContentType: "text"}
	if lang := LanguageForFile(s.Path); lang != "" {
		doc.ContentType = "code"
		doc.Language = lang
	}
	return doc, nil
}
