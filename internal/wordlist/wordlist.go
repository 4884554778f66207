// Package wordlist streams candidate passwords from text files, one per line.
package wordlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"slices"
	"strings"
)

const (
	// Ext is the extension of wordlist files inside a Dir.
	Ext = ".txt"
	// MaxLineLen is the longest accepted line in bytes.
	MaxLineLen = 1024 * 1024
)

var (
	ErrNotFound = errors.New("wordlist not found")
	ErrRead     = errors.New("reading wordlist")
)

// Lines streams the lines of r without loading it into memory. Trailing "\r"
// is removed. A read error is yielded once and ends the stream.
func Lines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxLineLen)
		for scanner.Scan() {
			if !yield(strings.TrimSuffix(scanner.Text(), "\r"), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("%w: %w", ErrRead, err))
		}
	}
}

// File streams the lines of the file at path. The file is opened when the
// iteration starts and closed when it stops, so the sequence can be ranged
// over more than once.
func File(path string) iter.Seq2[string, error] {
	return FS(osFS{}, path)
}

// FS is File for a file inside fsys.
func FS(fsys fs.FS, name string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f, err := fsys.Open(name)
		if err != nil {
			yield("", fmt.Errorf("%w: %w", ErrRead, err))
			return
		}
		defer func() {
			_ = f.Close() // read only
		}()
		for line, err := range Lines(f) {
			if !yield(line, err) {
				return
			}
		}
	}
}

// Dir resolves wordlist names to <name>.txt files inside a directory. Names
// can't escape the directory.
type Dir struct {
	root *os.Root
}

func OpenDir(dir string) (*Dir, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("opening wordlist dir: %w", err)
	}
	return &Dir{root: root}, nil
}

// Resolve returns the stream of the wordlist called name or ErrNotFound.
func (d *Dir) Resolve(name string) (iter.Seq2[string, error], error) {
	file := name + Ext
	if name == "" || !fs.ValidPath(file) || path.Base(file) != file {
		return nil, fmt.Errorf("%w: invalid name %q", ErrNotFound, name)
	}
	info, err := d.root.Stat(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, name)
	}
	return FS(d.root.FS(), file), nil
}

// List returns the sorted names of the wordlists available in the directory.
func (d *Dir) List() ([]string, error) {
	entries, err := fs.ReadDir(d.root.FS(), ".")
	if err != nil {
		return nil, fmt.Errorf("listing wordlists: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), Ext))
	}
	slices.Sort(names)
	return names, nil
}

func (d *Dir) Name() string {
	return d.root.Name()
}

func (d *Dir) Close() error {
	return d.root.Close()
}

// osFS opens paths relative to the working directory, absolute ones included.
type osFS struct{}

func (osFS) Open(name string) (fs.File, error) {
	return os.Open(name)
}
