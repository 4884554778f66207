package service

import (
	"errors"
	"fmt"
	"os"

	"github.com/CZERTAINLY/Cracker/internal/crack"
	"github.com/CZERTAINLY/Cracker/internal/wordlist"
	"github.com/CZERTAINLY/Cracker/internal/ziptarget"
)

// OpenZip is the TargetOpener for encrypted ZIP archives.
func OpenZip(path string) (crack.Tester, error) {
	t, err := ziptarget.Open(path)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Wordlists resolves a name inside Dir first and falls back to a file path.
type Wordlists struct {
	Dir *wordlist.Dir
}

func (w Wordlists) Resolve(name string) (crack.Words, error) {
	if w.Dir != nil {
		words, err := w.Dir.Resolve(name)
		if err == nil {
			return words, nil
		}
		if !errors.Is(err, wordlist.ErrNotFound) {
			return nil, err
		}
	}

	info, err := os.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", wordlist.ErrNotFound, name)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", wordlist.ErrNotFound, name)
	}
	return wordlist.File(name), nil
}
