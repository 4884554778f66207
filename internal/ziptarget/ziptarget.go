// Package ziptarget tests candidate passwords against an encrypted ZIP archive.
package ziptarget

import (
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/yeka/zip"
)

var (
	ErrNotEncrypted = errors.New("archive has no encrypted entry")
	ErrTooBig       = errors.New("archive too big")
)

// MaxSize is the biggest archive Open accepts. The archive is held in memory.
const MaxSize = 512 * 1024 * 1024

// Target is a read only encrypted ZIP archive. It is safe for concurrent use:
// every Test parses its own reader over the shared bytes.
type Target struct {
	name  string
	data  []byte
	entry string // name of the smallest encrypted entry
}

// Open reads the archive at path.
func Open(path string) (*Target, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("zip target Stat: %w", err)
	}
	if info.Size() > MaxSize {
		return nil, fmt.Errorf("zip target (%d bytes): %w", info.Size(), ErrTooBig)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("zip target ReadFile: %w", err)
	}
	return New(path, data)
}

// New creates a target from the archive content, data must not be modified afterwards.
func New(name string, data []byte) (*Target, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("zip target %s: %w", name, err)
	}

	var smallest *zip.File
	for _, f := range r.File {
		if !f.IsEncrypted() || f.FileInfo().IsDir() {
			continue
		}
		if smallest == nil || f.CompressedSize64 < smallest.CompressedSize64 {
			smallest = f
		}
	}
	if smallest == nil {
		return nil, fmt.Errorf("zip target %s: %w", name, ErrNotEncrypted)
	}

	return &Target{
		name:  name,
		data:  data,
		entry: smallest.Name,
	}, nil
}

func (t *Target) Name() string {
	return t.name
}

// Entry is the name of the encrypted entry used to verify candidates.
func (t *Target) Entry() string {
	return t.entry
}

// Test decrypts the whole entry with candidate. Only failures caused by the
// password (verification, authentication, checksum or a corrupt stream out of
// the decryptor) mean a wrong password, anything else is a target fault.
func (t *Target) Test(_ context.Context, candidate string) (bool, error) {
	f, err := t.file()
	if err != nil {
		return false, err
	}
	f.SetPassword(candidate)

	rc, err := f.Open()
	if err != nil {
		return t.verdict(err)
	}
	defer func() {
		_ = rc.Close()
	}()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return t.verdict(err)
	}
	return true, nil
}

func (t *Target) verdict(err error) (bool, error) {
	if wrongPassword(err) {
		return false, nil
	}
	return false, fmt.Errorf("zip target %s: %w", t.name, err)
}

func wrongPassword(err error) bool {
	var corrupt flate.CorruptInputError
	switch {
	case errors.Is(err, zip.ErrPassword),
		errors.Is(err, zip.ErrDecryption),
		errors.Is(err, zip.ErrAuthentication),
		errors.Is(err, zip.ErrChecksum),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &corrupt):
		return true
	default:
		return false
	}
}

func (t *Target) file() (*zip.File, error) {
	r, err := zip.NewReader(bytes.NewReader(t.data), int64(len(t.data)))
	if err != nil {
		return nil, fmt.Errorf("zip target %s: %w", t.name, err)
	}
	for _, f := range r.File {
		if f.Name == t.entry {
			return f, nil
		}
	}
	return nil, fmt.Errorf("zip target %s: entry %s disappeared", t.name, t.entry)
}
