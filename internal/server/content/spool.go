// Package content validates untrusted track content: it spools the stream to
// a bounded temporary file, sniffs the MIME type from a leading sample and
// resolves the filename that decides the stored extension.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/hoot/internal/common"
)

const (
	// SampleSize is how many leading bytes are used for MIME sniffing.
	SampleSize = 2048

	chunkSize = 8 * 1024
)

// Spooled is a fully received upload held in a temporary file. It can be read
// any number of times from the start. Close removes the file.
type Spooled struct {
	f      *os.File
	size   int64
	sample []byte
}

// Size is the total number of bytes received.
func (s *Spooled) Size() int64 { return s.size }

// Sample returns up to SampleSize leading bytes.
func (s *Spooled) Sample() []byte { return s.sample }

// Reader rewinds the spool and returns it for a fresh read.
func (s *Spooled) Reader() (io.ReadSeeker, error) {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return s.f, nil
}

func (s *Spooled) Close() error {
	name := s.f.Name()
	err := s.f.Close()
	if rmErr := os.Remove(name); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

// Spool copies r into a temporary file in dir ("" for the OS default). The
// copy stops with common.ErrFileTooLarge as soon as more than limit bytes
// arrive, and with the context error when ctx is cancelled. On any error the
// temporary file is already removed.
func Spool(ctx context.Context, r io.Reader, dir string, limit int64) (*Spooled, error) {
	f, err := os.CreateTemp(dir, "hoot-upload-*")
	if err != nil {
		return nil, fmt.Errorf("spool: %w", err)
	}
	s := &Spooled{f: f}

	n, err := copyBounded(ctx, f, r, limit)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.size = n

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("spool: %w", err)
	}
	sample := make([]byte, SampleSize)
	m, err := io.ReadFull(f, sample)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		_ = s.Close()
		return nil, fmt.Errorf("spool: %w", err)
	}
	s.sample = sample[:m]

	return s, nil
}

// copyBounded never reads more than limit+1 bytes from src.
func copyBounded(ctx context.Context, dst io.Writer, src io.Reader, limit int64) (int64, error) {
	buf := make([]byte, chunkSize)
	lr := io.LimitReader(src, limit+1)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, readErr := lr.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > limit {
				return total, common.ErrFileTooLarge
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, fmt.Errorf("spool: %w", err)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return total, nil
		}
		if readErr != nil {
			// a cancelled request body surfaces as a read error
			if ctxErr := ctx.Err(); ctxErr != nil {
				return total, ctxErr
			}
			return total, readErr
		}
	}
}
