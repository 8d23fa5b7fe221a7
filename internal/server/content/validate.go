package content

import (
	"context"
	"io"
)

// Upload is validated content ready to be stored.
type Upload struct {
	*Spooled
	Filename    string
	ContentType string
	Extension   string
}

// Validate spools r under limit, sniffs its type and derives the extension
// from filename. The returned Upload must be closed by the caller.
func Validate(ctx context.Context, r io.Reader, filename, tempDir string, limit int64) (*Upload, error) {
	s, err := Spool(ctx, r, tempDir, limit)
	if err != nil {
		return nil, err
	}

	mimeType, err := Sniff(s.Sample())
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return &Upload{
		Spooled:     s,
		Filename:    filename,
		ContentType: mimeType,
		Extension:   Extension(filename, mimeType),
	}, nil
}
