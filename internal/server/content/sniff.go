package content

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dmitrijs2005/hoot/internal/common"
)

// Sniff returns the MIME type detected from the magic bytes in sample. Only
// types under audio/ are accepted; anything else is common.ErrInvalidFileType.
func Sniff(sample []byte) (string, error) {
	mime := baseType(mimetype.Detect(sample).String())
	if !isAudio(mime) {
		return "", common.ErrInvalidFileType
	}
	return mime, nil
}

// ExtensionForMIME returns the usual extension for mime without the dot,
// or "" when none is known.
func ExtensionForMIME(mime string) string {
	m := mimetype.Lookup(mime)
	if m == nil {
		return ""
	}
	return strings.TrimPrefix(m.Extension(), ".")
}

func isAudio(mime string) bool {
	return strings.HasPrefix(mime, "audio/")
}

func baseType(mime string) string {
	t, _, _ := strings.Cut(mime, ";")
	return strings.TrimSpace(t)
}
