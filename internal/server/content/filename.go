package content

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/hoot/internal/common"
)

// Loose fallback for headers mime.ParseMediaType rejects.
var dispositionFilename = regexp.MustCompile(`filename="?([^";]+)"?`)

// FilenameFromURL returns the unescaped last path segment of rawURL, or "".
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	return path.Base(p)
}

// FilenameFromDisposition extracts the filename parameter of a
// Content-Disposition header value, or "".
func FilenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := params["filename"]; name != "" {
			return path.Base(name)
		}
	}
	if m := dispositionFilename.FindStringSubmatch(header); m != nil {
		return path.Base(strings.TrimSpace(m[1]))
	}
	return ""
}

// ResolveFilename picks the first non-empty of an explicit upload name, the
// source URL's last path segment and the Content-Disposition filename.
func ResolveFilename(explicit, sourceURL, disposition string) (string, error) {
	for _, name := range []string{
		strings.TrimSpace(explicit),
		FilenameFromURL(sourceURL),
		FilenameFromDisposition(disposition),
	} {
		if name != "" && name != "." && name != "/" {
			return name, nil
		}
	}
	return "", common.ErrFilenameRequired
}

// Extension returns the lower-cased suffix after the last dot of filename.
// When the name has no usable suffix the extension registered for mimeType
// is used instead, and "bin" when even that is unknown.
func Extension(filename, mimeType string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 && i < len(filename)-1 {
		ext := strings.ToLower(filename[i+1:])
		if isSafeExtension(ext) {
			return ext
		}
	}
	if ext := ExtensionForMIME(mimeType); ext != "" {
		return ext
	}
	return "bin"
}

// isSafeExtension keeps object keys to a plain [a-z0-9] suffix.
func isSafeExtension(ext string) bool {
	if len(ext) > 16 {
		return false
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
