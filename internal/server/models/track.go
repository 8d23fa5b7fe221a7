package models

import "time"

// Track is an uploaded audio file. Size and ObjectKey never change after
// creation. Source and SourceExpiration are either both nil or both set.
type Track struct {
	ID        int64
	OwnerID   int64
	Name      string
	Size      int64
	ObjectKey string

	// Source is a temporary presigned download URL.
	Source           *string
	SourceExpiration *time.Time

	// Playlists holds playlist names when the track was loaded with them.
	Playlists []string
}

// HasSource reports whether a cached download URL is stored.
func (t *Track) HasSource() bool {
	return t.Source != nil && t.SourceExpiration != nil
}

// SetSource stores url and its expiration together.
func (t *Track) SetSource(url string, expiration time.Time) {
	exp := expiration.UTC()
	t.Source = &url
	t.SourceExpiration = &exp
}
