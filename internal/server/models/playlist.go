package models

// Playlist is a named, per-owner collection of tracks.
type Playlist struct {
	ID      int64
	OwnerID int64
	Name    string
}
