package tracks

import (
	"context"
	"time"

	"github.com/dmitrijs2005/hoot/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, track *models.Track) (*models.Track, error)
	Get(ctx context.Context, ownerID, id int64) (*models.Track, error)
	Delete(ctx context.Context, ownerID, id int64) error
	SaveSource(ctx context.Context, id int64, url string, expiration time.Time) error

	// Sizes returns the size of every track owned by ownerID.
	Sizes(ctx context.Context, ownerID int64) ([]int64, error)
	// ListInPlaylists returns one entry per (playlist, track) membership,
	// ordered by playlist name and track id.
	ListInPlaylists(ctx context.Context, ownerID int64) ([]PlaylistEntry, error)
	PlaylistNames(ctx context.Context, trackID int64) ([]string, error)
	// ObjectKeys returns every object key referenced by a track row.
	ObjectKeys(ctx context.Context) ([]string, error)
}

// PlaylistEntry pairs a track with the name of a playlist that contains it.
type PlaylistEntry struct {
	Playlist string
	Track    *models.Track
}
