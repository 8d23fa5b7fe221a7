package playlists

import (
	"context"

	"github.com/dmitrijs2005/hoot/internal/server/models"
)

type Repository interface {
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.Playlist, error)
	// Create inserts the playlist or returns the existing one with that name.
	Create(ctx context.Context, ownerID int64, name string) (*models.Playlist, error)
	AddTrack(ctx context.Context, playlistID, trackID int64) error
}
