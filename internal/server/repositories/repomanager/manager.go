package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/hoot/internal/dbx"
	"github.com/dmitrijs2005/hoot/internal/server/repositories/playlists"
	"github.com/dmitrijs2005/hoot/internal/server/repositories/tracks"
	"github.com/dmitrijs2005/hoot/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// can run against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Tracks(db dbx.DBTX) tracks.Repository
	Playlists(db dbx.DBTX) playlists.Repository
}
