// Package rest serves the Hoot HTTP/JSON API.
package rest

import (
	"context"

	"github.com/dmitrijs2005/hoot/internal/logging"
	"github.com/dmitrijs2005/hoot/internal/server/models"
	"github.com/dmitrijs2005/hoot/internal/server/services"
)

// TrackService is the track catalogue as seen by the API.
type TrackService interface {
	Create(ctx context.Context, user *models.User, req services.CreateTrackRequest) (*models.Track, error)
	Get(ctx context.Context, ownerID, id int64) (*models.Track, error)
	ListByPlaylist(ctx context.Context, ownerID int64) (map[string][]*models.Track, error)
	Delete(ctx context.Context, ownerID, id int64) error
}

// UserService is account management as seen by the API.
type UserService interface {
	Register(ctx context.Context, req services.RegisterRequest) error
	Verify(ctx context.Context, code string) error
	Login(ctx context.Context, email, password string) (string, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
	Status(ctx context.Context, user *models.User) (*services.Status, error)
	ChangePassword(ctx context.Context, user *models.User, oldPassword, newPassword string) error
	LinkPatreon(ctx context.Context, user *models.User, code string) (*services.Status, error)
}

// SubscriptionService applies subscription provider webhooks.
type SubscriptionService interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

// Handler holds the endpoints' dependencies.
type Handler struct {
	tracks        TrackService
	users         UserService
	subscriptions SubscriptionService
	logger        logging.Logger

	// production hides server error detail from clients.
	production bool
	// maxRequestSize bounds a track upload request, form overhead included.
	maxRequestSize int64
}

// formOverhead is what a multipart request may add to the file it carries.
const formOverhead = 1 << 20

func NewHandler(ts TrackService, us UserService, ss SubscriptionService, logger logging.Logger, production bool, maxUploadSize int64) *Handler {
	return &Handler{
		tracks:         ts,
		users:          us,
		subscriptions:  ss,
		logger:         logger.With("module", "rest"),
		production:     production,
		maxRequestSize: maxUploadSize + formOverhead,
	}
}
