package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/server/models"
	"github.com/dmitrijs2005/hoot/internal/server/services"
)

// multipartMemory is how much of an upload form is held in memory before
// parts spill to temporary files.
const multipartMemory = 8 << 20

type trackSummary struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Size             int64   `json:"size"`
	Source           *string `json:"source"`
	SourceExpiration *int64  `json:"source_expiration"`
}

type trackDetail struct {
	trackSummary
	Playlists []string `json:"playlists"`
}

// unixSeconds keeps expirations in the form clients compare against
// Date.now() / 1000.
func unixSeconds(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	s := t.Unix()
	return &s
}

func summaryOf(t *models.Track) trackSummary {
	return trackSummary{
		ID:               t.ID,
		Name:             t.Name,
		Size:             t.Size,
		Source:           t.Source,
		SourceExpiration: unixSeconds(t.SourceExpiration),
	}
}

func detailOf(t *models.Track) trackDetail {
	playlists := t.Playlists
	if playlists == nil {
		playlists = []string{}
	}
	return trackDetail{trackSummary: summaryOf(t), Playlists: playlists}
}

func trackID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.ErrorNotFound
	}
	return id, nil
}

// listTracks handles GET /tracks.
func (h *Handler) listTracks(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	lists, err := h.tracks.ListByPlaylist(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make(map[string][]trackSummary, len(lists))
	for name, ts := range lists {
		out := make([]trackSummary, 0, len(ts))
		for _, t := range ts {
			out = append(out, summaryOf(t))
		}
		resp[name] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

// getTrack handles GET /tracks/{id}. The download URL is renewed when stale.
func (h *Handler) getTrack(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	id, err := trackID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	t, err := h.tracks.Get(r.Context(), user.ID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detailOf(t))
}

type trackMetadata struct {
	TrackName *string  `json:"track_name"`
	Playlists []string `json:"playlists"`
	Source    *string  `json:"source"`
}

// createTrack handles POST /tracks/new: a multipart form with a JSON
// "metadata" field and, unless metadata names a source URL, a "file" part.
func (h *Handler) createTrack(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, common.ErrFileTooLarge)
			return
		}
		h.writeError(w, r, fmt.Errorf("%w: %w", common.ErrInvalidRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var meta trackMetadata
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			h.writeError(w, r, fmt.Errorf("%w: metadata: %w", common.ErrInvalidRequest, err))
			return
		}
	}

	req := services.CreateTrackRequest{Playlists: meta.Playlists}
	if meta.TrackName != nil {
		req.Name = *meta.TrackName
	}
	if meta.Source != nil {
		req.SourceURL = *meta.Source
	}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		req.Body = file
		req.Filename = header.Filename
	case errors.Is(err, http.ErrMissingFile):
		// fetched from metadata.source instead
	default:
		h.writeError(w, r, fmt.Errorf("%w: %w", common.ErrInvalidRequest, err))
		return
	}

	if req.Body == nil && req.SourceURL == "" {
		h.writeError(w, r, common.ErrNoFileProvided)
		return
	}

	t, err := h.tracks.Create(r.Context(), user, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detailOf(t))
}

// deleteTrack handles DELETE /tracks/{id}.
func (h *Handler) deleteTrack(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	id, err := trackID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.tracks.Delete(r.Context(), user.ID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeResult(w, "Success")
}
