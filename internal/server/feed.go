package server

import (
	"net/http"

	"github.com/google/uuid"

	feed "github.com/eugener/feedcache/internal"
)

// itemJSON mirrors the remote feed API's item shape.
type itemJSON struct {
	ID          uuid.UUID `json:"id"`
	Description *string   `json:"description"`
	Location    *string   `json:"location"`
	Image       string    `json:"image"`
}

type feedResponse struct {
	Items []itemJSON `json:"items"`
}

type refreshResponse struct {
	Source    string     `json:"source"`
	Items     []itemJSON `json:"items"`
	SaveError string     `json:"save_error,omitempty"`
}

type validateResponse struct {
	Deleted bool   `json:"deleted"`
	Reason  string `json:"reason,omitempty"`
}

func toItems(images []feed.Image) []itemJSON {
	out := make([]itemJSON, len(images))
	for i, img := range images {
		out[i] = itemJSON{ID: img.ID, Description: img.Description, Location: img.Location, Image: img.URL}
	}
	return out
}

// handleLoad serves the cached feed. A stale or empty cache yields no items.
func (s *server) handleLoad(w http.ResponseWriter, r *http.Request) {
	images, err := s.deps.Feed.Load(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{Items: toItems(images)})
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Feed.Refresh(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := refreshResponse{Source: string(res.Source), Items: toItems(res.Images)}
	if res.SaveErr != nil {
		resp.SaveError = res.SaveErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleValidate(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Feed.Validate(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Deleted: res.Deleted, Reason: res.Reason})
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Feed.Clear(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
