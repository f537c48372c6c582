package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bibfetch/bibfetch/internal/domain"
	"github.com/bibfetch/bibfetch/internal/fetcher"
)

// Validation constants.
const (
	minQueryLength = 1
	maxQueryLength = 10000
)

// reservedParams are query parameters consumed by the API itself; everything
// else is forwarded to the provider as a search parameter override.
var reservedParams = map[string]bool{
	"q":       true,
	"refresh": true,
}

// searchResponse is the JSON body of a search result.
type searchResponse struct {
	Provider    string       `json:"provider"`
	Query       string       `json:"query"`
	RowCount    int          `json:"row_count"`
	RecordCount int          `json:"record_count"`
	Rows        []domain.Row `json:"rows"`
}

// providerFetcher resolves the {provider} URL parameter to its fetcher,
// writing the error response itself on failure.
func (s *Server) providerFetcher(w http.ResponseWriter, r *http.Request) (*fetcher.Fetcher, bool) {
	name := chi.URLParam(r, "provider")
	f, err := s.registry.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown provider: "+name)
		return nil, false
	}
	return f, true
}

// searchHandler handles GET /api/v1/{provider}/search?q=...
// Query parameters other than q and refresh are forwarded to the provider.
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := s.providerFetcher(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	if len(query) < minQueryLength {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "q is too long")
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	params := map[string]string{}
	for k, vs := range r.URL.Query() {
		if reservedParams[k] || len(vs) == 0 {
			continue
		}
		params[k] = vs[0]
	}

	rows, err := f.Fetch(r.Context(), query, params, refresh)
	if err != nil {
		// Fetch only errors on cancellation; the client has gone away.
		s.logger.Warn().Err(err).Msg("search abandoned")
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Provider:    f.Name(),
		Query:       query,
		RowCount:    len(rows),
		RecordCount: domain.RecordCount(rows),
		Rows:        rows,
	})
}

// recordHandler handles GET /api/v1/{provider}/records/{id}. The identifier
// is taken from the wildcard tail because DOIs contain slashes.
func (s *Server) recordHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := s.providerFetcher(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "*")
	if id == "" {
		writeError(w, http.StatusBadRequest, "record identifier is required")
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	record, err := f.FetchRecord(r.Context(), id, refresh)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "record not found: "+id)
		case errors.Is(err, domain.ErrMissingCredential):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.logger.Error().Err(err).Str("id", id).Msg("record lookup failed")
			writeError(w, http.StatusBadGateway, "provider lookup failed")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(record)
}

// listCacheHandler handles GET /api/v1/{provider}/cache.
func (s *Server) listCacheHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := s.providerFetcher(w, r)
	if !ok {
		return
	}

	infos, err := f.Store().Keys()
	if err != nil {
		s.logger.Error().Err(err).Msg("cache enumeration failed")
		writeError(w, http.StatusInternalServerError, "cache enumeration failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider": f.Name(),
		"count":    len(infos),
		"entries":  infos,
	})
}

// deleteCacheHandler handles DELETE /api/v1/{provider}/cache/{key}.
func (s *Server) deleteCacheHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := s.providerFetcher(w, r)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	if err := f.Store().Delete(key); err != nil {
		s.logger.Error().Err(err).Str("cache_key", key).Msg("cache delete failed")
		writeError(w, http.StatusInternalServerError, "cache delete failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"deleted": key,
	})
}

// purgeCappedHandler handles POST /api/v1/{provider}/cache/purge-capped.
func (s *Server) purgeCappedHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := s.providerFetcher(w, r)
	if !ok {
		return
	}

	purged, err := f.PurgeExceededCap()
	if err != nil {
		s.logger.Error().Err(err).Msg("cache purge failed")
		writeError(w, http.StatusInternalServerError, "cache purge failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider": f.Name(),
		"purged":   purged,
		"cap":      f.MaxResults(),
	})
}
