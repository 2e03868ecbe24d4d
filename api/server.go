// Package api exposes a small read-only JSON API over the store: active
// listings, daily changes and the run log.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Michiel-H/HuizenZoeker/models"
	"github.com/Michiel-H/HuizenZoeker/storage"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

// Server wires the HTTP handlers to the store.
type Server struct {
	store  storage.Store
	logger *utils.Logger
}

// NewServer creates a Server.
func NewServer(store storage.Store, logger *utils.Logger) *Server {
	return &Server{store: store, logger: logger}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/listings", s.handleListings).Methods(http.MethodGet)
	r.HandleFunc("/api/changes", s.handleChanges).Methods(http.MethodGet)
	r.HandleFunc("/api/runs", s.handleRuns).Methods(http.MethodGet)
	return r
}

type listingResponse struct {
	ID                     int64                   `json:"id"`
	DedupeID               string                  `json:"dedupe_id"`
	Source                 string                  `json:"source"`
	SourceID               string                  `json:"source_id,omitempty"`
	URL                    string                  `json:"url"`
	Title                  string                  `json:"title"`
	Neighborhood           string                  `json:"neighborhood,omitempty"`
	NeighborhoodConfidence float64                 `json:"neighborhood_confidence"`
	AmbiguousNeighborhood  bool                    `json:"ambiguous_neighborhood"`
	PriceTotalEUR          *float64                `json:"price_total_eur"`
	PriceQuality           string                  `json:"price_quality"`
	GWLIncluded            bool                    `json:"gwl_included"`
	AreaM2                 *float64                `json:"area_m2"`
	Bedrooms               *int                    `json:"bedrooms"`
	Status                 string                  `json:"status"`
	FirstSeenAt            time.Time               `json:"first_seen_at"`
	LastSeenAt             time.Time               `json:"last_seen_at"`
	LastChangedAt          time.Time               `json:"last_changed_at"`
	MissingRuns            int                     `json:"missing_runs"`
	ChangeLog              []models.ChangeLogEntry `json:"change_log,omitempty"`
}

func toResponse(l *models.StoredListing) listingResponse {
	return listingResponse{
		ID:                     l.ID,
		DedupeID:               l.DedupeID,
		Source:                 l.Source,
		SourceID:               l.SourceID,
		URL:                    l.URL,
		Title:                  l.Title,
		Neighborhood:           l.NeighborhoodMatch,
		NeighborhoodConfidence: l.NeighborhoodConfidence,
		AmbiguousNeighborhood:  l.AmbiguousNeighborhood,
		PriceTotalEUR:          l.PriceTotalEUR,
		PriceQuality:           l.PriceQuality,
		GWLIncluded:            l.GWLIncluded,
		AreaM2:                 l.AreaM2,
		Bedrooms:               l.Bedrooms,
		Status:                 string(l.Status),
		FirstSeenAt:            l.FirstSeenAt,
		LastSeenAt:             l.LastSeenAt,
		LastChangedAt:          l.LastChangedAt,
		MissingRuns:            l.MissingRuns,
		ChangeLog:              l.ChangeLog,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok", "backend": s.store.BackendName()})
}

// handleListings returns listings filtered by status (default ACTIVE),
// neighborhood, source and price bounds.
func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := storage.Filters{
		Status:       q.Get("status"),
		Neighborhood: q.Get("neighborhood"),
		Source:       q.Get("source"),
	}
	if f.Status == "" {
		f.Status = string(models.StatusActive)
	}
	if v := q.Get("min_price"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinPrice = &p
		}
	}
	if v := q.Get("max_price"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil {
			f.MaxPrice = &p
		}
	}

	listings, err := s.store.QueryListings(f)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, toResponse(l))
	}
	s.writeJSON(w, out)
}

// handleChanges returns the NEW/CHANGED/REMOVED buckets since a timestamp
// (RFC 3339, default 24 hours ago).
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid since parameter, want RFC 3339", http.StatusBadRequest)
			return
		}
		since = t
	}

	changes, err := s.store.DailyChanges(since)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, map[string][]listingResponse{
		"new":     toResponses(changes.New),
		"changed": toResponses(changes.Changed),
		"removed": toResponses(changes.Removed),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.store.RecentRuns(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	type runResponse struct {
		RunAt    time.Time `json:"run_at"`
		Source   string    `json:"source"`
		Fetched  int       `json:"fetched"`
		Kept     int       `json:"kept"`
		Filtered int       `json:"filtered"`
		New      int       `json:"new"`
		Changed  int       `json:"changed"`
		Removed  int       `json:"removed"`
		Errors   string    `json:"errors,omitempty"`
	}

	out := make([]runResponse, 0, len(runs))
	for _, st := range runs {
		out = append(out, runResponse{
			RunAt:    st.RunAt,
			Source:   st.Source,
			Fetched:  st.Fetched,
			Kept:     st.Kept,
			Filtered: st.Filtered,
			New:      st.New,
			Changed:  st.Changed,
			Removed:  st.Removed,
			Errors:   st.Errors,
		})
	}
	s.writeJSON(w, out)
}

func toResponses(listings []*models.StoredListing) []listingResponse {
	out := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, toResponse(l))
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("[api] Encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Error("[api] Query failed: %v", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
