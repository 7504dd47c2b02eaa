package monitor

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	defaultListLimit = 200
	maxListLimit     = 1000
)

// Handler serves recent events as JSON. Query parameters: type, limit.
func (s *Service) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := defaultListLimit
		if raw := q.Get("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 {
				limit = min(v, maxListLimit)
			}
		}

		eventType, ok := ParseEventType(strings.ToLower(strings.TrimSpace(q.Get("type"))))
		if !ok {
			http.Error(w, "unknown event type", http.StatusBadRequest)
			return
		}

		events, err := s.ListEvents(r.Context(), eventType, limit)
		if err != nil {
			s.logger.Warn("failed to list monitor events", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(events); err != nil {
			s.logger.Warn("failed to write events response", zap.Error(err))
		}
	}
}
