package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ihbar/internal/store"
)

// ReviewSetter records an operator verdict on a report.
type ReviewSetter interface {
	SetReviewStatus(ctx context.Context, reportID uuid.UUID, status string) error
}

// ReviewRequest is the body of POST /api/v1/reports/{id}/review.
type ReviewRequest struct {
	Status string `json:"status"`
}

var reviewStatuses = map[string]bool{"confirmed": true, "rejected": true, "skipped": true}

// EnableReviews adds the manual review route behind bearer auth. It is a
// no-op without a token.
func (s *Server) EnableReviews(apiToken string, reviews ReviewSetter) {
	if apiToken == "" {
		slog.Warn("API_TOKEN not set, review endpoint disabled")
		return
	}
	s.router.Route("/api/v1/reports", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/{id}/review", reviewHandler(reviews))
	})
}

// BearerAuthMiddleware rejects requests without "Authorization: Bearer <token>".
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func reviewHandler(reviews ReviewSetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid report id"})
			return
		}

		var req ReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
		if !reviewStatuses[req.Status] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be confirmed, rejected or skipped"})
			return
		}

		err = reviews.SetReviewStatus(r.Context(), id, req.Status)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "report not found"})
		case err != nil:
			slog.Error("review update failed", "report_id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "review update failed"})
		default:
			slog.Info("report reviewed via API", "report_id", id, "status", req.Status)
			writeJSON(w, http.StatusOK, map[string]string{"report_id": id.String(), "review_status": req.Status})
		}
	}
}
