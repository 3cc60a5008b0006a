// Package api serves the recognition service over HTTP.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ironsheep/lens-match/internal/imaging"
	"github.com/ironsheep/lens-match/internal/lens"
	"github.com/ironsheep/lens-match/internal/rules"
	"github.com/ironsheep/lens-match/internal/store"
)

const (
	maxImageBodySize = 20 << 20 // 20 MiB
	maxJSONBodySize  = 1 << 20
)

// NewHandler returns the HTTP API. When token is non-empty every /v1 route
// requires "Authorization: Bearer <token>".
func NewHandler(svc *lens.Service, token string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/v1", func(r chi.Router) {
		if token != "" {
			r.Use(bearerAuth(token))
		}
		r.Post("/recognize", handleRecognize(svc, logger))
		r.Get("/rules", handleListRules(svc))
		r.Post("/rules", handleCreateRule(svc))
		r.Post("/rules/reorder", handleReorderRules(svc))
		r.Get("/rules/{id}", handleGetRule(svc))
		r.Delete("/rules/{id}", handleDeleteRule(svc))
		r.Get("/recognitions", handleListRecognitions(svc))
		r.Get("/runtime", handleRuntime(svc))
	})

	return r
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleRecognize accepts the image either as the raw request body or as the
// "image" field of a multipart form.
func handleRecognize(svc *lens.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImageBodySize)
		defer r.Body.Close()

		var body io.Reader = r.Body
		if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
			file, _, err := r.FormFile("image")
			if err != nil {
				if tooLarge(err) {
					httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "image exceeds %d bytes", maxImageBodySize)
					return
				}
				httpError(w, http.StatusBadRequest, "invalid_request_error", "multipart field \"image\" is required: %v", err)
				return
			}
			defer file.Close()
			body = file
		}

		out, err := svc.Recognize(r.Context(), body)
		switch {
		case tooLarge(err):
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "image exceeds %d bytes", maxImageBodySize)
			return
		case errors.Is(err, imaging.ErrDecode):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case err != nil:
			logger.Error("recognition failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "recognition failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func handleListRules(svc *lens.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs, err := svc.Rules()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list rules: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, rs)
	}
}

type createRuleRequest struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Kind                string           `json:"kind"`
	Target              string           `json:"target"`
	SimilarityThreshold float64          `json:"similarity_threshold"`
	ReferenceEmbedding  []float32        `json:"reference_embedding"`
	Feedback            []rules.Feedback `json:"feedback"`
}

func handleCreateRule(svc *lens.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		defer r.Body.Close()

		var req createRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		rule, err := svc.AddRule(r.Context(), lens.Draft{
			ID:                  req.ID,
			Name:                req.Name,
			Kind:                req.Kind,
			Target:              req.Target,
			SimilarityThreshold: req.SimilarityThreshold,
			ReferenceEmbedding:  req.ReferenceEmbedding,
			Feedback:            req.Feedback,
		})
		if errors.Is(err, rules.ErrInvalidRule) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save rule: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, rule)
	}
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

// handleReorderRules moves the named rules to the front of the evaluation
// order and returns the resulting list.
func handleReorderRules(svc *lens.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		defer r.Body.Close()

		var req reorderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.IDs) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "ids is required")
			return
		}

		err := svc.ReorderRules(req.IDs)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reorder rules: %v", err)
			return
		}

		rs, err := svc.Rules()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list rules: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, rs)
	}
}

func handleGetRule(svc *lens.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rule, err := svc.Rule(id)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "rule not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get rule: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	}
}

func handleDeleteRule(svc *lens.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := svc.DeleteRule(id)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "rule not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete rule: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListRecognitions(svc *lens.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		hist, err := svc.History(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list recognitions: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, hist)
	}
}

func handleRuntime(svc *lens.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.RuntimeStatus())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
