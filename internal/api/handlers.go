package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pragyanlabs/receiptops/internal/models"
	"github.com/pragyanlabs/receiptops/internal/service"
	"github.com/pragyanlabs/receiptops/internal/store"
	"github.com/pragyanlabs/receiptops/internal/validate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "receipt_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

const listLimit = 500

// IntakeProcessor accepts contributor submissions.
type IntakeProcessor interface {
	ProcessSubmission(ctx context.Context, req models.SubmitReceiptRequest) (*models.SubmitReceiptResponse, error)
}

// ClaimDirectory is the operator-facing view over stored claims.
type ClaimDirectory interface {
	GetClaim(ctx context.Context, id string) (*models.ReceiptClaim, error)
	ListClaims(ctx context.Context, limit int) ([]models.ReceiptClaim, error)
	UpdateStatus(ctx context.Context, id string, next models.Status) (*models.ReceiptClaim, error)
}

type Handler struct {
	intake IntakeProcessor
	claims ClaimDirectory
}

func NewHandler(intake IntakeProcessor, claims ClaimDirectory) *Handler {
	return &Handler{intake: intake, claims: claims}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SubmitReceiptHandler is the public intake endpoint. The contribution form
// is hosted on a different origin, so the endpoint answers pre-flight and
// sends permissive CORS headers on every response.
func (h *Handler) SubmitReceiptHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/receipts"))
	defer timer.ObserveDuration()

	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		httpRequestsTotal.WithLabelValues("OPTIONS", "/receipts", "204").Inc()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req models.SubmitReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpRequestsTotal.WithLabelValues("POST", "/receipts", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	resp, err := h.intake.ProcessSubmission(r.Context(), req)
	if err != nil {
		var vErr *validate.Error
		var dupErr *service.DuplicateReferenceError
		switch {
		case errors.As(err, &vErr):
			httpRequestsTotal.WithLabelValues("POST", "/receipts", "400").Inc()
			respondWithError(w, http.StatusBadRequest, vErr.Error())
		case errors.As(err, &dupErr):
			httpRequestsTotal.WithLabelValues("POST", "/receipts", "409").Inc()
			respondWithError(w, http.StatusConflict,
				fmt.Sprintf("Error: The transaction reference %s has already been submitted.", dupErr.Reference))
		default:
			log.Printf("api: submission failed: %v", err)
			httpRequestsTotal.WithLabelValues("POST", "/receipts", "500").Inc()
			respondWithError(w, http.StatusInternalServerError, "Database error occurred. Receipt not saved.")
		}
		return
	}

	httpRequestsTotal.WithLabelValues("POST", "/receipts", "201").Inc()
	w.Header().Set("Location", fmt.Sprintf("/api/v1/receipts/%s", resp.ReceiptID))
	respondWithJSON(w, http.StatusCreated, resp)
}

// ListClaimsHandler feeds the review dashboard, newest first.
func (h *Handler) ListClaimsHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := h.claims.ListClaims(r.Context(), listLimit)
	if err != nil {
		log.Printf("api: list failed: %v", err)
		httpRequestsTotal.WithLabelValues("GET", "/receipts", "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if claims == nil {
		claims = []models.ReceiptClaim{}
	}
	httpRequestsTotal.WithLabelValues("GET", "/receipts", "200").Inc()
	respondWithJSON(w, http.StatusOK, claims)
}

func (h *Handler) GetClaimHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	claim, err := h.claims.GetClaim(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrClaimNotFound) {
			httpRequestsTotal.WithLabelValues("GET", "/receipts/{id}", "404").Inc()
			respondWithError(w, http.StatusNotFound, "Receipt not found")
			return
		}
		log.Printf("api: get %s failed: %v", id, err)
		httpRequestsTotal.WithLabelValues("GET", "/receipts/{id}", "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", "/receipts/{id}", "200").Inc()
	respondWithJSON(w, http.StatusOK, claim)
}

// UpdateStatusHandler performs the operator's guarded status flip. Confirmed
// and Rejected are terminal, so replays and mistaken reversals get a 409
// instead of re-entering the notification path.
func (h *Handler) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpRequestsTotal.WithLabelValues("PATCH", "/receipts/{id}/status", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if !req.Status.Valid() {
		httpRequestsTotal.WithLabelValues("PATCH", "/receipts/{id}/status", "400").Inc()
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown status %q", req.Status))
		return
	}

	claim, err := h.claims.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrClaimNotFound):
			httpRequestsTotal.WithLabelValues("PATCH", "/receipts/{id}/status", "404").Inc()
			respondWithError(w, http.StatusNotFound, "Receipt not found")
		case errors.Is(err, store.ErrInvalidTransition):
			httpRequestsTotal.WithLabelValues("PATCH", "/receipts/{id}/status", "409").Inc()
			respondWithError(w, http.StatusConflict, "Status transition not permitted")
		default:
			log.Printf("api: status update %s failed: %v", id, err)
			httpRequestsTotal.WithLabelValues("PATCH", "/receipts/{id}/status", "500").Inc()
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	httpRequestsTotal.WithLabelValues("PATCH", "/receipts/{id}/status", "200").Inc()
	respondWithJSON(w, http.StatusOK, claim)
}

// RequireSecret gates operator routes behind the shared secret from startup
// configuration.
func RequireSecret(secret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Admin-Secret") != secret {
				respondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
