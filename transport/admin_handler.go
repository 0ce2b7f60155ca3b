package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"FundOrders/internal/domain/models/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

type AdminHandler struct {
	log       *slog.Logger
	processor batchProcessor
	validate  *validator.Validate
}

type batchProcessor interface {
	ProcessAsOf(ctx context.Context, asOf time.Time) error
}

func NewAdminHandler(log *slog.Logger, processor batchProcessor, validate *validator.Validate) *AdminHandler {
	return &AdminHandler{
		log:       log,
		processor: processor,
		validate:  validate,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Route("/api/admin", func(router chi.Router) {
		router.Post("/process-orders", h.PostProcessOrders)
	})

	return router
}

func (h *AdminHandler) PostProcessOrders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req transport.ProcessOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error("Failed to decode request", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Invalid request format",
		})
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.log.Error("Validation failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Date is required as yyyy-mm-dd",
		})
		return
	}

	asOf, err := parseDate(req.Date)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Invalid date",
		})
		return
	}

	if err := h.processor.ProcessAsOf(r.Context(), asOf); err != nil {
		h.log.Error("Batch pass failed", "error", err, "asOf", asOf)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Failed to process orders",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.ProcessOrdersResponse{
		Message: "Orders processed",
	})
}
