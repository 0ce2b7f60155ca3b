package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"FundOrders/internal/domain/models"
	"FundOrders/internal/domain/models/transport"
	"FundOrders/internal/services/sip"
	"FundOrders/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SipHandler struct {
	log        *slog.Logger
	sipService sipService
	validate   *validator.Validate
}

type sipService interface {
	PlaceSipOrder(ctx context.Context, userId, fundCode string, amount decimal.Decimal, frequency models.Frequency, startDate time.Time, endDate *time.Time) (uuid.UUID, error)
	StopSip(ctx context.Context, sipId uuid.UUID) (bool, error)
	GetSipStatus(ctx context.Context, sipId uuid.UUID) (models.SipStatus, error)
	GetUserSips(ctx context.Context, userId string) ([]models.Sip, error)
}

func NewSipHandler(log *slog.Logger, sipService sipService, validate *validator.Validate) *SipHandler {
	return &SipHandler{
		log:        log,
		sipService: sipService,
		validate:   validate,
	}
}

func (h *SipHandler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Route("/api/sips", func(router chi.Router) {
		router.Post("/", h.PostPlaceSip)
		router.Post("/{sipId}/stop", h.PostStopSip)
		router.Get("/{sipId}", h.GetSipStatus)
		router.Get("/user/{userId}", h.GetUserSips)
	})

	return router
}

func (h *SipHandler) PostPlaceSip(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req transport.PlaceSipRequest
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
			Error: "Invalid sip parameters",
		})
		return
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Invalid start date",
		})
		return
	}

	var endDate *time.Time
	if req.EndDate != "" {
		parsed, err := parseDate(req.EndDate)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Invalid end date",
			})
			return
		}
		endDate = &parsed
	}

	sipID, err := h.sipService.PlaceSipOrder(r.Context(), req.UserID, req.FundCode, req.Amount, req.Frequency, startDate, endDate)
	if err != nil {
		h.log.Error("Failed to place sip", "error", err, "userId", req.UserID)

		switch {
		case errors.Is(err, sip.ErrInvalidAmount):
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Amount must be positive",
			})
		case errors.Is(err, sip.ErrInvalidDateRange):
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "End date must not precede start date",
			})
		case errors.Is(err, models.ErrUnsupportedFrequency):
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Unsupported frequency",
			})
		default:
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Failed to place sip",
			})
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(transport.PlaceSipResponse{
		SipID: sipID,
	})
}

func (h *SipHandler) PostStopSip(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sipID, err := uuid.Parse(chi.URLParam(r, "sipId"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Invalid sip id",
		})
		return
	}

	stopped, err := h.sipService.StopSip(r.Context(), sipID)
	if !stopped {
		h.log.Error("Failed to stop sip", "error", err, "sipId", sipID)

		switch {
		case errors.Is(err, storage.ErrSipNotExists):
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Sip not found",
			})
		case errors.Is(err, storage.ErrInvalidSipState):
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Sip is not active",
			})
		default:
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Failed to stop sip",
			})
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.SipStatusResponse{
		SipID:  sipID,
		Status: models.SipStopped,
	})
}

func (h *SipHandler) GetSipStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sipID, err := uuid.Parse(chi.URLParam(r, "sipId"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Invalid sip id",
		})
		return
	}

	status, err := h.sipService.GetSipStatus(r.Context(), sipID)
	if err != nil {
		if errors.Is(err, storage.ErrSipNotExists) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Sip not found",
			})
			return
		}

		h.log.Error("Failed to get sip status", "error", err, "sipId", sipID)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Failed to get sip status",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.SipStatusResponse{
		SipID:  sipID,
		Status: status,
	})
}

func (h *SipHandler) GetUserSips(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID := chi.URLParam(r, "userId")

	sips, err := h.sipService.GetUserSips(r.Context(), userID)
	if err != nil {
		h.log.Error("Failed to get user sips", "error", err, "userId", userID)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Failed to get sips",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.GetSipsResponse{
		Sips: sips,
	})
}
