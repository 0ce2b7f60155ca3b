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
	"FundOrders/internal/services/order"
	"FundOrders/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	log          *slog.Logger
	orderService orderService
	validate     *validator.Validate
}

type orderService interface {
	PlaceLumpSumOrder(ctx context.Context, userId, fundCode string, amount decimal.Decimal, orderType models.OrderType) (uuid.UUID, string, error)
	ConfirmPayment(ctx context.Context, orderId uuid.UUID, paymentId, signature string) (bool, error)
	CancelOrder(ctx context.Context, orderId uuid.UUID) (bool, error)
	GetOrderStatus(ctx context.Context, orderId uuid.UUID) (models.OrderStatus, error)
	GetUserOrders(ctx context.Context, userId string) ([]models.Order, error)
}

func NewOrderHandler(log *slog.Logger, orderService orderService, validate *validator.Validate) *OrderHandler {
	return &OrderHandler{
		log:          log,
		orderService: orderService,
		validate:     validate,
	}
}

func (h *OrderHandler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Route("/api/orders", func(router chi.Router) {
		router.Post("/lumpsum", h.PostLumpSum)
		router.Post("/{orderId}/confirm-payment", h.PostConfirmPayment)
		router.Post("/{orderId}/cancel", h.PostCancel)
		router.Get("/{orderId}", h.GetOrderStatus)
		router.Get("/user/{userId}", h.GetUserOrders)
	})

	return router
}

func (h *OrderHandler) PostLumpSum(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req transport.PlaceLumpSumRequest
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
			Error: "Invalid order parameters",
		})
		return
	}

	orderID, intentID, err := h.orderService.PlaceLumpSumOrder(r.Context(), req.UserID, req.FundCode, req.Amount, req.OrderType)
	if err != nil {
		h.log.Error("Failed to place order", "error", err, "userId", req.UserID)

		if errors.Is(err, order.ErrInvalidAmount) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Amount must be positive",
			})
			return
		}

		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Failed to place order",
		})
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(transport.PlaceLumpSumResponse{
		OrderID:         orderID,
		PaymentIntentID: intentID,
	})
}

func (h *OrderHandler) PostConfirmPayment(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Invalid order id",
		})
		return
	}

	var req transport.ConfirmPaymentRequest
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
			Error: "Payment id and signature are required",
		})
		return
	}

	confirmed, err := h.orderService.ConfirmPayment(r.Context(), orderID, req.PaymentID, req.Signature)
	if !confirmed {
		h.log.Error("Payment confirmation failed", "error", err, "orderId", orderID)

		switch {
		case errors.Is(err, storage.ErrOrderNotExists):
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Order not found",
			})
		case errors.Is(err, order.ErrPaymentVerificationFailed):
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Payment verification failed",
			})
		case errors.Is(err, storage.ErrInvalidOrderState):
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Order is not awaiting payment",
			})
		default:
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Failed to confirm payment",
			})
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.ConfirmPaymentResponse{
		Confirmed: true,
	})
}

func (h *OrderHandler) PostCancel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Invalid order id",
		})
		return
	}

	cancelled, err := h.orderService.CancelOrder(r.Context(), orderID)
	if !cancelled {
		h.log.Error("Failed to cancel order", "error", err, "orderId", orderID)

		switch {
		case errors.Is(err, storage.ErrOrderNotExists):
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Order not found",
			})
		case errors.Is(err, storage.ErrInvalidOrderState):
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Order can no longer be cancelled",
			})
		default:
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Failed to cancel order",
			})
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.OrderStatusResponse{
		OrderID: orderID,
		Status:  models.Cancelled,
	})
}

func (h *OrderHandler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Invalid order id",
		})
		return
	}

	status, err := h.orderService.GetOrderStatus(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotExists) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Order not found",
			})
			return
		}

		h.log.Error("Failed to get order status", "error", err, "orderId", orderID)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Failed to get order status",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.OrderStatusResponse{
		OrderID: orderID,
		Status:  status,
	})
}

func (h *OrderHandler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID := chi.URLParam(r, "userId")

	orders, err := h.orderService.GetUserOrders(r.Context(), userID)
	if err != nil {
		h.log.Error("Failed to get user orders", "error", err, "userId", userID)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Failed to get orders",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.GetOrdersResponse{
		Orders: orders,
	})
}

// parseDate parses the yyyy-mm-dd dates the API accepts.
func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}
