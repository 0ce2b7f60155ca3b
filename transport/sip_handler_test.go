package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"FundOrders/internal/domain/models"
	"FundOrders/internal/domain/models/transport"
	"FundOrders/internal/services/nav"
	"FundOrders/internal/services/order"
	"FundOrders/internal/services/sip"
	"FundOrders/internal/storage/memory"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fakeMandate struct{}

func (fakeMandate) AutoDebit(_ context.Context, intentId string) (string, string, error) {
	return "pay_" + intentId, "sig_" + intentId, nil
}

func newSipServer() *httptest.Server {
	store := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	prices := nav.New(log, nil, store)
	orders := order.New(log, store, &fakeGateway{verifyOK: true}, prices, nil)
	svc := sip.New(log, store, orders, fakeMandate{})
	h := NewSipHandler(log, svc, validator.New())
	return httptest.NewServer(h.Routes())
}

func TestPostPlaceSip(t *testing.T) {
	srv := newSipServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/sips/", transport.PlaceSipRequest{
		UserID:    "USER001",
		FundCode:  "HDFC001",
		Amount:    decimal.NewFromInt(1000),
		Frequency: models.Monthly,
		StartDate: "2023-11-01",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	placed := decode[transport.PlaceSipResponse](t, resp)
	if placed.SipID == uuid.Nil {
		t.Fatal("missing sip id")
	}

	resp, err := http.Get(srv.URL + "/api/sips/" + placed.SipID.String())
	if err != nil {
		t.Fatal(err)
	}
	status := decode[transport.SipStatusResponse](t, resp)
	if status.Status != models.SipActive {
		t.Fatalf("expected active, got %s", status.Status)
	}
}

func TestPostPlaceSipBadRequests(t *testing.T) {
	srv := newSipServer()
	defer srv.Close()

	cases := []struct {
		name string
		req  transport.PlaceSipRequest
	}{
		{"malformed date", transport.PlaceSipRequest{
			UserID: "USER001", FundCode: "HDFC001",
			Amount:    decimal.NewFromInt(1000),
			Frequency: models.Monthly, StartDate: "01-11-2023",
		}},
		{"end before start", transport.PlaceSipRequest{
			UserID: "USER001", FundCode: "HDFC001",
			Amount:    decimal.NewFromInt(1000),
			Frequency: models.Monthly,
			StartDate: "2023-11-01", EndDate: "2023-10-01",
		}},
		{"unsupported frequency", transport.PlaceSipRequest{
			UserID: "USER001", FundCode: "HDFC001",
			Amount:    decimal.NewFromInt(1000),
			Frequency: models.Frequency("weekly"), StartDate: "2023-11-01",
		}},
		{"negative amount", transport.PlaceSipRequest{
			UserID: "USER001", FundCode: "HDFC001",
			Amount:    decimal.NewFromInt(-1),
			Frequency: models.Monthly, StartDate: "2023-11-01",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/sips/", tc.req)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestPostStopSip(t *testing.T) {
	srv := newSipServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/sips/", transport.PlaceSipRequest{
		UserID:    "USER001",
		FundCode:  "HDFC001",
		Amount:    decimal.NewFromInt(1000),
		Frequency: models.Monthly,
		StartDate: "2023-11-01",
	})
	placed := decode[transport.PlaceSipResponse](t, resp)

	resp = postJSON(t, srv.URL+"/api/sips/"+placed.SipID.String()+"/stop", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	stopped := decode[transport.SipStatusResponse](t, resp)
	if stopped.Status != models.SipStopped {
		t.Fatalf("expected stopped, got %s", stopped.Status)
	}

	resp = postJSON(t, srv.URL+"/api/sips/"+placed.SipID.String()+"/stop", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on double stop, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/sips/"+uuid.NewString()+"/stop", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetUserSips(t *testing.T) {
	srv := newSipServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/sips/", transport.PlaceSipRequest{
		UserID:    "USER001",
		FundCode:  "HDFC001",
		Amount:    decimal.NewFromInt(1000),
		Frequency: models.Quarterly,
		StartDate: "2023-11-01",
		EndDate:   "2024-11-01",
	})
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/sips/user/USER001")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decode[transport.GetSipsResponse](t, resp)
	if len(got.Sips) != 1 || got.Sips[0].Frequency != models.Quarterly {
		t.Fatalf("expected one quarterly sip, got %v", got.Sips)
	}
}
