package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"FundOrders/internal/domain/models"
	"FundOrders/internal/services/nav"
	"FundOrders/internal/services/order"
	"FundOrders/internal/services/sip"
	"FundOrders/internal/storage/memory"

	"github.com/shopspring/decimal"
)

type fakeGateway struct {
	intents int
}

func (g *fakeGateway) CreateIntent(_ context.Context, _ decimal.Decimal) (string, error) {
	g.intents++
	return fmt.Sprintf("order_intent%d", g.intents), nil
}

func (g *fakeGateway) VerifyPayment(_ context.Context, _, _, _ string) bool { return true }

func (g *fakeGateway) AutoDebit(_ context.Context, intentId string) (string, string, error) {
	return "pay_" + intentId, "sig_" + intentId, nil
}

type fixture struct {
	processor *Processor
	orders    *order.Service
	sips      *sip.Service
	store     *memory.Storage
}

func newFixture() *fixture {
	store := memory.New()
	gateway := &fakeGateway{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	prices := nav.New(log, nil, store)
	orders := order.New(log, store, gateway, prices, nil)
	sips := sip.New(log, store, orders, gateway)
	return &fixture{
		processor: New(log, store, store, orders, sips),
		orders:    orders,
		sips:      sips,
		store:     store,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) saveNav(t *testing.T, code string, navValue int64, date time.Time) {
	t.Helper()
	err := f.store.SaveNavs(context.Background(), []models.NavQuote{
		{SchemeCode: code, Nav: decimal.NewFromInt(navValue), Date: date},
	})
	if err != nil {
		t.Fatal(err)
	}
}

// One confirmed order plus one due SIP: a single pass executes both.
func TestProcessAsOf(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	asOf := day(2023, 11, 1)
	f.saveNav(t, "HDFC001", 100, asOf)

	orderId, _, err := f.orders.PlaceLumpSumOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(500), models.Buy)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.orders.ConfirmPayment(ctx, orderId, "pay_1", "sig_1"); err != nil {
		t.Fatal(err)
	}

	sipId, err := f.sips.PlaceSipOrder(ctx, "USER002", "HDFC001", decimal.NewFromInt(1000), models.Monthly, asOf, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.processor.ProcessAsOf(ctx, asOf); err != nil {
		t.Fatal(err)
	}

	gotOrder, _ := f.store.GetOrder(ctx, orderId)
	if gotOrder.Status != models.Executed {
		t.Fatalf("expected executed order, got %s", gotOrder.Status)
	}
	if gotOrder.UnitsAllotted == nil || !gotOrder.UnitsAllotted.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected 5 units, got %v", gotOrder.UnitsAllotted)
	}

	gotSip, _ := f.store.GetSip(ctx, sipId)
	if gotSip.LastExecuted == nil || !gotSip.LastExecuted.Equal(asOf) {
		t.Fatalf("expected installment executed at %v, got %v", asOf, gotSip.LastExecuted)
	}
	installments, _ := f.store.GetUserOrders(ctx, "USER002")
	if len(installments) != 1 || installments[0].Status != models.Executed {
		t.Fatalf("expected one executed installment, got %v", installments)
	}
}

// A second pass for the same date changes nothing.
func TestProcessAsOfIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	asOf := day(2023, 11, 1)
	f.saveNav(t, "HDFC001", 100, asOf)

	sipId, _ := f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Monthly, asOf, nil)

	if err := f.processor.ProcessAsOf(ctx, asOf); err != nil {
		t.Fatal(err)
	}
	first, _ := f.store.GetSip(ctx, sipId)

	if err := f.processor.ProcessAsOf(ctx, asOf); err != nil {
		t.Fatal(err)
	}
	second, _ := f.store.GetSip(ctx, sipId)

	if !first.NextExecution.Equal(second.NextExecution) {
		t.Fatalf("cadence moved on repeat pass: %v vs %v", first.NextExecution, second.NextExecution)
	}
	orders, _ := f.store.GetUserOrders(ctx, "USER001")
	if len(orders) != 1 {
		t.Fatalf("expected a single installment across both passes, got %d", len(orders))
	}
}

// A record that cannot execute (no NAV for its fund) is skipped without
// aborting the rest of the pass.
func TestProcessAsOfFailureDoesNotAbortPass(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	asOf := day(2023, 11, 1)
	f.saveNav(t, "HDFC001", 100, asOf)

	badId, _, _ := f.orders.PlaceLumpSumOrder(ctx, "USER001", "NONAV01", decimal.NewFromInt(500), models.Buy)
	f.orders.ConfirmPayment(ctx, badId, "pay_1", "sig_1")
	goodId, _, _ := f.orders.PlaceLumpSumOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(500), models.Buy)
	f.orders.ConfirmPayment(ctx, goodId, "pay_2", "sig_2")

	if err := f.processor.ProcessAsOf(ctx, asOf); err != nil {
		t.Fatal(err)
	}

	bad, _ := f.store.GetOrder(ctx, badId)
	if bad.Status != models.Failed {
		t.Fatalf("expected failed order without a price, got %s", bad.Status)
	}
	good, _ := f.store.GetOrder(ctx, goodId)
	if good.Status != models.Executed {
		t.Fatalf("expected the priced order to execute, got %s", good.Status)
	}
}

// Unconfirmed orders never enter the pass.
func TestProcessAsOfSkipsAwaitingPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	asOf := day(2023, 11, 1)
	f.saveNav(t, "HDFC001", 100, asOf)

	orderId, _, _ := f.orders.PlaceLumpSumOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(500), models.Buy)

	if err := f.processor.ProcessAsOf(ctx, asOf); err != nil {
		t.Fatal(err)
	}

	got, _ := f.store.GetOrder(ctx, orderId)
	if got.Status != models.AwaitingPayment {
		t.Fatalf("expected awaiting_payment untouched, got %s", got.Status)
	}
}
