package sip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"FundOrders/internal/domain/models"
	"FundOrders/internal/services/nav"
	"FundOrders/internal/services/order"
	"FundOrders/internal/storage"
	"FundOrders/internal/storage/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fakeGateway struct {
	verifyOK   bool
	debitErr   error
	debitDelay time.Duration
	intents    int
}

func (g *fakeGateway) CreateIntent(_ context.Context, _ decimal.Decimal) (string, error) {
	g.intents++
	return fmt.Sprintf("order_intent%d", g.intents), nil
}

func (g *fakeGateway) VerifyPayment(_ context.Context, _, _, _ string) bool {
	return g.verifyOK
}

func (g *fakeGateway) AutoDebit(_ context.Context, intentId string) (string, string, error) {
	if g.debitErr != nil {
		return "", "", g.debitErr
	}
	if g.debitDelay > 0 {
		time.Sleep(g.debitDelay)
	}
	return "pay_" + intentId, "sig_" + intentId, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	sips    *Service
	orders  *order.Service
	store   *memory.Storage
	gateway *fakeGateway
}

func newFixture() *fixture {
	store := memory.New()
	gateway := &fakeGateway{verifyOK: true}
	log := discardLogger()
	prices := nav.New(log, nil, store)
	orders := order.New(log, store, gateway, prices, nil)
	sips := New(log, store, orders, gateway)
	return &fixture{sips: sips, orders: orders, store: store, gateway: gateway}
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

func TestPlaceSipOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	start := day(2023, 11, 1)

	sipId, err := f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Monthly, start, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := f.store.GetSip(ctx, sipId)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.SipActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
	if !got.NextExecution.Equal(start) {
		t.Fatalf("expected first execution on start date, got %v", got.NextExecution)
	}
	if got.LastExecuted != nil {
		t.Fatal("new sip has no last_executed")
	}
}

func TestPlaceSipOrderValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	start := day(2023, 11, 1)
	before := day(2023, 10, 1)

	_, err := f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.Zero, models.Monthly, start, nil)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	_, err = f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Monthly, start, &before)
	if !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}

	_, err = f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Frequency("weekly"), start, nil)
	if !errors.Is(err, models.ErrUnsupportedFrequency) {
		t.Fatalf("expected ErrUnsupportedFrequency, got %v", err)
	}
}

func TestStopSip(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	sipId, _ := f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Monthly, day(2023, 11, 1), nil)

	ok, err := f.sips.StopSip(ctx, sipId)
	if err != nil || !ok {
		t.Fatalf("expected stop to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = f.sips.StopSip(ctx, sipId)
	if ok {
		t.Fatal("expected stop refusal for stopped sip")
	}
	if !errors.Is(err, storage.ErrInvalidSipState) {
		t.Fatalf("expected ErrInvalidSipState, got %v", err)
	}

	ok, err = f.sips.StopSip(ctx, uuid.New())
	if ok || !errors.Is(err, storage.ErrSipNotExists) {
		t.Fatalf("expected ErrSipNotExists, got ok=%v err=%v", ok, err)
	}
}

// The first installment of a monthly 1000 sip at nav 100: one executed
// order for 10 units, cadence advanced by 30 days.
func TestExecuteDueInstallment(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	start := day(2023, 11, 1)
	f.saveNav(t, "HDFC001", 100, start)

	sipId, _ := f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Monthly, start, nil)

	if err := f.sips.ExecuteDueInstallment(ctx, sipId, start); err != nil {
		t.Fatal(err)
	}

	got, _ := f.store.GetSip(ctx, sipId)
	if got.Status != models.SipActive {
		t.Fatalf("expected sip to stay active, got %s", got.Status)
	}
	if got.LastExecuted == nil || !got.LastExecuted.Equal(start) {
		t.Fatalf("expected last_executed %v, got %v", start, got.LastExecuted)
	}
	if !got.NextExecution.Equal(day(2023, 12, 1)) {
		t.Fatalf("expected next_execution 2023-12-01, got %v", got.NextExecution)
	}

	orders, _ := f.store.GetUserOrders(ctx, "USER001")
	if len(orders) != 1 {
		t.Fatalf("expected one installment order, got %d", len(orders))
	}
	if orders[0].Status != models.Executed {
		t.Fatalf("expected executed installment, got %s", orders[0].Status)
	}
	if orders[0].UnitsAllotted == nil || !orders[0].UnitsAllotted.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected 10 units, got %v", orders[0].UnitsAllotted)
	}
}

func TestExecuteDueInstallmentNotDueIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	start := day(2023, 11, 1)

	sipId, _ := f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Monthly, start, nil)

	if err := f.sips.ExecuteDueInstallment(ctx, sipId, start.AddDate(0, 0, -1)); err != nil {
		t.Fatalf("expected no-op before due date, got %v", err)
	}
	orders, _ := f.store.GetUserOrders(ctx, "USER001")
	if len(orders) != 0 {
		t.Fatalf("expected no order before due date, got %d", len(orders))
	}
}

func TestExecuteDueInstallmentPaymentFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.gateway.verifyOK = false
	start := day(2023, 11, 1)
	f.saveNav(t, "HDFC001", 100, start)

	sipId, _ := f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Monthly, start, nil)

	err := f.sips.ExecuteDueInstallment(ctx, sipId, start)
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}

	got, _ := f.store.GetSip(ctx, sipId)
	if got.Status != models.SipPaymentFailed {
		t.Fatalf("expected payment_failed, got %s", got.Status)
	}
	// Cadence untouched: no auto-retry.
	if !got.NextExecution.Equal(start) {
		t.Fatalf("expected next_execution unchanged, got %v", got.NextExecution)
	}
	if got.LastExecuted != nil {
		t.Fatal("failed installment must not record last_executed")
	}

	// The installment order itself ends failed.
	orders, _ := f.store.GetUserOrders(ctx, "USER001")
	if len(orders) != 1 || orders[0].Status != models.Failed {
		t.Fatalf("expected one failed installment order, got %v", orders)
	}

	// A payment-failed sip is never due again without intervention.
	if err := f.sips.ExecuteDueInstallment(ctx, sipId, start.AddDate(0, 1, 0)); err != nil {
		t.Fatalf("expected no-op for payment_failed sip, got %v", err)
	}
	orders, _ = f.store.GetUserOrders(ctx, "USER001")
	if len(orders) != 1 {
		t.Fatalf("expected no further orders, got %d", len(orders))
	}
}

func TestExecuteDueInstallmentMandateTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.gateway.debitErr = context.DeadlineExceeded
	start := day(2023, 11, 1)

	sipId, _ := f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Monthly, start, nil)

	err := f.sips.ExecuteDueInstallment(ctx, sipId, start)
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed on mandate timeout, got %v", err)
	}
	got, _ := f.store.GetSip(ctx, sipId)
	if got.Status != models.SipPaymentFailed {
		t.Fatalf("expected payment_failed, got %s", got.Status)
	}
}

func TestExecuteDueInstallmentNavUnavailableLeavesSipActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	start := day(2023, 11, 1)

	sipId, _ := f.sips.PlaceSipOrder(ctx, "USER001", "NONAV01", decimal.NewFromInt(1000), models.Monthly, start, nil)

	err := f.sips.ExecuteDueInstallment(ctx, sipId, start)
	if !errors.Is(err, nav.ErrNavUnavailable) {
		t.Fatalf("expected ErrNavUnavailable, got %v", err)
	}

	// The sip stays active with its cadence intact so the next pass
	// retries with a fresh order.
	got, _ := f.store.GetSip(ctx, sipId)
	if got.Status != models.SipActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
	if !got.NextExecution.Equal(start) {
		t.Fatalf("expected next_execution unchanged, got %v", got.NextExecution)
	}

	orders, _ := f.store.GetUserOrders(ctx, "USER001")
	if len(orders) != 1 || orders[0].Status != models.Failed {
		t.Fatalf("expected one failed order, got %v", orders)
	}
}

// Start D with end D+45: installments at D and (due D+30, run D+45),
// the second one completing the sip. Nothing fires afterwards.
func TestSipCompletesOnEndDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	start := day(2023, 11, 1)
	end := start.AddDate(0, 0, 45)
	f.saveNav(t, "HDFC001", 100, start)

	sipId, _ := f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Monthly, start, &end)

	if err := f.sips.ExecuteDueInstallment(ctx, sipId, start); err != nil {
		t.Fatal(err)
	}
	got, _ := f.store.GetSip(ctx, sipId)
	if got.Status != models.SipActive {
		t.Fatalf("expected active after first installment, got %s", got.Status)
	}

	// Second installment due D+30, processed at D+45 (>= end).
	runDate := start.AddDate(0, 0, 45)
	if err := f.sips.ExecuteDueInstallment(ctx, sipId, runDate); err != nil {
		t.Fatal(err)
	}
	got, _ = f.store.GetSip(ctx, sipId)
	if got.Status != models.SipCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}

	// Completed: a later pass fires no third installment.
	if err := f.sips.ExecuteDueInstallment(ctx, sipId, start.AddDate(0, 0, 60)); err != nil {
		t.Fatalf("expected no-op for completed sip, got %v", err)
	}
	orders, _ := f.store.GetUserOrders(ctx, "USER001")
	if len(orders) != 2 {
		t.Fatalf("expected exactly two installments, got %d", len(orders))
	}
}

func TestExecuteDueInstallmentIdempotentPerDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	start := day(2023, 11, 1)
	f.saveNav(t, "HDFC001", 100, start)

	sipId, _ := f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Monthly, start, nil)

	if err := f.sips.ExecuteDueInstallment(ctx, sipId, start); err != nil {
		t.Fatal(err)
	}
	// Same date again: cadence already advanced, nothing due.
	if err := f.sips.ExecuteDueInstallment(ctx, sipId, start); err != nil {
		t.Fatal(err)
	}

	orders, _ := f.store.GetUserOrders(ctx, "USER001")
	if len(orders) != 1 {
		t.Fatalf("expected a single installment, got %d", len(orders))
	}
}

// The daily pass and an admin-triggered pass can both pick up the same
// due SIP. Only one of them may debit the user.
func TestExecuteDueInstallmentConcurrentPasses(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.gateway.debitDelay = 10 * time.Millisecond
	start := day(2023, 11, 1)
	f.saveNav(t, "HDFC001", 100, start)

	sipId, _ := f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Monthly, start, nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.sips.ExecuteDueInstallment(ctx, sipId, start); err != nil {
				t.Errorf("installment failed: %v", err)
			}
		}()
	}
	wg.Wait()

	orders, _ := f.store.GetUserOrders(ctx, "USER001")
	executed := 0
	for _, o := range orders {
		if o.Status == models.Executed {
			executed++
		}
	}
	if executed != 1 {
		t.Fatalf("expected a single executed installment, got %d", executed)
	}

	got, _ := f.store.GetSip(ctx, sipId)
	if !got.NextExecution.Equal(day(2023, 12, 1)) {
		t.Fatalf("expected cadence advanced exactly once, got %v", got.NextExecution)
	}
}

type flakyOrderLedger struct {
	*memory.Storage
	pendingErr error
}

func (l *flakyOrderLedger) MarkOrderPending(ctx context.Context, id uuid.UUID, paymentId string) error {
	if l.pendingErr != nil {
		return l.pendingErr
	}
	return l.Storage.MarkOrderPending(ctx, id, paymentId)
}

// An infrastructure error during confirmation is not a refused payment:
// the SIP stays active and the next pass retries the installment.
func TestExecuteDueInstallmentLedgerErrorLeavesSipActive(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	flaky := &flakyOrderLedger{Storage: store, pendingErr: errors.New("connection reset")}
	gateway := &fakeGateway{verifyOK: true}
	log := discardLogger()
	prices := nav.New(log, nil, store)
	orders := order.New(log, flaky, gateway, prices, nil)
	sips := New(log, store, orders, gateway)
	start := day(2023, 11, 1)
	store.SaveNavs(ctx, []models.NavQuote{
		{SchemeCode: "HDFC001", Nav: decimal.NewFromInt(100), Date: start},
	})

	sipId, _ := sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Monthly, start, nil)

	err := sips.ExecuteDueInstallment(ctx, sipId, start)
	if err == nil {
		t.Fatal("expected installment to fail")
	}
	if errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("ledger error must not count as a refused payment, got %v", err)
	}

	got, _ := store.GetSip(ctx, sipId)
	if got.Status != models.SipActive {
		t.Fatalf("expected sip to stay active, got %s", got.Status)
	}
	if !got.NextExecution.Equal(start) {
		t.Fatalf("expected cadence unchanged, got %v", got.NextExecution)
	}

	// Once the ledger recovers, the next pass completes the installment.
	flaky.pendingErr = nil
	if err := sips.ExecuteDueInstallment(ctx, sipId, start); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetSip(ctx, sipId)
	if got.LastExecuted == nil || !got.LastExecuted.Equal(start) {
		t.Fatalf("expected installment executed on retry, got %v", got.LastExecuted)
	}
}

func TestGetSipStatusAndUserSips(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	start := day(2023, 11, 1)

	sipId, _ := f.sips.PlaceSipOrder(ctx, "USER001", "HDFC001", decimal.NewFromInt(1000), models.Monthly, start, nil)
	f.sips.PlaceSipOrder(ctx, "USER002", "HDFC001", decimal.NewFromInt(500), models.Quarterly, start, nil)

	status, err := f.sips.GetSipStatus(ctx, sipId)
	if err != nil || status != models.SipActive {
		t.Fatalf("expected active, got %s err=%v", status, err)
	}

	if _, err := f.sips.GetSipStatus(ctx, uuid.New()); !errors.Is(err, storage.ErrSipNotExists) {
		t.Fatalf("expected ErrSipNotExists, got %v", err)
	}

	sips, err := f.sips.GetUserSips(ctx, "USER001")
	if err != nil {
		t.Fatal(err)
	}
	if len(sips) != 1 || sips[0].Id != sipId {
		t.Fatalf("expected the one sip of USER001, got %v", sips)
	}
}
