// Package batch runs the daily pass: execute every confirmed order and
// every due SIP installment as of a given date.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

type OrderSource interface {
	ListPendingOrders(ctx context.Context) ([]uuid.UUID, error)
}

type SipSource interface {
	ListDueSips(ctx context.Context, asOf time.Time) ([]uuid.UUID, error)
}

type OrderExecutor interface {
	ExecuteOrder(ctx context.Context, orderId uuid.UUID, asOf time.Time) error
}

type InstallmentExecutor interface {
	ExecuteDueInstallment(ctx context.Context, sipId uuid.UUID, asOf time.Time) error
}

type Processor struct {
	log          *slog.Logger
	orderSource  OrderSource
	sipSource    SipSource
	orders       OrderExecutor
	installments InstallmentExecutor
	workerCount  int
}

func New(log *slog.Logger,
	orderSource OrderSource,
	sipSource SipSource,
	orders OrderExecutor,
	installments InstallmentExecutor) *Processor {
	return &Processor{
		log:          log,
		orderSource:  orderSource,
		sipSource:    sipSource,
		orders:       orders,
		installments: installments,
		workerCount:  runtime.NumCPU(),
	}
}

// ProcessAsOf executes pending orders, then due installments. Records
// are independent, so each phase fans out over a worker pool; one
// record's failure is logged and never aborts the rest. Eligibility is
// re-read per record, so repeating a pass for the same date is a no-op.
func (p *Processor) ProcessAsOf(ctx context.Context, asOf time.Time) error {
	const op = "batch.ProcessAsOf"

	orderIds, err := p.orderSource.ListPendingOrders(ctx)
	if err != nil {
		p.log.Error("failed to list pending orders", "op", op, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	p.fanOut(orderIds, func(id uuid.UUID) {
		if err := p.orders.ExecuteOrder(ctx, id, asOf); err != nil {
			p.log.Error("order execution failed", "op", op, "order_id", id, "err", err)
		}
	})

	sipIds, err := p.sipSource.ListDueSips(ctx, asOf)
	if err != nil {
		p.log.Error("failed to list due sips", "op", op, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	p.fanOut(sipIds, func(id uuid.UUID) {
		if err := p.installments.ExecuteDueInstallment(ctx, id, asOf); err != nil {
			p.log.Error("installment failed", "op", op, "sip_id", id, "err", err)
		}
	})

	p.log.Info("batch pass finished",
		"op", op, "as_of", asOf,
		"orders", len(orderIds), "sips", len(sipIds))
	return nil
}

func (p *Processor) fanOut(ids []uuid.UUID, handle func(uuid.UUID)) {
	jobs := make(chan uuid.UUID, len(ids))
	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				handle(id)
			}
		}()
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()
}
