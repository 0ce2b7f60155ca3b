package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"FundOrders/internal/domain/models"
	"FundOrders/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Schema:
//
//	orders(id uuid pk, user_id text, fund_code text, amount numeric,
//	       type text, status text, created_at timestamptz,
//	       executed_at timestamptz null, units_allotted numeric null,
//	       payment_intent_id text, payment_id text null)
//	sips(id uuid pk, user_id text, fund_code text, amount numeric,
//	     frequency text, start_date date, end_date date null,
//	     status text, created_at timestamptz, last_executed date null,
//	     next_execution date)
//	nav_history(scheme_code text, date date, nav numeric,
//	            primary key (scheme_code, date))
type Storage struct {
	db *pgxpool.Pool
}

func New(connString string) (*Storage, error) {
	const op = "postgresql.New"
	log := slog.With("op", op)
	db, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		log.Error("Failed to connect to database", "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err = db.Ping(context.Background())
	if err != nil {
		log.Error("Failed to ping database", "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) CreateOrder(ctx context.Context, order models.Order) (uuid.UUID, error) {
	const op = "postgresql.CreateOrder"
	log := slog.With("op", op)

	const queryCreateOrder = `
        INSERT INTO orders(id, user_id, fund_code, amount, type, status,
                           created_at, payment_intent_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id`

	var orderId uuid.UUID
	err := s.db.QueryRow(ctx, queryCreateOrder,
		order.Id, order.UserId, order.FundCode, order.Amount,
		order.Type, order.Status, order.CreatedAt, order.PaymentIntentId,
	).Scan(&orderId)
	if err != nil {
		log.Error("Failed to create order", "id", order.Id, "user_id", order.UserId, "err", err)
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("Order created", "id", orderId, "user_id", order.UserId, "fund_code", order.FundCode)
	return orderId, nil
}

func (s *Storage) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	const op = "postgresql.GetOrder"
	log := slog.With("op", op)

	const queryGetOrder = `
        SELECT id, user_id, fund_code, amount, type, status, created_at,
               executed_at, units_allotted, payment_intent_id, payment_id
        FROM orders WHERE id = $1`

	var order models.Order
	err := s.db.QueryRow(ctx, queryGetOrder, id).Scan(
		&order.Id, &order.UserId, &order.FundCode, &order.Amount,
		&order.Type, &order.Status, &order.CreatedAt, &order.ExecutedAt,
		&order.UnitsAllotted, &order.PaymentIntentId, &order.PaymentId)
	if errors.Is(err, pgx.ErrNoRows) {
		return order, storage.ErrOrderNotExists
	}
	if err != nil {
		log.Error("Failed to get order", "id", id, "err", err)
		return order, fmt.Errorf("%s: %w", op, err)
	}

	return order, nil
}

func (s *Storage) GetUserOrders(ctx context.Context, userId string) ([]models.Order, error) {
	const op = "postgresql.GetUserOrders"
	log := slog.With("op", op)

	const queryGetUserOrders = `
        SELECT id, user_id, fund_code, amount, type, status, created_at,
               executed_at, units_allotted, payment_intent_id, payment_id
        FROM orders WHERE user_id = $1`

	rows, err := s.db.Query(ctx, queryGetUserOrders, userId)
	if err != nil {
		log.Error("Failed to get user orders", "user_id", userId, "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(&order.Id, &order.UserId, &order.FundCode, &order.Amount,
			&order.Type, &order.Status, &order.CreatedAt, &order.ExecutedAt,
			&order.UnitsAllotted, &order.PaymentIntentId, &order.PaymentId)
		if err != nil {
			log.Error("Failed to scan user order", "user_id", userId, "err", err)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		orders = append(orders, order)
	}

	return orders, nil
}

func (s *Storage) ListPendingOrders(ctx context.Context) ([]uuid.UUID, error) {
	const op = "postgresql.ListPendingOrders"
	log := slog.With("op", op)

	rows, err := s.db.Query(ctx, `SELECT id FROM orders WHERE status = $1`, models.Pending)
	if err != nil {
		log.Error("Failed to list pending orders", "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// transitionOrder locks the order row, re-checks the from-state and
// applies the update inside one transaction. A confirm call and a
// concurrent batch execution can therefore never race on the status.
func (s *Storage) transitionOrder(
	ctx context.Context,
	op string,
	id uuid.UUID,
	from []models.OrderStatus,
	apply func(tx pgx.Tx) error,
) error {
	log := slog.With("op", op, "order_id", id)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		log.Error("Failed to begin transaction", "err", err)
		return fmt.Errorf("%s: begin transaction: %w", op, err)
	}
	defer tx.Rollback(ctx)

	var status models.OrderStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrOrderNotExists
	}
	if err != nil {
		log.Error("Failed to lock order", "err", err)
		return fmt.Errorf("%s: lock order: %w", op, err)
	}

	allowed := false
	for _, st := range from {
		if status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		log.Info("Transition refused", "status", status)
		return storage.ErrInvalidOrderState
	}

	if err = apply(tx); err != nil {
		log.Error("Failed to apply transition", "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(ctx); err != nil {
		log.Error("Failed to commit transaction", "err", err)
		return fmt.Errorf("%s: commit transaction: %w", op, err)
	}

	return nil
}

func (s *Storage) MarkOrderPending(ctx context.Context, id uuid.UUID, paymentId string) error {
	const op = "postgresql.MarkOrderPending"

	return s.transitionOrder(ctx, op, id,
		[]models.OrderStatus{models.AwaitingPayment},
		func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx,
				`UPDATE orders SET status = $1, payment_id = $2 WHERE id = $3`,
				models.Pending, paymentId, id)
			return err
		})
}

func (s *Storage) MarkOrderFailed(ctx context.Context, id uuid.UUID, failedAt time.Time) error {
	const op = "postgresql.MarkOrderFailed"

	return s.transitionOrder(ctx, op, id,
		[]models.OrderStatus{models.AwaitingPayment, models.Pending},
		func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx,
				`UPDATE orders SET status = $1, executed_at = $2 WHERE id = $3`,
				models.Failed, failedAt, id)
			return err
		})
}

func (s *Storage) CancelOrder(ctx context.Context, id uuid.UUID) error {
	const op = "postgresql.CancelOrder"

	return s.transitionOrder(ctx, op, id,
		[]models.OrderStatus{models.AwaitingPayment, models.Pending},
		func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx,
				`UPDATE orders SET status = $1 WHERE id = $2`,
				models.Cancelled, id)
			return err
		})
}

func (s *Storage) ExecuteOrder(ctx context.Context, id uuid.UUID, units decimal.Decimal, executedAt time.Time) error {
	const op = "postgresql.ExecuteOrder"

	return s.transitionOrder(ctx, op, id,
		[]models.OrderStatus{models.Pending},
		func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx,
				`UPDATE orders SET status = $1, units_allotted = $2, executed_at = $3 WHERE id = $4`,
				models.Executed, units, executedAt, id)
			return err
		})
}

func (s *Storage) CreateSip(ctx context.Context, sip models.Sip) (uuid.UUID, error) {
	const op = "postgresql.CreateSip"
	log := slog.With("op", op)

	const queryCreateSip = `
        INSERT INTO sips(id, user_id, fund_code, amount, frequency,
                         start_date, end_date, status, created_at, next_execution)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id`

	var sipId uuid.UUID
	err := s.db.QueryRow(ctx, queryCreateSip,
		sip.Id, sip.UserId, sip.FundCode, sip.Amount, sip.Frequency,
		sip.StartDate, sip.EndDate, sip.Status, sip.CreatedAt, sip.NextExecution,
	).Scan(&sipId)
	if err != nil {
		log.Error("Failed to create sip", "id", sip.Id, "user_id", sip.UserId, "err", err)
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("Sip created", "id", sipId, "user_id", sip.UserId, "fund_code", sip.FundCode)
	return sipId, nil
}

func (s *Storage) GetSip(ctx context.Context, id uuid.UUID) (models.Sip, error) {
	const op = "postgresql.GetSip"
	log := slog.With("op", op)

	const queryGetSip = `
        SELECT id, user_id, fund_code, amount, frequency, start_date,
               end_date, status, created_at, last_executed, next_execution
        FROM sips WHERE id = $1`

	var sip models.Sip
	err := s.db.QueryRow(ctx, queryGetSip, id).Scan(
		&sip.Id, &sip.UserId, &sip.FundCode, &sip.Amount, &sip.Frequency,
		&sip.StartDate, &sip.EndDate, &sip.Status, &sip.CreatedAt,
		&sip.LastExecuted, &sip.NextExecution)
	if errors.Is(err, pgx.ErrNoRows) {
		return sip, storage.ErrSipNotExists
	}
	if err != nil {
		log.Error("Failed to get sip", "id", id, "err", err)
		return sip, fmt.Errorf("%s: %w", op, err)
	}

	return sip, nil
}

func (s *Storage) GetUserSips(ctx context.Context, userId string) ([]models.Sip, error) {
	const op = "postgresql.GetUserSips"
	log := slog.With("op", op)

	const queryGetUserSips = `
        SELECT id, user_id, fund_code, amount, frequency, start_date,
               end_date, status, created_at, last_executed, next_execution
        FROM sips WHERE user_id = $1`

	rows, err := s.db.Query(ctx, queryGetUserSips, userId)
	if err != nil {
		log.Error("Failed to get user sips", "user_id", userId, "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var sips []models.Sip
	for rows.Next() {
		var sip models.Sip
		err := rows.Scan(&sip.Id, &sip.UserId, &sip.FundCode, &sip.Amount,
			&sip.Frequency, &sip.StartDate, &sip.EndDate, &sip.Status,
			&sip.CreatedAt, &sip.LastExecuted, &sip.NextExecution)
		if err != nil {
			log.Error("Failed to scan user sip", "user_id", userId, "err", err)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sips = append(sips, sip)
	}

	return sips, nil
}

func (s *Storage) ListDueSips(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	const op = "postgresql.ListDueSips"
	log := slog.With("op", op)

	rows, err := s.db.Query(ctx,
		`SELECT id FROM sips WHERE status = $1 AND next_execution <= $2`,
		models.SipActive, asOf)
	if err != nil {
		log.Error("Failed to list due sips", "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func (s *Storage) transitionSip(
	ctx context.Context,
	op string,
	id uuid.UUID,
	apply func(tx pgx.Tx) error,
) error {
	log := slog.With("op", op, "sip_id", id)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		log.Error("Failed to begin transaction", "err", err)
		return fmt.Errorf("%s: begin transaction: %w", op, err)
	}
	defer tx.Rollback(ctx)

	var status models.SipStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM sips WHERE id = $1 FOR UPDATE`, id,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrSipNotExists
	}
	if err != nil {
		log.Error("Failed to lock sip", "err", err)
		return fmt.Errorf("%s: lock sip: %w", op, err)
	}

	if status != models.SipActive {
		log.Info("Transition refused", "status", status)
		return storage.ErrInvalidSipState
	}

	if err = apply(tx); err != nil {
		log.Error("Failed to apply transition", "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(ctx); err != nil {
		log.Error("Failed to commit transaction", "err", err)
		return fmt.Errorf("%s: commit transaction: %w", op, err)
	}

	return nil
}

func (s *Storage) StopSip(ctx context.Context, id uuid.UUID) error {
	const op = "postgresql.StopSip"

	return s.transitionSip(ctx, op, id, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE sips SET status = $1 WHERE id = $2`,
			models.SipStopped, id)
		return err
	})
}

// MarkSipExecuted commits one installment. It re-checks the
// next-execution date the caller based the installment on while
// holding the row lock: if another pass already advanced the cadence,
// the transition is refused and this installment must not count.
func (s *Storage) MarkSipExecuted(ctx context.Context, id uuid.UUID, expectedNext, executedAt, nextExecution time.Time, completed bool) error {
	const op = "postgresql.MarkSipExecuted"
	log := slog.With("op", op, "sip_id", id)

	status := models.SipActive
	if completed {
		status = models.SipCompleted
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		log.Error("Failed to begin transaction", "err", err)
		return fmt.Errorf("%s: begin transaction: %w", op, err)
	}
	defer tx.Rollback(ctx)

	var (
		current     models.SipStatus
		currentNext time.Time
	)
	err = tx.QueryRow(ctx,
		`SELECT status, next_execution FROM sips WHERE id = $1 FOR UPDATE`, id,
	).Scan(&current, &currentNext)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrSipNotExists
	}
	if err != nil {
		log.Error("Failed to lock sip", "err", err)
		return fmt.Errorf("%s: lock sip: %w", op, err)
	}

	if current != models.SipActive || !currentNext.Equal(expectedNext) {
		log.Info("Transition refused", "status", current, "next_execution", currentNext)
		return storage.ErrInvalidSipState
	}

	_, err = tx.Exec(ctx,
		`UPDATE sips SET status = $1, last_executed = $2, next_execution = $3 WHERE id = $4`,
		status, executedAt, nextExecution, id)
	if err != nil {
		log.Error("Failed to apply transition", "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(ctx); err != nil {
		log.Error("Failed to commit transaction", "err", err)
		return fmt.Errorf("%s: commit transaction: %w", op, err)
	}

	return nil
}

func (s *Storage) MarkSipPaymentFailed(ctx context.Context, id uuid.UUID) error {
	const op = "postgresql.MarkSipPaymentFailed"

	return s.transitionSip(ctx, op, id, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE sips SET status = $1 WHERE id = $2`,
			models.SipPaymentFailed, id)
		return err
	})
}

func (s *Storage) SaveNavs(ctx context.Context, quotes []models.NavQuote) error {
	const op = "postgresql.SaveNavs"
	log := slog.With("op", op)

	const queryUpsertNav = `
        INSERT INTO nav_history(scheme_code, date, nav)
        VALUES ($1, $2, $3)
        ON CONFLICT (scheme_code, date) DO UPDATE SET nav = EXCLUDED.nav`

	for _, q := range quotes {
		if _, err := s.db.Exec(ctx, queryUpsertNav, q.SchemeCode, q.Date, q.Nav); err != nil {
			log.Error("Failed to save nav", "scheme_code", q.SchemeCode, "err", err)
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

func (s *Storage) GetNavAsOf(ctx context.Context, schemeCode string, date time.Time) (decimal.Decimal, error) {
	const op = "postgresql.GetNavAsOf"
	log := slog.With("op", op)

	const queryGetNav = `
        SELECT nav FROM nav_history
        WHERE scheme_code = $1 AND date <= $2
        ORDER BY date DESC LIMIT 1`

	var nav decimal.Decimal
	err := s.db.QueryRow(ctx, queryGetNav, schemeCode, date).Scan(&nav)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, storage.ErrNavNotFound
	}
	if err != nil {
		log.Error("Failed to get nav", "scheme_code", schemeCode, "err", err)
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	return nav, nil
}
