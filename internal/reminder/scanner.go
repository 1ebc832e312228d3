// Package reminder sweeps active contracts and queues due-date reminders and
// overdue penalty notices, at most once per recipient, type, contract and day.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"

	"github.com/pawnmarket-contract-engine/internal/accrual"
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/pawnmarket-contract-engine/internal/domain/notification"
	"github.com/pawnmarket-contract-engine/internal/domain/outbox"
	"github.com/pawnmarket-contract-engine/internal/platform/persistence"
)

const defaultPageSize = 200

// Config tunes one scanner.
type Config struct {
	PoolSize      int
	PageSize      int
	PenaltyPerDay decimal.Decimal
}

// Summary counts what one sweep did.
type Summary struct {
	Scanned int64
	Queued  int64
	Skipped int64 // already sent today
	Failed  int64
}

type Scanner struct {
	db        persistence.TxRunner
	contracts contract.Repository
	logs      notification.LogRepository
	outbox    outbox.Repository
	calendar  accrual.Calendar
	cfg       Config
	logger    *slog.Logger
}

func NewScanner(
	db persistence.TxRunner,
	contracts contract.Repository,
	logs notification.LogRepository,
	outboxRepo outbox.Repository,
	calendar accrual.Calendar,
	cfg Config,
	logger *slog.Logger,
) *Scanner {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	return &Scanner{
		db:        db,
		contracts: contracts,
		logs:      logs,
		outbox:    outboxRepo,
		calendar:  calendar,
		cfg:       cfg,
		logger:    logger.With("component", "reminder_scanner"),
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	s.logger.Info("Starting reminder scanner", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Reminder sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping reminder scanner")
			return
		case <-ticker.C:
		}
	}
}

// Sweep walks every active contract once. A contract that fails is logged
// and counted, never aborting the sweep; only a failed page read does.
func (s *Scanner) Sweep(ctx context.Context) (Summary, error) {
	today := s.calendar.Today()
	logger := s.logger.With("date", today.Format(time.DateOnly))

	pool, err := ants.NewPool(s.cfg.PoolSize)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to create reminder pool: %w", err)
	}
	defer pool.Release()

	var (
		sum Summary
		wg  sync.WaitGroup
	)
	after := uuid.Nil
	for {
		page, err := s.contracts.ListActive(ctx, after, s.cfg.PageSize)
		if err != nil {
			wg.Wait()
			return sum, fmt.Errorf("failed to list active contracts after %s: %w", after, err)
		}

		for _, c := range page {
			c := c
			atomic.AddInt64(&sum.Scanned, 1)
			wg.Add(1)
			if err := pool.Submit(func() {
				defer wg.Done()
				s.remind(ctx, c, today, &sum)
			}); err != nil {
				wg.Done()
				atomic.AddInt64(&sum.Failed, 1)
				logger.Error("Failed to submit contract to reminder pool",
					"contract_id", c.ID.String(), "error", err)
			}
		}

		if len(page) < s.cfg.PageSize {
			break
		}
		after = page[len(page)-1].ID
	}
	wg.Wait()

	logger.Info("Reminder sweep finished",
		"scanned", sum.Scanned,
		"queued", sum.Queued,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
	)
	return sum, nil
}

func (s *Scanner) remind(ctx context.Context, c *contract.Contract, today time.Time, sum *Summary) {
	for _, msg := range s.Notices(c, today) {
		queued, err := s.queue(ctx, msg, today)
		switch {
		case err != nil:
			atomic.AddInt64(&sum.Failed, 1)
			s.logger.Error("Failed to queue reminder",
				"contract_id", c.ID.String(),
				"recipient_id", msg.RecipientID.String(),
				"type", string(msg.Type),
				"error", err,
			)
			continue
		case queued:
			atomic.AddInt64(&sum.Queued, 1)
		default:
			atomic.AddInt64(&sum.Skipped, 1)
		}
	}
}

// queue reserves the per-day log row and writes the outbox row in one
// transaction. It reports false when the notice was already sent today.
func (s *Scanner) queue(ctx context.Context, msg *notification.Message, today time.Time) (bool, error) {
	queued := false
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		fresh, err := s.logs.WithTx(tx).Reserve(ctx, msg.RecipientID, msg.Type, msg.ContractID, today)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
		row, err := outbox.NewMessage(outbox.KindNotification, msg.ContractID, msg)
		if err != nil {
			return fmt.Errorf("failed to encode reminder: %w", err)
		}
		if err := s.outbox.WithTx(tx).Create(ctx, row); err != nil {
			return err
		}
		queued = true
		return nil
	})
	return queued, err
}

// Notices builds the reminders a contract is owed on today.
func (s *Scanner) Notices(c *contract.Contract, today time.Time) []*notification.Message {
	now := s.calendar.Now()
	due := accrual.Date(c.ContractEndDate)
	days := accrual.DaysBetween(today, due)
	dueText := due.Format(time.DateOnly)

	build := func(recipient uuid.UUID, typ notification.Type, text string) *notification.Message {
		msg := notification.New(recipient, typ, c.ID, text, now)
		msg.Data = map[string]string{
			"due_date":   dueText,
			"days_until": fmt.Sprint(days),
		}
		return msg
	}

	switch {
	case days == 3:
		return []*notification.Message{
			build(c.PawnerID, notification.TypeDueIn3Days, fmt.Sprintf("Your pawn contract is due in 3 days (%s).", dueText)),
		}
	case days == 1:
		return []*notification.Message{
			build(c.PawnerID, notification.TypeDueIn1Day, fmt.Sprintf("Your pawn contract is due tomorrow (%s).", dueText)),
		}
	case days == 0:
		return []*notification.Message{
			build(c.PawnerID, notification.TypeDueToday, "Your pawn contract is due today."),
			build(c.InvestorID, notification.TypeDueToday, "A contract you funded is due today."),
		}
	case days < 0:
		overdue := -days
		penalty := accrual.Money(s.cfg.PenaltyPerDay.Mul(decimal.NewFromInt(int64(overdue))))
		msgs := []*notification.Message{
			build(c.PawnerID, notification.TypeOverdue,
				fmt.Sprintf("Your pawn contract is %d day(s) overdue. Late penalty so far: %s.", overdue, penalty.StringFixed(2))),
			build(c.InvestorID, notification.TypeOverdue,
				fmt.Sprintf("A contract you funded is %d day(s) overdue. Late penalty so far: %s.", overdue, penalty.StringFixed(2))),
		}
		for _, m := range msgs {
			m.Data["overdue_days"] = fmt.Sprint(overdue)
			m.Data["penalty"] = penalty.StringFixed(2)
		}
		return msgs
	default:
		return nil
	}
}
