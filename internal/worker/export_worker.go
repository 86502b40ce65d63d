// Package worker drains ledger events into the activity spreadsheet. It
// consumes queue notifications for low latency and periodically sweeps the
// export_state columns so events survive queue outages.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"splitwise/internal/amqp"
	"splitwise/internal/core"
	"splitwise/internal/log"
	"splitwise/internal/sheets"
	"splitwise/internal/storage"
)

// Consumer is the slice of the AMQP client the worker needs.
type Consumer interface {
	ConsumeWithReconnect(ctx context.Context, handler func(context.Context, *amqp.LedgerEventMessage) error) error
}

type ExportWorker struct {
	storage   *storage.SQLiteRepository
	writer    sheets.ActivityWriter
	batchSize int
	interval  time.Duration
	logger    *log.Logger
}

func NewExportWorker(repo *storage.SQLiteRepository, writer sheets.ActivityWriter, batchSize int, interval time.Duration, logger *log.Logger) *ExportWorker {
	return &ExportWorker{
		storage:   repo,
		writer:    writer,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// Run consumes queue events and sweeps pending exports until ctx ends.
func (w *ExportWorker) Run(ctx context.Context, consumer Consumer) error {
	// Catch up on anything that accumulated while the worker was down.
	if err := w.ProcessPending(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup export sweep failed", log.FieldError, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if consumer != nil {
		g.Go(func() error {
			err := consumer.ConsumeWithReconnect(ctx, w.HandleLedgerEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := w.ProcessPending(ctx); err != nil {
					w.logger.ErrorContext(ctx, "Periodic export sweep failed", log.FieldError, err)
				}
			}
		}
	})

	return g.Wait()
}

// HandleLedgerEvent exports the record named by one queue message.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	switch msg.Kind {
	case amqp.KindExpense:
		rec, err := w.storage.GetExpense(ctx, msg.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				w.logger.WarnContext(ctx, "Expense in queue no longer exists", log.FieldExpenseID, msg.ID)
				return nil
			}
			return fmt.Errorf("load expense: %w", err)
		}
		return w.exportExpense(ctx, rec)

	case amqp.KindSettlement:
		s, err := w.storage.GetSettlement(ctx, msg.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				w.logger.WarnContext(ctx, "Settlement in queue no longer exists", log.FieldSettlementID, msg.ID)
				return nil
			}
			return fmt.Errorf("load settlement: %w", err)
		}
		return w.exportSettlement(ctx, s)

	case amqp.KindExpenseDeleted:
		// Exported rows are an append-only activity log; deletions stay
		// visible in the ledger history only.
		return nil
	}

	w.logger.WarnContext(ctx, "Unknown ledger event kind", "kind", msg.Kind, "id", msg.ID)
	return nil
}

// ProcessPending sweeps records whose export_state is still pending. It backs
// the queue path up after crashes or dropped publishes.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	expenses, err := w.storage.ListUnexportedExpenses(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list unexported expenses: %w", err)
	}
	for _, rec := range expenses {
		if err := w.exportExpense(ctx, rec); err != nil {
			return err
		}
	}

	settlements, err := w.storage.ListUnexportedSettlements(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list unexported settlements: %w", err)
	}
	for _, s := range settlements {
		if err := w.exportSettlement(ctx, s); err != nil {
			return err
		}
	}

	if n := len(expenses) + len(settlements); n > 0 {
		w.logger.InfoContext(ctx, "Export sweep complete", "exported", n)
	}
	return nil
}

func (w *ExportWorker) exportExpense(ctx context.Context, rec storage.ExpenseRecord) error {
	if rec.Deleted {
		return w.storage.MarkExpenseExported(ctx, rec.Expense.ID)
	}

	row := sheets.ActivityRow{
		Kind:        "expense",
		ID:          rec.Expense.ID,
		SpaceID:     rec.Expense.SpaceID,
		Date:        rec.Revision.Date,
		Description: rec.Revision.Note,
		PayerName:   w.userName(ctx, rec.Revision.PayerID),
		AmountMinor: rec.Revision.BaseAmountMinor,
	}
	if space, err := w.storage.GetSpace(ctx, rec.Expense.SpaceID); err == nil {
		row.Currency = string(space.BaseCurrency)
	}

	ref, err := w.writer.Append(ctx, row)
	if err != nil {
		return fmt.Errorf("append expense row: %w", err)
	}
	if err := w.storage.MarkExpenseExported(ctx, rec.Expense.ID); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Expense exported",
		log.FieldExpenseID, rec.Expense.ID,
		log.FieldRevision, rec.Revision.Revision,
		"row_ref", ref)
	return nil
}

func (w *ExportWorker) exportSettlement(ctx context.Context, s core.Settlement) error {
	row := sheets.ActivityRow{
		Kind:        "settlement",
		ID:          s.ID,
		SpaceID:     s.SpaceID,
		Date:        s.CreatedAt,
		Description: fmt.Sprintf("%s paid %s", w.userName(ctx, s.FromUserID), w.userName(ctx, s.ToUserID)),
		PayerName:   w.userName(ctx, s.FromUserID),
		AmountMinor: s.AmountMinor,
	}
	if space, err := w.storage.GetSpace(ctx, s.SpaceID); err == nil {
		row.Currency = string(space.BaseCurrency)
	}

	ref, err := w.writer.Append(ctx, row)
	if err != nil {
		return fmt.Errorf("append settlement row: %w", err)
	}
	if err := w.storage.MarkSettlementExported(ctx, s.ID); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Settlement exported",
		log.FieldSettlementID, s.ID,
		"row_ref", ref)
	return nil
}

func (w *ExportWorker) userName(ctx context.Context, userID string) string {
	u, err := w.storage.GetUser(ctx, userID)
	if err != nil {
		return userID
	}
	return u.Name
}
