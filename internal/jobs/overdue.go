// Package jobs hosts the background sweeps that run alongside the server.
package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/yslanlopes12/biblioteca-sistema/internal/config"
	"github.com/yslanlopes12/biblioteca-sistema/internal/metrics"
	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

type OverdueStore interface {
	ListOverdueLoansWithoutFine(ctx context.Context) ([]model.Loan, error)
	CreateFine(ctx context.Context, f *model.Fine) error
}

// SweepOverdueLoans records one fine per overdue loan that does not have one
// yet. The unique loan_id constraint makes concurrent sweeps safe; a duplicate
// insert is skipped, not reported.
func SweepOverdueLoans(ctx context.Context, store OverdueStore, amountCents int64, m *metrics.Metrics) (int, error) {
	loans, err := store.ListOverdueLoansWithoutFine(ctx)
	if err != nil {
		return 0, err
	}

	recorded := 0
	for _, loan := range loans {
		loanID := loan.ID
		fine := model.Fine{
			PersonID: loan.PersonID,
			LoanID:   &loanID,
			Amount:   amountCents,
		}
		if err := store.CreateFine(ctx, &fine); err != nil {
			var vErr *model.ValidationError
			if errors.As(err, &vErr) {
				continue
			}
			return recorded, err
		}
		recorded++
		m.IncOverdueFinesRecorded()
	}
	return recorded, nil
}

func StartOverdueJob(ctx context.Context, cfg config.Config, store OverdueStore, m *metrics.Metrics) {
	if !cfg.OverdueJobEnabled {
		return
	}
	interval := cfg.OverdueJobInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				recorded, err := SweepOverdueLoans(tickCtx, store, cfg.OverdueFineCents, m)
				cancel()
				if err != nil {
					log.Printf("overdue sweep error: %v", err)
					continue
				}
				if recorded > 0 {
					log.Printf("overdue sweep recorded %d fines", recorded)
				}
			}
		}
	}()
}
