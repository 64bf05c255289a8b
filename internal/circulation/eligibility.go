// Package circulation runs the loan-eligibility checklist and drives the loan
// lifecycle.
package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yslanlopes12/biblioteca-sistema/internal/metrics"
	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
	"github.com/yslanlopes12/biblioteca-sistema/internal/policy"
)

// Store is the slice of the repository the circulation engine needs.
type Store interface {
	GetPersonByID(ctx context.Context, id int64) (model.Person, error)
	GetItem(ctx context.Context, id int64) (model.Item, error)
	SumUnpaidFines(ctx context.Context, personID int64) (int64, error)
	CountActiveLoans(ctx context.Context, personID int64) (int, error)
	GetActiveLoanByItem(ctx context.Context, itemID int64) (model.Loan, error)
	ListActiveLoans(ctx context.Context, personID int64) ([]model.Loan, error)
	CreateLoan(ctx context.Context, loan *model.Loan) error
	CloseLoan(ctx context.Context, loanID, actorID int64, returnDate time.Time) (model.Loan, error)
	EnrollWaitlist(ctx context.Context, e *model.WaitlistEntry) error
	NextPendingWaitlist(ctx context.Context, itemID int64) (model.WaitlistEntry, error)
}

// Decision is the outcome of the eligibility checklist. A rejected decision
// carries a short human-readable reason; the on-loan rejection additionally
// carries the expected-return date so the caller can offer wait-list
// enrollment.
type Decision struct {
	Approved bool
	Reason   string
	DueDate  time.Time
	OnLoan   bool
}

func rejected(reason string) Decision {
	return Decision{Reason: reason}
}

type Engine struct {
	store    Store
	policies *policy.Resolver
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewEngine(store Store, policies *policy.Resolver, m *metrics.Metrics) *Engine {
	return &Engine{
		store:    store,
		policies: policies,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Decide runs the ordered checklist, short-circuiting on the first failed
// check: person active, no unpaid fines, under the concurrent-loan cap, item
// available, restricted-circulation permission. The cheap person-side checks
// run before any item lookup so the common rejections cost the fewest round
// trips.
func (e *Engine) Decide(ctx context.Context, person model.Person, itemID int64) (Decision, error) {
	if person.Status != model.PersonActive {
		e.metrics.IncEligibilityRejected("inactive")
		return rejected("inactive"), nil
	}

	unpaid, err := e.store.SumUnpaidFines(ctx, person.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("sum fines: %w", err)
	}
	if unpaid > 0 {
		e.metrics.IncEligibilityRejected("fines")
		return rejected(fmt.Sprintf("pending fines: R$ %d.%02d", unpaid/100, unpaid%100)), nil
	}

	// The item is fetched here so the policy can be narrowed by material
	// type, but its availability only rejects after the loan-count check.
	item, err := e.store.GetItem(ctx, itemID)
	itemFound := true
	if errors.Is(err, model.ErrNotFound) {
		itemFound = false
	} else if err != nil {
		return Decision{}, fmt.Errorf("get item: %w", err)
	}

	materialType := ""
	if itemFound {
		materialType = item.MaterialType
	}
	pol, err := e.policies.Resolve(ctx, person.Category, materialType)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve policy: %w", err)
	}

	active, err := e.store.CountActiveLoans(ctx, person.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("count loans: %w", err)
	}
	if active >= pol.MaxLoans {
		e.metrics.IncEligibilityRejected("limit")
		return rejected("limit reached"), nil
	}

	if !itemFound {
		e.metrics.IncEligibilityRejected("item_not_found")
		return rejected("item not found"), nil
	}
	if item.Status == model.ItemOnLoan {
		e.metrics.IncEligibilityRejected("on_loan")
		decision := Decision{OnLoan: true}
		loan, err := e.store.GetActiveLoanByItem(ctx, itemID)
		if err == nil {
			decision.DueDate = loan.DueDate
			decision.Reason = fmt.Sprintf("on loan until %s", loan.DueDate.Format("2006-01-02"))
		} else if errors.Is(err, model.ErrNotFound) {
			decision.Reason = "on loan"
		} else {
			return Decision{}, fmt.Errorf("get active loan: %w", err)
		}
		return decision, nil
	}
	if item.Status != model.ItemAvailable {
		e.metrics.IncEligibilityRejected("unavailable")
		return rejected("item not available"), nil
	}

	if item.Restricted && !person.Category.CanBorrowRestricted() {
		e.metrics.IncEligibilityRejected("restricted")
		return rejected("not permitted"), nil
	}

	due := today(e.now()).AddDate(0, 0, pol.LoanDays)
	return Decision{Approved: true, DueDate: due}, nil
}

func today(now time.Time) time.Time {
	year, month, day := now.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
