package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yslanlopes12/biblioteca-sistema/internal/metrics"
	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

// Manager commits approved loans and closes them on return. The writes
// themselves are transactional in the store; the manager sequences the
// decision and the commit.
type Manager struct {
	store   Store
	engine  *Engine
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewManager(store Store, engine *Engine, m *metrics.Metrics) *Manager {
	return &Manager{
		store:   store,
		engine:  engine,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Checkout runs the eligibility checklist and, when approved, commits the
// loan: insert the loan row, flip the item to on_loan, append the history
// entry. A rejected decision is returned with a nil error; the zero Loan is
// only meaningful when the decision is approved.
func (m *Manager) Checkout(ctx context.Context, personID, itemID, actorID int64) (model.Loan, Decision, error) {
	person, err := m.store.GetPersonByID(ctx, personID)
	if err != nil {
		return model.Loan{}, Decision{}, fmt.Errorf("get person: %w", err)
	}

	decision, err := m.engine.Decide(ctx, person, itemID)
	if err != nil {
		return model.Loan{}, Decision{}, err
	}
	if !decision.Approved {
		return model.Loan{}, decision, nil
	}

	loan := model.Loan{
		PersonID:     person.ID,
		ItemID:       itemID,
		LoanDate:     today(m.now()),
		DueDate:      decision.DueDate,
		RegisteredBy: actorID,
	}
	if err := m.store.CreateLoan(ctx, &loan); err != nil {
		return model.Loan{}, Decision{}, err
	}
	m.metrics.IncLoansCreated()
	return loan, decision, nil
}

// Check runs the eligibility checklist without committing anything.
func (m *Manager) Check(ctx context.Context, personID, itemID int64) (Decision, error) {
	person, err := m.store.GetPersonByID(ctx, personID)
	if err != nil {
		return Decision{}, fmt.Errorf("get person: %w", err)
	}
	return m.engine.Decide(ctx, person, itemID)
}

// Return closes an active loan and reports the oldest pending wait-list entry
// for the freed item, if any, so the operator can notify the next person. It
// never loans the item out automatically: the next person goes through the
// eligibility checklist like everyone else.
func (m *Manager) Return(ctx context.Context, loanID, actorID int64) (model.Loan, *model.WaitlistEntry, error) {
	closed, err := m.store.CloseLoan(ctx, loanID, actorID, today(m.now()))
	if err != nil {
		return model.Loan{}, nil, err
	}
	m.metrics.IncLoansReturned()

	next, err := m.store.NextPendingWaitlist(ctx, closed.ItemID)
	if errors.Is(err, model.ErrNotFound) {
		return closed, nil, nil
	}
	if err != nil {
		return closed, nil, fmt.Errorf("next waitlist entry: %w", err)
	}
	return closed, &next, nil
}

// EnrollWaitlist queues a person for an item that is currently on loan.
func (m *Manager) EnrollWaitlist(ctx context.Context, personID, itemID int64) (model.WaitlistEntry, error) {
	person, err := m.store.GetPersonByID(ctx, personID)
	if err != nil {
		return model.WaitlistEntry{}, fmt.Errorf("get person: %w", err)
	}
	if person.Status != model.PersonActive {
		return model.WaitlistEntry{}, model.NewPolicyViolation("inactive")
	}

	item, err := m.store.GetItem(ctx, itemID)
	if err != nil {
		return model.WaitlistEntry{}, fmt.Errorf("get item: %w", err)
	}
	if item.Status != model.ItemOnLoan {
		return model.WaitlistEntry{}, model.NewPolicyViolation("item is not on loan")
	}

	entry := model.WaitlistEntry{PersonID: person.ID, ItemID: item.ID}
	if err := m.store.EnrollWaitlist(ctx, &entry); err != nil {
		return model.WaitlistEntry{}, err
	}
	m.metrics.IncWaitlistEnrollments()
	return entry, nil
}

// ActiveLoans lists active loans, optionally filtered to one person.
func (m *Manager) ActiveLoans(ctx context.Context, personID int64) ([]model.Loan, error) {
	return m.store.ListActiveLoans(ctx, personID)
}
