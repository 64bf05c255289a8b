// Package catalog answers availability questions about catalog items.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

type State string

const (
	Available State = "available"
	OnLoan    State = "on_loan"
	NotFound  State = "not_found"
)

// Availability is the tri-state answer for one item. DueDate is set only for
// OnLoan and carries the active loan's expected-return date for display.
type Availability struct {
	State   State
	DueDate *time.Time
}

type Store interface {
	GetItem(ctx context.Context, id int64) (model.Item, error)
	GetActiveLoanByItem(ctx context.Context, itemID int64) (model.Loan, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Availability is side-effect-free: it reads the item and, when on loan, the
// active loan's due date.
func (s *Service) Availability(ctx context.Context, itemID int64) (Availability, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if errors.Is(err, model.ErrNotFound) {
		return Availability{State: NotFound}, nil
	}
	if err != nil {
		return Availability{}, err
	}

	if item.Status != model.ItemOnLoan {
		if item.Status == model.ItemAvailable {
			return Availability{State: Available}, nil
		}
		// Maintenance and other transient statuses read as unavailable with
		// no return date.
		return Availability{State: OnLoan}, nil
	}

	loan, err := s.store.GetActiveLoanByItem(ctx, itemID)
	if errors.Is(err, model.ErrNotFound) {
		// Item flagged on_loan with no active loan row: transient error
		// state, still report unavailable.
		return Availability{State: OnLoan}, nil
	}
	if err != nil {
		return Availability{}, err
	}
	due := loan.DueDate
	return Availability{State: OnLoan, DueDate: &due}, nil
}
