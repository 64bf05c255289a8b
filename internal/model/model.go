package model

import "time"

type PersonCategory string

const (
	CategoryStudent   PersonCategory = "student"
	CategoryProfessor PersonCategory = "professor"
	CategoryVisitor   PersonCategory = "visitor"
	CategoryLibrarian PersonCategory = "librarian"
)

func ParsePersonCategory(value string) (PersonCategory, bool) {
	switch PersonCategory(value) {
	case CategoryStudent, CategoryProfessor, CategoryVisitor, CategoryLibrarian:
		return PersonCategory(value), true
	default:
		return "", false
	}
}

// CanBorrowRestricted reports whether the category may borrow items flagged
// as restricted circulation.
func (c PersonCategory) CanBorrowRestricted() bool {
	return c == CategoryProfessor || c == CategoryLibrarian
}

type PersonStatus string

const (
	PersonActive   PersonStatus = "active"
	PersonInactive PersonStatus = "inactive"
)

type Person struct {
	ID                 int64
	CPF                string
	FullName           string
	BirthDate          time.Time
	Phone              string
	Address            string
	Category           PersonCategory
	Email              *string
	RegistrationNumber *string
	Department         *string
	Status             PersonStatus
	PasswordHash       *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type ItemStatus string

const (
	ItemAvailable   ItemStatus = "available"
	ItemOnLoan      ItemStatus = "on_loan"
	ItemMaintenance ItemStatus = "maintenance"
)

type Item struct {
	ID           int64
	Title        string
	Author       string
	Code         string
	MaterialType string
	Status       ItemStatus
	Restricted   bool
	LastLoanAt   *time.Time
}

type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
)

// Loan records one circulation of an item. DueDate is computed once at
// creation and never mutated afterwards.
type Loan struct {
	ID           int64
	PersonID     int64
	ItemID       int64
	LoanDate     time.Time
	DueDate      time.Time
	ReturnDate   *time.Time
	Status       LoanStatus
	RegisteredBy int64
	ClosedBy     *int64
}

// Fine amounts are stored in centavos. LoanID links overdue fines to the loan
// that caused them; at most one fine per loan.
type Fine struct {
	ID        int64
	PersonID  int64
	LoanID    *int64
	Amount    int64
	Paid      bool
	CreatedAt time.Time
}

type WaitlistStatus string

const (
	WaitlistPending   WaitlistStatus = "pending"
	WaitlistCancelled WaitlistStatus = "cancelled"
	WaitlistNotified  WaitlistStatus = "notified"
)

type WaitlistEntry struct {
	ID          int64
	PersonID    int64
	ItemID      int64
	RequestedAt time.Time
	Status      WaitlistStatus
}

// LoanPolicy maps a person category, optionally narrowed to a material type,
// to loan duration and concurrent-loan cap. MaterialType nil means the rule
// covers the whole category.
type LoanPolicy struct {
	Category     PersonCategory
	MaterialType *string
	LoanDays     int
	MaxLoans     int
}

type HistoryAction string

const (
	HistoryLoan   HistoryAction = "loan"
	HistoryReturn HistoryAction = "return"
)

// HistoryEntry is the append-only circulation audit trail. Rows are never
// updated or deleted.
type HistoryEntry struct {
	ID       int64
	PersonID int64
	ItemID   int64
	LoanID   int64
	Action   HistoryAction
	ActionAt time.Time
	ActorID  int64
}

// RefreshSession stores the hash of an issued refresh token. The raw token is
// never persisted; each refresh rotates the session.
type RefreshSession struct {
	ID        string
	PersonID  int64
	TokenHash string
	UserAgent *string
	IPAddress *string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// AuditEntry records one field-level change to a person record, including
// status transitions (Field "status" with the deactivation reason attached).
type AuditEntry struct {
	ID         int64
	PersonID   int64
	Field      string
	OldValue   string
	NewValue   string
	ActorID    int64
	Reason     *string
	RecordedAt time.Time
}
