package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidStatus is returned when a status value is outside the Status
// enumeration or not permitted by the caller's StatusSet.
var ErrInvalidStatus = errors.New("invalid status")

// Status is the lifecycle state of an account. Only StatusActive accounts
// may authenticate for ordinary use.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBlocked  Status = "blocked"
	StatusTrial    Status = "trial"
)

// StatusSet is a policy of statuses a caller is allowed to assign.
type StatusSet []Status

var (
	// AllStatuses is the full enumeration, settable through the JSON API.
	AllStatuses = StatusSet{StatusActive, StatusInactive, StatusBlocked, StatusTrial}

	// WebSettableStatuses is what the admin web console may assign.
	WebSettableStatuses = StatusSet{StatusActive, StatusBlocked}
)

// Allows reports whether s is a member of the set.
func (set StatusSet) Allows(s Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Strings returns the set as plain strings, for error messages and forms.
func (set StatusSet) Strings() []string {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return out
}

// ParseStatus converts raw into a Status. Surrounding whitespace is ignored;
// matching is case-sensitive.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !AllStatuses.Allows(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Account is the persisted identity record. The password hash is opaque
// output of the password hasher and is never serialized.
type Account struct {
	ID             int64      `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Email          string     `json:"email" db:"email"`
	PasswordHash   string     `json:"-" db:"password_hash"`
	Status         Status     `json:"status" db:"status"`
	IsAdmin        bool       `json:"is_admin" db:"is_admin"`
	PaymentDueDate *time.Time `json:"payment_due_date,omitempty" db:"payment_due_date"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// IsActive reports whether the account may authenticate for ordinary use.
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// DueDateClass is the display-only classification of a payment due date.
type DueDateClass string

const (
	DueDateOverdue DueDateClass = "overdue"
	DueDateWarning DueDateClass = "warning"
	DueDateOK      DueDateClass = "ok"
)

// DueDateWarningDays is the window, in days, in which an upcoming due date
// is flagged as a warning.
const DueDateWarningDays = 7

// ClassifyDueDate compares the calendar date of due with the calendar date of
// today. It returns false when there is no due date.
func ClassifyDueDate(due *time.Time, today time.Time) (DueDateClass, bool) {
	if due == nil {
		return "", false
	}
	days := DaysBetween(today, *due)
	switch {
	case days < 0:
		return DueDateOverdue, true
	case days <= DueDateWarningDays:
		return DueDateWarning, true
	default:
		return DueDateOK, true
	}
}

// DaysBetween returns the number of whole calendar days from a to b, ignoring
// the time of day. Each value is read in its own location.
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// DateLayout is the wire format for payment due dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date into midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(raw))
}

// AccountView is an account annotated with its due-date classification for
// listings.
type AccountView struct {
	Account
	DueDateStatus DueDateClass `json:"due_date_status,omitempty"`
}

// NewAccountView classifies a's due date relative to today.
func NewAccountView(a Account, today time.Time) AccountView {
	class, _ := ClassifyDueDate(a.PaymentDueDate, today)
	return AccountView{Account: a, DueDateStatus: class}
}
