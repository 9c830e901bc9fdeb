package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, raw := range []string{"active", "inactive", "blocked", "trial", " active "} {
		s, err := ParseStatus(raw)
		require.NoError(t, err, raw)
		assert.True(t, AllStatuses.Allows(s))
	}

	for _, raw := range []string{"chocolate", "", "Active", "ativo"} {
		_, err := ParseStatus(raw)
		assert.True(t, errors.Is(err, ErrInvalidStatus), "expected ErrInvalidStatus for %q, got %v", raw, err)
	}
}

func TestStatusSets(t *testing.T) {
	assert.True(t, WebSettableStatuses.Allows(StatusActive))
	assert.True(t, WebSettableStatuses.Allows(StatusBlocked))
	assert.False(t, WebSettableStatuses.Allows(StatusTrial))
	assert.False(t, WebSettableStatuses.Allows(StatusInactive))

	assert.Equal(t, []string{"active", "inactive", "blocked", "trial"}, AllStatuses.Strings())
}

func TestClassifyDueDate(t *testing.T) {
	today := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	day := func(offset int) *time.Time {
		d := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
		return &d
	}

	tests := []struct {
		name string
		due  *time.Time
		want DueDateClass
		ok   bool
	}{
		{"no due date", nil, "", false},
		{"yesterday", day(-1), DueDateOverdue, true},
		{"today", day(0), DueDateWarning, true},
		{"in three days", day(3), DueDateWarning, true},
		{"in seven days", day(7), DueDateWarning, true},
		{"in eight days", day(8), DueDateOK, true},
		{"in thirty days", day(30), DueDateOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassifyDueDate(tt.due, today)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDaysBetweenIgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC)
	b := time.Date(2026, 2, 1, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(a, b))
	assert.Equal(t, -1, DaysBetween(b, a))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-10-20")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("20/10/2026")
	assert.Error(t, err)
}

func TestAccountJSONHidesPasswordHash(t *testing.T) {
	a := Account{
		ID:           7,
		Name:         "Maria",
		Email:        "maria@example.com",
		PasswordHash: "$2a$10$secret",
		Status:       StatusActive,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret")
	assert.NotContains(t, string(b), "password")

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "active", m["status"])
	assert.Equal(t, false, m["is_admin"])
	_, hasDue := m["payment_due_date"]
	assert.False(t, hasDue)
}

func TestAccountViewFlattensAccount(t *testing.T) {
	due := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	v := NewAccountView(Account{ID: 1, Email: "a@x.com", PaymentDueDate: &due}, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, DueDateOverdue, v.DueDateStatus)

	b, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "a@x.com", m["email"])
	assert.Equal(t, "overdue", m["due_date_status"])
}
