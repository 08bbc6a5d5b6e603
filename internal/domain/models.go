// Package domain defines the core business entities for the allocation
// and reconciliation core. These models are independent of external
// services and represent the canonical data structures used throughout
// the application.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountEpsilon is the fixed tolerance used for monetary comparisons.
// Sums within one cent of the target are treated as equal.
var AmountEpsilon = decimal.New(1, -2) // 0.01

// ============================================================
// Category Catalog
// ============================================================

// Category is a named allocation target, optionally tied to a department.
// Names are unique within the catalog (case-sensitive).
type Category struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	DepartmentID string    `json:"department_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CategoryRequest carries the mutable fields for create/update calls.
// Nil pointers on update mean "leave unchanged".
type CategoryRequest struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	DepartmentID *string `json:"department_id,omitempty"`
}

// ============================================================
// Transactions & Breakdowns
// ============================================================

// TransactionKind distinguishes the two transaction pools.
type TransactionKind string

const (
	KindExpense TransactionKind = "expense"
	KindIncome  TransactionKind = "income"
)

// Transaction is the read-only view of an income or expense record.
// The core only reads Amount and Date; ownership stays with the
// surrounding application.
type Transaction struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description,omitempty"`
}

// Breakdown is a single category-amount split belonging to one transaction.
// For a given transaction, category IDs are unique and the amounts sum to
// at most the transaction amount.
type Breakdown struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	CategoryID    string          `json:"category_id"`
	Amount        decimal.Decimal `json:"amount"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Split is one requested breakdown line in a SetBreakdowns call.
type Split struct {
	CategoryID string          `json:"category_id"`
	Amount     decimal.Decimal `json:"amount"`
	Notes      string          `json:"notes,omitempty"`
}

// BreakdownView is a breakdown joined with its category name and the
// derived percentage of the parent transaction. Percent is recomputed
// on every read, never persisted.
type BreakdownView struct {
	Breakdown
	CategoryName string  `json:"category_name"`
	Percent      float64 `json:"percent"`
}

// AllocationSummary reports how much of a transaction has been split
// across categories.
type AllocationSummary struct {
	TransactionID  string          `json:"transaction_id"`
	Allocated      decimal.Decimal `json:"allocated"`
	Remaining      decimal.Decimal `json:"remaining"`
	FullyAllocated bool            `json:"fully_allocated"`
}

// ============================================================
// Bank Reconciliation
// ============================================================

// Direction is the side of a bank statement entry.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// LineItemStatus is the reconciliation state of a bank line item.
type LineItemStatus string

const (
	StatusUnmatched LineItemStatus = "unmatched"
	StatusMatched   LineItemStatus = "matched"
	StatusIgnored   LineItemStatus = "ignored"
)

// MatchedRef is a weak reference from a line item to the transaction it
// was reconciled against. It carries no ownership.
type MatchedRef struct {
	TransactionID string          `json:"transaction_id"`
	Kind          TransactionKind `json:"kind"`
}

// BankLineItem is one entry from an imported bank statement, pending or
// past reconciliation. MatchedRef is set only while Status is matched.
type BankLineItem struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   Direction       `json:"direction"`
	Status      LineItemStatus  `json:"status"`
	MatchedRef  *MatchedRef     `json:"matched_ref,omitempty"`
}

// MatchCandidate is an ephemeral pairing proposed during an auto-match
// pass. It is scored, consumed and discarded, never persisted.
type MatchCandidate struct {
	LineItemID    string          `json:"line_item_id"`
	TransactionID string          `json:"transaction_id"`
	Kind          TransactionKind `json:"transaction_kind"`
	Score         float64         `json:"score"`
}

// ReconciliationSummary is the derived read-side view over the current
// set of line items.
type ReconciliationSummary struct {
	Total          int             `json:"total"`
	UnmatchedCount int             `json:"unmatched_count"`
	MatchedCount   int             `json:"matched_count"`
	IgnoredCount   int             `json:"ignored_count"`
	MatchRate      float64         `json:"match_rate"`
	MatchedDebits  decimal.Decimal `json:"matched_debits"`
	MatchedCredits decimal.Decimal `json:"matched_credits"`
}
