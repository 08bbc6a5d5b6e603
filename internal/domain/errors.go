package domain

import "fmt"

// Error types for consistent error handling across the core.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrDuplicateName indicates a category with the same name already exists.
type ErrDuplicateName struct {
	Name string
}

func (e *ErrDuplicateName) Error() string {
	return fmt.Sprintf("category name already exists: %s", e.Name)
}

// ErrUnknownCategory indicates a split references a category that is not
// in the catalog.
type ErrUnknownCategory struct {
	CategoryID string
}

func (e *ErrUnknownCategory) Error() string {
	return fmt.Sprintf("unknown category: %s", e.CategoryID)
}

// ErrDuplicateCategory indicates the same category appears twice in one
// split set.
type ErrDuplicateCategory struct {
	CategoryID string
}

func (e *ErrDuplicateCategory) Error() string {
	return fmt.Sprintf("category appears more than once in split: %s", e.CategoryID)
}

// ErrNegativeAmount indicates a split amount below zero.
type ErrNegativeAmount struct {
	CategoryID string
	Amount     string
}

func (e *ErrNegativeAmount) Error() string {
	return fmt.Sprintf("negative amount %s for category %s", e.Amount, e.CategoryID)
}

// ErrOverAllocated indicates the splits sum to more than the transaction
// amount. Excess is the amount beyond the transaction total.
type ErrOverAllocated struct {
	TransactionID string
	Excess        string
}

func (e *ErrOverAllocated) Error() string {
	return fmt.Sprintf("breakdowns exceed transaction %s by %s", e.TransactionID, e.Excess)
}

// ErrCategoryInUse indicates a category cannot be deleted while
// breakdowns still reference it and no cascade was requested.
type ErrCategoryInUse struct {
	CategoryID string
	RefCount   int
}

func (e *ErrCategoryInUse) Error() string {
	return fmt.Sprintf("category %s is referenced by %d breakdown(s)", e.CategoryID, e.RefCount)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}
