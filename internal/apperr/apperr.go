// Package apperr defines the typed failures returned by the inventory core.
// Every error carries a Kind used for HTTP mapping and a stable Code used
// for errors.Is comparisons.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure
type Kind int

const (
	KindPersistence Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAssetGeneration
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAssetGeneration:
		return "asset_generation"
	default:
		return "persistence"
	}
}

// Error is a classified failure
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidMovementType = &Error{Kind: KindValidation, Code: "invalid_movement_type", Message: "invalid movement type"}
	ErrInvalidStatus       = &Error{Kind: KindValidation, Code: "invalid_status", Message: "invalid status"}
	ErrInvalidQuantity     = &Error{Kind: KindValidation, Code: "invalid_quantity", Message: "invalid quantity"}
	ErrReasonRequired      = &Error{Kind: KindValidation, Code: "reason_required", Message: "reason is required"}
	ErrInvalidInput        = &Error{Kind: KindValidation, Code: "invalid_input", Message: "invalid input"}
	ErrProductNotFound     = &Error{Kind: KindNotFound, Code: "product_not_found", Message: "product not found"}
	ErrVariantNotFound     = &Error{Kind: KindNotFound, Code: "variant_not_found", Message: "variant not found"}
	ErrItemNotFound        = &Error{Kind: KindNotFound, Code: "item_not_found", Message: "serialized item not found"}
	ErrDuplicateItemUID    = &Error{Kind: KindConflict, Code: "duplicate_item_uid", Message: "duplicate item uid"}
	ErrInvalidTransition   = &Error{Kind: KindConflict, Code: "invalid_transition", Message: "invalid status transition"}
	ErrAssetGeneration     = &Error{Kind: KindAssetGeneration, Code: "asset_generation_failed", Message: "asset generation failed"}
	ErrPersistence         = &Error{Kind: KindPersistence, Code: "persistence_failed", Message: "persistence failure"}
	ErrLedgerImmutable     = &Error{Kind: KindConflict, Code: "ledger_immutable", Message: "stock movements are append-only"}
	ErrItemPermanent       = &Error{Kind: KindConflict, Code: "item_permanent", Message: "serialized items are never deleted"}
)

// New derives an error from a sentinel with a specific message
func New(sentinel *Error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap derives an error from a sentinel around a cause
func Wrap(sentinel *Error, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// KindOf classifies any error. Errors outside this package count as persistence failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// CodeOf returns the stable code of err, or the persistence code for foreign errors
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrPersistence.Code
}
