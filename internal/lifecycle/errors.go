package lifecycle

import (
	"fmt"

	"assetline/internal/domain"
)

// TransitionError indicates an action that is not admissible from the
// request's current status.
type TransitionError struct {
	From   domain.Status
	Action Action
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("action %s not allowed from status %s", e.Action, e.From)
}

// ValidationError is a recoverable per-submission rule violation. Validation
// stops at the first violation found; the aggregate is left unchanged.
type ValidationError struct {
	Code   string
	ItemID string
	Msg    string
}

func (e ValidationError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("%s: item %s: %s", e.Code, e.ItemID, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func invalid(code, itemID, format string, args ...any) error {
	return ValidationError{Code: code, ItemID: itemID, Msg: fmt.Sprintf(format, args...)}
}

const (
	CodeReasonRequired    = "reason_required"
	CodeCeilingExceeded   = "ceiling_exceeded"
	CodeItemFrozen        = "item_frozen"
	CodeUnknownItem       = "unknown_item"
	CodePurchaseForm      = "purchase_form_incomplete"
	CodeStagingIncomplete = "staging_incomplete"
	CodeInsufficientStock = "insufficient_stock"
	CodeAssetCollision    = "asset_collision"
	CodeAssetSlotEmpty    = "asset_slot_empty"
	CodeAssetUnavailable  = "asset_unavailable"
	CodeHandoverExceeds   = "handover_exceeds_remaining"
	CodeQuantityInvalid   = "quantity_invalid"
)
