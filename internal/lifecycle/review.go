package lifecycle

import (
	"assetline/internal/domain"
)

// ReviewLine is one reviewer decision for one item at the current stage.
type ReviewLine struct {
	ItemID string
	// Quantity is the approved quantity at this stage, clamped by the ceiling
	// from the immediately preceding stage.
	Quantity int
	// StockAllocated marks the item as satisfied from existing stock instead
	// of purchase.
	StockAllocated bool
	Reason         string
}

// ReviewInput is one full review submission. Items without a line carry
// forward unchanged.
type ReviewInput struct {
	Lines []ReviewLine
}

// Ceiling returns the maximum quantity a review at the current stage may
// approve for the item: the previous stage's approved quantity, or the
// original requested quantity when the item has never been reviewed.
func Ceiling(req domain.Request, itemID string) int {
	item, ok := req.Item(itemID)
	if !ok {
		return 0
	}
	return EffectiveQuantity(req, item)
}

// applyReview folds a review submission into the decisions map, enforcing the
// cascading ceiling: stage N+1 quantity <= stage N quantity <= original, and
// items frozen at zero stay at zero. A reason is mandatory whenever the
// outcome is anything but carrying the full ceiling forward unchanged.
func applyReview(req domain.Request, in ReviewInput) (domain.Request, error) {
	decisions := make(map[string]domain.ItemDecision, len(req.Items))
	for k, v := range req.Decisions {
		decisions[k] = v
	}
	for _, line := range in.Lines {
		item, ok := req.Item(line.ItemID)
		if !ok {
			return req, invalid(CodeUnknownItem, line.ItemID, "no such item")
		}
		ceiling := EffectiveQuantity(req, item)
		if ceiling == 0 {
			// Frozen at a previous stage; always contributes zero.
			if line.Quantity != 0 {
				return req, invalid(CodeItemFrozen, line.ItemID, "item was rejected at an earlier stage")
			}
			continue
		}
		if line.Quantity < 0 {
			return req, invalid(CodeQuantityInvalid, line.ItemID, "quantity must not be negative")
		}
		if line.Quantity > ceiling {
			return req, invalid(CodeCeilingExceeded, line.ItemID, "quantity %d exceeds ceiling %d", line.Quantity, ceiling)
		}
		d := domain.ItemDecision{ApprovedQuantity: line.Quantity, Reason: line.Reason}
		switch {
		case line.Quantity == 0:
			d.Status = domain.DecisionRejected
		case line.StockAllocated:
			d.Status = domain.DecisionStockAllocated
		case line.Quantity < ceiling:
			d.Status = domain.DecisionPartial
		default:
			d.Status = domain.DecisionApproved
		}
		if line.Quantity < ceiling && line.Reason == "" {
			return req, invalid(CodeReasonRequired, line.ItemID, "a reason is required when reducing or rejecting")
		}
		decisions[line.ItemID] = d
	}
	// Items never reviewed carry forward fully approved at their ceiling.
	for _, item := range req.Items {
		if _, ok := decisions[item.ID]; ok {
			continue
		}
		decisions[item.ID] = domain.ItemDecision{
			Status:           domain.DecisionApproved,
			ApprovedQuantity: item.Quantity,
		}
	}
	req.Decisions = decisions
	return req, nil
}

// allRejected reports whether every item's effective quantity is zero.
func allRejected(req domain.Request) bool {
	for _, item := range req.Items {
		if EffectiveQuantity(req, item) > 0 {
			return false
		}
	}
	return true
}

// ApproveLogistic performs the first-stage review on a PENDING request.
// With an empty review every item is approved in full. The request moves to
// LOGISTIC_APPROVED, or straight to REJECTED when every item ends at zero.
func ApproveLogistic(req domain.Request, in ReviewInput) (domain.Request, error) {
	if _, err := RequiredCapabilities(req.Status, ActionApproveLogistic); err != nil {
		return req, err
	}
	next, err := applyReview(req, in)
	if err != nil {
		return req, err
	}
	if allRejected(next) {
		next.Status = domain.StatusRejected
	} else {
		next.Status = domain.StatusLogisticApproved
	}
	return next, nil
}

// ReviseItems applies a review on a PENDING request without advancing it.
// The request stays PENDING unless every item ends at zero, which rejects it.
func ReviseItems(req domain.Request, in ReviewInput) (domain.Request, error) {
	if _, err := RequiredCapabilities(req.Status, ActionReviseItems); err != nil {
		return req, err
	}
	next, err := applyReview(req, in)
	if err != nil {
		return req, err
	}
	if allRejected(next) {
		next.Status = domain.StatusRejected
	}
	return next, nil
}
