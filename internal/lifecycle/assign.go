package lifecycle

import (
	"assetline/internal/domain"
)

// AssignmentLine binds one item to stock: a quantity for bulk items, or a
// list of asset identifiers (one per unit) for serialized items.
type AssignmentLine struct {
	ItemID   string
	Quantity int
	AssetIDs []string
	Reason   string
}

// Units returns how many units the line assigns. A declared Quantity wins;
// when absent, the asset identifiers carry the quantity implicitly.
func (l AssignmentLine) Units() int {
	if l.Quantity > 0 {
		return l.Quantity
	}
	return len(l.AssetIDs)
}

// StockView is what the validator knows about currently available stock.
// BulkCount maps (item id) to available undifferentiated units; Available
// holds the identifiers of serialized assets free to be assigned.
type StockView struct {
	BulkCount map[string]int
	Available map[string]bool
}

// ValidateAssignment checks a whole assignment batch against available stock.
// Items are validated in declaration order; the first failing item aborts the
// whole submission, so callers commit nothing on error. The used-identifier
// set is rebuilt on every call and spans the entire batch, rejecting the same
// asset identifier bound to two slots even across items.
func ValidateAssignment(req domain.Request, lines []AssignmentLine, stock StockView) error {
	byItem := make(map[string]AssignmentLine, len(lines))
	for _, l := range lines {
		if _, ok := req.Item(l.ItemID); !ok {
			return invalid(CodeUnknownItem, l.ItemID, "no such item")
		}
		byItem[l.ItemID] = l
	}
	used := make(map[string]string, len(lines)) // asset id -> item that claimed it
	for _, item := range req.Items {
		line, ok := byItem[item.ID]
		if !ok {
			continue
		}
		qty := line.Units()
		remaining := EffectiveQuantity(req, item) - req.HandedOver[item.ID]
		if qty < remaining && line.Reason == "" {
			return invalid(CodeReasonRequired, item.ID, "a reason is required when assigning less than the remaining quantity")
		}
		switch item.Tracking {
		case domain.TrackBulk:
			if stock.BulkCount[item.ID] < qty {
				return invalid(CodeInsufficientStock, item.ID, "available stock %d is below requested quantity %d", stock.BulkCount[item.ID], qty)
			}
		case domain.TrackSerialized:
			if len(line.AssetIDs) != qty {
				return invalid(CodeAssetSlotEmpty, item.ID, "%d of %d unit slots filled", len(line.AssetIDs), qty)
			}
			seen := make(map[string]bool, len(line.AssetIDs))
			for _, assetID := range line.AssetIDs {
				if assetID == "" {
					return invalid(CodeAssetSlotEmpty, item.ID, "empty asset slot")
				}
				if seen[assetID] {
					return invalid(CodeAssetCollision, item.ID, "asset %s assigned twice within the item", assetID)
				}
				seen[assetID] = true
				if !stock.Available[assetID] {
					return invalid(CodeAssetUnavailable, item.ID, "asset %s is not available", assetID)
				}
			}
			for _, assetID := range line.AssetIDs {
				if other, taken := used[assetID]; taken {
					return invalid(CodeAssetCollision, item.ID, "asset %s already assigned to item %s", assetID, other)
				}
				used[assetID] = item.ID
			}
		}
	}
	return nil
}
