package lifecycle_test

import (
	"errors"
	"testing"

	"assetline/internal/domain"
	"assetline/internal/lifecycle"
)

func arrivedRequest() domain.Request {
	return domain.Request{
		ID:     "req-2",
		Status: domain.StatusArrived,
		Items: []domain.RequestItem{
			{ID: "mouse", ItemName: "Mouse", Quantity: 2, Tracking: domain.TrackSerialized},
			{ID: "kbd", ItemName: "Keyboard", Quantity: 2, Tracking: domain.TrackSerialized},
			{ID: "cable", ItemName: "Cable", Quantity: 10, Tracking: domain.TrackBulk},
		},
		Decisions: map[string]domain.ItemDecision{
			"mouse": {Status: domain.DecisionApproved, ApprovedQuantity: 2},
			"kbd":   {Status: domain.DecisionApproved, ApprovedQuantity: 2},
			"cable": {Status: domain.DecisionApproved, ApprovedQuantity: 10},
		},
	}
}

func fullStock() lifecycle.StockView {
	return lifecycle.StockView{
		BulkCount: map[string]int{"cable": 10},
		Available: map[string]bool{"A1": true, "A2": true, "A3": true, "A4": true},
	}
}

func TestAssignmentHappyPath(t *testing.T) {
	req := arrivedRequest()
	err := lifecycle.ValidateAssignment(req, []lifecycle.AssignmentLine{
		{ItemID: "mouse", Quantity: 2, AssetIDs: []string{"A1", "A2"}},
		{ItemID: "kbd", Quantity: 2, AssetIDs: []string{"A3", "A4"}},
		{ItemID: "cable", Quantity: 10},
	}, fullStock())
	if err != nil {
		t.Fatalf("valid batch rejected: %v", err)
	}
}

func TestCrossItemCollision(t *testing.T) {
	req := arrivedRequest()
	err := lifecycle.ValidateAssignment(req, []lifecycle.AssignmentLine{
		{ItemID: "mouse", Quantity: 2, AssetIDs: []string{"A1", "A2"}},
		{ItemID: "kbd", Quantity: 2, AssetIDs: []string{"A2", "A3"}},
		{ItemID: "cable", Quantity: 10},
	}, fullStock())
	var ve lifecycle.ValidationError
	if !errors.As(err, &ve) || ve.Code != lifecycle.CodeAssetCollision {
		t.Fatalf("expected asset_collision, got %v", err)
	}
	if ve.ItemID != "kbd" {
		t.Fatalf("collision must be reported on the later item, got %s", ve.ItemID)
	}
}

func TestIntraItemCollision(t *testing.T) {
	req := arrivedRequest()
	err := lifecycle.ValidateAssignment(req, []lifecycle.AssignmentLine{
		{ItemID: "mouse", Quantity: 2, AssetIDs: []string{"A1", "A1"}},
	}, fullStock())
	var ve lifecycle.ValidationError
	if !errors.As(err, &ve) || ve.Code != lifecycle.CodeAssetCollision {
		t.Fatalf("expected asset_collision, got %v", err)
	}
}

func TestBulkStockShortfall(t *testing.T) {
	req := arrivedRequest()
	stock := fullStock()
	stock.BulkCount["cable"] = 7
	err := lifecycle.ValidateAssignment(req, []lifecycle.AssignmentLine{
		{ItemID: "cable", Quantity: 10},
	}, stock)
	var ve lifecycle.ValidationError
	if !errors.As(err, &ve) || ve.Code != lifecycle.CodeInsufficientStock {
		t.Fatalf("expected insufficient_stock, got %v", err)
	}
}

func TestEmptySlotAndIncompleteness(t *testing.T) {
	req := arrivedRequest()
	err := lifecycle.ValidateAssignment(req, []lifecycle.AssignmentLine{
		{ItemID: "mouse", Quantity: 2, AssetIDs: []string{"A1"}},
	}, fullStock())
	var ve lifecycle.ValidationError
	if !errors.As(err, &ve) || ve.Code != lifecycle.CodeAssetSlotEmpty {
		t.Fatalf("expected asset_slot_empty, got %v", err)
	}
	err = lifecycle.ValidateAssignment(req, []lifecycle.AssignmentLine{
		{ItemID: "mouse", Quantity: 2, AssetIDs: []string{"A1", ""}},
	}, fullStock())
	if !errors.As(err, &ve) || ve.Code != lifecycle.CodeAssetSlotEmpty {
		t.Fatalf("expected asset_slot_empty for blank slot, got %v", err)
	}
}

func TestUnavailableAsset(t *testing.T) {
	req := arrivedRequest()
	stock := fullStock()
	delete(stock.Available, "A2")
	err := lifecycle.ValidateAssignment(req, []lifecycle.AssignmentLine{
		{ItemID: "mouse", Quantity: 2, AssetIDs: []string{"A1", "A2"}},
	}, stock)
	var ve lifecycle.ValidationError
	if !errors.As(err, &ve) || ve.Code != lifecycle.CodeAssetUnavailable {
		t.Fatalf("expected asset_unavailable, got %v", err)
	}
}

func TestAssetIDsCarryQuantity(t *testing.T) {
	// A serialized line may omit Quantity; the identifier list is the count.
	req := arrivedRequest()
	err := lifecycle.ValidateAssignment(req, []lifecycle.AssignmentLine{
		{ItemID: "mouse", AssetIDs: []string{"A1", "A2"}},
	}, fullStock())
	if err != nil {
		t.Fatalf("full identifier list rejected: %v", err)
	}
}

func TestCompletingHandoverChecksRemainingQuantity(t *testing.T) {
	// After a partial handover, stock and reason are judged against what is
	// still owed, not the full approved quantity.
	req := arrivedRequest()
	req.HandedOver = map[string]int{"cable": 3}
	stock := fullStock()
	stock.BulkCount["cable"] = 7
	err := lifecycle.ValidateAssignment(req, []lifecycle.AssignmentLine{
		{ItemID: "cable", Quantity: 7},
	}, stock)
	if err != nil {
		t.Fatalf("completing handover rejected: %v", err)
	}
}

func TestReducedAssignmentNeedsReason(t *testing.T) {
	req := arrivedRequest()
	err := lifecycle.ValidateAssignment(req, []lifecycle.AssignmentLine{
		{ItemID: "cable", Quantity: 7},
	}, fullStock())
	var ve lifecycle.ValidationError
	if !errors.As(err, &ve) || ve.Code != lifecycle.CodeReasonRequired {
		t.Fatalf("expected reason_required, got %v", err)
	}
}

func TestFirstFailingItemAborts(t *testing.T) {
	// mouse fails first even though kbd also has a problem; declaration order
	// decides which error surfaces.
	req := arrivedRequest()
	err := lifecycle.ValidateAssignment(req, []lifecycle.AssignmentLine{
		{ItemID: "kbd", Quantity: 2, AssetIDs: []string{"A1"}},
		{ItemID: "mouse", Quantity: 2, AssetIDs: []string{"A2"}},
	}, fullStock())
	var ve lifecycle.ValidationError
	if !errors.As(err, &ve) || ve.ItemID != "mouse" {
		t.Fatalf("expected mouse (declared first) to fail first, got %v", err)
	}
}
