// Package lifecycle models the admissible status transitions of an asset
// request aggregate as pure functions: every operation takes the full
// aggregate and returns a patched copy or an error, never mutating its input.
package lifecycle

import (
	"assetline/internal/domain"
)

// Action identifies one proposed lifecycle transition.
type Action string

const (
	ActionApproveLogistic  Action = "approve_logistic"
	ActionReviseItems      Action = "revise_items"
	ActionCancel           Action = "cancel"
	ActionSubmitFinal      Action = "submit_final"
	ActionPrioritize       Action = "prioritize"
	ActionFinalApprove     Action = "final_approve"
	ActionFinalRevise      Action = "final_revise"
	ActionStartProcurement Action = "start_procurement"
	ActionMarkInDelivery   Action = "mark_in_delivery"
	ActionMarkArrived      Action = "mark_arrived"
	ActionRegisterAssets   Action = "register_assets"
	ActionCompleteStaging  Action = "complete_staging"
	ActionCreateHandover   Action = "create_handover"
)

// Action2From keys the transition table by (status, action). The listed
// capabilities are alternatives: holding any one of them permits the action.
type Action2From struct {
	Status domain.Status
	Action Action
}

var transitionTable = map[Action2From][]domain.Capability{
	{domain.StatusPending, ActionApproveLogistic}: {domain.CapApproveLogistic},
	{domain.StatusPending, ActionReviseItems}:     {domain.CapApproveLogistic, domain.CapApproveFinal},
	{domain.StatusPending, ActionCancel}:          {domain.CapRequestsCancelOwn},

	{domain.StatusLogisticApproved, ActionSubmitFinal}: {domain.CapApprovePurchase},
	{domain.StatusLogisticApproved, ActionPrioritize}:  {domain.CapApproveFinal},
	{domain.StatusLogisticApproved, ActionCancel}:      {domain.CapRequestsCancelOwn},

	{domain.StatusAwaitingFinal, ActionFinalApprove}: {domain.CapApproveFinal},
	{domain.StatusAwaitingFinal, ActionFinalRevise}:  {domain.CapApproveFinal},

	{domain.StatusApproved, ActionStartProcurement}: {domain.CapApprovePurchase},

	{domain.StatusPurchasing, ActionMarkInDelivery}: {domain.CapApprovePurchase},

	{domain.StatusInDelivery, ActionMarkArrived}: {domain.CapApprovePurchase, domain.CapApproveLogistic},

	{domain.StatusArrived, ActionRegisterAssets}:  {domain.CapAssetsCreate, domain.CapApproveFinal},
	{domain.StatusArrived, ActionCompleteStaging}: {domain.CapAssetsCreate, domain.CapApproveFinal},

	{domain.StatusAwaitingHandover, ActionCreateHandover}: {domain.CapAssetsHandover, domain.CapApproveFinal},
}

// requesterOnly actions may only be invoked by the original requester.
var requesterOnly = map[Action]bool{
	ActionCancel: true,
}

// RequiredCapabilities returns the capability alternatives for an action from
// the given status, or a TransitionError when the action is inadmissible.
func RequiredCapabilities(from domain.Status, action Action) ([]domain.Capability, error) {
	caps, ok := transitionTable[Action2From{Status: from, Action: action}]
	if !ok {
		return nil, TransitionError{From: from, Action: action}
	}
	return caps, nil
}

// RequesterOnly reports whether the action is restricted to the requester.
func RequesterOnly(action Action) bool {
	return requesterOnly[action]
}

// Cancel moves a cancellable request to CANCELLED. Requester identity is
// enforced here; capability gating happens at the caller.
func Cancel(req domain.Request, actorID string) (domain.Request, error) {
	if _, err := RequiredCapabilities(req.Status, ActionCancel); err != nil {
		return req, err
	}
	if actorID != req.RequesterID {
		return req, invalid("not_requester", "", "only the requester may cancel")
	}
	req.Status = domain.StatusCancelled
	return req, nil
}

// Prioritize flags a logistic-approved request as prioritized. No status
// change.
func Prioritize(req domain.Request) (domain.Request, error) {
	if _, err := RequiredCapabilities(req.Status, ActionPrioritize); err != nil {
		return req, err
	}
	req.PrioritizedByCEO = true
	return req, nil
}

// SubmitFinal moves LOGISTIC_APPROVED to AWAITING_FINAL_APPROVAL, gated on a
// complete purchase form for every item requiring purchase.
func SubmitFinal(req domain.Request) (domain.Request, error) {
	if _, err := RequiredCapabilities(req.Status, ActionSubmitFinal); err != nil {
		return req, err
	}
	if err := CheckPurchaseForm(req); err != nil {
		return req, err
	}
	req.Status = domain.StatusAwaitingFinal
	return req, nil
}

// StartProcurement moves APPROVED to PURCHASING.
func StartProcurement(req domain.Request) (domain.Request, error) {
	if _, err := RequiredCapabilities(req.Status, ActionStartProcurement); err != nil {
		return req, err
	}
	req.Status = domain.StatusPurchasing
	return req, nil
}

// MarkInDelivery moves PURCHASING to IN_DELIVERY.
func MarkInDelivery(req domain.Request) (domain.Request, error) {
	if _, err := RequiredCapabilities(req.Status, ActionMarkInDelivery); err != nil {
		return req, err
	}
	req.Status = domain.StatusInDelivery
	return req, nil
}

// MarkArrived moves IN_DELIVERY to ARRIVED.
func MarkArrived(req domain.Request) (domain.Request, error) {
	if _, err := RequiredCapabilities(req.Status, ActionMarkArrived); err != nil {
		return req, err
	}
	req.Status = domain.StatusArrived
	return req, nil
}

// RegisterAssets records count freshly registered units against an arrived
// item. Repeatable; the request stays ARRIVED until staging completes.
func RegisterAssets(req domain.Request, itemID string, count int) (domain.Request, error) {
	if _, err := RequiredCapabilities(req.Status, ActionRegisterAssets); err != nil {
		return req, err
	}
	item, ok := req.Item(itemID)
	if !ok {
		return req, invalid(CodeUnknownItem, itemID, "no such item")
	}
	if count <= 0 {
		return req, invalid(CodeQuantityInvalid, itemID, "count must be positive")
	}
	if !needsStaging(req, item) {
		return req, invalid(CodeItemFrozen, itemID, "item does not require staging")
	}
	approved := EffectiveQuantity(req, item)
	have := req.Registered[itemID]
	if have+count > approved {
		return req, invalid(CodeQuantityInvalid, itemID, "registering %d exceeds approved quantity %d (already %d)", count, approved, have)
	}
	reg := make(map[string]int, len(req.Registered)+1)
	for k, v := range req.Registered {
		reg[k] = v
	}
	reg[itemID] = have + count
	req.Registered = reg
	return req, nil
}

// CompleteStaging moves ARRIVED to AWAITING_HANDOVER once every item that
// requires staging is fully registered.
func CompleteStaging(req domain.Request) (domain.Request, error) {
	if _, err := RequiredCapabilities(req.Status, ActionCompleteStaging); err != nil {
		return req, err
	}
	if !StagingComplete(req) {
		return req, invalid(CodeStagingIncomplete, "", "not all items are fully registered")
	}
	req.Status = domain.StatusAwaitingHandover
	return req, nil
}

// HandoverInput records quantities handed over per item in one document.
type HandoverInput struct {
	Quantities map[string]int
}

// CreateHandover applies a partial or full handover. The request moves to
// COMPLETED once every deliverable item reaches its effective quantity.
func CreateHandover(req domain.Request, in HandoverInput) (domain.Request, error) {
	if _, err := RequiredCapabilities(req.Status, ActionCreateHandover); err != nil {
		return req, err
	}
	handed := make(map[string]int, len(req.HandedOver))
	for k, v := range req.HandedOver {
		handed[k] = v
	}
	for _, item := range req.Items {
		qty := in.Quantities[item.ID]
		if qty == 0 {
			continue
		}
		if qty < 0 {
			return req, invalid(CodeQuantityInvalid, item.ID, "handover quantity must be positive")
		}
		if !deliverable(req, item) {
			return req, invalid(CodeItemFrozen, item.ID, "item is not deliverable")
		}
		remaining := EffectiveQuantity(req, item) - handed[item.ID]
		if qty > remaining {
			return req, invalid(CodeHandoverExceeds, item.ID, "handing over %d exceeds remaining %d", qty, remaining)
		}
		handed[item.ID] += qty
	}
	for id := range in.Quantities {
		if _, ok := req.Item(id); !ok {
			return req, invalid(CodeUnknownItem, id, "no such item")
		}
	}
	req.HandedOver = handed
	if allHandedOver(req) {
		req.Status = domain.StatusCompleted
	}
	return req, nil
}

// EffectiveQuantity is the quantity currently authorized for the item: the
// latest decision's approved quantity, or the original request quantity when
// no stage has reviewed it yet.
func EffectiveQuantity(req domain.Request, item domain.RequestItem) int {
	if d, ok := req.Decisions[item.ID]; ok {
		return d.ApprovedQuantity
	}
	return item.Quantity
}

// needsStaging reports whether physical units must be registered for the item.
func needsStaging(req domain.Request, item domain.RequestItem) bool {
	d, ok := req.Decisions[item.ID]
	if ok && (d.Status == domain.DecisionRejected || d.Status == domain.DecisionStockAllocated) {
		return false
	}
	return EffectiveQuantity(req, item) > 0
}

// deliverable reports whether the item participates in handover. Rejected
// items never do; stock-allocated items still reach the requester.
func deliverable(req domain.Request, item domain.RequestItem) bool {
	if d, ok := req.Decisions[item.ID]; ok && d.Status == domain.DecisionRejected {
		return false
	}
	return EffectiveQuantity(req, item) > 0
}

func allHandedOver(req domain.Request) bool {
	for _, item := range req.Items {
		if !deliverable(req, item) {
			continue
		}
		if req.HandedOver[item.ID] < EffectiveQuantity(req, item) {
			return false
		}
	}
	return true
}

// StagingComplete reports whether every item that requires staging has a
// cumulative registered count of at least its effective quantity. Vacuously
// true when nothing requires staging.
func StagingComplete(req domain.Request) bool {
	for _, item := range req.Items {
		if !needsStaging(req, item) {
			continue
		}
		if req.Registered[item.ID] < EffectiveQuantity(req, item) {
			return false
		}
	}
	return true
}

// requiresPurchase reports whether the item must carry purchase details:
// a positive effective quantity not satisfied from stock.
func requiresPurchase(req domain.Request, item domain.RequestItem) bool {
	if d, ok := req.Decisions[item.ID]; ok {
		if d.Status == domain.DecisionRejected || d.Status == domain.DecisionStockAllocated {
			return false
		}
	}
	return EffectiveQuantity(req, item) > 0
}

// CheckPurchaseForm validates that every item requiring purchase has a
// complete purchase-detail record. First violation wins.
func CheckPurchaseForm(req domain.Request) error {
	for _, item := range req.Items {
		if !requiresPurchase(req, item) {
			continue
		}
		pd, ok := req.PurchaseDetails[item.ID]
		if !ok || !pd.Complete() {
			return invalid(CodePurchaseForm, item.ID, "price, vendor, PO number, invoice number and purchase date are required")
		}
	}
	return nil
}

// PurchaseFormValid is the boolean form of CheckPurchaseForm.
func PurchaseFormValid(req domain.Request) bool {
	return CheckPurchaseForm(req) == nil
}

// FinalApprove moves AWAITING_FINAL_APPROVAL to APPROVED, with an optional
// review pass applying the cascading ceiling, and re-checks the purchase form
// for the items that remain eligible.
func FinalApprove(req domain.Request, review *ReviewInput) (domain.Request, error) {
	if _, err := RequiredCapabilities(req.Status, ActionFinalApprove); err != nil {
		return req, err
	}
	if review != nil {
		next, err := applyReview(req, *review)
		if err != nil {
			return req, err
		}
		req = next
	}
	if allRejected(req) {
		req.Status = domain.StatusRejected
		return req, nil
	}
	if err := CheckPurchaseForm(req); err != nil {
		return req, err
	}
	req.Status = domain.StatusApproved
	return req, nil
}

// FinalRevise sends an AWAITING_FINAL_APPROVAL request back to
// LOGISTIC_APPROVED after applying the review, or to REJECTED when every item
// ends at quantity zero.
func FinalRevise(req domain.Request, review ReviewInput) (domain.Request, error) {
	if _, err := RequiredCapabilities(req.Status, ActionFinalRevise); err != nil {
		return req, err
	}
	next, err := applyReview(req, review)
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
