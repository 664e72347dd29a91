package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"assetline/internal/authz"
	"assetline/internal/config"
	"assetline/internal/domain"
	"assetline/internal/events"
	"assetline/internal/lifecycle"
	"assetline/internal/repo"
)

// Engine ties the pure lifecycle and authorization logic to storage. Every
// mutating operation runs in one transaction: load aggregate, check
// capabilities, apply the reducer, persist, append an activity entry.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Graph  *authz.Graph
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) (Engine, error) {
	graph, err := cfg.Graph()
	if err != nil {
		return Engine{}, err
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Graph:  graph,
		Now:    time.Now,
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// guard checks that the actor holds every capability the transition table
// demands for this action from the request's current status.
func (e Engine) guard(actor domain.User, req domain.Request, action lifecycle.Action) error {
	caps, err := lifecycle.RequiredCapabilities(req.Status, action)
	if err != nil {
		return err
	}
	if err := e.Graph.Require(actor, caps...); err != nil {
		return err
	}
	if lifecycle.RequesterOnly(action) && actor.ID != req.RequesterID {
		return authz.ForbiddenError{Capability: domain.CapRequestsCancelOwn}
	}
	return nil
}

// apply runs one lifecycle action end to end.
func (e Engine) apply(ctx context.Context, requestID, actorID string, action lifecycle.Action,
	fn func(domain.Request) (domain.Request, error), payload events.Payload) (domain.Request, error) {
	actor, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return domain.Request{}, fmt.Errorf("actor %s: %w", actorID, err)
	}
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	if err := e.guard(actor, req, action); err != nil {
		return domain.Request{}, err
	}
	patched, err := fn(req)
	if err != nil {
		return domain.Request{}, err
	}
	patched.UpdatedAt = e.stamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveRequestTx(ctx, tx, patched); err != nil {
		return domain.Request{}, err
	}
	if payload == nil {
		payload = events.Payload{}
	}
	if req.Status != patched.Status {
		payload["from"] = string(req.Status)
		payload["to"] = string(patched.Status)
	}
	if err := e.Events.Append(ctx, tx, "request."+string(action), requestID, actorID, payload); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return patched, nil
}

// ItemInput is one requested line on submission.
type ItemInput struct {
	ItemName string
	Brand    string
	Quantity int
	Unit     string
	Tracking domain.TrackingMode
}

// SubmitRequest creates a new request in PENDING.
func (e Engine) SubmitRequest(ctx context.Context, requesterID string, items []ItemInput) (domain.Request, error) {
	actor, err := e.Repo.GetUser(ctx, requesterID)
	if err != nil {
		return domain.Request{}, fmt.Errorf("actor %s: %w", requesterID, err)
	}
	if err := e.Graph.Require(actor, domain.CapRequestsCreate); err != nil {
		return domain.Request{}, err
	}
	if len(items) == 0 {
		return domain.Request{}, errors.New("at least one item is required")
	}
	now := e.stamp()
	req := domain.Request{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, in := range items {
		if in.ItemName == "" {
			return domain.Request{}, errors.New("item name is required")
		}
		if in.Quantity <= 0 {
			return domain.Request{}, fmt.Errorf("item %s: quantity must be positive", in.ItemName)
		}
		tracking := in.Tracking
		if tracking == "" {
			tracking = domain.TrackBulk
		}
		req.Items = append(req.Items, domain.RequestItem{
			ID:       uuid.NewString(),
			ItemName: in.ItemName,
			Brand:    in.Brand,
			Quantity: in.Quantity,
			Unit:     in.Unit,
			Tracking: tracking,
		})
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRequestTx(ctx, tx, req); err != nil {
		return domain.Request{}, err
	}
	if err := e.Events.Append(ctx, tx, "request.submitted", req.ID, requesterID, events.Payload{"items": len(req.Items)}); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return req, nil
}

// ApproveLogistic applies the first-stage review.
func (e Engine) ApproveLogistic(ctx context.Context, requestID, actorID string, review lifecycle.ReviewInput) (domain.Request, error) {
	return e.apply(ctx, requestID, actorID, lifecycle.ActionApproveLogistic, func(req domain.Request) (domain.Request, error) {
		return lifecycle.ApproveLogistic(req, review)
	}, events.Payload{"lines": len(review.Lines)})
}

// ReviseItems records a first-stage revision without advancing the request.
func (e Engine) ReviseItems(ctx context.Context, requestID, actorID string, review lifecycle.ReviewInput) (domain.Request, error) {
	return e.apply(ctx, requestID, actorID, lifecycle.ActionReviseItems, func(req domain.Request) (domain.Request, error) {
		return lifecycle.ReviseItems(req, review)
	}, events.Payload{"lines": len(review.Lines)})
}

// Cancel lets the requester withdraw a request that has not reached final
// approval.
func (e Engine) Cancel(ctx context.Context, requestID, actorID string) (domain.Request, error) {
	return e.apply(ctx, requestID, actorID, lifecycle.ActionCancel, func(req domain.Request) (domain.Request, error) {
		return lifecycle.Cancel(req, actorID)
	}, nil)
}

// Prioritize flags the request without changing its status.
func (e Engine) Prioritize(ctx context.Context, requestID, actorID string) (domain.Request, error) {
	return e.apply(ctx, requestID, actorID, lifecycle.ActionPrioritize, lifecycle.Prioritize, nil)
}

// SetPurchaseDetail records procurement data for one item. Allowed while the
// purchase stage owns the request.
func (e Engine) SetPurchaseDetail(ctx context.Context, requestID, actorID, itemID string, pd domain.PurchaseDetail) (domain.Request, error) {
	actor, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return domain.Request{}, fmt.Errorf("actor %s: %w", actorID, err)
	}
	if err := e.Graph.Require(actor, domain.CapApprovePurchase); err != nil {
		return domain.Request{}, err
	}
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	if req.Status != domain.StatusLogisticApproved && req.Status != domain.StatusPurchasing {
		return domain.Request{}, lifecycle.TransitionError{From: req.Status, Action: "set_purchase_detail"}
	}
	if _, ok := req.Item(itemID); !ok {
		return domain.Request{}, fmt.Errorf("item %s: %w", itemID, repo.ErrNotFound)
	}
	details := make(map[string]domain.PurchaseDetail, len(req.PurchaseDetails)+1)
	for k, v := range req.PurchaseDetails {
		details[k] = v
	}
	details[itemID] = pd
	req.PurchaseDetails = details
	req.UpdatedAt = e.stamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveRequestTx(ctx, tx, req); err != nil {
		return domain.Request{}, err
	}
	if err := e.Events.Append(ctx, tx, "request.purchase_detail", requestID, actorID,
		events.Payload{"item_id": itemID, "vendor": pd.Vendor}); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return req, nil
}

// SubmitFinal forwards a logistic-approved request for final approval.
func (e Engine) SubmitFinal(ctx context.Context, requestID, actorID string) (domain.Request, error) {
	return e.apply(ctx, requestID, actorID, lifecycle.ActionSubmitFinal, lifecycle.SubmitFinal, nil)
}

// FinalApprove grants final approval, optionally tightening quantities first.
func (e Engine) FinalApprove(ctx context.Context, requestID, actorID string, review *lifecycle.ReviewInput) (domain.Request, error) {
	return e.apply(ctx, requestID, actorID, lifecycle.ActionFinalApprove, func(req domain.Request) (domain.Request, error) {
		return lifecycle.FinalApprove(req, review)
	}, nil)
}

// FinalRevise sends the request back to the purchase stage, or rejects it
// outright when every item ends at zero.
func (e Engine) FinalRevise(ctx context.Context, requestID, actorID string, review lifecycle.ReviewInput) (domain.Request, error) {
	return e.apply(ctx, requestID, actorID, lifecycle.ActionFinalRevise, func(req domain.Request) (domain.Request, error) {
		return lifecycle.FinalRevise(req, review)
	}, events.Payload{"lines": len(review.Lines)})
}

// StartProcurement moves an approved request into purchasing.
func (e Engine) StartProcurement(ctx context.Context, requestID, actorID string) (domain.Request, error) {
	return e.apply(ctx, requestID, actorID, lifecycle.ActionStartProcurement, lifecycle.StartProcurement, nil)
}

// MarkInDelivery records that ordered goods left the vendor.
func (e Engine) MarkInDelivery(ctx context.Context, requestID, actorID string) (domain.Request, error) {
	return e.apply(ctx, requestID, actorID, lifecycle.ActionMarkInDelivery, lifecycle.MarkInDelivery, nil)
}

// MarkArrived records delivery at the warehouse.
func (e Engine) MarkArrived(ctx context.Context, requestID, actorID string) (domain.Request, error) {
	return e.apply(ctx, requestID, actorID, lifecycle.ActionMarkArrived, lifecycle.MarkArrived, nil)
}

// RegisterInput describes newly arrived units being entered into inventory
// for one request item. Serialized items list one serial per unit; bulk items
// give a count.
type RegisterInput struct {
	ItemID  string
	Count   int
	Serials []string
}

// RegisterAssets records arrived units against the staging counter and
// creates the matching inventory rows.
func (e Engine) RegisterAssets(ctx context.Context, requestID, actorID string, in RegisterInput) (domain.Request, error) {
	count := in.Count
	if len(in.Serials) > 0 {
		count = len(in.Serials)
	}
	actor, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return domain.Request{}, fmt.Errorf("actor %s: %w", actorID, err)
	}
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	if err := e.guard(actor, req, lifecycle.ActionRegisterAssets); err != nil {
		return domain.Request{}, err
	}
	patched, err := lifecycle.RegisterAssets(req, in.ItemID, count)
	if err != nil {
		return domain.Request{}, err
	}
	item, _ := patched.Item(in.ItemID)
	now := e.stamp()
	patched.UpdatedAt = now
	var created []domain.Asset
	if len(in.Serials) > 0 {
		for _, serial := range in.Serials {
			created = append(created, domain.Asset{
				ID:        uuid.NewString(),
				Name:      item.ItemName,
				Brand:     item.Brand,
				Tracking:  domain.TrackSerialized,
				Serial:    serial,
				Quantity:  1,
				Status:    domain.AssetAvailable,
				RequestID: req.ID,
				CreatedAt: now,
			})
		}
	} else {
		created = append(created, domain.Asset{
			ID:        uuid.NewString(),
			Name:      item.ItemName,
			Brand:     item.Brand,
			Tracking:  domain.TrackBulk,
			Quantity:  count,
			Status:    domain.AssetAvailable,
			RequestID: req.ID,
			CreatedAt: now,
		})
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveRequestTx(ctx, tx, patched); err != nil {
		return domain.Request{}, err
	}
	for _, a := range created {
		if err := e.Repo.InsertAssetTx(ctx, tx, a); err != nil {
			return domain.Request{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "request."+string(lifecycle.ActionRegisterAssets), req.ID, actorID,
		events.Payload{"item_id": in.ItemID, "count": count}); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return patched, nil
}

// CompleteStaging closes the staging phase once every item is registered.
func (e Engine) CompleteStaging(ctx context.Context, requestID, actorID string) (domain.Request, error) {
	return e.apply(ctx, requestID, actorID, lifecycle.ActionCompleteStaging, lifecycle.CompleteStaging, nil)
}

// HandoverOptions binds stock to request items for one handover document.
type HandoverOptions struct {
	Recipient string
	Lines     []lifecycle.AssignmentLine
}

// CreateHandover validates the asset assignment against live stock, applies
// the handover, commits the stock changes and stores the document. A failed
// validation commits nothing.
func (e Engine) CreateHandover(ctx context.Context, requestID, actorID string, opts HandoverOptions) (domain.Request, error) {
	actor, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return domain.Request{}, fmt.Errorf("actor %s: %w", actorID, err)
	}
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	if err := e.guard(actor, req, lifecycle.ActionCreateHandover); err != nil {
		return domain.Request{}, err
	}
	if opts.Recipient == "" {
		return domain.Request{}, errors.New("recipient is required")
	}
	stock, err := e.Repo.StockView(ctx, req)
	if err != nil {
		return domain.Request{}, err
	}
	if err := lifecycle.ValidateAssignment(req, opts.Lines, stock); err != nil {
		return domain.Request{}, err
	}
	quantities := make(map[string]int, len(opts.Lines))
	for _, line := range opts.Lines {
		quantities[line.ItemID] = line.Units()
	}
	patched, err := lifecycle.CreateHandover(req, lifecycle.HandoverInput{Quantities: quantities})
	if err != nil {
		return domain.Request{}, err
	}
	patched.UpdatedAt = e.stamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()
	for _, line := range opts.Lines {
		item, _ := req.Item(line.ItemID)
		if item.Tracking == domain.TrackSerialized {
			for _, assetID := range line.AssetIDs {
				if err := e.Repo.AssignAssetTx(ctx, tx, assetID, req.ID); err != nil {
					return domain.Request{}, err
				}
			}
			continue
		}
		if err := e.Repo.ConsumeBulkTx(ctx, tx, item.ItemName, item.Brand, quantities[line.ItemID], req.ID); err != nil {
			return domain.Request{}, err
		}
	}
	doc := domain.Handover{
		ID:         uuid.NewString(),
		RequestID:  req.ID,
		Recipient:  opts.Recipient,
		Quantities: quantities,
		CreatedBy:  actorID,
		CreatedAt:  patched.UpdatedAt,
	}
	if err := e.Repo.InsertHandoverTx(ctx, tx, doc); err != nil {
		return domain.Request{}, err
	}
	if err := e.Repo.SaveRequestTx(ctx, tx, patched); err != nil {
		return domain.Request{}, err
	}
	payload := events.Payload{"handover_id": doc.ID, "recipient": opts.Recipient}
	if req.Status != patched.Status {
		payload["from"] = string(req.Status)
		payload["to"] = string(patched.Status)
	}
	if err := e.Events.Append(ctx, tx, "request."+string(lifecycle.ActionCreateHandover), req.ID, actorID, payload); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return patched, nil
}
