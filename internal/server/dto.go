package server

import (
	"assetline/internal/domain"
	"assetline/internal/engine"
	"assetline/internal/lifecycle"
)

// Request payloads

type ItemBody struct {
	ItemName string `json:"item_name"`
	Brand    string `json:"brand,omitempty"`
	Quantity int    `json:"quantity"`
	Unit     string `json:"unit,omitempty"`
	Tracking string `json:"tracking,omitempty" enum:"bulk,serialized"`
}

type SubmitRequestBody struct {
	Items []ItemBody `json:"items"`
}

type ReviewLineBody struct {
	ItemID         string `json:"item_id"`
	Quantity       int    `json:"quantity"`
	StockAllocated bool   `json:"stock_allocated,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

type ReviewBody struct {
	Lines []ReviewLineBody `json:"lines,omitempty"`
}

type PurchaseDetailBody struct {
	ItemID        string  `json:"item_id"`
	Price         float64 `json:"price"`
	Vendor        string  `json:"vendor"`
	PONumber      string  `json:"po_number"`
	InvoiceNumber string  `json:"invoice_number"`
	PurchaseDate  string  `json:"purchase_date,omitempty" format:"date"`
}

type RegisterAssetsBody struct {
	ItemID  string   `json:"item_id"`
	Count   int      `json:"count,omitempty"`
	Serials []string `json:"serials,omitempty"`
}

type AssignmentLineBody struct {
	ItemID   string   `json:"item_id"`
	Quantity int      `json:"quantity,omitempty"`
	AssetIDs []string `json:"asset_ids,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

type HandoverBody struct {
	Recipient string               `json:"recipient"`
	Lines     []AssignmentLineBody `json:"lines"`
}

type CreateUserBody struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role" enum:"super_admin,admin_logistic,admin_purchase,leader,staff"`
}

type UpdatePermissionsBody struct {
	Permissions []string `json:"permissions"`
}

type SetRoleBody struct {
	Role string `json:"role" enum:"super_admin,admin_logistic,admin_purchase,leader,staff"`
}

type CreateAssetBody struct {
	Name     string `json:"name"`
	Brand    string `json:"brand,omitempty"`
	Tracking string `json:"tracking,omitempty" enum:"bulk,serialized"`
	Serial   string `json:"serial,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

type CreateAPIKeyBody struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// Responses

type RequestResponse struct {
	Request domain.Request `json:"request"`
}

type RequestListResponse struct {
	Requests []domain.Request `json:"requests"`
}

type UserResponse struct {
	User      domain.User         `json:"user"`
	Effective []domain.Capability `json:"effective_permissions"`
}

type UserListResponse struct {
	Users []domain.User `json:"users"`
}

type AssetResponse struct {
	Asset domain.Asset `json:"asset"`
}

type AssetListResponse struct {
	Assets []domain.Asset `json:"assets"`
}

type HandoverListResponse struct {
	Handovers []domain.Handover `json:"handovers"`
}

type ActivityListResponse struct {
	Activities []domain.Activity `json:"activities"`
}

type APIKeyCreatedResponse struct {
	Key       string `json:"key"`
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
}

type CapabilityNode struct {
	Capability domain.Capability   `json:"capability"`
	DependsOn  []domain.Capability `json:"depends_on,omitempty"`
	ToggleOn   []domain.Capability `json:"toggle_on"`
	ToggleOff  []domain.Capability `json:"toggle_off"`
}

type CapabilityGraphResponse struct {
	Capabilities []CapabilityNode `json:"capabilities"`
}

// Converters

func toItems(in []ItemBody) []engine.ItemInput {
	out := make([]engine.ItemInput, 0, len(in))
	for _, b := range in {
		out = append(out, engine.ItemInput{
			ItemName: b.ItemName,
			Brand:    b.Brand,
			Quantity: b.Quantity,
			Unit:     b.Unit,
			Tracking: domain.TrackingMode(b.Tracking),
		})
	}
	return out
}

func toReview(b ReviewBody) lifecycle.ReviewInput {
	var in lifecycle.ReviewInput
	for _, l := range b.Lines {
		in.Lines = append(in.Lines, lifecycle.ReviewLine{
			ItemID:         l.ItemID,
			Quantity:       l.Quantity,
			StockAllocated: l.StockAllocated,
			Reason:         l.Reason,
		})
	}
	return in
}

func toAssignmentLines(in []AssignmentLineBody) []lifecycle.AssignmentLine {
	out := make([]lifecycle.AssignmentLine, 0, len(in))
	for _, l := range in {
		out = append(out, lifecycle.AssignmentLine{
			ItemID:   l.ItemID,
			Quantity: l.Quantity,
			AssetIDs: l.AssetIDs,
			Reason:   l.Reason,
		})
	}
	return out
}

func toCaps(in []string) []domain.Capability {
	out := make([]domain.Capability, 0, len(in))
	for _, c := range in {
		out = append(out, domain.Capability(c))
	}
	return out
}
