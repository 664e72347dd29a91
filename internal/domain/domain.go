package domain

// Role is the closed set of user roles. Exactly one role per user.
type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RoleAdminLogistic Role = "admin_logistic"
	RoleAdminPurchase Role = "admin_purchase"
	RoleLeader        Role = "leader"
	RoleStaff         Role = "staff"
)

// Roles lists every declared role.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleAdminLogistic, RoleAdminPurchase, RoleLeader, RoleStaff}
}

// ParseRole returns the Role for a stored tag.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleSuperAdmin, RoleAdminLogistic, RoleAdminPurchase, RoleLeader, RoleStaff:
		return Role(s), true
	}
	return "", false
}

// Capability is an atomic authorization tag gating one action or view.
type Capability string

const (
	CapAssetsView        Capability = "assets:view"
	CapAssetsCreate      Capability = "assets:create"
	CapAssetsEdit        Capability = "assets:edit"
	CapAssetsDelete      Capability = "assets:delete"
	CapAssetsHandover    Capability = "assets:handover"
	CapAssetsDismantle   Capability = "assets:dismantle"
	CapRequestsView      Capability = "requests:view"
	CapRequestsCreate    Capability = "requests:create"
	CapRequestsCancelOwn Capability = "requests:cancel:own"
	CapApproveLogistic   Capability = "requests:approve:logistic"
	CapApprovePurchase   Capability = "requests:approve:purchase"
	CapApproveFinal      Capability = "requests:approve:final"
	CapUsersView         Capability = "users:view"
	CapUsersManage       Capability = "users:manage"
	CapReportsView       Capability = "reports:view"
)

// Status is the request-level lifecycle tag.
type Status string

const (
	StatusPending          Status = "pending"
	StatusLogisticApproved Status = "logistic_approved"
	StatusAwaitingFinal    Status = "awaiting_final_approval"
	StatusApproved         Status = "approved"
	StatusPurchasing       Status = "purchasing"
	StatusInDelivery       Status = "in_delivery"
	StatusArrived          Status = "arrived"
	StatusAwaitingHandover Status = "awaiting_handover"
	StatusCompleted        Status = "completed"
	StatusRejected         Status = "rejected"
	StatusCancelled        Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus returns the Status for a stored tag.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusLogisticApproved, StatusAwaitingFinal, StatusApproved,
		StatusPurchasing, StatusInDelivery, StatusArrived, StatusAwaitingHandover,
		StatusCompleted, StatusRejected, StatusCancelled:
		return Status(s), true
	}
	return "", false
}

// DecisionStatus is the per-item outcome at an approval stage.
type DecisionStatus string

const (
	DecisionApproved       DecisionStatus = "approved"
	DecisionPartial        DecisionStatus = "partial"
	DecisionRejected       DecisionStatus = "rejected"
	DecisionStockAllocated DecisionStatus = "stock_allocated"
)

// TrackingMode distinguishes how an item's fulfillment is counted.
type TrackingMode string

const (
	// TrackBulk items are satisfied by quantity-matching undifferentiated stock.
	TrackBulk TrackingMode = "bulk"
	// TrackSerialized items bind each unit to a distinct asset identifier.
	TrackSerialized TrackingMode = "serialized"
)

// User carries a role and the stored capability set.
type User struct {
	ID          string       `json:"id"`
	Name        string       `json:"name,omitempty"`
	Role        Role         `json:"role"`
	Permissions []Capability `json:"permissions"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
}

// RequestItem is one requested line. Immutable once created.
type RequestItem struct {
	ID       string       `json:"id"`
	ItemName string       `json:"item_name"`
	Brand    string       `json:"brand,omitempty"`
	Quantity int          `json:"quantity"`
	Unit     string       `json:"unit,omitempty"`
	Tracking TrackingMode `json:"tracking" enum:"bulk,serialized"`
}

// ItemDecision is the stored outcome for one item at the latest stage.
type ItemDecision struct {
	Status           DecisionStatus `json:"status" enum:"approved,partial,rejected,stock_allocated"`
	ApprovedQuantity int            `json:"approved_quantity"`
	Reason           string         `json:"reason,omitempty"`
}

// PurchaseDetail records procurement data for one item.
type PurchaseDetail struct {
	Price         float64 `json:"price"`
	Vendor        string  `json:"vendor"`
	PONumber      string  `json:"po_number"`
	InvoiceNumber string  `json:"invoice_number"`
	PurchaseDate  string  `json:"purchase_date,omitempty" format:"date"`
}

// Complete reports whether every mandatory procurement field is filled.
func (p PurchaseDetail) Complete() bool {
	return p.Price > 0 && p.Vendor != "" && p.PONumber != "" && p.InvoiceNumber != "" && p.PurchaseDate != ""
}

// Request is the asset procurement aggregate.
type Request struct {
	ID               string                    `json:"id"`
	RequesterID      string                    `json:"requester_id"`
	Status           Status                    `json:"status"`
	Items            []RequestItem             `json:"items"`
	Decisions        map[string]ItemDecision   `json:"decisions,omitempty"`
	PurchaseDetails  map[string]PurchaseDetail `json:"purchase_details,omitempty"`
	Registered       map[string]int            `json:"registered,omitempty"`
	HandedOver       map[string]int            `json:"handed_over,omitempty"`
	PrioritizedByCEO bool                      `json:"prioritized_by_ceo,omitempty"`
	CreatedAt        string                    `json:"created_at" format:"date-time"`
	UpdatedAt        string                    `json:"updated_at" format:"date-time"`
}

// Item returns the request item with the given id.
func (r Request) Item(id string) (RequestItem, bool) {
	for _, it := range r.Items {
		if it.ID == id {
			return it, true
		}
	}
	return RequestItem{}, false
}

// Asset is one tracked unit (serialized) or a stock pool row (bulk).
type Asset struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Brand     string       `json:"brand,omitempty"`
	Tracking  TrackingMode `json:"tracking" enum:"bulk,serialized"`
	Serial    string       `json:"serial,omitempty"`
	Quantity  int          `json:"quantity"`
	Status    string       `json:"status" enum:"available,assigned,retired"`
	RequestID string       `json:"request_id,omitempty"`
	CreatedAt string       `json:"created_at" format:"date-time"`
}

const (
	AssetAvailable = "available"
	AssetAssigned  = "assigned"
	AssetRetired   = "retired"
)

// Handover records one (possibly partial) handover document.
type Handover struct {
	ID         string         `json:"id"`
	RequestID  string         `json:"request_id"`
	Recipient  string         `json:"recipient"`
	Quantities map[string]int `json:"quantities"`
	CreatedBy  string         `json:"created_by"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
}

// Activity is one append-only log entry on a request.
type Activity struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	ActorID   string `json:"actor_id"`
	Payload   string `json:"payload_json"`
}

// APIKey authenticates non-interactive callers.
type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
