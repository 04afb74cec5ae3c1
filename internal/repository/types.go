package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Actors and roles ─────────────────────────────────────────────────────────

// Role is the business role an authenticated actor holds.
type Role string

const (
	RoleProcurement Role = "procurement"
	RoleFinance     Role = "finance"
	RoleDirector    Role = "director"
	RoleAudit       Role = "audit"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleProcurement, RoleFinance, RoleDirector, RoleAudit:
		return true
	}
	return false
}

// Actor is the authenticated caller of an operation, supplied by the identity
// provider. IPAddress and UserAgent are best-effort client metadata.
type Actor struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Widths of the bounded text columns. Input longer than these is refused
// before any write; audit client metadata is cut to fit instead.
const (
	MaxActorIDLen       = 80
	MaxIPAddressLen     = 64
	MaxUserAgentLen     = 300
	MaxNameLen          = 200
	MaxCategoryLen      = 50
	MaxContactLen       = 100
	MaxPhoneLen         = 30
	MaxEmailLen         = 120
	MaxBankNameLen      = 100
	MaxAccountNumberLen = 30
	MaxBankCodeLen      = 20
	MaxURLLen           = 500
	MaxBlobIDLen        = 300
	MaxMethodLen        = 50
	MaxReferenceLen     = 120
)

// ── Vendors ──────────────────────────────────────────────────────────────────

type VendorStatus string

const (
	VendorPending  VendorStatus = "pending"
	VendorApproved VendorStatus = "approved"
	VendorRejected VendorStatus = "rejected"
)

// Vendor is a registered supplier.
type Vendor struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Category      *string      `json:"category,omitempty"`
	ContactPerson *string      `json:"contact_person,omitempty"`
	Phone         *string      `json:"phone,omitempty"`
	Email         *string      `json:"email,omitempty"`
	Address       *string      `json:"address,omitempty"`
	BankName      *string      `json:"bank_name,omitempty"`
	AccountName   *string      `json:"account_name,omitempty"`
	AccountNumber *string      `json:"account_number,omitempty"`
	BankCode      *string      `json:"bank_code,omitempty"`
	Notes         *string      `json:"notes,omitempty"`
	Status        VendorStatus `json:"status"`
	CreatedBy     string       `json:"created_by"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedBy     *string      `json:"updated_by,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
	ReviewedBy    *string      `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time   `json:"reviewed_at,omitempty"`
}

// VendorFilter narrows vendor listings.
type VendorFilter struct {
	Status *VendorStatus
	Limit  int
	Offset int
}

// ── Procurement requests ─────────────────────────────────────────────────────

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	RequestPaid     RequestStatus = "paid"
)

// ProcurementRequest is a staff request to purchase goods or services.
type ProcurementRequest struct {
	ID              string          `json:"id"`
	Item            string          `json:"item"`
	Description     *string         `json:"description,omitempty"`
	Quantity        int             `json:"quantity"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Urgent          bool            `json:"urgent"`
	NeededBy        *time.Time      `json:"needed_by,omitempty"`
	VendorID        *string         `json:"vendor_id,omitempty"`
	QuotationURL    *string         `json:"quotation_url,omitempty"`
	QuotationBlobID *string         `json:"quotation_blob_id,omitempty"`
	Status          RequestStatus   `json:"status"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ApprovedBy      *string         `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	RejectedBy      *string         `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time      `json:"rejected_at,omitempty"`
}

// RequestFilter narrows request listings.
type RequestFilter struct {
	Status    *RequestStatus
	VendorID  *string
	CreatedBy *string
	Limit     int
	Offset    int
}

// ── Payments ─────────────────────────────────────────────────────────────────

// Payment is one immutable disbursement against a procurement request.
type Payment struct {
	ID            string          `json:"id"`
	RequestID     string          `json:"request_id"`
	Amount        decimal.Decimal `json:"amount"`
	PayerRole     Role            `json:"payer_role"`
	PayerID       string          `json:"payer_id"`
	PayerName     *string         `json:"payer_name,omitempty"`
	Method        *string         `json:"method,omitempty"`
	Reference     *string         `json:"reference,omitempty"`
	ReceiptURL    *string         `json:"receipt_url,omitempty"`
	ReceiptBlobID *string         `json:"receipt_blob_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	RequestID *string
	Limit     int
	Offset    int
}

// ── Audit log ────────────────────────────────────────────────────────────────

type AuditAction string

const (
	AuditCreate        AuditAction = "create"
	AuditUpdate        AuditAction = "update"
	AuditDelete        AuditAction = "delete"
	AuditStatusChanged AuditAction = "status_changed"
)

// Audited entity types.
const (
	EntityVendor             = "vendor"
	EntityProcurementRequest = "procurement_request"
	EntityPayment            = "payment"
)

// Changes holds the before/after values of the fields touched by an action.
type Changes struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// AuditEntry is one immutable record in the audit trail.
type AuditEntry struct {
	ID            string      `json:"id"`
	EntityType    string      `json:"entity_type"`
	EntityID      string      `json:"entity_id"`
	Action        AuditAction `json:"action"`
	ActorID       *string     `json:"actor_id,omitempty"`
	ActorUsername *string     `json:"actor_username,omitempty"`
	ActorRole     *string     `json:"actor_role,omitempty"`
	Changes       Changes     `json:"changes"`
	IPAddress     *string     `json:"ip_address,omitempty"`
	UserAgent     *string     `json:"user_agent,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// AuditFilter narrows audit queries. Results are always newest first.
type AuditFilter struct {
	EntityType *string
	EntityID   *string
	Action     *AuditAction
	ActorID    *string
	Limit      int
	Offset     int
}

// ── Reporting ────────────────────────────────────────────────────────────────

// MonthlyTotal is the sum of payments recorded in one calendar month (YYYY-MM).
type MonthlyTotal struct {
	Month string          `json:"month"`
	Total decimal.Decimal `json:"total"`
}

// ReportSummary aggregates the dashboard and report figures.
type ReportSummary struct {
	RequestsByStatus map[RequestStatus]int64 `json:"requests_by_status"`
	TotalRequests    int64                   `json:"total_requests"`
	TotalVendors     int64                   `json:"total_vendors"`
	ApprovedVendors  int64                   `json:"approved_vendors"`
	TotalPaid        decimal.Decimal         `json:"total_paid"`
	MonthlyPayments  []MonthlyTotal          `json:"monthly_payments"`
}
