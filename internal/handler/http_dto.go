package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-procurement/internal/service"
)

// Request bodies accepted by the HTTP API. Structural checks live in the
// validate tags, with max lengths matching the column widths; business rules
// stay in the services.

type createVendorBody struct {
	Name          string  `json:"name" validate:"required,max=200"`
	Category      *string `json:"category" validate:"omitempty,max=50"`
	ContactPerson *string `json:"contact_person" validate:"omitempty,max=100"`
	Phone         *string `json:"phone" validate:"omitempty,max=30"`
	Email         *string `json:"email" validate:"omitempty,max=120,email"`
	Address       *string `json:"address" validate:"omitempty,max=500"`
	BankName      *string `json:"bank_name" validate:"omitempty,max=100"`
	AccountName   *string `json:"account_name" validate:"omitempty,max=100"`
	AccountNumber *string `json:"account_number" validate:"omitempty,max=30"`
	BankCode      *string `json:"bank_code" validate:"omitempty,max=20"`
	Notes         *string `json:"notes" validate:"omitempty,max=2000"`
}

func (b *createVendorBody) input() *service.CreateVendorInput {
	return &service.CreateVendorInput{
		Name:          b.Name,
		Category:      b.Category,
		ContactPerson: b.ContactPerson,
		Phone:         b.Phone,
		Email:         b.Email,
		Address:       b.Address,
		BankName:      b.BankName,
		AccountName:   b.AccountName,
		AccountNumber: b.AccountNumber,
		BankCode:      b.BankCode,
		Notes:         b.Notes,
	}
}

// updateVendorBody allows clearing optional fields with "", so only lengths
// are checked.
type updateVendorBody struct {
	Name          *string `json:"name" validate:"omitempty,max=200"`
	Category      *string `json:"category" validate:"omitempty,max=50"`
	ContactPerson *string `json:"contact_person" validate:"omitempty,max=100"`
	Phone         *string `json:"phone" validate:"omitempty,max=30"`
	Email         *string `json:"email" validate:"omitempty,max=120"`
	Address       *string `json:"address" validate:"omitempty,max=500"`
	BankName      *string `json:"bank_name" validate:"omitempty,max=100"`
	AccountName   *string `json:"account_name" validate:"omitempty,max=100"`
	AccountNumber *string `json:"account_number" validate:"omitempty,max=30"`
	BankCode      *string `json:"bank_code" validate:"omitempty,max=20"`
	Notes         *string `json:"notes" validate:"omitempty,max=2000"`
}

func (b *updateVendorBody) input(id string) *service.UpdateVendorInput {
	return &service.UpdateVendorInput{
		ID:            id,
		Name:          b.Name,
		Category:      b.Category,
		ContactPerson: b.ContactPerson,
		Phone:         b.Phone,
		Email:         b.Email,
		Address:       b.Address,
		BankName:      b.BankName,
		AccountName:   b.AccountName,
		AccountNumber: b.AccountNumber,
		BankCode:      b.BankCode,
		Notes:         b.Notes,
	}
}

type createRequestBody struct {
	Item            string          `json:"item" validate:"required,max=200"`
	Description     *string         `json:"description" validate:"omitempty,max=2000"`
	Quantity        int             `json:"quantity" validate:"gte=1"`
	Amount          decimal.Decimal `json:"amount"`
	Urgent          bool            `json:"urgent"`
	NeededBy        *time.Time      `json:"needed_by"`
	VendorID        *string         `json:"vendor_id" validate:"omitempty,uuid"`
	QuotationURL    *string         `json:"quotation_url" validate:"omitempty,max=500,url"`
	QuotationBlobID *string         `json:"quotation_blob_id" validate:"omitempty,max=300"`
}

func (b *createRequestBody) input(file *service.FileUpload) *service.CreateRequestInput {
	return &service.CreateRequestInput{
		Item:            b.Item,
		Description:     b.Description,
		Quantity:        b.Quantity,
		Amount:          b.Amount,
		Urgent:          b.Urgent,
		NeededBy:        b.NeededBy,
		VendorID:        b.VendorID,
		QuotationURL:    b.QuotationURL,
		QuotationBlobID: b.QuotationBlobID,
		QuotationFile:   file,
	}
}

type updateRequestBody struct {
	Item        *string          `json:"item" validate:"omitempty,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Quantity    *int             `json:"quantity" validate:"omitempty,gte=1"`
	Amount      *decimal.Decimal `json:"amount"`
	Urgent      *bool            `json:"urgent"`
	NeededBy    *time.Time       `json:"needed_by"`
	VendorID    *string          `json:"vendor_id" validate:"omitempty,uuid"`
}

func (b *updateRequestBody) input(id string) *service.UpdateRequestInput {
	return &service.UpdateRequestInput{
		ID:          id,
		Item:        b.Item,
		Description: b.Description,
		Quantity:    b.Quantity,
		Amount:      b.Amount,
		Urgent:      b.Urgent,
		NeededBy:    b.NeededBy,
		VendorID:    b.VendorID,
	}
}

type quotationBody struct {
	URL    string `json:"url" validate:"omitempty,max=500,url"`
	BlobID string `json:"blob_id" validate:"omitempty,max=300"`
}

type recordPaymentBody struct {
	Amount        decimal.Decimal `json:"amount"`
	Method        *string         `json:"method" validate:"omitempty,max=50"`
	Reference     *string         `json:"reference" validate:"omitempty,max=120"`
	ReceiptURL    *string         `json:"receipt_url" validate:"omitempty,max=500,url"`
	ReceiptBlobID *string         `json:"receipt_blob_id" validate:"omitempty,max=300"`
}

func (b *recordPaymentBody) input(requestID string, file *service.FileUpload) *service.RecordPaymentInput {
	return &service.RecordPaymentInput{
		RequestID:     requestID,
		Amount:        b.Amount,
		Method:        b.Method,
		Reference:     b.Reference,
		ReceiptURL:    b.ReceiptURL,
		ReceiptBlobID: b.ReceiptBlobID,
		ReceiptFile:   file,
	}
}

// listResponse is the paginated list envelope.
type listResponse struct {
	Items  any   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Request string `json:"request_id,omitempty"`
}
