package service

import (
	"context"
)

// EventKind names a procurement event delivered to the notifier.
type EventKind string

const (
	EventRequestCreated  EventKind = "request.created"
	EventRequestApproved EventKind = "request.approved"
	EventRequestRejected EventKind = "request.rejected"
	EventRequestPaid     EventKind = "request.paid"
	EventPaymentRecorded EventKind = "payment.recorded"
	EventVendorApproved  EventKind = "vendor.approved"
	EventVendorRejected  EventKind = "vendor.rejected"
)

// Event is the payload handed to the notifier after a change commits.
type Event struct {
	Kind         EventKind
	ResourceType string
	ResourceID   string
	ActorID      string
	Payload      map[string]any
}

// Notifier fans procurement events out to email and messaging channels.
// Notify is fire-and-forget: implementations log delivery failures and never
// report them to the caller.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// StoredFile is the blob store's handle on an uploaded document.
type StoredFile struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// FileUpload is a document received from the caller.
type FileUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// BlobStore persists uploaded documents. The core never inspects contents.
type BlobStore interface {
	Upload(ctx context.Context, folder string, file FileUpload) (*StoredFile, error)
	Delete(ctx context.Context, id string) error
}

// Upload folders.
const (
	QuotationFolder = "procurement/quotations"
	ReceiptFolder   = "procurement/receipts"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}
