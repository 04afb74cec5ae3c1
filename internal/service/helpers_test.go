package service

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-procurement/internal/platform/logger"
	"github.com/pesio-ai/be-procurement/internal/repository"
	"github.com/pesio-ai/be-procurement/internal/repository/memstore"
	"github.com/pesio-ai/be-procurement/internal/workflow"
)

var (
	procurementActor = repository.Actor{ID: "u-proc", Username: "ada", Role: repository.RoleProcurement, IPAddress: "10.0.0.1", UserAgent: "test"}
	directorActor    = repository.Actor{ID: "u-dir", Username: "dayo", Role: repository.RoleDirector}
	financeActor     = repository.Actor{ID: "u-fin", Username: "fola", Role: repository.RoleFinance}
	auditActor       = repository.Actor{ID: "u-aud", Username: "ayo", Role: repository.RoleAudit}
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) kinds() []EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]EventKind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

type fakeBlobs struct {
	mu        sync.Mutex
	uploadErr error
	uploaded  []string
	deleted   []string
}

func (b *fakeBlobs) Upload(_ context.Context, folder string, file FileUpload) (*StoredFile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return nil, b.uploadErr
	}
	id := folder + "/" + file.Filename
	b.uploaded = append(b.uploaded, id)
	return &StoredFile{URL: "https://blobs.test/" + id, ID: id}, nil
}

func (b *fakeBlobs) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, id)
	return nil
}

// failingCommits lets reads through but fails every transaction.
type failingCommits struct {
	repository.Transactor
}

func (failingCommits) InTransaction(context.Context, func(*repository.Repositories) error) error {
	return stderrors.New("connection reset")
}

type testEnv struct {
	store    *memstore.Store
	notifier *recordingNotifier
	blobs    *fakeBlobs
	vendors  *VendorService
	requests *RequestService
	payments *PaymentService
	audit    *AuditService
	reports  *ReportService
}

type envOptions struct {
	autoApprove     bool
	receiptRequired bool
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	store := memstore.New()
	notifier := &recordingNotifier{}
	blobs := &fakeBlobs{}
	log := logger.Nop()
	policy := workflow.PaymentPolicy{Limit: decimal.NewFromInt(500000)}

	return &testEnv{
		store:    store,
		notifier: notifier,
		blobs:    blobs,
		vendors:  NewVendorService(store, notifier, opts.autoApprove, log),
		requests: NewRequestService(store, blobs, notifier, "NGN", log),
		payments: NewPaymentService(store, blobs, notifier, policy, opts.receiptRequired, log),
		audit:    NewAuditService(store, log),
		reports:  NewReportService(store, log),
	}
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T {
	return &v
}

// createRequest creates a pending request for the given amount.
func (e *testEnv) createRequest(t *testing.T, amt string) *repository.ProcurementRequest {
	t.Helper()
	res, err := e.requests.CreateRequest(context.Background(), procurementActor, &CreateRequestInput{
		Item:     "Printer",
		Quantity: 1,
		Amount:   amount(amt),
	})
	if err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	return res.Request
}

// approvedRequest creates and approves a request for the given amount.
func (e *testEnv) approvedRequest(t *testing.T, amt string) *repository.ProcurementRequest {
	t.Helper()
	req := e.createRequest(t, amt)
	approved, err := e.requests.Approve(context.Background(), directorActor, req.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	return approved
}

func (e *testEnv) auditFor(t *testing.T, entityID string) []*repository.AuditEntry {
	t.Helper()
	entries, _, err := e.store.Reads().Audit.List(context.Background(), repository.AuditFilter{EntityID: &entityID, Limit: 500})
	if err != nil {
		t.Fatalf("Audit.List() error = %v", err)
	}
	return entries
}

func countAction(entries []*repository.AuditEntry, action repository.AuditAction) int {
	n := 0
	for _, e := range entries {
		if e.Action == action {
			n++
		}
	}
	return n
}
