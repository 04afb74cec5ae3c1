package service

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/pesio-ai/be-procurement/internal/platform/errors"
	"github.com/pesio-ai/be-procurement/internal/repository"
)

func TestCreateRequestValidation(t *testing.T) {
	tests := []struct {
		name     string
		actor    repository.Actor
		input    CreateRequestInput
		wantCode errors.Code
	}{
		{"valid", procurementActor, CreateRequestInput{Item: "Printer", Quantity: 1, Amount: amount("600000")}, ""},
		{"director may not create", directorActor, CreateRequestInput{Item: "Printer", Quantity: 1, Amount: amount("1")}, errors.ErrCodeForbidden},
		{"anonymous", repository.Actor{Role: repository.RoleProcurement}, CreateRequestInput{Item: "Printer", Quantity: 1, Amount: amount("1")}, errors.ErrCodeUnauthorized},
		{"missing item", procurementActor, CreateRequestInput{Item: " ", Quantity: 1, Amount: amount("1")}, errors.ErrCodeInvalidInput},
		{"zero quantity", procurementActor, CreateRequestInput{Item: "Printer", Quantity: 0, Amount: amount("1")}, errors.ErrCodeInvalidInput},
		{"zero amount", procurementActor, CreateRequestInput{Item: "Printer", Quantity: 1, Amount: amount("0")}, errors.ErrCodeInvalidInput},
		{"negative amount", procurementActor, CreateRequestInput{Item: "Printer", Quantity: 1, Amount: amount("-5")}, errors.ErrCodeInvalidInput},
		{"sub-kobo amount", procurementActor, CreateRequestInput{Item: "Printer", Quantity: 1, Amount: amount("10.001")}, errors.ErrCodeInvalidInput},
		{"unknown vendor", procurementActor, CreateRequestInput{Item: "Printer", Quantity: 1, Amount: amount("1"), VendorID: ptr("nope")}, errors.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{})
			res, err := env.requests.CreateRequest(context.Background(), tt.actor, &tt.input)
			if tt.wantCode != "" {
				if !errors.IsCode(err, tt.wantCode) {
					t.Fatalf("CreateRequest() error = %v, want %s", err, tt.wantCode)
				}
				if _, total, _ := env.store.Reads().Requests.List(context.Background(), repository.RequestFilter{}); total != 0 {
					t.Errorf("requests stored after failure = %d, want 0", total)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateRequest() error = %v", err)
			}
			req := res.Request
			if req.Status != repository.RequestPending || req.Currency != "NGN" || req.CreatedBy != procurementActor.ID {
				t.Errorf("request = %+v", req)
			}
			entries := env.auditFor(t, req.ID)
			if len(entries) != 1 || entries[0].Action != repository.AuditCreate {
				t.Errorf("audit = %+v, want one create", entries)
			}
			if entries[0].IPAddress == nil || *entries[0].IPAddress != procurementActor.IPAddress {
				t.Errorf("audit ip = %v, want %s", entries[0].IPAddress, procurementActor.IPAddress)
			}
		})
	}
}

func TestCreateRequestRejectedVendor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	v, err := env.vendors.CreateVendor(ctx, procurementActor, &CreateVendorInput{Name: "Shady Ltd"})
	if err != nil {
		t.Fatalf("CreateVendor() error = %v", err)
	}
	if _, err := env.vendors.RejectVendor(ctx, directorActor, v.ID); err != nil {
		t.Fatalf("RejectVendor() error = %v", err)
	}

	_, err = env.requests.CreateRequest(ctx, procurementActor, &CreateRequestInput{Item: "Desk", Quantity: 1, Amount: amount("10"), VendorID: &v.ID})
	if !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("CreateRequest() error = %v, want INVALID_INPUT", err)
	}
}

func TestApproveTwiceFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	req := env.createRequest(t, "1000")

	approved, err := env.requests.Approve(ctx, directorActor, req.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if approved.Status != repository.RequestApproved || approved.ApprovedBy == nil || approved.ApprovedAt == nil {
		t.Errorf("request = %+v, want approved with approver", approved)
	}

	if _, err := env.requests.Approve(ctx, directorActor, req.ID); !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Errorf("second Approve() error = %v, want CONFLICT", err)
	}
	if _, err := env.requests.Reject(ctx, directorActor, req.ID); !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Errorf("Reject() after approve error = %v, want CONFLICT", err)
	}

	if got := countAction(env.auditFor(t, req.ID), repository.AuditStatusChanged); got != 1 {
		t.Errorf("status_changed entries = %d, want 1", got)
	}
}

func TestRejectTwiceFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	req := env.createRequest(t, "1000")

	rejected, err := env.requests.Reject(ctx, directorActor, req.ID)
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.Status != repository.RequestRejected || rejected.RejectedBy == nil {
		t.Errorf("request = %+v, want rejected", rejected)
	}
	if _, err := env.requests.Reject(ctx, directorActor, req.ID); !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Errorf("second Reject() error = %v, want CONFLICT", err)
	}
	if _, err := env.requests.Approve(ctx, directorActor, req.ID); !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Errorf("Approve() after reject error = %v, want CONFLICT", err)
	}
}

func TestDecisionRequiresDirector(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	req := env.createRequest(t, "1000")

	for _, actor := range []repository.Actor{procurementActor, financeActor, auditActor} {
		if _, err := env.requests.Approve(ctx, actor, req.ID); !errors.IsCode(err, errors.ErrCodeForbidden) {
			t.Errorf("Approve(%s) error = %v, want FORBIDDEN", actor.Role, err)
		}
		if _, err := env.requests.Reject(ctx, actor, req.ID); !errors.IsCode(err, errors.ErrCodeForbidden) {
			t.Errorf("Reject(%s) error = %v, want FORBIDDEN", actor.Role, err)
		}
	}
	if _, err := env.requests.Approve(ctx, directorActor, "missing"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("Approve(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestConcurrentApproveSingleWinner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	req := env.createRequest(t, "1000")

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.requests.Approve(ctx, directorActor, req.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.IsCode(err, errors.ErrCodeConflict):
				conflicts++
			default:
				t.Errorf("Approve() unexpected error = %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || conflicts != callers-1 {
		t.Fatalf("successes = %d, conflicts = %d, want 1 and %d", successes, conflicts, callers-1)
	}
	if got := countAction(env.auditFor(t, req.ID), repository.AuditStatusChanged); got != 1 {
		t.Errorf("status_changed entries = %d, want 1", got)
	}
}

func TestSubmitQuotationKeepsPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	req := env.createRequest(t, "1000")

	updated, err := env.requests.SubmitQuotation(ctx, procurementActor, req.ID, QuotationInput{
		File: &FileUpload{Filename: "quote.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
	})
	if err != nil {
		t.Fatalf("SubmitQuotation() error = %v", err)
	}
	if updated.Status != repository.RequestPending {
		t.Errorf("Status = %s, want pending", updated.Status)
	}
	if updated.QuotationURL == nil || updated.QuotationBlobID == nil || *updated.QuotationBlobID != QuotationFolder+"/quote.pdf" {
		t.Errorf("quotation = %v / %v", updated.QuotationURL, updated.QuotationBlobID)
	}
	if got := countAction(env.auditFor(t, req.ID), repository.AuditUpdate); got != 1 {
		t.Errorf("update entries = %d, want 1", got)
	}

	if _, err := env.requests.SubmitQuotation(ctx, procurementActor, req.ID, QuotationInput{}); !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("SubmitQuotation(empty) error = %v, want INVALID_INPUT", err)
	}

	if _, err := env.requests.Approve(ctx, directorActor, req.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	_, err = env.requests.SubmitQuotation(ctx, procurementActor, req.ID, QuotationInput{URL: "https://docs.test/q2.pdf"})
	if !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Errorf("SubmitQuotation(approved) error = %v, want CONFLICT", err)
	}
}

func TestSubmitQuotationDeletesUploadWhenTransactionFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	req := env.createRequest(t, "1000")

	broken := NewRequestService(failingCommits{env.store}, env.blobs, env.notifier, "NGN", env.requests.log)
	_, err := broken.SubmitQuotation(ctx, procurementActor, req.ID, QuotationInput{
		File: &FileUpload{Filename: "quote.pdf", Data: []byte("x")},
	})
	if err == nil {
		t.Fatal("SubmitQuotation() error = nil, want failure")
	}
	if len(env.blobs.deleted) != 1 || env.blobs.deleted[0] != QuotationFolder+"/quote.pdf" {
		t.Errorf("deleted = %v, want the uploaded quotation", env.blobs.deleted)
	}
}

func TestCreateRequestQuotationUploadFailureIsWarning(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.blobs.uploadErr = stderrors.New("bucket unavailable")

	res, err := env.requests.CreateRequest(context.Background(), procurementActor, &CreateRequestInput{
		Item: "Printer", Quantity: 1, Amount: amount("100"),
		QuotationFile: &FileUpload{Filename: "q.pdf", Data: []byte("x")},
	})
	if err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one", res.Warnings)
	}
	if res.Request.QuotationURL != nil {
		t.Errorf("QuotationURL = %v, want nil", *res.Request.QuotationURL)
	}
}

func TestUpdateRequestOnlyWhilePending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	req := env.createRequest(t, "1000")

	updated, err := env.requests.UpdateRequest(ctx, procurementActor, &UpdateRequestInput{
		ID:       req.ID,
		Amount:   ptr(amount("1500.50")),
		Quantity: ptr(3),
	})
	if err != nil {
		t.Fatalf("UpdateRequest() error = %v", err)
	}
	if !updated.Amount.Equal(amount("1500.50")) || updated.Quantity != 3 {
		t.Errorf("request = %+v", updated)
	}

	entries := env.auditFor(t, req.ID)
	if countAction(entries, repository.AuditUpdate) != 1 {
		t.Fatalf("audit = %+v, want one update", entries)
	}
	if entries[0].Changes.Before["amount"] != "1000.00" || entries[0].Changes.After["amount"] != "1500.50" {
		t.Errorf("amount diff = %v -> %v", entries[0].Changes.Before["amount"], entries[0].Changes.After["amount"])
	}

	if _, err := env.requests.UpdateRequest(ctx, procurementActor, &UpdateRequestInput{ID: req.ID, Amount: ptr(amount("0"))}); !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("UpdateRequest(zero amount) error = %v, want INVALID_INPUT", err)
	}

	if _, err := env.requests.Approve(ctx, directorActor, req.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	_, err = env.requests.UpdateRequest(ctx, procurementActor, &UpdateRequestInput{ID: req.ID, Amount: ptr(amount("1"))})
	if !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Errorf("UpdateRequest(approved) error = %v, want CONFLICT", err)
	}
}

func TestGetRequestPaymentPosition(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	req := env.approvedRequest(t, "1000")

	if _, err := env.payments.RecordPayment(ctx, financeActor, &RecordPaymentInput{RequestID: req.ID, Amount: amount("400")}); err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}

	view, err := env.requests.GetRequest(ctx, auditActor, req.ID)
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if view.Status != repository.RequestApproved {
		t.Errorf("Status = %s, want approved", view.Status)
	}
	if !view.AmountPaid.Equal(amount("400")) || !view.Outstanding.Equal(amount("600")) {
		t.Errorf("paid = %s outstanding = %s", view.AmountPaid, view.Outstanding)
	}
	if view.PaymentState != "partially_paid" {
		t.Errorf("PaymentState = %s, want partially_paid", view.PaymentState)
	}
	if view.Closed {
		t.Error("Closed = true for a partially paid request")
	}

	if _, err := env.payments.RecordPayment(ctx, financeActor, &RecordPaymentInput{RequestID: req.ID, Amount: amount("600")}); err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}
	view, err = env.requests.GetRequest(ctx, auditActor, req.ID)
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if view.Status != repository.RequestPaid || !view.Closed {
		t.Errorf("Status = %s Closed = %v, want paid and closed", view.Status, view.Closed)
	}

	if _, err := env.requests.GetRequest(ctx, repository.Actor{}, req.ID); !errors.IsCode(err, errors.ErrCodeUnauthorized) {
		t.Errorf("GetRequest(anonymous) error = %v, want UNAUTHORIZED", err)
	}
}

func TestAuditFailureDoesNotFailApproval(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	req := env.createRequest(t, "1000")

	env.store.FailAuditWith(stderrors.New("audit table locked"))
	approved, err := env.requests.Approve(ctx, directorActor, req.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v, want success despite audit failure", err)
	}
	if approved.Status != repository.RequestApproved {
		t.Errorf("Status = %s, want approved", approved.Status)
	}
	env.store.FailAuditWith(nil)

	if got := countAction(env.auditFor(t, req.ID), repository.AuditStatusChanged); got != 0 {
		t.Errorf("status_changed entries = %d, want 0", got)
	}
}

func TestRequestEventsAfterCommit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	req := env.createRequest(t, "1000")
	if _, err := env.requests.Reject(ctx, directorActor, req.ID); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	_, _ = env.requests.Reject(ctx, directorActor, req.ID)

	kinds := env.notifier.kinds()
	want := []EventKind{EventRequestCreated, EventRequestRejected}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}
