package service

import (
	"context"
	"sync"
	"testing"

	"github.com/pesio-ai/be-procurement/internal/platform/errors"
	"github.com/pesio-ai/be-procurement/internal/repository"
)

func TestCreateVendor(t *testing.T) {
	tests := []struct {
		name        string
		actor       repository.Actor
		input       CreateVendorInput
		autoApprove bool
		wantCode    errors.Code
		wantStatus  repository.VendorStatus
	}{
		{"procurement registers pending vendor", procurementActor, CreateVendorInput{Name: "Acme Supplies"}, false, "", repository.VendorPending},
		{"director registers vendor", directorActor, CreateVendorInput{Name: "Acme"}, false, "", repository.VendorPending},
		{"auto approve policy", procurementActor, CreateVendorInput{Name: "Acme"}, true, "", repository.VendorApproved},
		{"finance may not register", financeActor, CreateVendorInput{Name: "Acme"}, false, errors.ErrCodeForbidden, ""},
		{"blank name", procurementActor, CreateVendorInput{Name: "   "}, false, errors.ErrCodeInvalidInput, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{autoApprove: tt.autoApprove})
			v, err := env.vendors.CreateVendor(context.Background(), tt.actor, &tt.input)
			if tt.wantCode != "" {
				if !errors.IsCode(err, tt.wantCode) {
					t.Fatalf("CreateVendor() error = %v, want %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateVendor() error = %v", err)
			}
			if v.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", v.Status, tt.wantStatus)
			}
			entries := env.auditFor(t, v.ID)
			if len(entries) != 1 || entries[0].Action != repository.AuditCreate {
				t.Fatalf("audit = %+v, want one create entry", entries)
			}
			if entries[0].Changes.After["name"] != v.Name {
				t.Errorf("audit after name = %v, want %s", entries[0].Changes.After["name"], v.Name)
			}
		})
	}
}

func TestReviewVendor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})

	v, err := env.vendors.CreateVendor(ctx, procurementActor, &CreateVendorInput{Name: "Acme"})
	if err != nil {
		t.Fatalf("CreateVendor() error = %v", err)
	}

	if _, err := env.vendors.ApproveVendor(ctx, procurementActor, v.ID); !errors.IsCode(err, errors.ErrCodeForbidden) {
		t.Fatalf("ApproveVendor(procurement) error = %v, want FORBIDDEN", err)
	}

	approved, err := env.vendors.ApproveVendor(ctx, directorActor, v.ID)
	if err != nil {
		t.Fatalf("ApproveVendor() error = %v", err)
	}
	if approved.Status != repository.VendorApproved || approved.ReviewedBy == nil || *approved.ReviewedBy != directorActor.ID {
		t.Errorf("vendor = %+v, want approved by director", approved)
	}

	if _, err := env.vendors.RejectVendor(ctx, directorActor, v.ID); !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Errorf("RejectVendor(approved) error = %v, want CONFLICT", err)
	}
	if _, err := env.vendors.ApproveVendor(ctx, directorActor, v.ID); !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Errorf("ApproveVendor(approved) error = %v, want CONFLICT", err)
	}
	if _, err := env.vendors.ApproveVendor(ctx, directorActor, "missing"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("ApproveVendor(missing) error = %v, want NOT_FOUND", err)
	}

	entries := env.auditFor(t, v.ID)
	if got := countAction(entries, repository.AuditStatusChanged); got != 1 {
		t.Errorf("status_changed entries = %d, want 1", got)
	}
	kinds := env.notifier.kinds()
	if len(kinds) != 1 || kinds[0] != EventVendorApproved {
		t.Errorf("events = %v, want [vendor.approved]", kinds)
	}
}

func TestUpdateVendorRecordsDiff(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})

	v, err := env.vendors.CreateVendor(ctx, procurementActor, &CreateVendorInput{Name: "Acme", Phone: ptr("0800")})
	if err != nil {
		t.Fatalf("CreateVendor() error = %v", err)
	}

	updated, err := env.vendors.UpdateVendor(ctx, directorActor, &UpdateVendorInput{
		ID:       v.ID,
		Phone:    ptr("0900"),
		BankName: ptr("First Bank"),
		Notes:    ptr(""),
	})
	if err != nil {
		t.Fatalf("UpdateVendor() error = %v", err)
	}
	if updated.Phone == nil || *updated.Phone != "0900" || updated.BankName == nil || *updated.BankName != "First Bank" {
		t.Errorf("vendor = %+v", updated)
	}

	entries := env.auditFor(t, v.ID)
	if countAction(entries, repository.AuditUpdate) != 1 {
		t.Fatalf("audit = %+v, want one update", entries)
	}
	upd := entries[0]
	if upd.Changes.Before["phone"] != "0800" || upd.Changes.After["phone"] != "0900" {
		t.Errorf("phone diff = %v -> %v", upd.Changes.Before["phone"], upd.Changes.After["phone"])
	}
	if _, ok := upd.Changes.After["name"]; ok {
		t.Errorf("unchanged field name present in diff: %v", upd.Changes.After)
	}

	// No-op update writes nothing.
	if _, err := env.vendors.UpdateVendor(ctx, directorActor, &UpdateVendorInput{ID: v.ID, Phone: ptr("0900")}); err != nil {
		t.Fatalf("UpdateVendor() error = %v", err)
	}
	if got := countAction(env.auditFor(t, v.ID), repository.AuditUpdate); got != 1 {
		t.Errorf("update entries after no-op = %d, want 1", got)
	}
}

func TestUpdateVendorLockedOnceReferenced(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})

	v, err := env.vendors.CreateVendor(ctx, procurementActor, &CreateVendorInput{Name: "Acme", AccountNumber: ptr("0123456789")})
	if err != nil {
		t.Fatalf("CreateVendor() error = %v", err)
	}
	_, err = env.requests.CreateRequest(ctx, procurementActor, &CreateRequestInput{
		Item: "Chairs", Quantity: 4, Amount: amount("20000"), VendorID: &v.ID,
	})
	if err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}

	_, err = env.vendors.UpdateVendor(ctx, procurementActor, &UpdateVendorInput{ID: v.ID, AccountNumber: ptr("9999999999")})
	if !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Fatalf("UpdateVendor(bank details) error = %v, want CONFLICT", err)
	}

	if _, err := env.vendors.UpdateVendor(ctx, procurementActor, &UpdateVendorInput{ID: v.ID, Phone: ptr("0800")}); err != nil {
		t.Fatalf("UpdateVendor(contact) error = %v", err)
	}
}

func TestUpdateVendorNotFound(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, err := env.vendors.UpdateVendor(context.Background(), procurementActor, &UpdateVendorInput{ID: "nope", Phone: ptr("1")})
	if !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("UpdateVendor() error = %v, want NOT_FOUND", err)
	}
}

func TestVendorBankChangeRacingRequestLink(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		env := newTestEnv(t, envOptions{})
		v, err := env.vendors.CreateVendor(ctx, procurementActor, &CreateVendorInput{Name: "Acme", AccountNumber: ptr("0123456789")})
		if err != nil {
			t.Fatalf("CreateVendor() error = %v", err)
		}

		var (
			wg                 sync.WaitGroup
			updateErr, linkErr error
		)
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, updateErr = env.vendors.UpdateVendor(ctx, directorActor, &UpdateVendorInput{ID: v.ID, AccountNumber: ptr("9999999999")})
		}()
		go func() {
			defer wg.Done()
			<-start
			_, linkErr = env.requests.CreateRequest(ctx, procurementActor, &CreateRequestInput{
				Item: "Chairs", Quantity: 1, Amount: amount("500"), VendorID: &v.ID,
			})
		}()
		close(start)
		wg.Wait()

		if linkErr != nil {
			t.Fatalf("CreateRequest() error = %v", linkErr)
		}
		if updateErr != nil && !errors.IsCode(updateErr, errors.ErrCodeConflict) {
			t.Fatalf("UpdateVendor() error = %v, want nil or CONFLICT", updateErr)
		}

		// Whichever order won, a successful bank change must precede the link.
		entries, _, err := env.store.Reads().Audit.List(ctx, repository.AuditFilter{Limit: 500})
		if err != nil {
			t.Fatalf("Audit.List() error = %v", err)
		}
		updatePos, linkPos := -1, -1
		for pos, e := range entries {
			switch {
			case e.EntityType == repository.EntityVendor && e.Action == repository.AuditUpdate:
				updatePos = pos
			case e.EntityType == repository.EntityProcurementRequest && e.Action == repository.AuditCreate:
				linkPos = pos
			}
		}
		if updateErr == nil && updatePos < linkPos {
			t.Fatalf("bank details changed after the vendor was linked (entries newest first: update=%d link=%d)", updatePos, linkPos)
		}
	}
}
