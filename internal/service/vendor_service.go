package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-procurement/internal/platform/errors"
	"github.com/pesio-ai/be-procurement/internal/platform/logger"
	"github.com/pesio-ai/be-procurement/internal/repository"
	"github.com/pesio-ai/be-procurement/internal/workflow"
)

// vendorEditors may register and edit vendors.
var vendorEditors = []repository.Role{repository.RoleProcurement, repository.RoleDirector}

// lockedVendorFields cannot change once a request references the vendor.
var lockedVendorFields = []string{"name", "bank_name", "account_name", "account_number", "bank_code"}

// VendorService handles vendor registry business logic
type VendorService struct {
	store       repository.Transactor
	notifier    Notifier
	autoApprove bool
	log         *logger.Logger
	now         func() time.Time
}

// NewVendorService creates a new vendor service. With autoApprove, new
// vendors start approved instead of pending.
func NewVendorService(
	store repository.Transactor,
	notifier Notifier,
	autoApprove bool,
	log *logger.Logger,
) *VendorService {
	return &VendorService{
		store:       store,
		notifier:    notifierOrNop(notifier),
		autoApprove: autoApprove,
		log:         log,
		now:         time.Now,
	}
}

// CreateVendorInput represents a create vendor request
type CreateVendorInput struct {
	Name          string
	Category      *string
	ContactPerson *string
	Phone         *string
	Email         *string
	Address       *string
	BankName      *string
	AccountName   *string
	AccountNumber *string
	BankCode      *string
	Notes         *string
}

// UpdateVendorInput carries the fields to change; nil leaves a field as is
// and an empty string clears an optional field.
type UpdateVendorInput struct {
	ID            string
	Name          *string
	Category      *string
	ContactPerson *string
	Phone         *string
	Email         *string
	Address       *string
	BankName      *string
	AccountName   *string
	AccountNumber *string
	BankCode      *string
	Notes         *string
}

// CreateVendor registers a new vendor.
func (s *VendorService) CreateVendor(ctx context.Context, actor repository.Actor, in *CreateVendorInput) (*repository.Vendor, error) {
	if err := workflow.RequireRole(actor, vendorEditors...); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.InvalidInput("name", "is required")
	}
	if err := checkLengths(vendorLengthRules(&name, in.Category, in.ContactPerson, in.Phone, in.Email,
		in.BankName, in.AccountName, in.AccountNumber, in.BankCode)...); err != nil {
		return nil, err
	}

	status := repository.VendorPending
	if s.autoApprove {
		status = repository.VendorApproved
	}

	vendor := &repository.Vendor{
		Name:          name,
		Category:      clean(in.Category),
		ContactPerson: clean(in.ContactPerson),
		Phone:         clean(in.Phone),
		Email:         clean(in.Email),
		Address:       clean(in.Address),
		BankName:      clean(in.BankName),
		AccountName:   clean(in.AccountName),
		AccountNumber: clean(in.AccountNumber),
		BankCode:      clean(in.BankCode),
		Notes:         clean(in.Notes),
		Status:        status,
		CreatedBy:     actor.ID,
	}

	err := s.store.InTransaction(ctx, func(repos *repository.Repositories) error {
		if err := repos.Vendors.Create(ctx, vendor); err != nil {
			return err
		}
		appendAudit(ctx, s.log, repos.Audit,
			newAuditEntry(actor, repository.EntityVendor, vendor.ID, repository.AuditCreate, nil, vendorFields(vendor)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("vendor_id", vendor.ID).
		Str("status", string(vendor.Status)).
		Str("actor_id", actor.ID).
		Msg("Vendor created")

	return vendor, nil
}

// GetVendor retrieves a vendor by ID
func (s *VendorService) GetVendor(ctx context.Context, actor repository.Actor, id string) (*repository.Vendor, error) {
	if err := workflow.RequireActor(actor); err != nil {
		return nil, err
	}
	return s.store.Reads().Vendors.GetByID(ctx, id)
}

// ListVendors lists vendors, newest first
func (s *VendorService) ListVendors(ctx context.Context, actor repository.Actor, f repository.VendorFilter) ([]*repository.Vendor, int64, error) {
	if err := workflow.RequireActor(actor); err != nil {
		return nil, 0, err
	}
	return s.store.Reads().Vendors.List(ctx, f)
}

// UpdateVendor edits a vendor. Name and bank details are frozen once any
// procurement request references the vendor.
func (s *VendorService) UpdateVendor(ctx context.Context, actor repository.Actor, in *UpdateVendorInput) (*repository.Vendor, error) {
	if err := workflow.RequireRole(actor, vendorEditors...); err != nil {
		return nil, err
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, errors.InvalidInput("name", "cannot be empty")
	}
	if err := checkLengths(vendorLengthRules(in.Name, in.Category, in.ContactPerson, in.Phone, in.Email,
		in.BankName, in.AccountName, in.AccountNumber, in.BankCode)...); err != nil {
		return nil, err
	}

	var updated *repository.Vendor
	err := s.store.InTransaction(ctx, func(repos *repository.Repositories) error {
		// Locked so no request can link the vendor before the write lands.
		current, err := repos.Vendors.GetForUpdate(ctx, in.ID)
		if err != nil {
			return err
		}

		next := *current
		if in.Name != nil {
			next.Name = strings.TrimSpace(*in.Name)
		}
		patch(&next.Category, in.Category)
		patch(&next.ContactPerson, in.ContactPerson)
		patch(&next.Phone, in.Phone)
		patch(&next.Email, in.Email)
		patch(&next.Address, in.Address)
		patch(&next.BankName, in.BankName)
		patch(&next.AccountName, in.AccountName)
		patch(&next.AccountNumber, in.AccountNumber)
		patch(&next.BankCode, in.BankCode)
		patch(&next.Notes, in.Notes)

		before, after := diff(vendorFields(current), vendorFields(&next))
		if len(after) == 0 {
			updated = current
			return nil
		}

		if touchesAny(after, lockedVendorFields) {
			refs, err := repos.Vendors.CountReferences(ctx, current.ID)
			if err != nil {
				return err
			}
			if refs > 0 {
				return errors.InvalidTransition(fmt.Sprintf(
					"vendor %s is referenced by %d procurement request(s); name and bank details are locked",
					current.ID, refs))
			}
		}

		next.UpdatedBy = nilIfEmpty(actor.ID)
		if err := repos.Vendors.Update(ctx, &next); err != nil {
			return err
		}
		appendAudit(ctx, s.log, repos.Audit,
			newAuditEntry(actor, repository.EntityVendor, current.ID, repository.AuditUpdate, before, after))
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("vendor_id", updated.ID).
		Str("actor_id", actor.ID).
		Msg("Vendor updated")

	return updated, nil
}

// ApproveVendor moves a pending vendor to approved.
func (s *VendorService) ApproveVendor(ctx context.Context, actor repository.Actor, id string) (*repository.Vendor, error) {
	return s.review(ctx, actor, id, repository.VendorApproved, EventVendorApproved)
}

// RejectVendor moves a pending vendor to rejected.
func (s *VendorService) RejectVendor(ctx context.Context, actor repository.Actor, id string) (*repository.Vendor, error) {
	return s.review(ctx, actor, id, repository.VendorRejected, EventVendorRejected)
}

func (s *VendorService) review(
	ctx context.Context,
	actor repository.Actor,
	id string,
	to repository.VendorStatus,
	event EventKind,
) (*repository.Vendor, error) {
	if err := workflow.RequireRole(actor, workflow.VendorReviewers...); err != nil {
		return nil, err
	}

	var reviewed *repository.Vendor
	err := s.store.InTransaction(ctx, func(repos *repository.Repositories) error {
		current, err := repos.Vendors.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != repository.VendorPending {
			return errors.InvalidTransition(fmt.Sprintf("vendor %s is %s, only pending vendors can be reviewed", id, current.Status))
		}

		if err := repos.Vendors.UpdateStatus(ctx, id, repository.VendorPending, to, actor.ID, s.now().UTC()); err != nil {
			return err
		}
		appendAudit(ctx, s.log, repos.Audit, newAuditEntry(actor, repository.EntityVendor, id, repository.AuditStatusChanged,
			map[string]any{"status": string(repository.VendorPending)},
			map[string]any{"status": string(to)},
		))

		reviewed, err = repos.Vendors.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("vendor_id", id).
		Str("status", string(to)).
		Str("actor_id", actor.ID).
		Msg("Vendor reviewed")

	s.notifier.Notify(ctx, Event{
		Kind:         event,
		ResourceType: repository.EntityVendor,
		ResourceID:   id,
		ActorID:      actor.ID,
		Payload:      map[string]any{"name": reviewed.Name, "status": string(reviewed.Status)},
	})

	return reviewed, nil
}

func vendorFields(v *repository.Vendor) map[string]any {
	return map[string]any{
		"name":           v.Name,
		"category":       deref(v.Category),
		"contact_person": deref(v.ContactPerson),
		"phone":          deref(v.Phone),
		"email":          deref(v.Email),
		"address":        deref(v.Address),
		"bank_name":      deref(v.BankName),
		"account_name":   deref(v.AccountName),
		"account_number": deref(v.AccountNumber),
		"bank_code":      deref(v.BankCode),
		"notes":          deref(v.Notes),
		"status":         string(v.Status),
	}
}

// clean trims an optional string and drops it when blank.
func clean(p *string) *string {
	if p == nil {
		return nil
	}
	return nilIfEmpty(strings.TrimSpace(*p))
}

// patch applies an optional update: nil keeps, blank clears.
func patch(dst **string, src *string) {
	if src == nil {
		return
	}
	*dst = clean(src)
}

func touchesAny(changed map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := changed[k]; ok {
			return true
		}
	}
	return false
}
