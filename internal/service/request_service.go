package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-procurement/internal/platform/errors"
	"github.com/pesio-ai/be-procurement/internal/platform/logger"
	"github.com/pesio-ai/be-procurement/internal/repository"
	"github.com/pesio-ai/be-procurement/internal/workflow"
)

var (
	requestCreators = []repository.Role{repository.RoleProcurement}
	requestEditors  = []repository.Role{repository.RoleProcurement, repository.RoleDirector}
)

// RequestService drives the procurement request state machine.
type RequestService struct {
	store    repository.Transactor
	blobs    BlobStore
	notifier Notifier
	currency string
	log      *logger.Logger
	now      func() time.Time
}

// NewRequestService creates a new procurement request service. blobs may be
// nil, in which case only pre-uploaded document references are accepted.
func NewRequestService(
	store repository.Transactor,
	blobs BlobStore,
	notifier Notifier,
	currency string,
	log *logger.Logger,
) *RequestService {
	return &RequestService{
		store:    store,
		blobs:    blobs,
		notifier: notifierOrNop(notifier),
		currency: currency,
		log:      log,
		now:      time.Now,
	}
}

// CreateRequestInput represents a create procurement request call
type CreateRequestInput struct {
	Item        string
	Description *string
	Quantity    int
	Amount      decimal.Decimal
	Urgent      bool
	NeededBy    *time.Time
	VendorID    *string
	// Quotation is either a reference obtained from the blob store by the
	// caller or a file to upload.
	QuotationURL    *string
	QuotationBlobID *string
	QuotationFile   *FileUpload
}

// UpdateRequestInput carries the editable fields of a pending request; nil
// leaves a field unchanged. An empty VendorID unlinks the vendor.
type UpdateRequestInput struct {
	ID          string
	Item        *string
	Description *string
	Quantity    *int
	Amount      *decimal.Decimal
	Urgent      *bool
	NeededBy    *time.Time
	VendorID    *string
}

// QuotationInput attaches a quotation, either by reference or by upload.
type QuotationInput struct {
	URL    string
	BlobID string
	File   *FileUpload
}

// RequestResult is a request plus any non-fatal collaborator warnings.
type RequestResult struct {
	Request  *repository.ProcurementRequest `json:"request"`
	Warnings []string                       `json:"warnings,omitempty"`
}

// RequestView is a request with its derived payment position.
type RequestView struct {
	*repository.ProcurementRequest
	AmountPaid   decimal.Decimal       `json:"amount_paid"`
	Outstanding  decimal.Decimal       `json:"outstanding"`
	PaymentState workflow.PaymentState `json:"payment_state"`
	// Closed is set once no further action can change the request.
	Closed bool `json:"closed"`
}

// CreateRequest submits a new procurement request in pending status.
func (s *RequestService) CreateRequest(ctx context.Context, actor repository.Actor, in *CreateRequestInput) (*RequestResult, error) {
	if err := workflow.RequireRole(actor, requestCreators...); err != nil {
		return nil, err
	}

	item := strings.TrimSpace(in.Item)
	if item == "" {
		return nil, errors.InvalidInput("item", "is required")
	}
	if in.Quantity <= 0 {
		return nil, errors.InvalidInput("quantity", "must be greater than zero")
	}
	if err := workflow.ValidateAmount("amount", in.Amount); err != nil {
		return nil, err
	}
	if err := checkLengths(
		maxLen("item", &item, repository.MaxNameLen),
		maxLen("quotation_url", in.QuotationURL, repository.MaxURLLen),
		maxLen("quotation_blob_id", in.QuotationBlobID, repository.MaxBlobIDLen),
	); err != nil {
		return nil, err
	}

	req := &repository.ProcurementRequest{
		Item:            item,
		Description:     clean(in.Description),
		Quantity:        in.Quantity,
		Amount:          in.Amount,
		Currency:        s.currency,
		Urgent:          in.Urgent,
		NeededBy:        in.NeededBy,
		VendorID:        clean(in.VendorID),
		QuotationURL:    clean(in.QuotationURL),
		QuotationBlobID: clean(in.QuotationBlobID),
		Status:          repository.RequestPending,
		CreatedBy:       actor.ID,
	}

	result := &RequestResult{Request: req}

	// A failed quotation upload does not block the request itself.
	var uploaded *StoredFile
	if in.QuotationFile != nil {
		file, err := s.upload(ctx, QuotationFolder, *in.QuotationFile)
		if err != nil {
			s.log.Warn().Err(err).Str("actor_id", actor.ID).Msg("Quotation upload failed, creating request without it")
			result.Warnings = append(result.Warnings, "quotation upload failed; attach it again before approval")
		} else {
			uploaded = file
			req.QuotationURL = &file.URL
			req.QuotationBlobID = nilIfEmpty(file.ID)
		}
	}

	err := s.store.InTransaction(ctx, func(repos *repository.Repositories) error {
		if err := checkVendor(ctx, repos, req.VendorID); err != nil {
			return err
		}
		if err := repos.Requests.Create(ctx, req); err != nil {
			return err
		}
		appendAudit(ctx, s.log, repos.Audit,
			newAuditEntry(actor, repository.EntityProcurementRequest, req.ID, repository.AuditCreate, nil, requestFields(req)))
		return nil
	})
	if err != nil {
		s.discard(ctx, uploaded)
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("amount", req.Amount.StringFixed(2)).
		Str("actor_id", actor.ID).
		Msg("Procurement request created")

	s.notifier.Notify(ctx, Event{
		Kind:         EventRequestCreated,
		ResourceType: repository.EntityProcurementRequest,
		ResourceID:   req.ID,
		ActorID:      actor.ID,
		Payload:      requestPayload(req),
	})

	return result, nil
}

// UpdateRequest edits a request while it is still pending.
func (s *RequestService) UpdateRequest(ctx context.Context, actor repository.Actor, in *UpdateRequestInput) (*repository.ProcurementRequest, error) {
	if err := workflow.RequireRole(actor, requestEditors...); err != nil {
		return nil, err
	}
	if err := checkLengths(maxLen("item", in.Item, repository.MaxNameLen)); err != nil {
		return nil, err
	}

	var updated *repository.ProcurementRequest
	err := s.store.InTransaction(ctx, func(repos *repository.Repositories) error {
		current, err := repos.Requests.GetForUpdate(ctx, in.ID)
		if err != nil {
			return err
		}
		if current.Status != repository.RequestPending {
			return errors.InvalidTransition("only pending procurement requests can be edited")
		}

		next := *current
		if in.Item != nil {
			next.Item = strings.TrimSpace(*in.Item)
			if next.Item == "" {
				return errors.InvalidInput("item", "cannot be empty")
			}
		}
		patch(&next.Description, in.Description)
		if in.Quantity != nil {
			if *in.Quantity <= 0 {
				return errors.InvalidInput("quantity", "must be greater than zero")
			}
			next.Quantity = *in.Quantity
		}
		if in.Amount != nil {
			if err := workflow.ValidateAmount("amount", *in.Amount); err != nil {
				return err
			}
			next.Amount = *in.Amount
		}
		if in.Urgent != nil {
			next.Urgent = *in.Urgent
		}
		if in.NeededBy != nil {
			next.NeededBy = in.NeededBy
		}
		if in.VendorID != nil {
			next.VendorID = clean(in.VendorID)
		}

		before, after := diff(requestFields(current), requestFields(&next))
		if len(after) == 0 {
			updated = current
			return nil
		}
		if _, changed := after["vendor_id"]; changed {
			if err := checkVendor(ctx, repos, next.VendorID); err != nil {
				return err
			}
		}

		if err := repos.Requests.Update(ctx, &next); err != nil {
			return err
		}
		appendAudit(ctx, s.log, repos.Audit,
			newAuditEntry(actor, repository.EntityProcurementRequest, next.ID, repository.AuditUpdate, before, after))
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", updated.ID).
		Str("actor_id", actor.ID).
		Msg("Procurement request updated")

	return updated, nil
}

// SubmitQuotation attaches a quotation document to a pending request. The
// request stays pending; approval is always a separate director action.
func (s *RequestService) SubmitQuotation(ctx context.Context, actor repository.Actor, requestID string, in QuotationInput) (*repository.ProcurementRequest, error) {
	if err := workflow.RequireRole(actor, requestCreators...); err != nil {
		return nil, err
	}

	url := strings.TrimSpace(in.URL)
	blobID := strings.TrimSpace(in.BlobID)
	if in.File == nil && url == "" {
		return nil, errors.InvalidInput("quotation", "a document reference or file is required")
	}
	if err := checkLengths(
		maxLen("url", &url, repository.MaxURLLen),
		maxLen("blob_id", &blobID, repository.MaxBlobIDLen),
	); err != nil {
		return nil, err
	}

	// Fail fast before uploading anything for a request that cannot take it.
	current, err := s.store.Reads().Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current.Status != repository.RequestPending {
		return nil, errors.InvalidTransition("quotations can only be attached to pending procurement requests")
	}

	var uploaded *StoredFile
	if in.File != nil {
		uploaded, err = s.upload(ctx, QuotationFolder, *in.File)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to upload quotation")
		}
		url, blobID = uploaded.URL, uploaded.ID
	}

	var updated *repository.ProcurementRequest
	err = s.store.InTransaction(ctx, func(repos *repository.Repositories) error {
		current, err := repos.Requests.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if err := repos.Requests.SetQuotation(ctx, requestID, url, blobID); err != nil {
			return err
		}
		appendAudit(ctx, s.log, repos.Audit, newAuditEntry(actor, repository.EntityProcurementRequest, requestID, repository.AuditUpdate,
			map[string]any{"quotation_url": deref(current.QuotationURL)},
			map[string]any{"quotation_url": url},
		))
		updated, err = repos.Requests.GetByID(ctx, requestID)
		return err
	})
	if err != nil {
		s.discard(ctx, uploaded)
		return nil, err
	}

	s.log.Info().
		Str("request_id", requestID).
		Str("actor_id", actor.ID).
		Msg("Quotation attached")

	return updated, nil
}

// Approve moves a pending request to approved. A second approval, or one
// that loses a race, fails with an invalid-transition error.
func (s *RequestService) Approve(ctx context.Context, actor repository.Actor, requestID string) (*repository.ProcurementRequest, error) {
	return s.decide(ctx, actor, requestID, workflow.ActionApprove, EventRequestApproved)
}

// Reject moves a pending request to the terminal rejected status.
func (s *RequestService) Reject(ctx context.Context, actor repository.Actor, requestID string) (*repository.ProcurementRequest, error) {
	return s.decide(ctx, actor, requestID, workflow.ActionReject, EventRequestRejected)
}

func (s *RequestService) decide(
	ctx context.Context,
	actor repository.Actor,
	requestID string,
	action workflow.Action,
	event EventKind,
) (*repository.ProcurementRequest, error) {
	if err := workflow.RequireRole(actor, workflow.RolesFor(action)...); err != nil {
		return nil, err
	}

	var decided *repository.ProcurementRequest
	err := s.store.InTransaction(ctx, func(repos *repository.Repositories) error {
		current, err := repos.Requests.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		to, err := workflow.Next(current.Status, action)
		if err != nil {
			return err
		}

		// Conditional update: only one concurrent decision can match.
		if err := repos.Requests.Transition(ctx, requestID, current.Status, to, actor.ID, s.now().UTC()); err != nil {
			return err
		}
		appendAudit(ctx, s.log, repos.Audit, newAuditEntry(actor, repository.EntityProcurementRequest, requestID, repository.AuditStatusChanged,
			map[string]any{"status": string(current.Status)},
			map[string]any{"status": string(to)},
		))

		decided, err = repos.Requests.GetByID(ctx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", requestID).
		Str("status", string(decided.Status)).
		Str("actor_id", actor.ID).
		Msg("Procurement request decided")

	s.notifier.Notify(ctx, Event{
		Kind:         event,
		ResourceType: repository.EntityProcurementRequest,
		ResourceID:   requestID,
		ActorID:      actor.ID,
		Payload:      requestPayload(decided),
	})

	return decided, nil
}

// GetRequest returns a request with its payment position. Every
// authenticated role may read requests.
func (s *RequestService) GetRequest(ctx context.Context, actor repository.Actor, requestID string) (*RequestView, error) {
	if err := workflow.RequireActor(actor); err != nil {
		return nil, err
	}

	repos := s.store.Reads()
	req, err := repos.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	paid, err := repos.Payments.SumByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	return &RequestView{
		ProcurementRequest: req,
		AmountPaid:         paid,
		Outstanding:        workflow.Outstanding(req.Amount, paid),
		PaymentState:       workflow.StateOf(req.Amount, paid),
		Closed:             workflow.IsTerminal(req.Status),
	}, nil
}

// ListRequests lists requests newest first.
func (s *RequestService) ListRequests(ctx context.Context, actor repository.Actor, f repository.RequestFilter) ([]*repository.ProcurementRequest, int64, error) {
	if err := workflow.RequireActor(actor); err != nil {
		return nil, 0, err
	}
	return s.store.Reads().Requests.List(ctx, f)
}

func (s *RequestService) upload(ctx context.Context, folder string, file FileUpload) (*StoredFile, error) {
	if s.blobs == nil {
		return nil, errors.New(errors.ErrCodeInternal, "blob store is not configured")
	}
	if len(file.Data) == 0 {
		return nil, errors.InvalidInput("file", "is empty")
	}
	return s.blobs.Upload(ctx, folder, file)
}

func (s *RequestService) discard(ctx context.Context, file *StoredFile) {
	discardUpload(ctx, s.log, s.blobs, file)
}

// checkVendor verifies an optional vendor link points at a usable vendor. The
// shared lock holds off a concurrent UpdateVendor until the link commits.
func checkVendor(ctx context.Context, repos *repository.Repositories, vendorID *string) error {
	if vendorID == nil {
		return nil
	}
	vendor, err := repos.Vendors.GetForShare(ctx, *vendorID)
	if err != nil {
		return err
	}
	if vendor.Status == repository.VendorRejected {
		return errors.InvalidInput("vendor_id", "vendor has been rejected")
	}
	return nil
}

// discardUpload deletes a blob whose owning transaction failed.
func discardUpload(ctx context.Context, log *logger.Logger, blobs BlobStore, file *StoredFile) {
	if file == nil || blobs == nil || file.ID == "" {
		return
	}
	if err := blobs.Delete(ctx, file.ID); err != nil {
		log.Warn().Err(err).Str("blob_id", file.ID).Msg("Failed to delete orphaned upload")
	}
}

func requestFields(r *repository.ProcurementRequest) map[string]any {
	fields := map[string]any{
		"item":        r.Item,
		"description": deref(r.Description),
		"quantity":    r.Quantity,
		"amount":      r.Amount.StringFixed(2),
		"currency":    r.Currency,
		"urgent":      r.Urgent,
		"needed_by":   nil,
		"vendor_id":   deref(r.VendorID),
		"status":      string(r.Status),
	}
	if r.NeededBy != nil {
		fields["needed_by"] = r.NeededBy.Format("2006-01-02")
	}
	if r.QuotationURL != nil {
		fields["quotation_url"] = *r.QuotationURL
	}
	return fields
}

func requestPayload(r *repository.ProcurementRequest) map[string]any {
	return map[string]any{
		"item":     r.Item,
		"amount":   r.Amount.StringFixed(2),
		"currency": r.Currency,
		"status":   string(r.Status),
		"urgent":   r.Urgent,
	}
}
