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

var paymentReaders = []repository.Role{repository.RoleFinance, repository.RoleDirector, repository.RoleAudit}

// PaymentService records disbursements against approved requests and
// settles requests once they are fully paid.
type PaymentService struct {
	store           repository.Transactor
	blobs           BlobStore
	notifier        Notifier
	policy          workflow.PaymentPolicy
	receiptRequired bool
	log             *logger.Logger
	now             func() time.Time
}

// NewPaymentService creates a new payment service. When receiptRequired is
// set, a payment without a stored receipt is rejected.
func NewPaymentService(
	store repository.Transactor,
	blobs BlobStore,
	notifier Notifier,
	policy workflow.PaymentPolicy,
	receiptRequired bool,
	log *logger.Logger,
) *PaymentService {
	return &PaymentService{
		store:           store,
		blobs:           blobs,
		notifier:        notifierOrNop(notifier),
		policy:          policy,
		receiptRequired: receiptRequired,
		log:             log,
		now:             time.Now,
	}
}

// RecordPaymentInput represents a record payment call
type RecordPaymentInput struct {
	RequestID string
	Amount    decimal.Decimal
	Method    *string
	Reference *string
	// Receipt is either a reference already in the blob store or a file to upload.
	ReceiptURL    *string
	ReceiptBlobID *string
	ReceiptFile   *FileUpload
}

// PaymentResult reports the recorded payment and the request after it.
type PaymentResult struct {
	Payment     *repository.Payment            `json:"payment"`
	Request     *repository.ProcurementRequest `json:"request"`
	Outstanding decimal.Decimal                `json:"outstanding"`
	Settled     bool                           `json:"settled"`
	Warnings    []string                       `json:"warnings,omitempty"`
}

// RecordPayment records one payment against an approved request. The checks
// run in order: the request must be approved, the actor's role must be
// allowed for the request amount, then the amount must fit the outstanding
// balance. Reaching a zero balance moves the request to paid in the same
// transaction.
func (s *PaymentService) RecordPayment(ctx context.Context, actor repository.Actor, in *RecordPaymentInput) (*PaymentResult, error) {
	if err := workflow.RequireActor(actor); err != nil {
		return nil, err
	}
	if err := checkLengths(
		maxLen("method", in.Method, repository.MaxMethodLen),
		maxLen("reference", in.Reference, repository.MaxReferenceLen),
		maxLen("receipt_url", in.ReceiptURL, repository.MaxURLLen),
		maxLen("receipt_blob_id", in.ReceiptBlobID, repository.MaxBlobIDLen),
	); err != nil {
		return nil, err
	}

	// Pre-check without locks so nothing is uploaded for a payment that
	// would be refused. The transaction below re-checks under the row lock.
	if err := s.check(ctx, s.store.Reads(), actor, in); err != nil {
		return nil, err
	}

	result := &PaymentResult{}
	receiptURL := clean(in.ReceiptURL)
	receiptBlobID := clean(in.ReceiptBlobID)

	var uploaded *StoredFile
	if in.ReceiptFile != nil {
		file, err := s.upload(ctx, *in.ReceiptFile)
		switch {
		case err != nil && s.receiptRequired:
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to upload receipt")
		case err != nil:
			s.log.Warn().Err(err).Str("request_id", in.RequestID).Msg("Receipt upload failed, recording payment without it")
			result.Warnings = append(result.Warnings, "receipt upload failed; payment recorded without a receipt")
		default:
			uploaded = file
			receiptURL = &file.URL
			receiptBlobID = nilIfEmpty(file.ID)
		}
	}
	if s.receiptRequired && receiptURL == nil {
		return nil, errors.InvalidInput("receipt", "a payment receipt is required")
	}

	payment := &repository.Payment{
		RequestID:     in.RequestID,
		Amount:        in.Amount,
		PayerRole:     actor.Role,
		PayerID:       actor.ID,
		PayerName:     nilIfEmpty(actor.Username),
		Method:        clean(in.Method),
		Reference:     clean(in.Reference),
		ReceiptURL:    receiptURL,
		ReceiptBlobID: receiptBlobID,
	}

	err := s.store.InTransaction(ctx, func(repos *repository.Repositories) error {
		req, err := repos.Requests.GetForUpdate(ctx, in.RequestID)
		if err != nil {
			return err
		}
		if _, err := workflow.Next(req.Status, workflow.ActionSettle); err != nil {
			return errors.InvalidTransition("payments can only be recorded against approved procurement requests")
		}
		if err := s.policy.Authorize(actor.Role, req.Amount); err != nil {
			return err
		}

		paid, err := repos.Payments.SumByRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		if err := workflow.ValidatePayment(in.Amount, workflow.Outstanding(req.Amount, paid)); err != nil {
			return err
		}

		if err := repos.Payments.Create(ctx, payment); err != nil {
			return err
		}
		appendAudit(ctx, s.log, repos.Audit,
			newAuditEntry(actor, repository.EntityPayment, payment.ID, repository.AuditCreate, nil, paymentFields(payment)))

		paid = paid.Add(payment.Amount)
		result.Outstanding = workflow.Outstanding(req.Amount, paid)

		if workflow.IsFullyPaid(req.Amount, paid) {
			if err := repos.Requests.Transition(ctx, req.ID, repository.RequestApproved, repository.RequestPaid, actor.ID, s.now().UTC()); err != nil {
				return err
			}
			appendAudit(ctx, s.log, repos.Audit, newAuditEntry(actor, repository.EntityProcurementRequest, req.ID, repository.AuditStatusChanged,
				map[string]any{"status": string(repository.RequestApproved)},
				map[string]any{"status": string(repository.RequestPaid), "amount_paid": paid.StringFixed(2)},
			))
			result.Settled = true
		}

		result.Request, err = repos.Requests.GetByID(ctx, req.ID)
		return err
	})
	if err != nil {
		discardUpload(ctx, s.log, s.blobs, uploaded)
		return nil, err
	}
	result.Payment = payment

	s.log.Info().
		Str("payment_id", payment.ID).
		Str("request_id", payment.RequestID).
		Str("amount", payment.Amount.StringFixed(2)).
		Str("payer_role", string(payment.PayerRole)).
		Bool("settled", result.Settled).
		Msg("Payment recorded")

	s.notifier.Notify(ctx, Event{
		Kind:         EventPaymentRecorded,
		ResourceType: repository.EntityPayment,
		ResourceID:   payment.ID,
		ActorID:      actor.ID,
		Payload: map[string]any{
			"request_id":  payment.RequestID,
			"amount":      payment.Amount.StringFixed(2),
			"outstanding": result.Outstanding.StringFixed(2),
		},
	})
	if result.Settled {
		s.notifier.Notify(ctx, Event{
			Kind:         EventRequestPaid,
			ResourceType: repository.EntityProcurementRequest,
			ResourceID:   result.Request.ID,
			ActorID:      actor.ID,
			Payload:      requestPayload(result.Request),
		})
	}

	return result, nil
}

// ListPayments lists payments newest first.
func (s *PaymentService) ListPayments(ctx context.Context, actor repository.Actor, f repository.PaymentFilter) ([]*repository.Payment, int64, error) {
	if err := workflow.RequireRole(actor, paymentReaders...); err != nil {
		return nil, 0, err
	}
	return s.store.Reads().Payments.List(ctx, f)
}

func (s *PaymentService) check(ctx context.Context, repos *repository.Repositories, actor repository.Actor, in *RecordPaymentInput) error {
	req, err := repos.Requests.GetByID(ctx, in.RequestID)
	if err != nil {
		return err
	}
	if req.Status != repository.RequestApproved {
		return errors.InvalidTransition("payments can only be recorded against approved procurement requests")
	}
	if err := s.policy.Authorize(actor.Role, req.Amount); err != nil {
		return err
	}
	paid, err := repos.Payments.SumByRequest(ctx, req.ID)
	if err != nil {
		return err
	}
	if err := workflow.ValidatePayment(in.Amount, workflow.Outstanding(req.Amount, paid)); err != nil {
		return err
	}
	if s.receiptRequired && in.ReceiptFile == nil && (in.ReceiptURL == nil || strings.TrimSpace(*in.ReceiptURL) == "") {
		return errors.InvalidInput("receipt", "a payment receipt is required")
	}
	return nil
}

func (s *PaymentService) upload(ctx context.Context, file FileUpload) (*StoredFile, error) {
	if s.blobs == nil {
		return nil, errors.New(errors.ErrCodeInternal, "blob store is not configured")
	}
	if len(file.Data) == 0 {
		return nil, errors.InvalidInput("receipt", "file is empty")
	}
	return s.blobs.Upload(ctx, ReceiptFolder, file)
}

func paymentFields(p *repository.Payment) map[string]any {
	return map[string]any{
		"request_id":  p.RequestID,
		"amount":      p.Amount.StringFixed(2),
		"payer_role":  string(p.PayerRole),
		"payer_id":    p.PayerID,
		"method":      deref(p.Method),
		"reference":   deref(p.Reference),
		"receipt_url": deref(p.ReceiptURL),
	}
}
