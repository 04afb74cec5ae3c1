package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-procurement/internal/platform/errors"
	"github.com/pesio-ai/be-procurement/internal/repository"
	"github.com/pesio-ai/be-procurement/internal/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "procurement.v1.ProcurementService"

// ProcurementServiceServer is the server API for ProcurementService. Every
// method takes and returns a google.protobuf.Struct whose fields mirror the
// HTTP JSON bodies.
type ProcurementServiceServer interface {
	procurementService()
}

// GRPCHandler implements the ProcurementService gRPC interface
type GRPCHandler struct {
	svc      Services
	verifier ActorVerifier
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(svc Services, verifier ActorVerifier, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		svc:      svc,
		verifier: verifier,
		validate: newValidator(),
		logger:   logger.With().Str("handler", "grpc").Logger(),
	}
}

func (h *GRPCHandler) procurementService() {}

// Register attaches the handler to s.
func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&ServiceDesc, h)
}

type grpcMethod func(h *GRPCHandler, ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error)

// ServiceDesc is the grpc.ServiceDesc for ProcurementService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProcurementServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateVendor", (*GRPCHandler).createVendor),
		unary("GetVendor", (*GRPCHandler).getVendor),
		unary("ListVendors", (*GRPCHandler).listVendors),
		unary("UpdateVendor", (*GRPCHandler).updateVendor),
		unary("ApproveVendor", (*GRPCHandler).approveVendor),
		unary("RejectVendor", (*GRPCHandler).rejectVendor),
		unary("CreateRequest", (*GRPCHandler).createRequest),
		unary("GetRequest", (*GRPCHandler).getRequest),
		unary("ListRequests", (*GRPCHandler).listRequests),
		unary("UpdateRequest", (*GRPCHandler).updateRequest),
		unary("SubmitQuotation", (*GRPCHandler).submitQuotation),
		unary("ApproveRequest", (*GRPCHandler).approveRequest),
		unary("RejectRequest", (*GRPCHandler).rejectRequest),
		unary("RecordPayment", (*GRPCHandler).recordPayment),
		unary("ListPayments", (*GRPCHandler).listPayments),
		unary("ListAuditEntries", (*GRPCHandler).listAudit),
		unary("GetReportSummary", (*GRPCHandler).reportSummary),
	},
	Streams: []grpc.StreamDesc{},
}

func unary(name string, fn grpcMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := srv.(*GRPCHandler)
			call := func(ctx context.Context, req any) (any, error) {
				return h.invoke(ctx, name, fn, req.(*structpb.Struct))
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, call)
		},
	}
}

// invoke authenticates the caller, runs fn and converts its result.
func (h *GRPCHandler) invoke(ctx context.Context, name string, fn grpcMethod, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := h.actor(ctx)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}

	h.logger.Debug().Str("method", name).Str("actor_id", actor.ID).Msg("gRPC call")

	result, err := fn(h, ctx, actor, in)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeInternal {
			h.logger.Error().Err(err).Str("method", name).Msg("gRPC call failed")
		}
		return nil, mapErrorToGRPC(err)
	}

	out, err := toStruct(result)
	if err != nil {
		h.logger.Error().Err(err).Str("method", name).Msg("Failed to encode gRPC response")
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// actor resolves the bearer token carried in the authorization metadata.
func (h *GRPCHandler) actor(ctx context.Context) (repository.Actor, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	token, ok := bearerToken(first(md, "authorization"))
	if !ok {
		return repository.Actor{}, errors.New(errors.ErrCodeUnauthorized, "missing bearer token")
	}
	actor, err := h.verifier.Verify(token)
	if err != nil {
		return repository.Actor{}, err
	}

	actor.UserAgent = first(md, "user-agent")
	if fwd := first(md, "x-forwarded-for"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		actor.IPAddress = strings.TrimSpace(ip)
	} else if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			actor.IPAddress = host
		}
	}
	return actor, nil
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// bind decodes the request struct into dst and runs its validate tags.
func (h *GRPCHandler) bind(in *structpb.Struct, dst any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return errors.InvalidInput("request", err.Error())
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.InvalidInput("request", err.Error())
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

type idArgs struct {
	ID string `json:"id" validate:"required"`
}

func (h *GRPCHandler) id(in *structpb.Struct) (string, error) {
	var args idArgs
	if err := h.bind(in, &args); err != nil {
		return "", err
	}
	return args.ID, nil
}

func listEnvelope(items any, total int64, limit, offset int) listResponse {
	limit, offset = repository.PageBounds(limit, offset)
	return listResponse{Items: items, Total: total, Limit: limit, Offset: offset}
}

// ── Vendors ──────────────────────────────────────────────────────────────────

func (h *GRPCHandler) createVendor(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	var body createVendorBody
	if err := h.bind(in, &body); err != nil {
		return nil, err
	}
	return h.svc.Vendors.CreateVendor(ctx, actor, body.input())
}

func (h *GRPCHandler) getVendor(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	id, err := h.id(in)
	if err != nil {
		return nil, err
	}
	return h.svc.Vendors.GetVendor(ctx, actor, id)
}

func (h *GRPCHandler) listVendors(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	var q struct {
		Status string `json:"status" validate:"omitempty,oneof=pending approved rejected"`
		Limit  int    `json:"limit" validate:"gte=0"`
		Offset int    `json:"offset" validate:"gte=0"`
	}
	if err := h.bind(in, &q); err != nil {
		return nil, err
	}
	f := repository.VendorFilter{Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		s := repository.VendorStatus(q.Status)
		f.Status = &s
	}
	vendors, total, err := h.svc.Vendors.ListVendors(ctx, actor, f)
	if err != nil {
		return nil, err
	}
	return listEnvelope(vendors, total, q.Limit, q.Offset), nil
}

func (h *GRPCHandler) updateVendor(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	var args struct {
		idArgs
		updateVendorBody
	}
	if err := h.bind(in, &args); err != nil {
		return nil, err
	}
	return h.svc.Vendors.UpdateVendor(ctx, actor, args.updateVendorBody.input(args.ID))
}

func (h *GRPCHandler) approveVendor(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	id, err := h.id(in)
	if err != nil {
		return nil, err
	}
	return h.svc.Vendors.ApproveVendor(ctx, actor, id)
}

func (h *GRPCHandler) rejectVendor(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	id, err := h.id(in)
	if err != nil {
		return nil, err
	}
	return h.svc.Vendors.RejectVendor(ctx, actor, id)
}

// ── Procurement requests ─────────────────────────────────────────────────────

func (h *GRPCHandler) createRequest(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	var body createRequestBody
	if err := h.bind(in, &body); err != nil {
		return nil, err
	}
	return h.svc.Requests.CreateRequest(ctx, actor, body.input(nil))
}

func (h *GRPCHandler) getRequest(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	id, err := h.id(in)
	if err != nil {
		return nil, err
	}
	return h.svc.Requests.GetRequest(ctx, actor, id)
}

func (h *GRPCHandler) listRequests(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	var q query
	if err := h.bind(in, &q); err != nil {
		return nil, err
	}
	f := repository.RequestFilter{
		VendorID:  optional(q.VendorID),
		CreatedBy: optional(q.CreatedBy),
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.Status != "" {
		s := repository.RequestStatus(q.Status)
		f.Status = &s
	}
	requests, total, err := h.svc.Requests.ListRequests(ctx, actor, f)
	if err != nil {
		return nil, err
	}
	return listEnvelope(requests, total, q.Limit, q.Offset), nil
}

func (h *GRPCHandler) updateRequest(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	var args struct {
		idArgs
		updateRequestBody
	}
	if err := h.bind(in, &args); err != nil {
		return nil, err
	}
	return h.svc.Requests.UpdateRequest(ctx, actor, args.updateRequestBody.input(args.ID))
}

// submitQuotation attaches a quotation by reference; uploads go over HTTP.
func (h *GRPCHandler) submitQuotation(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	var args struct {
		idArgs
		quotationBody
	}
	if err := h.bind(in, &args); err != nil {
		return nil, err
	}
	return h.svc.Requests.SubmitQuotation(ctx, actor, args.ID,
		service.QuotationInput{URL: args.URL, BlobID: args.BlobID})
}

func (h *GRPCHandler) approveRequest(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	id, err := h.id(in)
	if err != nil {
		return nil, err
	}
	return h.svc.Requests.Approve(ctx, actor, id)
}

func (h *GRPCHandler) rejectRequest(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	id, err := h.id(in)
	if err != nil {
		return nil, err
	}
	return h.svc.Requests.Reject(ctx, actor, id)
}

// ── Payments, audit and reports ──────────────────────────────────────────────

func (h *GRPCHandler) recordPayment(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	var args struct {
		RequestID string `json:"request_id" validate:"required"`
		recordPaymentBody
	}
	if err := h.bind(in, &args); err != nil {
		return nil, err
	}
	return h.svc.Payments.RecordPayment(ctx, actor, args.recordPaymentBody.input(args.RequestID, nil))
}

func (h *GRPCHandler) listPayments(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	var q query
	if err := h.bind(in, &q); err != nil {
		return nil, err
	}
	f := repository.PaymentFilter{RequestID: optional(q.RequestID), Limit: q.Limit, Offset: q.Offset}
	payments, total, err := h.svc.Payments.ListPayments(ctx, actor, f)
	if err != nil {
		return nil, err
	}
	return listEnvelope(payments, total, q.Limit, q.Offset), nil
}

func (h *GRPCHandler) listAudit(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	var q query
	if err := h.bind(in, &q); err != nil {
		return nil, err
	}
	f := repository.AuditFilter{
		EntityType: optional(q.EntityType),
		EntityID:   optional(q.EntityID),
		ActorID:    optional(q.ActorID),
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	if q.Action != "" {
		a := repository.AuditAction(q.Action)
		f.Action = &a
	}
	entries, total, err := h.svc.Audit.List(ctx, actor, f)
	if err != nil {
		return nil, err
	}
	return listEnvelope(entries, total, q.Limit, q.Offset), nil
}

func (h *GRPCHandler) reportSummary(ctx context.Context, actor repository.Actor, in *structpb.Struct) (any, error) {
	var args struct {
		Months *int `json:"months"`
	}
	if err := h.bind(in, &args); err != nil {
		return nil, err
	}
	months := service.DefaultReportMonths
	if args.Months != nil {
		months = *args.Months
	}
	return h.svc.Reports.Summary(ctx, actor, months)
}

// mapErrorToGRPC converts an application error to a gRPC status by its code.
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		msg = appErr.Message
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, msg)
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, msg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, msg)
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, msg)
	case errors.ErrCodeConflict:
		return status.Error(codes.FailedPrecondition, msg)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
