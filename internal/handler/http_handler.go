package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/pesio-ai/be-procurement/internal/platform/errors"
	"github.com/pesio-ai/be-procurement/internal/platform/logger"
	"github.com/pesio-ai/be-procurement/internal/platform/middleware"
	"github.com/pesio-ai/be-procurement/internal/repository"
	"github.com/pesio-ai/be-procurement/internal/service"
)

// DefaultMaxUploadBytes bounds quotation and receipt uploads.
const DefaultMaxUploadBytes = 10 << 20

// ActorVerifier resolves a bearer token to the calling actor.
type ActorVerifier interface {
	Verify(token string) (repository.Actor, error)
}

// Services bundles the application services exposed over the API.
type Services struct {
	Vendors  *service.VendorService
	Requests *service.RequestService
	Payments *service.PaymentService
	Audit    *service.AuditService
	Reports  *service.ReportService
}

// HealthChecker is a dependency probed by the health endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type namedCheck struct {
	name    string
	checker HealthChecker
}

// healthTimeout bounds the dependency probes of one health request.
const healthTimeout = 2 * time.Second

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	svc       Services
	verifier  ActorVerifier
	validate  *validator.Validate
	log       *logger.Logger
	maxUpload int64
	checks    []namedCheck
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(svc Services, verifier ActorVerifier, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:       svc,
		verifier:  verifier,
		validate:  newValidator(),
		log:       log,
		maxUpload: DefaultMaxUploadBytes,
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Routes registers the API on r.
func (h *HTTPHandler) Routes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(h.authenticate)

	api.HandleFunc("/vendors", h.CreateVendor).Methods(http.MethodPost)
	api.HandleFunc("/vendors", h.ListVendors).Methods(http.MethodGet)
	api.HandleFunc("/vendors/{id}", h.GetVendor).Methods(http.MethodGet)
	api.HandleFunc("/vendors/{id}", h.UpdateVendor).Methods(http.MethodPatch)
	api.HandleFunc("/vendors/{id}/approve", h.ApproveVendor).Methods(http.MethodPost)
	api.HandleFunc("/vendors/{id}/reject", h.RejectVendor).Methods(http.MethodPost)

	api.HandleFunc("/requests", h.CreateRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests", h.ListRequests).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}", h.GetRequest).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}", h.UpdateRequest).Methods(http.MethodPatch)
	api.HandleFunc("/requests/{id}/quotation", h.SubmitQuotation).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}/approve", h.ApproveRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}/reject", h.RejectRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}/payments", h.RecordPayment).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}/payments", h.ListRequestPayments).Methods(http.MethodGet)

	api.HandleFunc("/payments", h.ListPayments).Methods(http.MethodGet)
	api.HandleFunc("/audit", h.ListAudit).Methods(http.MethodGet)
	api.HandleFunc("/reports/summary", h.ReportSummary).Methods(http.MethodGet)
	api.HandleFunc("/reports/summary.xlsx", h.ExportReport).Methods(http.MethodGet)
}

// WithHealthCheck adds a dependency to /health, which answers 503 while
// any check fails.
func (h *HTTPHandler) WithHealthCheck(name string, c HealthChecker) *HTTPHandler {
	h.checks = append(h.checks, namedCheck{name: name, checker: c})
	return h
}

// Health reports liveness and the state of registered dependencies.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.checker.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Str("check", c.name).Msg("Health check failed")
			checks[c.name] = "unavailable"
			status, code = "unavailable", http.StatusServiceUnavailable
			continue
		}
		checks[c.name] = "ok"
	}
	h.writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

// ── Authentication ───────────────────────────────────────────────────────────

type actorKey struct{}

// authenticate resolves the bearer token into an actor stamped with the
// caller's network identity.
func (h *HTTPHandler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			h.writeError(w, r, errors.New(errors.ErrCodeUnauthorized, "missing bearer token"))
			return
		}
		actor, err := h.verifier.Verify(token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		actor.IPAddress = clientIP(r)
		actor.UserAgent = r.UserAgent()

		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorFrom returns the actor stored by authenticate.
func actorFrom(ctx context.Context) repository.Actor {
	actor, _ := ctx.Value(actorKey{}).(repository.Actor)
	return actor
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ── Decoding ─────────────────────────────────────────────────────────────────

// decode reads a JSON body, or a multipart form whose "payload" field holds
// the JSON and whose "file" field carries an optional document, then runs
// the validate tags on dst.
func (h *HTTPHandler) decode(r *http.Request, dst any) (*service.FileUpload, error) {
	var file *service.FileUpload

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			return nil, errors.InvalidInput("body", "malformed multipart form")
		}
		if payload := r.FormValue("payload"); payload != "" {
			if err := json.Unmarshal([]byte(payload), dst); err != nil {
				return nil, errors.InvalidInput("payload", err.Error())
			}
		}
		var err error
		if file, err = h.formFile(r); err != nil {
			return nil, err
		}
	} else if r.ContentLength != 0 {
		dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil && !stderrors.Is(err, io.EOF) {
			return nil, errors.InvalidInput("body", err.Error())
		}
	}

	if err := h.validate.Struct(dst); err != nil {
		return nil, validationError(err)
	}
	return file, nil
}

func (h *HTTPHandler) formFile(r *http.Request) (*service.FileUpload, error) {
	f, header, err := r.FormFile("file")
	if stderrors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.InvalidInput("file", err.Error())
	}
	defer f.Close()

	if header.Size > h.maxUpload {
		return nil, errors.InvalidInput("file", fmt.Sprintf("exceeds %d bytes", h.maxUpload))
	}
	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to read upload")
	}
	if int64(len(data)) > h.maxUpload {
		return nil, errors.InvalidInput("file", fmt.Sprintf("exceeds %d bytes", h.maxUpload))
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &service.FileUpload{Filename: header.Filename, ContentType: contentType, Data: data}, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.InvalidInput("body", err.Error())
	}
	fe := verrs[0]
	msg := "failed " + fe.Tag()
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "max":
		msg = "must be at most " + fe.Param() + " characters"
	case "gte":
		msg = "must be at least " + fe.Param()
	case "email", "url", "uuid":
		msg = "must be a valid " + fe.Tag()
	case "oneof":
		msg = "must be one of " + fe.Param()
	}
	return errors.InvalidInput(fe.Field(), msg)
}

// query holds list parameters with the validate tags applied to them.
type query struct {
	Status     string `json:"status" validate:"omitempty,oneof=pending approved rejected paid"`
	VendorID   string `json:"vendor_id" validate:"omitempty,uuid"`
	CreatedBy  string `json:"created_by"`
	RequestID  string `json:"request_id"`
	EntityType string `json:"entity_type" validate:"omitempty,oneof=vendor procurement_request payment"`
	EntityID   string `json:"entity_id"`
	Action     string `json:"action" validate:"omitempty,oneof=create update delete status_changed"`
	ActorID    string `json:"actor_id"`
	Limit      int    `json:"limit" validate:"gte=0"`
	Offset     int    `json:"offset" validate:"gte=0"`
}

func (h *HTTPHandler) parseQuery(r *http.Request) (*query, error) {
	v := r.URL.Query()
	q := &query{
		Status:     v.Get("status"),
		VendorID:   v.Get("vendor_id"),
		CreatedBy:  v.Get("created_by"),
		RequestID:  v.Get("request_id"),
		EntityType: v.Get("entity_type"),
		EntityID:   v.Get("entity_id"),
		Action:     v.Get("action"),
		ActorID:    v.Get("actor_id"),
	}
	for name, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.InvalidInput(name, "must be an integer")
		}
		*dst = n
	}
	if err := h.validate.Struct(q); err != nil {
		return nil, validationError(err)
	}
	return q, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ── Responses ────────────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeList(w http.ResponseWriter, items any, total int64, limit, offset int) {
	limit, offset = repository.PageBounds(limit, offset)
	h.writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

// writeError maps an application error to its HTTP status. Internal errors
// are logged and reported without detail.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	status := httpStatus(code)

	resp := errorResponse{
		Error:   err.Error(),
		Code:    string(code),
		Request: middleware.GetRequestID(r.Context()),
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		resp.Field = appErr.Field
		resp.Error = appErr.Message
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", resp.Request).
			Str("path", r.URL.Path).
			Msg("Request failed")
		resp.Error = "internal server error"
	}

	h.writeJSON(w, status, resp)
}

func httpStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ── Vendors ──────────────────────────────────────────────────────────────────

// CreateVendor handles create vendor HTTP requests
func (h *HTTPHandler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	var body createVendorBody
	if _, err := h.decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	vendor, err := h.svc.Vendors.CreateVendor(r.Context(), actorFrom(r.Context()), body.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, vendor)
}

// GetVendor handles get vendor HTTP requests
func (h *HTTPHandler) GetVendor(w http.ResponseWriter, r *http.Request) {
	vendor, err := h.svc.Vendors.GetVendor(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, vendor)
}

// ListVendors handles list vendors HTTP requests
func (h *HTTPHandler) ListVendors(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f := repository.VendorFilter{Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		status := repository.VendorStatus(q.Status)
		switch status {
		case repository.VendorPending, repository.VendorApproved, repository.VendorRejected:
		default:
			h.writeError(w, r, errors.InvalidInput("status", "must be one of pending approved rejected"))
			return
		}
		f.Status = &status
	}

	vendors, total, err := h.svc.Vendors.ListVendors(r.Context(), actorFrom(r.Context()), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeList(w, vendors, total, q.Limit, q.Offset)
}

// UpdateVendor handles update vendor HTTP requests
func (h *HTTPHandler) UpdateVendor(w http.ResponseWriter, r *http.Request) {
	var body updateVendorBody
	if _, err := h.decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	vendor, err := h.svc.Vendors.UpdateVendor(r.Context(), actorFrom(r.Context()), body.input(mux.Vars(r)["id"]))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, vendor)
}

// ApproveVendor handles approve vendor HTTP requests
func (h *HTTPHandler) ApproveVendor(w http.ResponseWriter, r *http.Request) {
	vendor, err := h.svc.Vendors.ApproveVendor(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, vendor)
}

// RejectVendor handles reject vendor HTTP requests
func (h *HTTPHandler) RejectVendor(w http.ResponseWriter, r *http.Request) {
	vendor, err := h.svc.Vendors.RejectVendor(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, vendor)
}

// ── Procurement requests ─────────────────────────────────────────────────────

// CreateRequest handles create procurement request HTTP requests. A
// multipart body may carry the quotation file.
func (h *HTTPHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	file, err := h.decode(r, &body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.Requests.CreateRequest(r.Context(), actorFrom(r.Context()), body.input(file))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// GetRequest handles get procurement request HTTP requests
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Requests.GetRequest(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// ListRequests handles list procurement requests HTTP requests
func (h *HTTPHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f := repository.RequestFilter{
		VendorID:  optional(q.VendorID),
		CreatedBy: optional(q.CreatedBy),
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.Status != "" {
		status := repository.RequestStatus(q.Status)
		f.Status = &status
	}

	requests, total, err := h.svc.Requests.ListRequests(r.Context(), actorFrom(r.Context()), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeList(w, requests, total, q.Limit, q.Offset)
}

// UpdateRequest handles update procurement request HTTP requests
func (h *HTTPHandler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	var body updateRequestBody
	if _, err := h.decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	req, err := h.svc.Requests.UpdateRequest(r.Context(), actorFrom(r.Context()), body.input(mux.Vars(r)["id"]))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// SubmitQuotation handles quotation attach HTTP requests, by reference or
// multipart upload.
func (h *HTTPHandler) SubmitQuotation(w http.ResponseWriter, r *http.Request) {
	var body quotationBody
	file, err := h.decode(r, &body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	req, err := h.svc.Requests.SubmitQuotation(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"],
		service.QuotationInput{URL: body.URL, BlobID: body.BlobID, File: file})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// ApproveRequest handles approve procurement request HTTP requests
func (h *HTTPHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.Requests.Approve(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// RejectRequest handles reject procurement request HTTP requests
func (h *HTTPHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.Requests.Reject(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// ── Payments ─────────────────────────────────────────────────────────────────

// RecordPayment handles record payment HTTP requests. A multipart body may
// carry the receipt file.
func (h *HTTPHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var body recordPaymentBody
	file, err := h.decode(r, &body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.Payments.RecordPayment(r.Context(), actorFrom(r.Context()), body.input(mux.Vars(r)["id"], file))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// ListRequestPayments lists the payments recorded against one request.
func (h *HTTPHandler) ListRequestPayments(w http.ResponseWriter, r *http.Request) {
	h.listPayments(w, r, mux.Vars(r)["id"])
}

// ListPayments handles list payments HTTP requests
func (h *HTTPHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	h.listPayments(w, r, r.URL.Query().Get("request_id"))
}

func (h *HTTPHandler) listPayments(w http.ResponseWriter, r *http.Request, requestID string) {
	q, err := h.parseQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f := repository.PaymentFilter{RequestID: optional(requestID), Limit: q.Limit, Offset: q.Offset}

	payments, total, err := h.svc.Payments.ListPayments(r.Context(), actorFrom(r.Context()), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeList(w, payments, total, q.Limit, q.Offset)
}

// ── Audit and reports ────────────────────────────────────────────────────────

// ListAudit handles audit trail HTTP requests
func (h *HTTPHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f := repository.AuditFilter{
		EntityType: optional(q.EntityType),
		EntityID:   optional(q.EntityID),
		ActorID:    optional(q.ActorID),
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	if q.Action != "" {
		action := repository.AuditAction(q.Action)
		f.Action = &action
	}

	entries, total, err := h.svc.Audit.List(r.Context(), actorFrom(r.Context()), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeList(w, entries, total, q.Limit, q.Offset)
}

func months(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("months")
	if raw == "" {
		return service.DefaultReportMonths, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.InvalidInput("months", "must be an integer")
	}
	return n, nil
}

// ReportSummary handles dashboard summary HTTP requests
func (h *HTTPHandler) ReportSummary(w http.ResponseWriter, r *http.Request) {
	n, err := months(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	summary, err := h.svc.Reports.Summary(r.Context(), actorFrom(r.Context()), n)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// ExportReport streams the summary as an Excel workbook.
func (h *HTTPHandler) ExportReport(w http.ResponseWriter, r *http.Request) {
	n, err := months(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	data, err := h.svc.Reports.ExportXLSX(r.Context(), actorFrom(r.Context()), n)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("procurement-summary-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.log.Warn().Err(err).Msg("Failed to write report export")
	}
}
