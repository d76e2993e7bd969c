package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gestia-erp/gestia/internal/platform/httpx"
	"github.com/gestia-erp/gestia/internal/shared"
)

// Handler exposes the sync endpoint.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers sync routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sync", h.sync)
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing session")
		return
	}

	var env Envelope
	if err := httpx.DecodeJSON(r, &env); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", decodeDetail(err))
		return
	}
	if err := h.validate.Struct(env); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Sync(r.Context(), sess, env)
	if err != nil {
		h.respondError(w, sess, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// decodeDetail names what broke inside the envelope. Type mismatches
// carry the field path; custom unmarshal failures (decimal amounts, ids)
// carry the offending literal in their message.
func decodeDetail(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("invalid value for field %q", typeErr.Field)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "malformed JSON body"
	}
	return err.Error()
}

func (h *Handler) respondError(w http.ResponseWriter, sess *shared.Session, err error) {
	var invalid *InvalidRecordError
	var pushErr *PushError

	switch {
	case errors.Is(err, ErrTenantMismatch):
		httpx.Problem(w, http.StatusForbidden, "Tenant Mismatch", "envelope companyId does not match the authenticated tenant")
	case errors.Is(err, ErrInvalidWatermark):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Watermark", err.Error())
	case errors.Is(err, ErrBatchTooLarge):
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Batch Too Large", err.Error())
	case errors.Is(err, shared.ErrLockNotAcquired):
		httpx.Problem(w, http.StatusConflict, "Sync In Progress", "another device is syncing for this tenant, retry later")
	case errors.As(err, &invalid):
		httpx.ProblemWith(w, http.StatusUnprocessableEntity, "Invalid Record", invalid.Reason, map[string]any{
			"family":  string(invalid.Family),
			"localId": invalid.LocalID,
			"field":   invalid.Field,
		})
	case errors.As(err, &pushErr):
		detail := "record could not be written"
		switch {
		case errors.Is(err, ErrForeignTenant):
			detail = "backendId does not exist for this tenant"
		case errors.Is(err, ErrDuplicateKey):
			detail = "a record with the same unique key already exists for this tenant"
		}
		httpx.ProblemWith(w, http.StatusUnprocessableEntity, "Sync Push Failed", detail, map[string]any{
			"family":  string(pushErr.Family),
			"localId": pushErr.LocalID,
		})
	default:
		h.logger.Error("sync failed",
			slog.Int64("company_id", sess.CompanyID),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
