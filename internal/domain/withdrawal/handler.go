package withdrawal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/policy"
	"github.com/medibridge/medibridge-api/internal/middleware"
	"github.com/medibridge/medibridge-api/internal/pkg/errorhandler"
	"github.com/medibridge/medibridge-api/internal/pkg/response"
	"github.com/medibridge/medibridge-api/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type CreateRequest struct {
	AccountName string          `json:"account_name" validate:"required,max=200"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
}

type ResolveRequest struct {
	Decision       string `json:"decision" validate:"required,decision"`
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=128"`
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return false
	}
	if errs := validator.Validate(dst); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return false
	}
	return true
}

func paging(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Create handles POST /withdrawals. Withdrawals are paid out of the
// caller's commission wallet and must meet the role minimum.
// @Summary Request a withdrawal
// @Tags Withdrawals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRequest true "Withdrawal"
// @Success 201 {object} response.Response{data=Request}
// @Failure 403,409,422 {object} response.Response
// @Router /withdrawals [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !decode(w, r, &req) {
		return
	}

	role := policy.Role(middleware.GetRole(r.Context()))
	minimum, ok := policy.MinWithdrawal(role)
	if !ok {
		response.Forbidden(w, "This account cannot withdraw")
		return
	}
	if req.Amount.LessThan(minimum) {
		response.ErrorWithDetails(w, http.StatusUnprocessableEntity, "BELOW_MINIMUM", "Amount is below the minimum withdrawal", map[string]string{
			"minimum": minimum.StringFixed(2),
		})
		return
	}

	created, err := h.service.RequestWithdrawal(r.Context(), middleware.GetUserID(r.Context()), role.Wallet(), req.AccountName, req.Amount)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Created(w, created)
}

// ListMine handles GET /withdrawals
// @Summary My withdrawal requests
// @Tags Withdrawals
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]Request}
// @Failure 401,500 {object} response.Response
// @Router /withdrawals [get]
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	items, err := h.service.ListByAccount(r.Context(), middleware.GetUserID(r.Context()), limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.WithMeta(w, items, response.Meta{Limit: limit, Offset: offset, Count: len(items)})
}

// List handles GET /admin/withdrawals?status=pending
// @Summary List withdrawal requests by status
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, approved or rejected"
// @Success 200 {object} response.Response{data=[]Request}
// @Failure 400,403 {object} response.Response
// @Router /admin/withdrawals [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	if status == "" {
		status = StatusPending
	}
	limit, offset := paging(r)

	items, err := h.service.List(r.Context(), status, limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.WithMeta(w, items, response.Meta{Limit: limit, Offset: offset, Count: len(items)})
}

// Resolve handles POST /admin/withdrawals/{id}/resolve. The idempotency key
// comes from the Idempotency-Key header or the body.
// @Summary Approve or reject a withdrawal
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Withdrawal ID"
// @Param Idempotency-Key header string false "Retry key"
// @Param request body ResolveRequest true "Decision"
// @Success 200 {object} response.Response{data=Request}
// @Failure 400,404,409,422 {object} response.Response
// @Router /admin/withdrawals/{id}/resolve [post]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid withdrawal id")
		return
	}

	var req ResolveRequest
	if !decode(w, r, &req) {
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	resolved, err := h.service.ResolveWithdrawal(r.Context(), id, Decision(req.Decision), key, middleware.GetUserID(r.Context()))
	if err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			errorhandler.HandleError(r.Context(), w, http.StatusConflict, "ALREADY_RESOLVED", "Withdrawal request already resolved", err)
			return
		}
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, resolved)
}

// Routes is mounted at /withdrawals.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Create)
	r.Get("/", h.ListMine)
	return r
}

// AdminRoutes is mounted at /admin/withdrawals behind the admin guard.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/{id}/resolve", h.Resolve)
	return r
}
