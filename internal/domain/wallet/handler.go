package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/domain/statement"
	"github.com/medibridge/medibridge-api/internal/middleware"
	"github.com/medibridge/medibridge-api/internal/pkg/errorhandler"
	"github.com/medibridge/medibridge-api/internal/pkg/response"
	"github.com/medibridge/medibridge-api/internal/pkg/validator"
)

// StatementExporter writes a wallet statement somewhere durable.
type StatementExporter interface {
	Export(ctx context.Context, key ledger.AccountKey) (*statement.Receipt, error)
}

type Handler struct {
	svc      *Service
	exporter StatementExporter
}

// NewHandler creates a wallet handler. exporter may be nil, in which case
// the statement route is not mounted.
func NewHandler(svc *Service, exporter StatementExporter) *Handler {
	return &Handler{svc: svc, exporter: exporter}
}

type creditRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Description string          `json:"description" validate:"required,max=255"`
	Reference   string          `json:"reference" validate:"max=128"`
}

func (h *Handler) key(w http.ResponseWriter, r *http.Request) (ledger.AccountKey, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return ledger.AccountKey{}, false
	}
	wallet := ledger.Wallet(chi.URLParam(r, "wallet"))
	if !wallet.Valid() {
		response.BadRequest(w, "wallet must be health_points or commission")
		return ledger.AccountKey{}, false
	}
	return ledger.Key(userID, wallet), true
}

// Balance handles GET /wallet/{wallet}/balance
// @Summary Wallet balance
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param wallet path string true "health_points or commission"
// @Success 200 {object} response.Response{data=Balance}
// @Failure 400,401 {object} response.Response
// @Router /wallet/{wallet}/balance [get]
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), key)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, Balance{AccountID: key.AccountID, Wallet: key.Wallet, Balance: balance})
}

// History handles GET /wallet/{wallet}/history?limit=&offset=
// @Summary Wallet history, newest first
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param wallet path string true "health_points or commission"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Response{data=[]ledger.Entry}
// @Failure 400,401 {object} response.Response
// @Router /wallet/{wallet}/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := h.svc.History(r.Context(), key, limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.WithMeta(w, entries, response.Meta{Limit: limit, Offset: offset, Count: len(entries)})
}

// Statement handles POST /wallet/{wallet}/statement
// @Summary Export a wallet statement
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param wallet path string true "health_points or commission"
// @Success 201 {object} response.Response
// @Failure 400,401,500 {object} response.Response
// @Router /wallet/{wallet}/statement [post]
func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}

	receipt, err := h.exporter.Export(r.Context(), key)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.Created(w, receipt)
}

// AdminCredit handles POST /admin/wallets/{accountID}/{wallet}/credit.
// It is the manual adjustment path; corrections are always new entries.
// @Summary Manual wallet credit
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountID path string true "Account ID"
// @Param wallet path string true "health_points or commission"
// @Param request body creditRequest true "Credit"
// @Success 201 {object} response.Response{data=ledger.Entry}
// @Failure 400,403,409,422 {object} response.Response
// @Router /admin/wallets/{accountID}/{wallet}/credit [post]
func (h *Handler) AdminCredit(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		response.BadRequest(w, "invalid account id")
		return
	}
	wallet := ledger.Wallet(chi.URLParam(r, "wallet"))
	if !wallet.Valid() {
		response.BadRequest(w, "wallet must be health_points or commission")
		return
	}

	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	meta := Meta{
		CounterpartyID:   middleware.GetUserID(r.Context()),
		CounterpartyType: "admin",
		Reference:        req.Reference,
	}
	entry, err := h.svc.Credit(r.Context(), ledger.Key(accountID, wallet), req.Amount, req.Description, meta)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Created(w, entry)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrReferenceConflict) {
		errorhandler.HandleError(r.Context(), w, http.StatusConflict, "REFERENCE_CONFLICT", "reference already used for a different entry", err)
		return
	}
	errorhandler.Handle(r.Context(), w, err)
}

// Routes mounts the caller's own wallet endpoints.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/{wallet}/balance", h.Balance)
	r.Get("/{wallet}/history", h.History)
	if h.exporter != nil {
		r.Post("/{wallet}/statement", h.Statement)
	}
	return r
}

// AdminRoutes expects auth and admin checks to be applied by the caller.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{accountID}/{wallet}/credit", h.AdminCredit)
	return r
}
