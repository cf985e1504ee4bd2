package referral

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medibridge/medibridge-api/internal/domain/policy"
	"github.com/medibridge/medibridge-api/internal/middleware"
	"github.com/medibridge/medibridge-api/internal/pkg/errorhandler"
	"github.com/medibridge/medibridge-api/internal/pkg/response"
	"github.com/medibridge/medibridge-api/internal/pkg/validator"
)

type Handler struct {
	tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

// RegisterRequest is sent by the newly joined user with the referrer's code.
type RegisterRequest struct {
	ReferrerID string `json:"referrer_id" validate:"required,uuid"`
}

type listResponse struct {
	Referrals []*Referral `json:"referrals"`
	Stats     Stats       `json:"stats"`
}

// Register handles POST /referrals
// @Summary Register a referral
// @Tags Referrals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RegisterRequest true "Referral"
// @Success 201 {object} response.Response{data=Referral}
// @Failure 400,409,422 {object} response.Response
// @Router /referrals [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	referrerID := uuid.MustParse(req.ReferrerID)
	userID := middleware.GetUserID(r.Context())
	role := policy.Role(middleware.GetRole(r.Context()))

	ref, err := h.tracker.Register(r.Context(), referrerID, userID, role)
	if err != nil {
		if errors.Is(err, ErrAlreadyReferred) {
			errorhandler.HandleError(r.Context(), w, http.StatusConflict, "ALREADY_REFERRED", "You already joined with a referral", err)
			return
		}
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.Created(w, ref)
}

// List handles GET /referrals
// @Summary My referrals and stats
// @Tags Referrals
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401,500 {object} response.Response
// @Router /referrals [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	refs, stats, err := h.tracker.ListByReferrer(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, listResponse{Referrals: refs, Stats: stats})
}

// Check handles POST /referrals/{referredId}/check. Only the referrer or an
// admin may trigger a re-evaluation.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	referredID, err := uuid.Parse(chi.URLParam(r, "referredId"))
	if err != nil {
		response.BadRequest(w, "invalid referred user id")
		return
	}

	ref, err := h.tracker.Get(r.Context(), referredID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	if ref.ReferrerID != middleware.GetUserID(r.Context()) && middleware.GetRole(r.Context()) != string(policy.RoleAdmin) {
		response.Forbidden(w, "Not your referral")
		return
	}

	ref, err = h.tracker.CheckMilestone(r.Context(), referredID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, ref)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Register)
	r.Get("/", h.List)
	r.Post("/{referredId}/check", h.Check)
	return r
}

