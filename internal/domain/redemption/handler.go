package redemption

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/policy"
	"github.com/medibridge/medibridge-api/internal/domain/wallet"
	"github.com/medibridge/medibridge-api/internal/middleware"
	"github.com/medibridge/medibridge-api/internal/pkg/errorhandler"
	"github.com/medibridge/medibridge-api/internal/pkg/otp"
	"github.com/medibridge/medibridge-api/internal/pkg/response"
	"github.com/medibridge/medibridge-api/internal/pkg/validator"
)

// OTP is the verifyOtp(targetId, code) collaborator plus code issuance.
type OTP interface {
	Issue(ctx context.Context, target uuid.UUID) (string, error)
	Verify(ctx context.Context, target uuid.UUID, code string) (bool, error)
}

type Handler struct {
	offers   *OfferService
	settler  *Service
	otp      OTP
	notifier Notifier
}

func NewHandler(offers *OfferService, settler *Service, otp OTP, notifier Notifier) *Handler {
	return &Handler{offers: offers, settler: settler, otp: otp, notifier: notifier}
}

type UpdateOfferRequest struct {
	DiscountPercent decimal.Decimal `json:"discount_percent" validate:"gt=0,lte=100"`
}

type IssueOTPRequest struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
}

type SettleHTTPRequest struct {
	PatientID       string          `json:"patient_id" validate:"required,uuid"`
	TotalBill       decimal.Decimal `json:"total_bill" validate:"gt=0"`
	DiscountPercent decimal.Decimal `json:"discount_percent" validate:"gte=0,lte=100"`
	OTP             string          `json:"otp" validate:"required,len=6,numeric"`
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

// GetOffer handles GET /redemption/offer?partner_id=. Without partner_id
// it returns the caller's own offer.
// @Summary Partner redemption offer
// @Tags Redemption
// @Produce json
// @Security BearerAuth
// @Param partner_id query string false "Partner ID"
// @Success 200 {object} response.Response{data=Offer}
// @Failure 400,404 {object} response.Response
// @Router /redemption/offer [get]
func (h *Handler) GetOffer(w http.ResponseWriter, r *http.Request) {
	partnerID := middleware.GetUserID(r.Context())
	if raw := r.URL.Query().Get("partner_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "invalid partner id")
			return
		}
		partnerID = id
	}

	offer, err := h.offers.GetOffer(r.Context(), partnerID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, offer)
}

// UpdateOffer handles PUT /redemption/offer. Partners only edit their own.
// @Summary Update own redemption offer
// @Tags Redemption
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateOfferRequest true "Offer"
// @Success 200 {object} response.Response{data=Offer}
// @Failure 400,403,422 {object} response.Response
// @Router /redemption/offer [put]
func (h *Handler) UpdateOffer(w http.ResponseWriter, r *http.Request) {
	var req UpdateOfferRequest
	if !decode(w, r, &req) {
		return
	}

	partnerType := policy.Role(middleware.GetRole(r.Context()))
	offer, err := h.offers.UpdateOffer(r.Context(), middleware.GetUserID(r.Context()), partnerType, req.DiscountPercent)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, offer)
}

// IssueOTP handles POST /redemptions/otp. The code goes to the patient,
// never back to the partner.
// @Summary Send a redemption code to the patient
// @Tags Redemption
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body IssueOTPRequest true "Patient"
// @Success 200 {object} response.Response
// @Failure 400,422,500 {object} response.Response
// @Router /redemptions/otp [post]
func (h *Handler) IssueOTP(w http.ResponseWriter, r *http.Request) {
	var req IssueOTPRequest
	if !decode(w, r, &req) {
		return
	}
	patientID := uuid.MustParse(req.PatientID)

	code, err := h.otp.Issue(r.Context(), patientID)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusServiceUnavailable, "OTP_UNAVAILABLE", "Could not issue a verification code", err)
		return
	}
	if h.notifier != nil {
		h.notifier.Notify(r.Context(), patientID, "Your Health Points redemption code is "+code+". Share it only at the counter.")
	}

	response.JSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// Settle handles POST /redemptions. An Idempotency-Key header makes
// retries safe.
// @Summary Settle a Health Points redemption
// @Tags Redemption
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Retry key"
// @Param request body SettleHTTPRequest true "Redemption"
// @Success 201 {object} response.Response{data=Settlement}
// @Failure 400,401,404,409,422 {object} response.Response
// @Router /redemptions [post]
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	var req SettleHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	patientID := uuid.MustParse(req.PatientID)

	ok, err := h.otp.Verify(r.Context(), patientID, req.OTP)
	switch {
	case errors.Is(err, otp.ErrTooManyAttempts):
		errorhandler.HandleError(r.Context(), w, http.StatusTooManyRequests, "OTP_LOCKED", "Too many attempts, request a new code", err)
		return
	case err != nil:
		errorhandler.HandleError(r.Context(), w, http.StatusServiceUnavailable, "OTP_UNAVAILABLE", "Could not verify the code", err)
		return
	case !ok:
		response.Error(w, http.StatusForbidden, "INVALID_OTP", "Invalid or expired verification code")
		return
	}

	settlement, err := h.settler.Settle(r.Context(), SettleRequest{
		PatientID:       patientID,
		PartnerID:       middleware.GetUserID(r.Context()),
		TotalBill:       req.TotalBill,
		DiscountPercent: req.DiscountPercent,
		Reference:       r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		if errors.Is(err, wallet.ErrReferenceConflict) {
			errorhandler.HandleError(r.Context(), w, http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used for another redemption", err)
			return
		}
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.Created(w, settlement)
}

// OfferRoutes is mounted at /redemption/offer.
func (h *Handler) OfferRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.GetOffer)
	r.With(middleware.RequireRole(string(policy.RoleLab), string(policy.RolePharmacy))).Put("/", h.UpdateOffer)
	return r
}

// Routes is mounted at /redemptions. Only partners settle redemptions.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireRole(string(policy.RoleLab), string(policy.RolePharmacy)))
	r.Post("/otp", h.IssueOTP)
	r.Post("/", h.Settle)
	return r
}
