package booking

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

type BookHTTPRequest struct {
	PatientID       string          `json:"patient_id" validate:"omitempty,uuid"`
	DoctorID        string          `json:"doctor_id" validate:"required,uuid"`
	ConsultationFee decimal.Decimal `json:"consultation_fee" validate:"gt=0"`
	OptedIntoPoints bool            `json:"opted_into_points"`
}

// Quote handles GET /booking/quote?consultation_fee=&opted_in=
// @Summary Booking fee quote
// @Tags Booking
// @Produce json
// @Security BearerAuth
// @Param consultation_fee query string true "Consultation fee"
// @Param opted_in query bool false "Opted into Health Points"
// @Success 200 {object} response.Response{data=FeeBreakdown}
// @Failure 400 {object} response.Response
// @Router /booking/quote [get]
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fee, err := decimal.NewFromString(q.Get("consultation_fee"))
	if err != nil {
		response.BadRequest(w, "consultation_fee must be a number")
		return
	}
	optedIn := false
	if raw := q.Get("opted_in"); raw != "" {
		if optedIn, err = strconv.ParseBool(raw); err != nil {
			response.BadRequest(w, "opted_in must be true or false")
			return
		}
	}
	payer := policy.Role(middleware.GetRole(r.Context()))
	if raw := q.Get("payer_role"); raw != "" {
		payer = policy.Role(raw)
	}

	quote, err := h.service.Quote(fee, payer, optedIn)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, quote)
}

// Book handles POST /appointments. Patients book for themselves; partners
// name the patient they book for.
// @Summary Book an appointment
// @Tags Booking
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BookHTTPRequest true "Booking"
// @Success 201 {object} response.Response{data=Appointment}
// @Failure 400,403,422 {object} response.Response
// @Router /appointments [post]
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req BookHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	callerID := middleware.GetUserID(r.Context())
	role := policy.Role(middleware.GetRole(r.Context()))

	patientID := callerID
	if role.BooksForPatients() {
		if req.PatientID == "" {
			response.BadRequest(w, "patient_id is required when booking for a patient")
			return
		}
		patientID = uuid.MustParse(req.PatientID)
	}

	a, err := h.service.Book(r.Context(), BookRequest{
		PatientID:       patientID,
		DoctorID:        uuid.MustParse(req.DoctorID),
		BookedBy:        callerID,
		BookedByRole:    role,
		ConsultationFee: req.ConsultationFee,
		OptedIntoPoints: req.OptedIntoPoints,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.Created(w, a)
}

// Get handles GET /appointments/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Get(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, a)
}

// Complete handles POST /appointments/{id}/complete
// @Summary Mark an appointment completed
// @Tags Booking
// @Produce json
// @Security BearerAuth
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Response{data=Appointment}
// @Failure 403,404,409 {object} response.Response
// @Router /appointments/{id}/complete [post]
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Complete(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, a)
}

// Cancel handles POST /appointments/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Cancel(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, a)
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid appointment id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotParticipant):
		response.Forbidden(w, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(w, "INVALID_STATUS", err.Error())
	default:
		errorhandler.Handle(r.Context(), w, err)
	}
}

// QuoteRoutes is mounted at /booking.
func (h *Handler) QuoteRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/quote", h.Quote)
	return r
}

// Routes is mounted at /appointments.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	bookers := []string{
		string(policy.RolePatient),
		string(policy.RoleHealthCoordinator),
		string(policy.RoleLab),
		string(policy.RolePharmacy),
	}
	r.With(middleware.RequireRole(bookers...)).Post("/", h.Book)
	r.Get("/{id}", h.Get)
	r.With(middleware.RequireRole(string(policy.RoleDoctor))).Post("/{id}/complete", h.Complete)
	r.Post("/{id}/cancel", h.Cancel)
	return r
}
