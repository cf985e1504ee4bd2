package booking_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibridge/medibridge-api/internal/domain/booking"
	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/middleware"
)

func as(id uuid.UUID, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), id, role)))
		})
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func TestHandlerQuoteUsesCallerRole(t *testing.T) {
	f := newFixture(t)
	h := booking.NewHandler(f.svc)

	w := httptest.NewRecorder()
	h.QuoteRoutes(as(uuid.New(), "health-coordinator")).ServeHTTP(w,
		httptest.NewRequest(http.MethodGet, "/quote?consultation_fee=1000&opted_in=true", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var quote booking.FeeBreakdown
	require.NoError(t, json.Unmarshal(env.Data, &quote))
	assert.True(t, amt("100").Equal(quote.PlatformFee))
	assert.True(t, amt("1100").Equal(quote.TotalDue))

	w = httptest.NewRecorder()
	h.QuoteRoutes(as(uuid.New(), "patient")).ServeHTTP(w,
		httptest.NewRequest(http.MethodGet, "/quote?consultation_fee=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerBookAndComplete(t *testing.T) {
	f := newFixture(t)
	h := booking.NewHandler(f.svc)

	body := `{"doctor_id":"` + f.doctor.String() + `","consultation_fee":"1000","opted_into_points":true}`
	w := httptest.NewRecorder()
	h.Routes(as(f.patient, "patient")).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var a booking.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, f.patient, a.PatientID)
	assert.True(t, amt("1050").Equal(a.TotalDue))

	w = httptest.NewRecorder()
	h.Routes(as(f.patient, "patient")).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/"+a.ID.String()+"/complete", nil))
	assert.Equal(t, http.StatusForbidden, w.Code, "patients cannot complete visits")

	w = httptest.NewRecorder()
	h.Routes(as(uuid.New(), "doctor")).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/"+a.ID.String()+"/complete", nil))
	assert.Equal(t, http.StatusForbidden, w.Code, "only the assigned doctor")

	w = httptest.NewRecorder()
	h.Routes(as(f.doctor, "doctor")).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/"+a.ID.String()+"/complete", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, amt("1000").Equal(f.balance(t, f.patient, ledger.WalletHealthPoints)))

	w = httptest.NewRecorder()
	h.Routes(as(f.patient, "patient")).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/"+a.ID.String()+"/cancel", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandlerPartnerMustNamePatient(t *testing.T) {
	f := newFixture(t)
	h := booking.NewHandler(f.svc)

	body := `{"doctor_id":"` + f.doctor.String() + `","consultation_fee":"1000"}`
	w := httptest.NewRecorder()
	h.Routes(as(uuid.New(), "lab")).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
