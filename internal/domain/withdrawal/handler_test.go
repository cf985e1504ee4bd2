package withdrawal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibridge/medibridge-api/internal/domain/withdrawal"
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
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func TestHandlerEnforcesRoleMinimum(t *testing.T) {
	f := newFixture(t, "5000")
	router := withdrawal.NewHandler(f.svc).Routes(as(f.account, "doctor"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"account_name":"Dr. Rao","amount":"999"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "BELOW_MINIMUM", env.Error.Code)
	assert.True(t, amt("5000").Equal(f.balance(t)))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"account_name":"Dr. Rao","amount":"1000"}`)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, amt("4000").Equal(f.balance(t)))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	env = envelope{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var mine []withdrawal.Request
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Len(t, mine, 1)
}

func TestHandlerPatientsCannotWithdraw(t *testing.T) {
	f := newFixture(t, "")
	router := withdrawal.NewHandler(f.svc).Routes(as(uuid.New(), "patient"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"account_name":"Asha","amount":"1000"}`)))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandlerOverdrawIsConflict(t *testing.T) {
	f := newFixture(t, "1200")
	router := withdrawal.NewHandler(f.svc).Routes(as(f.account, "lab"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"account_name":"City Lab","amount":"1500"}`)))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, amt("1200").Equal(f.balance(t)))
}

func TestHandlerAdminResolve(t *testing.T) {
	f := newFixture(t, "1500")
	h := withdrawal.NewHandler(f.svc)
	user := h.Routes(as(f.account, "health-coordinator"))
	admin := as(f.admin, "admin")(h.AdminRoutes())

	w := httptest.NewRecorder()
	user.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"account_name":"Ravi","amount":"1000"}`)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	admin.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?status=pending", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var pending []withdrawal.Request
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.Len(t, pending, 1)

	resolve := func(decision, key string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/"+pending[0].ID.String()+"/resolve", strings.NewReader(`{"decision":"`+decision+`"}`))
		r.Header.Set("Idempotency-Key", key)
		w := httptest.NewRecorder()
		admin.ServeHTTP(w, r)
		return w
	}

	w = resolve("reject", "first")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, amt("1500").Equal(f.balance(t)))

	w = resolve("reject", "first")
	assert.Equal(t, http.StatusOK, w.Code)

	w = resolve("approve", "second")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, amt("1500").Equal(f.balance(t)))

	w = resolve("maybe", "third")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandlerEmptyListsAreArrays(t *testing.T) {
	f := newFixture(t, "")
	h := withdrawal.NewHandler(f.svc)

	for name, router := range map[string]http.Handler{
		"mine":  h.Routes(as(f.account, "doctor")),
		"admin": h.AdminRoutes(),
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code, name)

		var env envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), name)
		assert.JSONEq(t, `[]`, string(env.Data), name)
	}
}
