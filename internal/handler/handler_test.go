package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/slot-booking/internal/auth"
	"github.com/Shivanand-hulikatti/slot-booking/internal/config"
	"github.com/Shivanand-hulikatti/slot-booking/internal/model"
	"github.com/Shivanand-hulikatti/slot-booking/internal/notify"
	"github.com/Shivanand-hulikatti/slot-booking/internal/repository"
	"github.com/Shivanand-hulikatti/slot-booking/internal/service"
	"github.com/Shivanand-hulikatti/slot-booking/internal/store"
)

const (
	slotA         = "2024-06-25 09:00-10:30"
	slotB         = "2024-06-25 10:30-12:00"
	adminPassword = "s3cret"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	h  http.Handler
	mr *miniredis.Miniredis
}

func newTestServer(t *testing.T, ratePerMin int) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	kv := store.NewRedisStore(client, 10)
	trigger := notify.NewTrigger(notify.LogSender{}, time.Second)
	t.Cleanup(trigger.Wait)

	svc := service.NewBookingService(repository.NewRedisBookingRepository(kv), trigger, "http://localhost:8080")
	authn := auth.NewAuthenticator(config.AuthConfig{AdminPassword: adminPassword, Secret: "test-secret"})

	h := NewRouter(RouterConfig{
		Bookings:         svc,
		Auth:             authn,
		Health:           kv,
		CreateRatePerMin: ratePerMin,
		CORSOrigins:      []string{"*"},
	})
	return &testServer{h: h, mr: mr}
}

func (s *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) create(t *testing.T, name, slot string) model.Booking {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/bookings",
		`{"name":"`+name+`","email":"`+strings.ToLower(name)+`@example.com","timeSlot":"`+slot+`"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var b model.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return b
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/admin/login", `{"password":"`+adminPassword+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp model.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	assert.Greater(t, resp.ExpiresAt, time.Now().Unix())
	return resp.Token
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e model.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Error
}

func TestCreateListGet(t *testing.T) {
	s := newTestServer(t, 100)
	a := s.create(t, "Ann", slotA)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, slotA, a.TimeSlot)

	rec := s.do(t, http.MethodGet, "/api/bookings", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var list []model.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []model.Booking{a}, list)

	rec = s.do(t, http.MethodGet, "/api/bookings/"+a.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, a, got)
}

func TestListEmptyIsArray(t *testing.T) {
	s := newTestServer(t, 100)
	rec := s.do(t, http.MethodGet, "/api/bookings", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestListExclude(t *testing.T) {
	s := newTestServer(t, 100)
	a := s.create(t, "Ann", slotA)
	s.create(t, "Bob", slotB)

	for _, param := range []string{"exclude", "excludeTimeSlot"} {
		t.Run(param, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/bookings?"+param+"="+strings.ReplaceAll(slotB, " ", "%20"), "", "")
			require.Equal(t, http.StatusOK, rec.Code)
			var list []model.Booking
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
			assert.Equal(t, []model.Booking{a}, list)
		})
	}
}

func TestCreateErrors(t *testing.T) {
	s := newTestServer(t, 100)
	s.create(t, "Ann", slotA)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMsg  string
	}{
		{name: "slot taken", body: `{"name":"Bob","email":"bob@example.com","timeSlot":"` + slotA + `"}`, wantCode: http.StatusConflict, wantMsg: slotA},
		{name: "missing name", body: `{"email":"bob@example.com","timeSlot":"` + slotB + `"}`, wantCode: http.StatusBadRequest, wantMsg: "name is required"},
		{name: "bad email", body: `{"name":"Bob","email":"bob","timeSlot":"` + slotB + `"}`, wantCode: http.StatusBadRequest, wantMsg: "email"},
		{name: "malformed json", body: `{"name":`, wantCode: http.StatusBadRequest, wantMsg: "invalid request body"},
		{name: "unknown field", body: `{"name":"Bob","email":"bob@example.com","timeSlot":"x","admin":true}`, wantCode: http.StatusBadRequest, wantMsg: "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/bookings", tt.body, "")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, decodeError(t, rec), tt.wantMsg)
		})
	}

	// Nothing beyond Ann's booking was written.
	slots, err := s.mr.Members("booked-time-slots")
	require.NoError(t, err)
	assert.Equal(t, []string{slotA}, slots)
}

func TestGetUnknown(t *testing.T) {
	s := newTestServer(t, 100)
	rec := s.do(t, http.MethodGet, "/api/bookings/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeError(t, rec), "nope")
}

func TestUpdate(t *testing.T) {
	s := newTestServer(t, 100)
	a := s.create(t, "Ann", slotA)
	b := s.create(t, "Bob", slotB)

	t.Run("conflict", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/api/bookings/"+a.ID, `{"timeSlot":"`+slotB+`"}`, "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("free slot after delete", func(t *testing.T) {
		token := s.login(t)
		rec := s.do(t, http.MethodDelete, "/api/bookings/"+b.ID, "", token)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = s.do(t, http.MethodPut, "/api/bookings/"+a.ID, `{"name":"Ann B","timeSlot":"`+slotB+`"}`, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got model.Booking
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, "Ann B", got.Name)
		assert.Equal(t, slotB, got.TimeSlot)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/api/bookings/nope", `{"name":"X"}`, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("blank field", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/api/bookings/"+a.ID, `{"email":""}`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeleteRequiresAdmin(t *testing.T) {
	s := newTestServer(t, 100)
	a := s.create(t, "Ann", slotA)

	rec := s.do(t, http.MethodDelete, "/api/bookings/"+a.ID, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/bookings/"+a.ID, "", "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Still booked.
	rec = s.do(t, http.MethodGet, "/api/bookings/"+a.ID, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	token := s.login(t)
	rec = s.do(t, http.MethodDelete, "/api/bookings/"+a.ID, "", token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/bookings/"+a.ID, "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogin_WrongPassword(t *testing.T) {
	s := newTestServer(t, 100)
	rec := s.do(t, http.MethodPost, "/api/admin/login", `{"password":"guess"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReconcile(t *testing.T) {
	s := newTestServer(t, 100)
	s.create(t, "Ann", slotA)

	rec := s.do(t, http.MethodPost, "/api/admin/reconcile", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A slot in the set with no index entry.
	_, err := s.mr.SAdd("booked-time-slots", slotB)
	require.NoError(t, err)

	token := s.login(t)
	rec = s.do(t, http.MethodPost, "/api/admin/reconcile", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"repaired":1}`, rec.Body.String())

	// The orphaned slot is bookable again.
	s.create(t, "Bob", slotB)
}

func TestCreateRateLimited(t *testing.T) {
	s := newTestServer(t, 2)
	s.create(t, "Ann", slotA)
	s.create(t, "Bob", slotB)

	rec := s.do(t, http.MethodPost, "/api/bookings",
		`{"name":"Cy","email":"cy@example.com","timeSlot":"2024-06-26 09:00-10:30"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Reads are not limited.
	rec = s.do(t, http.MethodGet, "/api/bookings", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "up", wantCode: http.StatusOK},
		{name: "down", err: errors.New("connection refused"), wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HealthCheck(pingerFunc(func(context.Context) error { return tt.err }))
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestHealthRoute(t *testing.T) {
	s := newTestServer(t, 100)
	rec := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, 100)
	req := httptest.NewRequest(http.MethodOptions, "/api/bookings", nil)
	req.Header.Set("Origin", "https://book.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(1)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := rl.Limit(ok)

	call := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:5001"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2:5000"))
}
