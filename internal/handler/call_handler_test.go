package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warmleadnetwork/voice-call-service/internal/broadcast"
	"github.com/warmleadnetwork/voice-call-service/internal/cache"
	"github.com/warmleadnetwork/voice-call-service/internal/carrier"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
	"github.com/warmleadnetwork/voice-call-service/internal/repository"
	"github.com/warmleadnetwork/voice-call-service/internal/services/call"
)

func newAPIRouter(t *testing.T) *mux.Router {
	t.Helper()
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_CALLER_NUMBER", "")

	repos := repository.NewMemoryRepositoryManager()
	repos.SeedAgent(&domain.Agent{ID: "7", Name: "Ava", InitialMessage: "Hi.", Active: true})

	agents := cache.NewAgentCache(repos.Agent(), 0)
	resolver := carrier.NewResolver(repos.CarrierConfig(), false)
	resolver.SetProbe(func(context.Context, string, string) error {
		return errors.New("no live carrier in tests")
	})

	hub := broadcast.NewHub()
	sm := call.NewStateMachine(repos, agents, nil, hub)
	svc := call.NewService(repos, agents, resolver, sm, hub, carrier.NewManualClock(time.Time{}), call.Config{
		PublicBaseURL: "http://calls.example.test",
	})
	ch := NewCallHandler(svc, repos)

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/calls", ch.InitiateCall).Methods("POST")
	api.HandleFunc("/calls/{callId}/end", ch.EndCall).Methods("POST")
	api.HandleFunc("/numbers", ch.ListNumbers).Methods("GET")
	api.HandleFunc("/numbers/purchase", ch.PurchaseNumber).Methods("POST")
	api.HandleFunc("/agents/{agentId}/calls", ch.GetCallHistory).Methods("GET")
	router.HandleFunc("/health", ch.Health).Methods("GET")
	return router
}

func postJSON(router *mux.Router, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestInitiateCallCreated(t *testing.T) {
	router := newAPIRouter(t)

	rec := postJSON(router, "/api/calls", InitiateCallRequest{
		PhoneNumber: "(415) 555-0100",
		AgentID:     "7",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var record domain.Call
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "+14155550100", record.PhoneNumber)
	assert.True(t, record.Simulated)
	assert.NotEmpty(t, record.CallID)
}

func TestInitiateCallValidationErrors(t *testing.T) {
	router := newAPIRouter(t)

	rec := postJSON(router, "/api/calls", InitiateCallRequest{AgentID: "7"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(router, "/api/calls", InitiateCallRequest{
		PhoneNumber: "not a number!",
		AgentID:     "7",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, domain.ErrCodeInvalidPhoneNumber, body.Error.Code)
}

func TestInitiateCallUnknownAgent404(t *testing.T) {
	router := newAPIRouter(t)

	rec := postJSON(router, "/api/calls", InitiateCallRequest{
		PhoneNumber: "+14155550100",
		AgentID:     "999",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEndCallUnknown404(t *testing.T) {
	router := newAPIRouter(t)

	rec := postJSON(router, "/api/calls/CAmissing/end", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPurchaseNumberConflict409(t *testing.T) {
	router := newAPIRouter(t)

	rec := postJSON(router, "/api/numbers/purchase", PurchaseNumberRequest{PhoneNumber: "+14155552672"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(router, "/api/numbers/purchase", PurchaseNumberRequest{PhoneNumber: "+14155552672"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListNumbersOK(t *testing.T) {
	router := newAPIRouter(t)

	req := httptest.NewRequest("GET", "/api/numbers?limit=3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Numbers []domain.NumberInfo `json:"numbers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Numbers, 3)
}

func TestHealthOK(t *testing.T) {
	router := newAPIRouter(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
