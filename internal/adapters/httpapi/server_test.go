package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/adapters/signals"
	"github.com/callwarden/call-screener/internal/adapters/store"
	"github.com/callwarden/call-screener/internal/core"
	"github.com/callwarden/call-screener/internal/metrics"
	"github.com/callwarden/call-screener/internal/reputation"
)

const spamListedNumber = "12025550666"

type testServer struct {
	server       *Server
	handler      http.Handler
	store        *store.MemoryStore
	verification *core.VerificationService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zap.NewNop()
	m := metrics.NewNop()
	mem := store.NewMemoryStore(logger)

	carrier := signals.NewStaticCarrierLookup(nil, logger)
	spamDB := signals.NewListSpamDatabase([]string{spamListedNumber}, logger)
	dnc := signals.NewListDncRegistry(nil, logger)

	queue := reputation.NewBatchProcessor(50, time.Hour, m, logger)
	repSvc := reputation.NewService(mem, mem, mem, carrier, queue, m, logger, reputation.Config{DomesticCountry: "US"})

	aggregator := core.NewFeatureAggregator(
		mem, mem, mem, repSvc, carrier, spamDB, dnc,
		nil, nil, nil, m, logger, time.Second, false,
	)
	verification := core.NewVerificationService(mem, mem, m, logger)
	reports := core.NewReportService(mem, mem, logger, 3)
	screening := core.NewScreeningService(aggregator, core.NewRiskEngine(), verification, mem, m, logger, false)

	server := NewServer(screening, verification, reports, repSvc, logger, ":0", 5)
	return &testServer{
		server:       server,
		handler:      server.routes(),
		store:        mem,
		verification: verification,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	return payload
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScreenEndpointAllowsCleanNumber(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/screen", map[string]string{"phone_number": "12025550100"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "allowed", body["action"])
	assert.NotContains(t, body, "verification")
}

func TestScreenEndpointBlocksListedNumber(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/screen", map[string]string{"phone_number": spamListedNumber})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "blocked", body["action"])
	assert.Contains(t, body["reason"], "national spam database")

	verification, ok := body["verification"].(map[string]interface{})
	require.True(t, ok)
	assert.Regexp(t, `^[0-9]{6}$`, verification["code"])
}

func TestScreenEndpointRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/screen", map[string]string{"phone_number": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/screen", bytes.NewBufferString("{broken"))
	raw := httptest.NewRecorder()
	ts.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestBatchScreenEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/screen/batch", map[string][]string{
		"phone_numbers": {"12025550100", "bogus", spamListedNumber},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Len(t, body, 2)
	assert.Contains(t, body, "12025550100")
	assert.Contains(t, body, spamListedNumber)
	assert.NotContains(t, body, "bogus")
}

func TestReputationEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/reputation/12025550100", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, 50.0, body["score"])
	assert.Equal(t, 0.3, body["confidence"])
}

func TestRecalculateEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/reputation/12025550100/recalculate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.NotNil(t, body["factors"])

	// The recompute persisted a record; the next lookup is a fresh hit.
	record, err := ts.store.FindByNumber(context.Background(), "12025550100")
	require.NoError(t, err)
	assert.Equal(t, int(body["score"].(float64)), record.ReputationScore)
}

func TestReportConfirmationFlowBlacklistsNumber(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/reports", map[string]string{
		"phone_number": "12025550123",
		"category":     "robocall",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	reportID, ok := decodeBody(t, rec)["id"].(string)
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		rec = ts.do(t, http.MethodPost, "/reports/"+reportID+"/confirm", map[string]string{
			"phone_number": "12025550123",
		})
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	// Three confirmations escalate to the blacklist, and screening follows.
	rec = ts.do(t, http.MethodPost, "/screen", map[string]string{"phone_number": "12025550123"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "blocked", body["action"])
	assert.Equal(t, "number is blacklisted", body["reason"])
}

func TestConfirmUnknownReport(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/reports/missing/confirm", map[string]string{
		"phone_number": "12025550123",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyGenerateDoesNotLeakCode(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/verify/generate", map[string]string{"phone_number": "12025550100"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Contains(t, body, "expires_at")
	assert.NotContains(t, body, "code")
}

func TestVerifyCheckFlow(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	code, err := ts.verification.GenerateVerificationCode(ctx, "12025550100")
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/verify/check", map[string]string{
		"phone_number": "12025550100",
		"code":         "000000",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/verify/check", map[string]string{
		"phone_number": "12025550100",
		"code":         code.Code,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "verified", decodeBody(t, rec)["status"])

	// Verification promotes the caller to the whitelist.
	rec = ts.do(t, http.MethodPost, "/screen", map[string]string{"phone_number": "12025550100"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "allowed", body["action"])
	assert.Equal(t, "number is whitelisted", body["reason"])
}

func TestVerifyCheckRateLimited(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, ts.store.RecordAttempt(ctx, "12025550100", time.Now()))
	}

	rec := ts.do(t, http.MethodPost, "/verify/check", map[string]string{
		"phone_number": "12025550100",
		"code":         "123456",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
