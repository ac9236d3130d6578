package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfanfaraaz/sss-backend/internal/audit"
	"github.com/irfanfaraaz/sss-backend/internal/ledger"
	"github.com/irfanfaraaz/sss-backend/internal/metrics"
	"github.com/irfanfaraaz/sss-backend/internal/models"
	"github.com/irfanfaraaz/sss-backend/internal/notification"
)

const (
	testProgramID = "3zFReCtrBsjMZNabaV4vJSaCHtTpFtApkWMjrr5gAeeM"
	testMint      = "So11111111111111111111111111111111111111112"
	testRecipient = "4VKhzS8cyVXJPD9VpAopu4g16wzKA6YDm8Wr2TadR7qi"
	testTreasury  = "FdvULBnUntDJgSdkiZFPKFtJtGxsyd7G9XKDjJgH9oJi"
)

type fakeEvents struct {
	events []models.IndexedEvent
	last   models.EventFilter
}

func (f *fakeEvents) Query(filter models.EventFilter) []models.IndexedEvent {
	f.last = filter
	return f.events
}

func (f *fakeEvents) Len() int { return len(f.events) }

type fakeNode struct {
	err    error
	checks int
}

func (f *fakeNode) HealthCheck(context.Context) error {
	f.checks++
	return f.err
}

func (f *fakeNode) Stats() ledger.ConnectionStats {
	return ledger.ConnectionStats{
		Endpoint:      "http://rpc.test",
		TotalRequests: uint64(f.checks),
		IsHealthy:     f.err == nil && f.checks > 0,
	}
}

type fakeAccounts struct {
	data map[string][]byte
}

func (f *fakeAccounts) GetAccountInfo(_ context.Context, pubkey string) (*ledger.AccountInfo, error) {
	raw, ok := f.data[pubkey]
	if !ok {
		return nil, nil
	}
	return &ledger.AccountInfo{Data: base64.StdEncoding.EncodeToString(raw)}, nil
}

type fakeScreener struct {
	denied map[string]string
	calls  []string
}

func (f *fakeScreener) Screen(_ context.Context, mint, address string) models.ScreeningResult {
	f.calls = append(f.calls, mint+"/"+address)
	if reason, ok := f.denied[address]; ok {
		return models.ScreeningResult{Allowed: false, Reason: reason}
	}
	return models.ScreeningResult{Allowed: true}
}

type fakeSubmitter struct {
	signature string
	err       error
	ops       []ledger.Operation
}

func (f *fakeSubmitter) Submit(_ context.Context, op ledger.Operation) (string, error) {
	f.ops = append(f.ops, op)
	if f.err != nil {
		return "", f.err
	}
	return f.signature, nil
}

type dispatched struct {
	eventType models.EventType
	payload   models.WebhookPayload
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []dispatched
}

func (f *fakeNotifier) Dispatch(eventType models.EventType, payload models.WebhookPayload) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatched{eventType, payload})
	return true
}

func (f *fakeNotifier) Wait(context.Context) error { return nil }

func (f *fakeNotifier) GetStats() *notification.NotificationStats {
	return &notification.NotificationStats{}
}

type harness struct {
	server    *HTTPServer
	events    *fakeEvents
	node      *fakeNode
	accounts  *fakeAccounts
	screener  *fakeScreener
	submitter *fakeSubmitter
	audit     *audit.Log
	notifier  *fakeNotifier
}

func configData(t *testing.T, paused bool) []byte {
	t.Helper()
	key, err := base58.Decode(testMint)
	require.NoError(t, err)

	str := func(s string) []byte {
		out := make([]byte, 4, 4+len(s))
		binary.LittleEndian.PutUint32(out, uint32(len(s)))
		return append(out, s...)
	}

	data := make([]byte, 8)
	data = append(data, 255)
	data = append(data, key...)
	data = append(data, key...)
	data = append(data, str("Test USD")...)
	data = append(data, str("TUSD")...)
	data = append(data, str("")...)
	data = append(data, 6)
	if paused {
		return append(data, 1)
	}
	return append(data, 0)
}

func newHarness(t *testing.T, mutate ...func(*ServerConfig)) *harness {
	t.Helper()

	configAddr, err := ledger.ConfigAddress(testMint, testProgramID)
	require.NoError(t, err)

	h := &harness{
		events:    &fakeEvents{},
		node:      &fakeNode{},
		accounts:  &fakeAccounts{data: map[string][]byte{configAddr: configData(t, false)}},
		screener:  &fakeScreener{denied: map[string]string{}},
		submitter: &fakeSubmitter{signature: "sig-abc"},
		audit:     audit.NewLog(),
		notifier:  &fakeNotifier{},
	}

	cfg := &ServerConfig{
		Host:          "127.0.0.1",
		Port:          0,
		EnableMetrics: true,
		RPCURL:        "http://rpc.test",
		ProgramID:     testProgramID,
		DefaultMint:   testMint,
	}
	for _, m := range mutate {
		m(cfg)
	}

	srv, err := NewHTTPServer(cfg, Dependencies{
		Events:    h.events,
		Node:      h.node,
		Accounts:  h.accounts,
		Screener:  h.screener,
		Submitter: h.submitter,
		Audit:     h.audit,
		Notifier:  h.notifier,
	}, metrics.NewManager())
	require.NoError(t, err)
	h.server = srv
	return h
}

func (h *harness) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewHTTPServer_RequiresDependencies(t *testing.T) {
	_, err := NewHTTPServer(&ServerConfig{}, Dependencies{}, nil)
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"ok": true, "rpc": "http://rpc.test"}, decode(t, rec))

	assert.Equal(t, 1, h.node.checks)

	h.node.err = errors.New("connection refused")
	rec = h.do("GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "connection refused", body["error"])
}

func TestListEvents(t *testing.T) {
	h := newHarness(t)
	h.events.events = []models.IndexedEvent{{Signature: "s1", Slot: 10, EventType: models.EventTypeMint}}

	rec := h.do("GET", "/events?mint=M1&limit=5&before=s9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.EventFilter{Mint: "M1", Limit: 5, Before: "s9"}, h.events.last)

	events := decode(t, rec)["events"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "s1", events[0].(map[string]interface{})["signature"])

	h.do("GET", "/events?limit=abc", nil)
	assert.Equal(t, models.EventFilter{}, h.events.last)
}

func TestScreen(t *testing.T) {
	h := newHarness(t)
	h.screener.denied[testRecipient] = "On blacklist"

	rec := h.do("GET", "/screen", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do("GET", "/screen?address="+testRecipient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"allowed": false, "reason": "On blacklist"}, decode(t, rec))
	assert.Equal(t, []string{testMint + "/" + testRecipient}, h.screener.calls)

	rec = h.do("POST", "/screen", map[string]string{"address": testTreasury, "mint": "OtherMint"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"allowed": true}, decode(t, rec))
	assert.Equal(t, "OtherMint/"+testTreasury, h.screener.calls[1])
}

func TestMint_Success(t *testing.T) {
	h := newHarness(t)

	rec := h.do("POST", "/mint", map[string]string{"recipient": testRecipient, "amount": "1000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]interface{}{"signature": "sig-abc"}, decode(t, rec))

	require.Len(t, h.submitter.ops, 1)
	assert.Equal(t, ledger.Operation{
		Action:    ledger.ActionMint,
		Mint:      testMint,
		Recipient: testRecipient,
		Amount:    "1000",
	}, h.submitter.ops[0])
	assert.Equal(t, []string{testMint + "/" + testRecipient}, h.screener.calls)

	records := h.audit.List()
	require.Len(t, records, 1)
	assert.Equal(t, "mint", records[0].Event)
	assert.Equal(t, map[string]interface{}{
		"mint":      testMint,
		"recipient": testRecipient,
		"amount":    "1000",
		"signature": "sig-abc",
	}, records[0].Payload)

	require.Len(t, h.notifier.calls, 1)
	call := h.notifier.calls[0]
	assert.Equal(t, models.EventTypeMint, call.eventType)
	assert.Equal(t, "sig-abc", call.payload.Signature)
	assert.Equal(t, testMint, call.payload.Mint)
}

func TestMint_Paused(t *testing.T) {
	h := newHarness(t)
	configAddr, err := ledger.ConfigAddress(testMint, testProgramID)
	require.NoError(t, err)
	h.accounts.data[configAddr] = configData(t, true)

	rec := h.do("POST", "/mint", map[string]string{"recipient": testRecipient, "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Program is paused", decode(t, rec)["error"])
	assert.Empty(t, h.submitter.ops)
	assert.Zero(t, h.audit.Len())
}

func TestMint_MissingConfigAccount(t *testing.T) {
	h := newHarness(t)
	h.accounts.data = map[string][]byte{}

	rec := h.do("POST", "/mint", map[string]string{"recipient": testRecipient, "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ledger.ErrAccountNotFound.Error(), decode(t, rec)["error"])
	assert.Empty(t, h.submitter.ops)
}

func TestMint_ScreeningDenied(t *testing.T) {
	h := newHarness(t)
	h.screener.denied[testRecipient] = "On blacklist"

	rec := h.do("POST", "/mint", map[string]string{"recipient": testRecipient, "amount": "1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "On blacklist", decode(t, rec)["reason"])
	assert.Empty(t, h.submitter.ops)
	assert.Empty(t, h.notifier.calls)
}

func TestMint_ValidationErrors(t *testing.T) {
	h := newHarness(t)

	rec := h.do("POST", "/mint", map[string]string{"recipient": "bad", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "recipient must be a base58 public key")

	rec = h.do("POST", "/mint", map[string]string{"recipient": testRecipient, "amount": "-5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest("POST", "/mint", strings.NewReader("{not json"))
	raw := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	assert.Empty(t, h.submitter.ops)
}

func TestMint_NoMintConfigured(t *testing.T) {
	h := newHarness(t, func(c *ServerConfig) { c.DefaultMint = "" })

	rec := h.do("POST", "/mint", map[string]string{"recipient": testRecipient, "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Mint not set", decode(t, rec)["error"])
}

func TestBurn_WithoutFromSkipsScreening(t *testing.T) {
	h := newHarness(t)

	rec := h.do("POST", "/burn", map[string]string{"amount": "7"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, h.screener.calls)
	assert.Equal(t, map[string]interface{}{"mint": testMint, "amount": "7", "signature": "sig-abc"}, h.audit.List()[0].Payload)

	h.screener.denied[testRecipient] = "Screening service error: 500"
	rec = h.do("POST", "/burn", map[string]string{"amount": "7", "from": testRecipient})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBlacklistAndSeize(t *testing.T) {
	h := newHarness(t)

	rec := h.do("POST", "/blacklist/add", map[string]string{"address": testRecipient, "reason": "sanctions"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do("POST", "/blacklist/remove", map[string]string{"address": testRecipient})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do("POST", "/seize", map[string]string{"from": testRecipient, "treasury": testTreasury})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// no pause check or screening for compliance actions
	assert.Empty(t, h.screener.calls)

	records := h.audit.List()
	require.Len(t, records, 3)
	assert.Equal(t, "blacklist_add", records[0].Event)
	assert.Equal(t, "sanctions", records[0].Payload["reason"])
	assert.Equal(t, "blacklist_remove", records[1].Event)
	assert.Equal(t, "seize", records[2].Event)
	assert.Equal(t, "0", records[2].Payload["amount"])
	assert.Equal(t, testTreasury, records[2].Payload["treasury"])

	require.Len(t, h.notifier.calls, 3)
	assert.Equal(t, models.EventTypeSeize, h.notifier.calls[2].eventType)
	assert.Equal(t, "0", h.submitter.ops[2].Amount)
}

func TestSubmitterErrors(t *testing.T) {
	h := newHarness(t)

	h.submitter.err = ledger.ErrSubmitterNotConfigured
	rec := h.do("POST", "/blacklist/remove", map[string]string{"address": testRecipient})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.submitter.err = errors.New("insufficient funds")
	rec = h.do("POST", "/blacklist/remove", map[string]string{"address": testRecipient})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "insufficient funds", decode(t, rec)["error"])

	assert.Zero(t, h.audit.Len())
	assert.Empty(t, h.notifier.calls)
}

func TestAPIKey(t *testing.T) {
	h := newHarness(t, func(c *ServerConfig) { c.APIKey = "k1" })
	body := map[string]string{"address": testRecipient}

	rec := h.do("POST", "/blacklist/add", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do("POST", "/blacklist/add", body, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do("POST", "/blacklist/add", body, "Authorization", "Bearer k1")
	assert.Equal(t, http.StatusOK, rec.Code)

	// read endpoints stay open
	rec = h.do("GET", "/audit", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditEndpoints(t *testing.T) {
	h := newHarness(t)
	h.audit.Record("mint", map[string]interface{}{"mint": testMint, "amount": "1", "signature": "s1"})
	h.audit.Record("seize", map[string]interface{}{"mint": testMint, "signature": "s2"})

	rec := h.do("GET", "/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["events"], 2)

	rec = h.do("GET", "/audit?action=seize", nil)
	events := decode(t, rec)["events"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "seize", events[0].(map[string]interface{})["event"])

	rec = h.do("GET", "/audit/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Regexp(t, `^attachment; filename="audit-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}\.csv"$`, rec.Header().Get("Content-Disposition"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(audit.CSVColumns, ","), lines[0])

	rec = h.do("GET", "/audit/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".json")

	rec = h.do("GET", "/audit/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestID(t *testing.T) {
	h := newHarness(t)

	rec := h.do("GET", "/audit", nil)
	assert.Len(t, rec.Header().Get(HeaderRequestID), 36)

	rec = h.do("GET", "/audit", nil, HeaderRequestID, "req-123")
	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
}

func TestMetricsAndStats(t *testing.T) {
	h := newHarness(t)
	h.do("GET", "/health", nil)

	rec := h.do("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")

	rec = h.do("GET", "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 0, body["events_stored"])
	assert.NotContains(t, body, "indexer")

	node, ok := body["ledger"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "http://rpc.test", node["endpoint"])
	assert.Equal(t, true, node["is_healthy"])
	assert.EqualValues(t, 1, node["total_requests"])
}
