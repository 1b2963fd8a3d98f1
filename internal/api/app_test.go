package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewarden/sitewarden/internal/auth"
	"github.com/sitewarden/sitewarden/internal/chain"
	"github.com/sitewarden/sitewarden/internal/dismissed"
	"github.com/sitewarden/sitewarden/internal/evidence"
	"github.com/sitewarden/sitewarden/internal/market"
	"github.com/sitewarden/sitewarden/internal/metrics"
	"github.com/sitewarden/sitewarden/internal/report"
	"github.com/sitewarden/sitewarden/pkg/types"
)

const (
	testSecret  = "test-secret"
	adminWallet = "0xada0000000000000000000000000000000000001"
	userWallet  = "0x0000000000000000000000000000000000000bee"
)

type stubClassifier struct {
	label string
}

func (s *stubClassifier) Classify(_ context.Context, _ string) (types.Verdict, error) {
	return types.Verdict{Label: s.label, Confidence: 0.9}, nil
}

type memLedger struct {
	mu      sync.Mutex
	reports []types.Report
}

func (m *memLedger) Submit(_ context.Context, domain, accused string, ev evidence.Fingerprint, _ bool) (types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, types.Report{
		ID:            uint64(len(m.reports)),
		Domain:        domain,
		AccusedWallet: accused,
		Reporter:      adminWallet,
		EvidenceHash:  ev.Hex(),
		Timestamp:     time.Now().UTC(),
		Status:        types.ReportStatusReported,
	})
	return types.Receipt{TxHash: fmt.Sprintf("0x%d", len(m.reports)-1)}, nil
}

func (m *memLedger) Count(_ context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.reports)), nil
}

func (m *memLedger) Get(_ context.Context, index uint64) (types.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index >= uint64(len(m.reports)) {
		return types.Report{}, chain.ErrNotFound
	}
	return m.reports[index], nil
}

func (m *memLedger) SetStatus(_ context.Context, index uint64, status types.ReportStatus) (types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index >= uint64(len(m.reports)) {
		return types.Receipt{}, chain.ErrNotFound
	}
	m.reports[index].Status = status
	return types.Receipt{TxHash: "0xset"}, nil
}

func (m *memLedger) WalletBanned(_ context.Context, _ string) (bool, error) { return false, nil }
func (m *memLedger) URLBanned(_ context.Context, _ string) (bool, error)   { return false, nil }

type memRewards struct{}

func (memRewards) ConfigureTarget(_ context.Context) (types.Receipt, error) {
	return types.Receipt{TxHash: "0xcfg"}, nil
}

func (memRewards) FlagThreat(_ context.Context, _, _ string, _ evidence.Fingerprint, _ string) (types.Receipt, error) {
	return types.Receipt{TxHash: "0xflag"}, nil
}

func (memRewards) RegisterReport(_ context.Context, _ string, _ evidence.Fingerprint) (types.Receipt, error) {
	return types.Receipt{TxHash: "0xreg"}, nil
}

type testEnv struct {
	app    *App
	ledger *memLedger
	srv    *httptest.Server
}

func newTestEnv(t *testing.T, label string) *testEnv {
	t.Helper()
	dir := t.TempDir()

	dstore, err := dismissed.Open(filepath.Join(dir, "dismissed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dstore.Close() })

	mstore, err := market.Open(filepath.Join(dir, "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mstore.Close() })

	verifier, err := auth.NewVerifier(testSecret, []string{adminWallet})
	require.NoError(t, err)

	ledger := &memLedger{}
	svc := report.NewService(&stubClassifier{label: label}, ledger, memRewards{}, dstore, metrics.New(), nil)
	app := NewApp(svc, dstore, mstore, verifier, metrics.New(), nil)

	srv := httptest.NewServer(app.Router())
	t.Cleanup(srv.Close)
	return &testEnv{app: app, ledger: ledger, srv: srv}
}

func signToken(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t, "benign")

	resp := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestScan(t *testing.T) {
	e := newTestEnv(t, "phishing")

	resp := e.do(t, http.MethodPost, "/api/v1/scan", "", map[string]string{"url": "evil.example"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := decodeBody[types.Verdict](t, resp)
	assert.Equal(t, "phishing", v.Label)
	assert.Empty(t, e.ledger.reports, "scan must not write to the ledger")
}

func TestReportSite_Threat(t *testing.T) {
	e := newTestEnv(t, "phishing")

	resp := e.do(t, http.MethodPost, "/api/v1/reports", "", map[string]string{
		"url":           "evil.example",
		"accusedWallet": userWallet,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, e.ledger.reports, 1)
	assert.Equal(t, "evil.example", e.ledger.reports[0].Domain)
}

func TestReportSite_MissingFields(t *testing.T) {
	e := newTestEnv(t, "phishing")

	resp := e.do(t, http.MethodPost, "/api/v1/reports", "", map[string]string{"url": "evil.example"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, e.ledger.reports)
}

func TestUserReportThenListAndVerify(t *testing.T) {
	e := newTestEnv(t, "phishing")

	resp := e.do(t, http.MethodPost, "/api/v1/reports/user", "", map[string]string{
		"url":        "evil.example",
		"userWallet": userWallet,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/v1/reports", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeBody[map[string]json.RawMessage](t, resp)
	var reports []map[string]any
	require.NoError(t, json.Unmarshal(page["reports"], &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "Reported", reports[0]["status"])

	admin := signToken(t, adminWallet)
	resp = e.do(t, http.MethodPost, "/api/v1/reports/0/verify", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/v1/reports/verified", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	verified := decodeBody[types.ReportPage](t, resp)
	assert.Equal(t, uint64(1), verified.TotalReports)

	resp = e.do(t, http.MethodGet, "/api/v1/reports/pending", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decodeBody[types.ReportPage](t, resp)
	assert.Zero(t, pending.TotalReports)
}

func TestVerify_AuthGates(t *testing.T) {
	e := newTestEnv(t, "phishing")
	e.do(t, http.MethodPost, "/api/v1/reports/user", "", map[string]string{
		"url": "evil.example", "userWallet": userWallet,
	})

	resp := e.do(t, http.MethodPost, "/api/v1/reports/0/verify", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/reports/0/verify", signToken(t, userWallet), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// No chain effect from the denied attempts.
	assert.Equal(t, types.ReportStatusReported, e.ledger.reports[0].Status)
}

func TestVerify_BadID(t *testing.T) {
	e := newTestEnv(t, "phishing")
	admin := signToken(t, adminWallet)

	resp := e.do(t, http.MethodPost, "/api/v1/reports/abc/verify", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/reports/7/verify", admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVerify_TwiceConflicts(t *testing.T) {
	e := newTestEnv(t, "phishing")
	e.do(t, http.MethodPost, "/api/v1/reports/user", "", map[string]string{
		"url": "evil.example", "userWallet": userWallet,
	})
	admin := signToken(t, adminWallet)

	resp := e.do(t, http.MethodPost, "/api/v1/reports/0/verify", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/reports/0/verify", admin, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDismiss(t *testing.T) {
	e := newTestEnv(t, "phishing")
	admin := signToken(t, adminWallet)

	resp := e.do(t, http.MethodPost, "/api/v1/dismissed", admin, map[string]any{"reportId": 3})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/dismissed", admin, map[string]any{"reportId": 3})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/dismissed", admin, map[string]any{"reportId": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/dismissed", admin, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/dismissed", "", map[string]any{"reportId": 4})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/v1/dismissed", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDismissedFilterOnPendingView(t *testing.T) {
	e := newTestEnv(t, "phishing")
	for i := 0; i < 2; i++ {
		e.do(t, http.MethodPost, "/api/v1/reports/user", "", map[string]string{
			"url": fmt.Sprintf("evil%d.example", i), "userWallet": userWallet,
		})
	}
	admin := signToken(t, adminWallet)
	resp := e.do(t, http.MethodPost, "/api/v1/dismissed", admin, map[string]any{"reportId": 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/v1/reports/pending", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decodeBody[types.ReportPage](t, resp)
	require.Equal(t, uint64(1), pending.TotalReports)
	assert.Equal(t, "evil0.example", pending.Reports[0].Domain)

	// Dismissal never touches ledger status.
	assert.Equal(t, types.ReportStatusReported, e.ledger.reports[1].Status)
}

func TestCreateMarketplace_Benign(t *testing.T) {
	e := newTestEnv(t, "benign")
	token := signToken(t, userWallet)

	resp := e.do(t, http.MethodPost, "/api/v1/marketplaces", token, map[string]any{
		"name":           "Fair Trade",
		"marketplaceUrl": "https://fair.example",
		"category":       "electronics",
		"tags":           []string{"new"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Empty(t, e.ledger.reports, "benign listing must not touch the ledger")

	resp = e.do(t, http.MethodGet, "/api/v1/marketplaces", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateMarketplace_Malicious(t *testing.T) {
	e := newTestEnv(t, "phishing")
	token := signToken(t, userWallet)

	resp := e.do(t, http.MethodPost, "/api/v1/marketplaces", token, map[string]any{
		"name":           "Shady",
		"marketplaceUrl": "evil.example",
		"category":       "electronics",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Exactly one report, already auto-verified; no listing created.
	require.Len(t, e.ledger.reports, 1)
	assert.Equal(t, types.ReportStatusVerified, e.ledger.reports[0].Status)

	resp = e.do(t, http.MethodGet, "/api/v1/marketplaces/mine", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string][]types.Listing](t, resp)
	assert.Empty(t, body["marketplaces"])
}

func TestCreateMarketplace_DuplicateCategory(t *testing.T) {
	e := newTestEnv(t, "benign")
	token := signToken(t, userWallet)

	body := map[string]any{
		"name":           "Fair Trade",
		"marketplaceUrl": "https://fair.example",
		"category":       "electronics",
	}
	resp := e.do(t, http.MethodPost, "/api/v1/marketplaces", token, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/marketplaces", token, body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDeleteMarketplace_OwnerOnly(t *testing.T) {
	e := newTestEnv(t, "benign")
	owner := signToken(t, userWallet)
	other := signToken(t, "0xother")

	resp := e.do(t, http.MethodPost, "/api/v1/marketplaces", owner, map[string]any{
		"name":           "Fair Trade",
		"marketplaceUrl": "https://fair.example",
		"category":       "electronics",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[map[string]types.Listing](t, resp)
	id := created["marketplace"].ID

	resp = e.do(t, http.MethodDelete, "/api/v1/marketplaces/"+id, other, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/v1/marketplaces/"+id, owner, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
