package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelsupply/replenisher-agent/auth"
	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/kestrelsupply/replenisher-agent/jobs/memjobs"
	"github.com/kestrelsupply/replenisher-agent/pkg/cycle"
	"github.com/kestrelsupply/replenisher-agent/pkg/metrics"
	"github.com/kestrelsupply/replenisher-agent/pkg/policy"
	"github.com/kestrelsupply/replenisher-agent/pkg/scheduler"
	"github.com/kestrelsupply/replenisher-agent/pkg/streaming"
	"github.com/kestrelsupply/replenisher-agent/store/memstore"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *auth.Issuer) {
	t.Helper()
	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)
	issuer := auth.NewIssuer(auth.Config{SigningKey: []byte("test-secret"), Username: "operator", PasswordHash: hash})

	store := memstore.New()
	jobs := memjobs.New()
	driver := cycle.NewDriver(store, nil, nil, nil)
	sched := scheduler.New(driver, jobs, scheduler.DefaultConfig(), nil)

	return &Server{
		Store:     store,
		Jobs:      jobs,
		Scheduler: sched,
		Bus:       streaming.NewBus(),
		Dashboard: streaming.NewDashboard(nil),
		Metrics:   metrics.New(),
		Policy:    policy.NewEngine(policy.DefaultLimits()),
		Issuer:    issuer,
	}, issuer
}

func bearerFor(t *testing.T, issuer *auth.Issuer) string {
	t.Helper()
	tok, err := issuer.Authenticate("operator", "correct-horse")
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestHealthz_DoesNotRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics_ExposesPrometheusFormatWithoutAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestToken_RejectsWrongPassword(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.NewRouter()

	body, _ := json.Marshal(map[string]string{"username": "operator", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestToken_IssuesBearerTokenOnValidCredentials(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.NewRouter()

	body, _ := json.Marshal(map[string]string{"username": "operator", "password": "correct-horse"})
	req := httptest.NewRequest(http.MethodPost, "/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "bearer", resp.TokenType)
	require.NotEmpty(t, resp.AccessToken)
}

func TestProtectedRoute_RejectsRequestWithoutToken(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/inventory", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpsertAndGetInventory_RoundTripsThroughTheStore(t *testing.T) {
	srv, issuer := newTestServer(t)
	r := srv.NewRouter()
	bearer := bearerFor(t, issuer)

	body, _ := json.Marshal(core.InventoryRecord{ProductName: "Widget", Quantity: 20, IsActive: true})
	req := httptest.NewRequest(http.MethodPut, "/inventory/SKU-A", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/inventory/SKU-A", nil)
	req.Header.Set("Authorization", bearer)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got core.InventoryRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "SKU-A", got.SKU)
	require.Equal(t, "Widget", got.ProductName)
}

func TestGetInventory_UnknownSKUReturnsNotFound(t *testing.T) {
	srv, issuer := newTestServer(t)
	r := srv.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/inventory/SKU-GONE", nil)
	req.Header.Set("Authorization", bearerFor(t, issuer))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordSale_DefaultsDateWhenOmitted(t *testing.T) {
	srv, issuer := newTestServer(t)
	r := srv.NewRouter()
	bearer := bearerFor(t, issuer)

	body, _ := json.Marshal(core.SalesEvent{SKU: "SKU-A", SoldQuantity: 3})
	req := httptest.NewRequest(http.MethodPost, "/sales", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	sales, err := srv.Store.ListSalesSince(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, sales, 1)
	require.False(t, sales[0].Date.IsZero())
}

func TestRunOnce_TriggersAJobAndItBecomesRetrievable(t *testing.T) {
	srv, issuer := newTestServer(t)
	r := srv.NewRouter()
	bearer := bearerFor(t, issuer)

	req := httptest.NewRequest(http.MethodPost, "/agent/run_once", nil)
	req.Header.Set("Authorization", bearer)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var job core.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.NotEqual(t, uuid.Nil, job.ID)

	req = httptest.NewRequest(http.MethodGet, "/agent/job/"+job.ID.String(), nil)
	req.Header.Set("Authorization", bearer)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetJob_InvalidUUIDReturnsBadRequest(t *testing.T) {
	srv, issuer := newTestServer(t)
	r := srv.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/agent/job/not-a-uuid", nil)
	req.Header.Set("Authorization", bearerFor(t, issuer))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob_UnknownIDReturnsNotFound(t *testing.T) {
	srv, issuer := newTestServer(t)
	r := srv.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/agent/job/"+uuid.New().String(), nil)
	req.Header.Set("Authorization", bearerFor(t, issuer))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPolicyStatus_ReportsSpendAndRemaining(t *testing.T) {
	srv, issuer := newTestServer(t)
	r := srv.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/policy", nil)
	req.Header.Set("Authorization", bearerFor(t, issuer))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp["status"], "spent")
	require.Equal(t, "5000", resp["remaining"])
}

func TestListAlerts_ReturnsEmptyArrayNotNull(t *testing.T) {
	srv, issuer := newTestServer(t)
	r := srv.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	req.Header.Set("Authorization", bearerFor(t, issuer))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestLatestCheckpoint_NoneSavedReturnsNotFound(t *testing.T) {
	srv, issuer := newTestServer(t)
	r := srv.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/persistence/checkpoint", nil)
	req.Header.Set("Authorization", bearerFor(t, issuer))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
