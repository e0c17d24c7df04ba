package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cannaflow/cannaflow/pkg/compliance"
	"github.com/cannaflow/cannaflow/pkg/storage"
)

func newTestServer(t *testing.T) (*Server, *compliance.Engine) {
	t.Helper()
	engine := compliance.New(storage.NewMemoryStore())
	require.NoError(t, engine.Initialize(context.Background()))
	return NewServer(engine, nil), engine
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	var response APIResponse
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	}
	return recorder, response
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "ok")
}

func TestGetSettings(t *testing.T) {
	server, _ := newTestServer(t)

	recorder, response := doJSON(t, server, "GET", "/api/settings", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.True(t, response.Success)

	settings, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "BC", settings["province"])
	assert.Equal(t, "CannaFlow Dispensary", settings["business_name"])
}

func TestUpdateSettings(t *testing.T) {
	server, _ := newTestServer(t)

	recorder, response := doJSON(t, server, "PATCH", "/api/settings", map[string]interface{}{
		"province": "ON",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.True(t, response.Success)

	settings := response.Data.(map[string]interface{})
	assert.Equal(t, "ON", settings["province"])
}

func TestUpdateSettingsRejectsBadProvince(t *testing.T) {
	server, _ := newTestServer(t)

	recorder, response := doJSON(t, server, "PATCH", "/api/settings", map[string]interface{}{
		"province": "XX",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.False(t, response.Success)
	assert.NotEmpty(t, response.Error)
}

func TestLogSaleEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	recorder, response := doJSON(t, server, "POST", "/api/logs/sale", map[string]interface{}{
		"total":    45.00,
		"tax":      5.40,
		"staff_id": "staff-1",
		"products": []map[string]interface{}{
			{"name": "Pre-roll", "quantity": 2, "price": 12.50},
		},
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	require.True(t, response.Success)

	entry := response.Data.(map[string]interface{})
	assert.Equal(t, "sale", entry["type"])
	data := entry["data"].(map[string]interface{})
	assert.Equal(t, "BC", data["province"])
	assert.Equal(t, float64(45), data["total"])
}

func TestLogInventoryAndCashFloatEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	recorder, response := doJSON(t, server, "POST", "/api/logs/inventory", map[string]interface{}{
		"product_name":    "Blue Dream 3.5g",
		"adjustment_type": "received",
		"quantity":        24,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	entry := response.Data.(map[string]interface{})
	assert.Equal(t, "inventory", entry["type"])
	// BC backfills a batch id on inventory records.
	data := entry["data"].(map[string]interface{})
	assert.Contains(t, data, "batchId")

	recorder, response = doJSON(t, server, "POST", "/api/logs/cashfloat", map[string]interface{}{
		"activity_type": "open",
		"amount":        200,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	entry = response.Data.(map[string]interface{})
	assert.Equal(t, "cash_float", entry["type"])
}

func TestGetLogsWithFilter(t *testing.T) {
	server, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		recorder, _ := doJSON(t, server, "POST", "/api/logs/sale", map[string]interface{}{"total": 10})
		require.Equal(t, http.StatusCreated, recorder.Code)
	}
	recorder, _ := doJSON(t, server, "POST", "/api/logs/cashfloat", map[string]interface{}{
		"activity_type": "open", "amount": 100,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	rec, response := doJSON(t, server, "GET", "/api/logs?type=sale&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := response.Data.([]interface{})
	assert.Len(t, logs, 2)
}

func TestGetLogsRejectsBadQuery(t *testing.T) {
	server, _ := newTestServer(t)

	recorder, _ := doJSON(t, server, "GET", "/api/logs?type=refund", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder, _ = doJSON(t, server, "GET", "/api/logs?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGenerateSummaryEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	recorder, _ := doJSON(t, server, "POST", "/api/logs/sale", map[string]interface{}{
		"total": 100, "tax": 12,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder, response := doJSON(t, server, "POST", "/api/summary", nil)
	require.Equal(t, http.StatusCreated, recorder.Code)
	entry := response.Data.(map[string]interface{})
	assert.Equal(t, "daily_summary", entry["type"])
	data := entry["data"].(map[string]interface{})
	assert.Equal(t, float64(100), data["totalSales"])
}

func TestIssuesEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	recorder, response := doJSON(t, server, "GET", "/api/issues", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	issues := response.Data.([]interface{})
	require.NotEmpty(t, issues, "a fresh install is missing yesterday's summary")
	first := issues[0].(map[string]interface{})
	assert.Equal(t, "missing_summary", first["type"])
}

func TestRetentionEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	recorder, _ := doJSON(t, server, "POST", "/api/logs/sale", map[string]interface{}{"total": 10})
	require.Equal(t, http.StatusCreated, recorder.Code)

	rec, response := doJSON(t, server, "GET", "/api/retention", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := response.Data.(map[string]interface{})
	assert.Equal(t, float64(1), status["total_logs"])
	assert.Equal(t, float64(6), status["retention_period_years"])

	// Nothing is expired yet; the archive is a no-op.
	rec, response = doJSON(t, server, "POST", "/api/retention/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := response.Data.(map[string]interface{})
	assert.Equal(t, float64(0), result["archived_count"])
}

func TestExportEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	recorder, _ := doJSON(t, server, "POST", "/api/logs/sale", map[string]interface{}{"total": 10})
	require.Equal(t, http.StatusCreated, recorder.Code)

	rec, response := doJSON(t, server, "POST", "/api/export", map[string]interface{}{
		"format": "json",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	result := response.Data.(map[string]interface{})
	assert.Equal(t, float64(1), result["count"])
	assert.Contains(t, result["filename"], "cannaflow_compliance_BC_")
}

func TestExportEmptyWindowIsNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	recorder, response := doJSON(t, server, "POST", "/api/export", map[string]interface{}{
		"format": "csv",
	})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.False(t, response.Success)
}
