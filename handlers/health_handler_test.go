package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/academic-records/repositories/postgres"
	"github.com/upb/academic-records/services/audit"
	"github.com/upb/academic-records/services/session"
	"go.uber.org/zap"
)

type fixedSessions int

func (n fixedSessions) ActiveSessions() int { return int(n) }

type fixedSessionStats session.Stats

func (s fixedSessionStats) Stats() session.Stats { return session.Stats(s) }

type fixedKeyCache map[string]interface{}

func (c fixedKeyCache) CacheStats() map[string]interface{} { return c }

type fixedAuditStats audit.Stats

func (s fixedAuditStats) GetStats() audit.Stats { return audit.Stats(s) }

func mockDatabase(t *testing.T) (*postgres.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return postgres.WrapDB(sqlDB, zap.NewNop()), mock
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestHandleHealth(t *testing.T) {
	logger := zap.NewNop()

	t.Run("always returns healthy", func(t *testing.T) {
		handler := NewHealthHandler(ReadinessSources{}, nil, logger)

		w := httptest.NewRecorder()
		handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		response := decodeHealth(t, w)
		assert.Equal(t, "healthy", response.Status)
		assert.NotEmpty(t, response.Timestamp)
		assert.Nil(t, response.ActiveSessions)
	})

	t.Run("reports active sessions", func(t *testing.T) {
		handler := NewHealthHandler(ReadinessSources{}, fixedSessions(3), logger)

		w := httptest.NewRecorder()
		handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		response := decodeHealth(t, w)
		require.NotNil(t, response.ActiveSessions)
		assert.Equal(t, 3, *response.ActiveSessions)
	})
}

func TestHandleReadiness(t *testing.T) {
	logger := zap.NewNop()

	t.Run("healthy when database is available", func(t *testing.T) {
		db, mock := mockDatabase(t)

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		handler := NewHealthHandler(ReadinessSources{Database: db}, nil, logger)
		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		response := decodeHealth(t, w)
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, "healthy", response.Checks["database"])
		assert.Contains(t, response.Details, "database_pool")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports sessions, signing keys and audit queue", func(t *testing.T) {
		db, mock := mockDatabase(t)
		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		handler := NewHealthHandler(ReadinessSources{
			Database:    db,
			Sessions:    fixedSessionStats{Stored: 2, Issued: 5, Revoked: 3, TTLSeconds: 3600},
			SigningKeys: fixedKeyCache{"cached_keys_count": 2},
			Audit:       fixedAuditStats{BufferSize: 100, PendingEvents: 4, WorkerCount: 2, Started: true},
		}, nil, logger)
		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		require.Equal(t, http.StatusOK, w.Code)
		response := decodeHealth(t, w)

		sessions, ok := response.Details["sessions"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(2), sessions["stored"])
		assert.Equal(t, float64(3600), sessions["ttl_seconds"])

		keys, ok := response.Details["signing_keys"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(2), keys["cached_keys_count"])

		queue, ok := response.Details["audit"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(4), queue["pending_events"])
		assert.Equal(t, true, queue["started"])

		pool, ok := response.Details["database_pool"].(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, pool, "in_use")
	})

	t.Run("unhealthy when database ping fails", func(t *testing.T) {
		db, mock := mockDatabase(t)

		mock.ExpectPing().WillReturnError(sql.ErrConnDone)

		handler := NewHealthHandler(ReadinessSources{Database: db}, nil, logger)
		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		response := decodeHealth(t, w)
		assert.Equal(t, "unhealthy", response.Status)
		assert.Equal(t, "unhealthy", response.Checks["database"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unhealthy when database query fails", func(t *testing.T) {
		db, mock := mockDatabase(t)

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnError(sql.ErrConnDone)

		handler := NewHealthHandler(ReadinessSources{Database: db}, nil, logger)
		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "unhealthy", decodeHealth(t, w).Checks["database"])
	})

	t.Run("not ready without a database", func(t *testing.T) {
		handler := NewHealthHandler(ReadinessSources{}, nil, logger)
		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "not_configured", decodeHealth(t, w).Checks["database"])
	})
}
