package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"iot-telemetry/internal/domain"
	httpapi "iot-telemetry/internal/http"
	"iot-telemetry/internal/repository"
	"iot-telemetry/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func setupRouter(t *testing.T, repo repository.ReadingRepository) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	ingest := service.NewIngestService(repo, nil, nil, logger)
	query := service.NewQueryService(repo, service.DefaultRecentWindow)

	router := httpapi.NewRouter(logger)
	router.RegisterReadingRoutes(httpapi.NewReadingsHandler(ingest, query, logger))
	router.RegisterOpsRoutes(httpapi.NewHealthHandler(func() bool { return false }, "memory"), nil)
	return router.Handler()
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPostReading_StoresAndRoundsOnRead(t *testing.T) {
	repo := repository.NewMemoryReadingRepository()
	h := setupRouter(t, repo)

	rec := doRequest(h, http.MethodPost, httpapi.PathIngest, `{"temp":25.555,"umid":55.125,"latencia_ms":20.001}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var ack httpapi.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "success", ack.Status)

	rec = doRequest(h, http.MethodGet, httpapi.PathLatest, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []domain.ReadingView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, 25.56, views[0].Temperatura)
	assert.Equal(t, 55.13, views[0].Umidade)
	assert.Equal(t, 20.0, views[0].LatenciaMs)
	assert.Equal(t, "HTTP", views[0].Protocolo)
	assert.Equal(t, int64(1), views[0].ID)
	assert.NotEmpty(t, views[0].Timestamp)
}

func TestPostReading_MissingFieldIsClientErrorAndNotStored(t *testing.T) {
	repo := repository.NewMemoryReadingRepository()
	h := setupRouter(t, repo)

	cases := map[string]string{
		"missing temp": `{"umid":55.1,"latencia_ms":20}`,
		"missing umid": `{"temp":25.1,"latencia_ms":20}`,
		"string temp":  `{"temp":"25","umid":55.1,"latencia_ms":20}`,
		"not json":     `temp=25`,
		"empty body":   ``,
		"wrong case":   `{"TEMP":25.1,"Umid":55.1,"LATENCIA_MS":20}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(h, http.MethodPost, httpapi.PathIngest, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp httpapi.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

type brokenRepo struct {
	repository.MemoryReadingRepository
}

func (*brokenRepo) Append(context.Context, domain.Reading) (domain.Reading, error) {
	return domain.Reading{}, domain.StorageError("insert reading", errors.New("database is locked"))
}

func (*brokenRepo) Recent(context.Context, int) ([]domain.Reading, error) {
	return nil, domain.StorageError("query recent readings", errors.New("database is locked"))
}

func TestPostReading_StorageFailureIsServerError(t *testing.T) {
	h := setupRouter(t, &brokenRepo{})

	rec := doRequest(h, http.MethodPost, httpapi.PathIngest, `{"temp":25,"umid":55,"latencia_ms":20}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")
}

func TestLatestReadings_QueryFailureIsServerError(t *testing.T) {
	h := setupRouter(t, &brokenRepo{})

	rec := doRequest(h, http.MethodGet, httpapi.PathLatest, "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "query error")
}

func TestLatestReadings_WindowIsBoundedAndAscending(t *testing.T) {
	repo := repository.NewMemoryReadingRepository()
	h := setupRouter(t, repo)

	for i := 0; i < 35; i++ {
		p := domain.ProtocolHTTP
		if i%2 == 1 {
			p = domain.ProtocolMessaging
		}
		_, err := repo.Append(context.Background(), domain.Reading{Protocol: p, Temperature: float64(i)})
		require.NoError(t, err)
	}

	rec := doRequest(h, http.MethodGet, httpapi.PathLatest, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []domain.ReadingView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, service.DefaultRecentWindow)
	assert.Equal(t, int64(6), views[0].ID)
	assert.Equal(t, int64(35), views[len(views)-1].ID)
	for i := 1; i < len(views); i++ {
		assert.Less(t, views[i-1].ID, views[i].ID)
	}
}

func TestLatestReadings_EmptyStoreIsEmptyArray(t *testing.T) {
	h := setupRouter(t, repository.NewMemoryReadingRepository())

	rec := doRequest(h, http.MethodGet, httpapi.PathLatest, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRoutes_MethodAndPathChecks(t *testing.T) {
	h := setupRouter(t, repository.NewMemoryReadingRepository())

	assert.Equal(t, http.StatusMethodNotAllowed, doRequest(h, http.MethodGet, httpapi.PathIngest, "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, doRequest(h, http.MethodPost, httpapi.PathLatest, "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodGet, "/nope", "").Code)

	home := doRequest(h, http.MethodGet, httpapi.PathHome, "")
	assert.Equal(t, http.StatusOK, home.Code)
	assert.Contains(t, home.Body.String(), "<h1>")
}

func TestRoutes_CORSHeaderForBrowserOrigin(t *testing.T) {
	h := setupRouter(t, repository.NewMemoryReadingRepository())

	req := httptest.NewRequest(http.MethodGet, httpapi.PathLatest, nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth_ReportsDegradedWithoutBroker(t *testing.T) {
	h := setupRouter(t, repository.NewMemoryReadingRepository())

	rec := doRequest(h, http.MethodGet, httpapi.PathHealth, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp httpapi.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.MQTTConnected)
	assert.Equal(t, "memory", resp.Store)
}

func TestExportXLSX_ContainsRecentWindow(t *testing.T) {
	repo := repository.NewMemoryReadingRepository()
	h := setupRouter(t, repo)
	_, err := repo.Append(context.Background(), domain.Reading{Temperature: 21.456, Humidity: 40, Protocol: domain.ProtocolMessaging, LatencyMs: 6})
	require.NoError(t, err)

	rec := doRequest(h, http.MethodGet, httpapi.PathExport, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Leituras")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, httpapi.ReadingsExportHeader, rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "21.46", rows[1][1])
	assert.Equal(t, "MESSAGING", rows[1][3])
}
