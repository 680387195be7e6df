package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/projectTest192/FoodTrace/internal/anomaly"
	"github.com/projectTest192/FoodTrace/internal/database"
	"github.com/projectTest192/FoodTrace/internal/ingest"
	"github.com/projectTest192/FoodTrace/internal/ledger"
	"github.com/projectTest192/FoodTrace/internal/lifecycle"
	"github.com/projectTest192/FoodTrace/internal/models"
	"github.com/projectTest192/FoodTrace/internal/retention"
	"github.com/projectTest192/FoodTrace/internal/trace"
)

type fakeBackend struct{}

func (fakeBackend) Invoke(ctx context.Context, function string, args []string) (string, error) {
	return "tx-test", nil
}

func (fakeBackend) Query(ctx context.Context, function string, args []string) (json.RawMessage, error) {
	return nil, ledger.ErrUnavailable
}

type HandlerTestSuite struct {
	suite.Suite
	api   *API
	store retention.Store
}

// SetupTest rebuilds the whole stack so every test starts with empty tables
// and an empty retention store.
func (suite *HandlerTestSuite) SetupTest() {
	logger := zaptest.NewLogger(suite.T()).Sugar()
	db, err := database.NewTestDatabase(logger)
	suite.Require().NoError(err)
	db.Exec("DELETE FROM products")
	db.Exec("DELETE FROM shipments")
	db.Exec("DELETE FROM devices")
	db.Exec("DELETE FROM provenance_records")

	suite.store = retention.NewMemStore(retention.DefaultHorizons())
	l := ledger.New(db, fakeBackend{}, logger)
	machine := lifecycle.New(db, l, logger)
	tracer := trace.New(db, l, suite.store, logger)
	ingestor := ingest.New(db, suite.store, anomaly.NewDetector(anomaly.DefaultThresholds()), l, logger, ingest.DefaultConfig())

	suite.api, err = NewAPI(logger, db, suite.store, l, machine, tracer, ingestor)
	suite.Require().NoError(err)
}

func (suite *HandlerTestSuite) ServeRequest(method, path, uri string, handler func(*gin.Context), body io.Reader, headers map[string]string) (*http.Request, *httptest.ResponseRecorder, error) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Any(path, handler)
	req, err := http.NewRequest(method, uri, body)
	if err != nil {
		return req, httptest.NewRecorder(), err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	return req, res, nil
}

func (suite *HandlerTestSuite) jsonBody(v any) io.Reader {
	data, err := json.Marshal(v)
	suite.Require().NoError(err)
	return bytes.NewBuffer(data)
}

func (suite *HandlerTestSuite) TestUpdateEntityStatus() {
	require := suite.Require()
	require.NoError(suite.api.db.Create(&models.Shipment{
		ExternalID: "SH1", Status: models.StatusInTransit,
	}).Error)

	_, res, err := suite.ServeRequest(
		http.MethodPost, "/api/entities/:kind/:id/status", "/api/entities/shipment/SH1/status",
		suite.api.UpdateEntityStatus,
		suite.jsonBody(models.UpdateStatus{Status: models.StatusDelivered}),
		map[string]string{ActorRoleHeader: lifecycle.RoleRetailer},
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	var body models.UpdateStatus
	require.NoError(json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(models.StatusDelivered, body.Status)

	var shipment models.Shipment
	require.NoError(suite.api.db.First(&shipment, "external_id = ?", "SH1").Error)
	require.Equal(models.StatusDelivered, shipment.Status)
}

func (suite *HandlerTestSuite) TestUpdateEntityStatusForbidden() {
	require := suite.Require()
	require.NoError(suite.api.db.Create(&models.Shipment{
		ExternalID: "SH1", Status: models.StatusInTransit,
	}).Error)

	_, res, err := suite.ServeRequest(
		http.MethodPost, "/api/entities/:kind/:id/status", "/api/entities/shipment/SH1/status",
		suite.api.UpdateEntityStatus,
		suite.jsonBody(models.UpdateStatus{Status: models.StatusDelivered}),
		map[string]string{ActorRoleHeader: lifecycle.RoleDistributor},
	)
	require.NoError(err)
	require.Equal(http.StatusForbidden, res.Code)
}

func (suite *HandlerTestSuite) TestUpdateEntityStatusIllegal() {
	require := suite.Require()
	require.NoError(suite.api.db.Create(&models.Product{
		ExternalID: "P1", Status: models.StatusSold,
	}).Error)

	_, res, err := suite.ServeRequest(
		http.MethodPost, "/api/entities/:kind/:id/status", "/api/entities/product/P1/status",
		suite.api.UpdateEntityStatus,
		suite.jsonBody(models.UpdateStatus{Status: models.StatusActive}),
		map[string]string{ActorRoleHeader: lifecycle.RoleProducer},
	)
	require.NoError(err)
	require.Equal(http.StatusConflict, res.Code)

	var body TransitionRejected
	require.NoError(json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(models.StatusSold, body.From)
	require.Equal(models.StatusActive, body.To)
	require.Equal([]models.Status{models.StatusInactive}, body.Allowed)
}

func (suite *HandlerTestSuite) TestUpdateEntityStatusValidation() {
	require := suite.Require()

	_, res, err := suite.ServeRequest(
		http.MethodPost, "/api/entities/:kind/:id/status", "/api/entities/warehouse/W1/status",
		suite.api.UpdateEntityStatus,
		suite.jsonBody(models.UpdateStatus{Status: models.StatusActive}), nil,
	)
	require.NoError(err)
	require.Equal(http.StatusBadRequest, res.Code)

	_, res, err = suite.ServeRequest(
		http.MethodPost, "/api/entities/:kind/:id/status", "/api/entities/product/P1/status",
		suite.api.UpdateEntityStatus,
		suite.jsonBody(models.UpdateStatus{Status: models.StatusActive}), nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)
}

func (suite *HandlerTestSuite) TestGetEntityHistory() {
	require := suite.Require()
	require.NoError(suite.api.db.Create(&models.Product{
		ExternalID: "P1", Status: models.StatusActive,
	}).Error)
	_, err := suite.api.ledger.Append(context.Background(), models.EntityProduct, "P1", models.EventStatusChange, map[string]any{"to": "active"})
	require.NoError(err)

	_, res, err := suite.ServeRequest(
		http.MethodGet, "/api/entities/:kind/:id/history", "/api/entities/product/P1/history",
		suite.api.GetEntityHistory, nil, nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	var records []models.ProvenanceRecord
	require.NoError(json.Unmarshal(res.Body.Bytes(), &records))
	require.Len(records, 1)
	require.Equal(uint64(1), records[0].SequenceNo)

	_, res, err = suite.ServeRequest(
		http.MethodGet, "/api/entities/:kind/:id/history", "/api/entities/product/P2/history",
		suite.api.GetEntityHistory, nil, nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)
}

func (suite *HandlerTestSuite) TestDeviceEndpoints() {
	require := suite.Require()
	require.NoError(suite.api.db.Create(&models.Shipment{
		ExternalID: "SH1", Status: models.StatusCreated,
	}).Error)

	_, res, err := suite.ServeRequest(
		http.MethodPost, "/api/devices/:deviceId/bind", "/api/devices/D1/bind",
		suite.api.BindDevice,
		suite.jsonBody(models.BindDevice{
			EntityKind: models.EntityShipment, EntityID: "SH1", Kind: models.KindTemp, Name: "truck probe",
		}), nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	_, res, err = suite.ServeRequest(
		http.MethodGet, "/api/devices/:deviceId", "/api/devices/D1",
		suite.api.GetDevice, nil, nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)
	var device models.Device
	require.NoError(json.Unmarshal(res.Body.Bytes(), &device))
	require.Equal(models.EntityShipment, device.EntityKind)
	require.Equal("SH1", device.EntityID)

	_, res, err = suite.ServeRequest(
		http.MethodGet, "/api/devices", "/api/devices",
		suite.api.ListDevices, nil, nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)
	var devices []models.Device
	require.NoError(json.Unmarshal(res.Body.Bytes(), &devices))
	require.Len(devices, 1)

	// binding to a missing entity is rejected
	_, res, err = suite.ServeRequest(
		http.MethodPost, "/api/devices/:deviceId/bind", "/api/devices/D2/bind",
		suite.api.BindDevice,
		suite.jsonBody(models.BindDevice{EntityKind: models.EntityProduct, EntityID: "P-ghost"}), nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)

	// rebinding an attached device to a different entity conflicts
	require.NoError(suite.api.db.Create(&models.Product{
		ExternalID: "P9", Status: models.StatusActive,
	}).Error)
	_, res, err = suite.ServeRequest(
		http.MethodPost, "/api/devices/:deviceId/bind", "/api/devices/D1/bind",
		suite.api.BindDevice,
		suite.jsonBody(models.BindDevice{EntityKind: models.EntityProduct, EntityID: "P9"}), nil,
	)
	require.NoError(err)
	require.Equal(http.StatusConflict, res.Code)
}

func (suite *HandlerTestSuite) TestGetDeviceBinding() {
	require := suite.Require()
	require.NoError(suite.api.db.Create(&models.Shipment{
		ExternalID: "SH-b", Status: models.StatusCreated,
	}).Error)
	require.NoError(suite.api.db.Create(&models.Device{
		DeviceID: "D-b", Kind: models.KindTemp,
	}).Error)

	_, res, err := suite.ServeRequest(
		http.MethodGet, "/api/devices/:deviceId/binding", "/api/devices/D-b/binding",
		suite.api.GetDeviceBinding, nil, nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)
	var b DeviceBinding
	require.NoError(json.Unmarshal(res.Body.Bytes(), &b))
	require.False(b.Bound)

	_, res, err = suite.ServeRequest(
		http.MethodPost, "/api/devices/:deviceId/bind", "/api/devices/D-b/bind",
		suite.api.BindDevice,
		suite.jsonBody(models.BindDevice{EntityKind: models.EntityShipment, EntityID: "SH-b"}), nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	// the bind refreshed the cached attachment
	_, res, err = suite.ServeRequest(
		http.MethodGet, "/api/devices/:deviceId/binding", "/api/devices/D-b/binding",
		suite.api.GetDeviceBinding, nil, nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)
	require.NoError(json.Unmarshal(res.Body.Bytes(), &b))
	require.True(b.Bound)
	require.Equal(models.EntityShipment, b.EntityKind)
	require.Equal("SH-b", b.EntityID)

	_, res, err = suite.ServeRequest(
		http.MethodGet, "/api/devices/:deviceId/binding", "/api/devices/D-none/binding",
		suite.api.GetDeviceBinding, nil, nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)
}

func (suite *HandlerTestSuite) TestIngestAndRealtime() {
	require := suite.Require()
	require.NoError(suite.api.db.Create(&models.Product{
		ExternalID: "P1", Status: models.StatusActive,
	}).Error)

	_, res, err := suite.ServeRequest(
		http.MethodPost, "/api/devices/:deviceId/bind", "/api/devices/D1/bind",
		suite.api.BindDevice,
		suite.jsonBody(models.BindDevice{EntityKind: models.EntityProduct, EntityID: "P1", Kind: models.KindTemp}), nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	at := time.Now().UTC().Format(time.RFC3339)
	message := fmt.Sprintf(`{"topic":"foodtrace/D1/data","payload":{"kind":"temp","value":35.0,"captured_at":%q}}`, at)
	_, res, err = suite.ServeRequest(
		http.MethodPost, "/api/ingest", "/api/ingest",
		suite.api.Ingest, bytes.NewBufferString(message), nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	_, res, err = suite.ServeRequest(
		http.MethodGet, "/api/devices/:deviceId/realtime", "/api/devices/D1/realtime?kind=temp",
		suite.api.GetDeviceRealtime, nil, nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)
	var window []models.TelemetryReading
	require.NoError(json.Unmarshal(res.Body.Bytes(), &window))
	require.Len(window, 1)
	require.Equal(35.0, window[0].Value)

	// the hot reading shows up in the trace as history and alert
	_, res, err = suite.ServeRequest(
		http.MethodGet, "/api/trace/:kind/:id", "/api/trace/product/P1",
		suite.api.GetTrace, nil, nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)
	var view trace.TraceView
	require.NoError(json.Unmarshal(res.Body.Bytes(), &view))
	require.Len(view.Devices, 1)
	require.Len(view.Devices[0].Alerts, 1)

	anomalies := 0
	for _, record := range view.History {
		if record.EventType == models.EventAnomaly {
			anomalies++
		}
	}
	require.Equal(1, anomalies)
}

func (suite *HandlerTestSuite) TestDeviceAlerts() {
	require := suite.Require()

	require.NoError(suite.store.PutAlert(context.Background(), models.AnomalyEvent{
		DeviceID: "D1", Kind: models.KindTemp, Value: 35, Threshold: 30, Timestamp: time.Now().UTC(),
	}))

	_, res, err := suite.ServeRequest(
		http.MethodGet, "/api/devices/:deviceId/alerts", "/api/devices/D1/alerts",
		suite.api.GetDeviceAlerts, nil, nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)
	var alerts []models.AnomalyEvent
	require.NoError(json.Unmarshal(res.Body.Bytes(), &alerts))
	require.Len(alerts, 1)

	_, res, err = suite.ServeRequest(
		http.MethodDelete, "/api/devices/:deviceId/alerts", "/api/devices/D1/alerts",
		suite.api.ClearDeviceAlerts, nil, nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNoContent, res.Code)

	alertsAfter, err := suite.store.Alerts(context.Background(), "D1")
	require.NoError(err)
	require.Empty(alertsAfter)
}

func (suite *HandlerTestSuite) TestIngestRejectsMalformed() {
	require := suite.Require()

	_, res, err := suite.ServeRequest(
		http.MethodPost, "/api/ingest", "/api/ingest",
		suite.api.Ingest,
		bytes.NewBufferString(`{"topic":"foodtrace/D1/data","payload":{"kind":"pressure"}}`), nil,
	)
	require.NoError(err)
	require.Equal(http.StatusBadRequest, res.Code)
}

func (suite *HandlerTestSuite) TestLive() {
	require := suite.Require()
	_, res, err := suite.ServeRequest(http.MethodGet, "/healthz", "/healthz", suite.api.Live, nil, nil)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}
