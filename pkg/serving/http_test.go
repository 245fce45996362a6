package serving

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/heartrisk/pkg/common/models"
	"github.com/synaptica-ai/heartrisk/pkg/gateway/middleware"
	"github.com/synaptica-ai/heartrisk/pkg/ingestion"
	"github.com/synaptica-ai/heartrisk/pkg/serving/explain"
	"github.com/synaptica-ai/heartrisk/pkg/serving/features"
	"github.com/synaptica-ai/heartrisk/pkg/serving/inference"
	"github.com/synaptica-ai/heartrisk/pkg/serving/model"
	"github.com/synaptica-ai/heartrisk/pkg/serving/pipeline"
	"github.com/synaptica-ai/heartrisk/pkg/serving/report"
	"github.com/synaptica-ai/heartrisk/pkg/storage"
)

type memoryRecords struct {
	mu        sync.Mutex
	snapshots map[string]models.ClinicalSnapshot
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{snapshots: map[string]models.ClinicalSnapshot{}}
}

func (m *memoryRecords) GetRecord(ctx context.Context, patientID string) (models.ClinicalSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.snapshots[patientID]
	if !ok {
		return models.ClinicalSnapshot{}, storage.ErrSnapshotNotFound
	}
	return snapshot, nil
}

func (m *memoryRecords) PutRecord(ctx context.Context, patientID string, features map[string]interface{}) (models.ClinicalSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := models.ClinicalSnapshot{PatientID: patientID, Features: features, RecordedAt: time.Now().UTC()}
	m.snapshots[patientID] = snapshot
	return snapshot, nil
}

func loadArtifact(t *testing.T, name string) model.Classifier {
	t.Helper()
	m, err := model.Load(filepath.Join("model", "testdata", name))
	require.NoError(t, err)
	return m
}

func newAssessor(m model.Classifier, method string) (*Assessor, *explain.Service) {
	attribution := explain.New(m, method)
	p := pipeline.New(m, inference.New(m), attribution)
	return NewAssessor(ingestion.NewValidator(nil), p), attribution
}

type testServer struct {
	router  *mux.Router
	records *memoryRecords
}

func newTestServer(t *testing.T, artifact, method string) *testServer {
	t.Helper()
	m := loadArtifact(t, artifact)
	assessor, attribution := newAssessor(m, method)
	records := newMemoryRecords()

	router := mux.NewRouter()
	router.Use(middleware.BodyLimit(1 << 20))
	NewHTTPHandler(assessor, ingestion.NewValidator(nil), records, DescribeModel(m, attribution)).Register(router)
	return &testServer{router: router, records: records}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		json.NewEncoder(&buf).Encode(v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func predictBody(raw features.RawRecord) map[string]interface{} {
	return map[string]interface{}{"features": raw}
}

func TestHealthAndModel(t *testing.T) {
	s := newTestServer(t, "heart_gbtree.json", explain.MethodAuto)

	rec := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/model", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info models.ModelInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, model.AlgorithmGBTree, info.Algorithm)
	assert.Equal(t, explain.MethodTree, info.AttributionMethod)
	assert.Equal(t, 0.5, info.Threshold)
	assert.Len(t, info.FeatureNames, 7)
	assert.Empty(t, info.AttributionError)
}

func TestPredict(t *testing.T) {
	s := newTestServer(t, "heart_gbtree.json", explain.MethodAuto)

	rec := s.do(http.MethodPost, "/api/v1/predict", predictBody(features.DefaultInputs().Record()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.AssessmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, pipeline.LowRisk, resp.Risk)
	assert.Equal(t, 0, resp.Label)
	assert.Equal(t, "Low Risk (Probability: 0.14)", resp.Summary)
	assert.Len(t, resp.Contributions, 7)
	assert.Empty(t, resp.Defaulted)
	assert.Equal(t, 50.0, resp.Features[features.Age])

	sum := resp.BaseValue
	for _, c := range resp.Contributions {
		sum += c.Value
	}
	assert.InDelta(t, -1.79, sum, 0.01)
}

func TestPredictReportsDefaultedFields(t *testing.T) {
	s := newTestServer(t, "heart_gbtree.json", explain.MethodAuto)
	raw := features.DefaultInputs().Record()
	delete(raw, features.Anaemia)
	raw["notes"] = "x"

	rec := s.do(http.MethodPost, "/api/v1/predict", predictBody(raw))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.AssessmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{features.Anaemia}, resp.Defaulted)
	assert.NotContains(t, resp.Features, "notes")
}

func TestPredictTextFormat(t *testing.T) {
	s := newTestServer(t, "heart_gbtree.json", explain.MethodAuto)
	rec := s.do(http.MethodPost, "/api/v1/predict?format=text", predictBody(features.DefaultInputs().Record()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Prediction: Low Risk (Probability: 0.14)"))
	assert.Contains(t, rec.Body.String(), report.ChartTitle)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestPredictRejectsBadInput(t *testing.T) {
	s := newTestServer(t, "heart_gbtree.json", explain.MethodAuto)

	cases := map[string]interface{}{
		"malformed json":   "{",
		"missing features": map[string]interface{}{"patient_id": "p-1"},
		"age out of range": predictBody(features.RawRecord{features.Age: 10}),
		"empty features":   predictBody(features.RawRecord{}),
		"no known fields":  predictBody(features.RawRecord{"notes": "x"}),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/v1/predict", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPredictRejectsOversizedBody(t *testing.T) {
	m := loadArtifact(t, "heart_gbtree.json")
	assessor, attribution := newAssessor(m, explain.MethodAuto)
	router := mux.NewRouter()
	router.Use(middleware.BodyLimit(16))
	NewHTTPHandler(assessor, ingestion.NewValidator(nil), nil, DescribeModel(m, attribution)).Register(router)

	body := `{"features":{"age":60,"serum_sodium":137}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/predict", strings.NewReader(body)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "exceeds 16 bytes")
}

func TestPredictSurfacesAttributionError(t *testing.T) {
	s := newTestServer(t, "heart_logistic.json", explain.MethodTree)

	rec := s.do(http.MethodGet, "/api/v1/model", nil)
	var info models.ModelInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Contains(t, info.AttributionError, "not tree-structured")

	rec = s.do(http.MethodPost, "/api/v1/predict", predictBody(features.DefaultInputs().Record()))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "not tree-structured")
}

func TestPatientSnapshotRoundTrip(t *testing.T) {
	s := newTestServer(t, "heart_gbtree.json", explain.MethodAuto)

	rec := s.do(http.MethodGet, "/api/v1/patients/p-9/risk", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	high := features.ClinicalInputs{
		Age:               75,
		SerumCreatinine:   2.5,
		SerumSodium:       130,
		EjectionFraction:  20,
		HighBloodPressure: 1,
		Anaemia:           1,
	}
	rec = s.do(http.MethodPut, "/api/v1/patients/p-9/snapshot", predictBody(high.Record()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/patients/p-9/risk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.AssessmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "p-9", resp.PatientID)
	assert.Equal(t, pipeline.HighRisk, resp.Risk)
}

func TestPutSnapshotValidates(t *testing.T) {
	s := newTestServer(t, "heart_gbtree.json", explain.MethodAuto)
	rec := s.do(http.MethodPut, "/api/v1/patients/p-1/snapshot", predictBody(features.RawRecord{features.SerumSodium: 200}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.records.snapshots)
}

func TestDisabledSnapshotStore(t *testing.T) {
	m := loadArtifact(t, "heart_gbtree.json")
	assessor, attribution := newAssessor(m, explain.MethodAuto)
	router := mux.NewRouter()
	NewHTTPHandler(assessor, ingestion.NewValidator(nil), nil, DescribeModel(m, attribution)).Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/patients/p-1/risk", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/patients/p-1/snapshot", strings.NewReader(`{"features":{}}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAssessHonoursCancelledContext(t *testing.T) {
	assessor, _ := newAssessor(loadArtifact(t, "heart_gbtree.json"), explain.MethodAuto)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := assessor.Assess(ctx, models.AssessmentRequest{Features: features.DefaultInputs().Record()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
	assert.Equal(t, http.StatusNotFound, StatusFor(storage.ErrSnapshotNotFound))
	_, err := explain.Bind(loadArtifact(t, "heart_gbtree.json"), "kernel")
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(err))
}
