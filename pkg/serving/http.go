package serving

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/heartrisk/pkg/common/logger"
	"github.com/synaptica-ai/heartrisk/pkg/common/models"
	"github.com/synaptica-ai/heartrisk/pkg/gateway/middleware"
	"github.com/synaptica-ai/heartrisk/pkg/ingestion"
	"github.com/synaptica-ai/heartrisk/pkg/observability/metrics"
	"github.com/synaptica-ai/heartrisk/pkg/serving/explain"
	"github.com/synaptica-ai/heartrisk/pkg/serving/inference"
	"github.com/synaptica-ai/heartrisk/pkg/serving/report"
	"github.com/synaptica-ai/heartrisk/pkg/storage"
)

// RecordSource stores and returns the latest clinical snapshot per patient.
type RecordSource interface {
	GetRecord(ctx context.Context, patientID string) (models.ClinicalSnapshot, error)
	PutRecord(ctx context.Context, patientID string, features map[string]interface{}) (models.ClinicalSnapshot, error)
}

type HTTPHandler struct {
	assessor  *Assessor
	validator *ingestion.Validator
	records   RecordSource
	info      models.ModelInfo
}

// NewHTTPHandler wires the API. records may be nil, in which case the patient
// routes answer 503. Request size is capped by middleware.BodyLimit.
func NewHTTPHandler(assessor *Assessor, validator *ingestion.Validator, records RecordSource, info models.ModelInfo) *HTTPHandler {
	return &HTTPHandler{
		assessor:  assessor,
		validator: validator,
		records:   records,
		info:      info,
	}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/model", h.handleModel).Methods(http.MethodGet)
	api.HandleFunc("/predict", h.handlePredict).Methods(http.MethodPost)
	api.HandleFunc("/patients/{id}/risk", h.handlePatientRisk).Methods(http.MethodGet)
	api.HandleFunc("/patients/{id}/snapshot", h.handlePutSnapshot).Methods(http.MethodPut)
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *HTTPHandler) handleModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.info)
}

func (h *HTTPHandler) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	h.assess(w, r, req.ToModel())
}

func (h *HTTPHandler) handlePatientRisk(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		http.Error(w, "snapshot store disabled", http.StatusServiceUnavailable)
		return
	}
	patientID := mux.Vars(r)["id"]
	snapshot, err := h.records.GetRecord(r.Context(), patientID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.assess(w, r, models.AssessmentRequest{
		PatientID:     patientID,
		CorrelationID: middleware.RequestID(r.Context()),
		Features:      snapshot.Features,
	})
}

func (h *HTTPHandler) handlePutSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		http.Error(w, "snapshot store disabled", http.StatusServiceUnavailable)
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.validator.Validate(req.Record()); err != nil {
		h.writeError(w, r, err)
		return
	}
	snapshot, err := h.records.PutRecord(r.Context(), mux.Vars(r)["id"], req.Features)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request) (ingestion.RequestWrapper, bool) {
	var req ingestion.RequestWrapper
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return req, false
		}
		logger.Log.WithError(err).Warn("invalid assessment payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	if req.Features == nil {
		http.Error(w, "features required", http.StatusBadRequest)
		return req, false
	}
	if req.CorrelationID == "" {
		req.CorrelationID = middleware.RequestID(r.Context())
	}
	return req, true
}

func (h *HTTPHandler) assess(w http.ResponseWriter, r *http.Request, req models.AssessmentRequest) {
	result, resp, err := h.assessor.Assess(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logger.Log.WithFields(map[string]interface{}{
		"patient_id": req.PatientID,
		"risk":       resp.Risk,
		"latency_ms": resp.Latency.Milliseconds(),
	}).Info("Prediction completed")

	if r.URL.Query().Get("format") == "text" {
		var buf bytes.Buffer
		if err := report.Render(&buf, result, report.DefaultWidth); err != nil {
			h.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write(buf.Bytes())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusFor maps pipeline and storage errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case ingestion.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrSnapshotNotFound):
		return http.StatusNotFound
	case inference.IsInferenceError(err), explain.IsAttributionError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Log.WithError(err).WithField("request_id", middleware.RequestID(r.Context())).Error("failed to process assessment")
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

