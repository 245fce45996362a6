package models

import (
	"time"
)

// Event types exchanged over Kafka
const (
	EventRiskRequested = "risk_requested"
	EventRiskAssessed  = "risk_assessed"
	EventRiskFailed    = "risk_failed"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Risk assessment
type AssessmentRequest struct {
	PatientID     string                 `json:"patient_id,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Features      map[string]interface{} `json:"features"`
}

type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

type AssessmentResponse struct {
	PatientID     string             `json:"patient_id,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Label         int                `json:"label"`
	Risk          string             `json:"risk"`
	Probability   float64            `json:"probability"`
	Summary       string             `json:"summary"`
	Method        string             `json:"method"`
	BaseValue     float64            `json:"base_value"`
	Contributions []Contribution     `json:"contributions"`
	Features      map[string]float64 `json:"features"`
	Defaulted     []string           `json:"defaulted,omitempty"`
	Latency       time.Duration      `json:"latency"`
}

// Model metadata
type ModelInfo struct {
	Algorithm         string   `json:"algorithm"`
	FeatureNames      []string `json:"feature_names"`
	Threshold         float64  `json:"threshold"`
	AttributionMethod string   `json:"attribution_method"`
	AttributionError  string   `json:"attribution_error,omitempty"`
}

// Clinical snapshots
type ClinicalSnapshot struct {
	PatientID  string                 `json:"patient_id"`
	Features   map[string]interface{} `json:"features"`
	RecordedAt time.Time              `json:"recorded_at"`
}
