package ingestion

import (
	"github.com/synaptica-ai/heartrisk/pkg/common/models"
	"github.com/synaptica-ai/heartrisk/pkg/serving/features"
)

// RequestWrapper is the JSON body accepted by the assessment endpoints and
// carried in request events.
type RequestWrapper struct {
	Features      map[string]interface{} `json:"features"`
	PatientID     string                 `json:"patient_id,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

func (r RequestWrapper) ToModel() models.AssessmentRequest {
	return models.AssessmentRequest{
		PatientID:     r.PatientID,
		CorrelationID: r.CorrelationID,
		Features:      r.Features,
	}
}

func (r RequestWrapper) Record() features.RawRecord {
	return features.RawRecord(r.Features)
}

// FromEventData reads a request out of an event payload. It reports false when
// the payload carries no feature map.
func FromEventData(data map[string]interface{}) (RequestWrapper, bool) {
	raw, ok := data["features"].(map[string]interface{})
	if !ok {
		return RequestWrapper{}, false
	}
	req := RequestWrapper{Features: raw}
	req.PatientID, _ = data["patient_id"].(string)
	req.CorrelationID, _ = data["correlation_id"].(string)
	return req, true
}
