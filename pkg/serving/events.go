package serving

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/heartrisk/pkg/common/kafka"
	"github.com/synaptica-ai/heartrisk/pkg/common/logger"
	"github.com/synaptica-ai/heartrisk/pkg/common/models"
	"github.com/synaptica-ai/heartrisk/pkg/ingestion"
	"github.com/synaptica-ai/heartrisk/pkg/observability/metrics"
)

const EventSource = "heartrisk-serving"

var errNoFeatures = errors.New("event carries no features")

// EventProcessor scores assessment requests arriving on Kafka and publishes
// one result event per request.
type EventProcessor struct {
	assessor  *Assessor
	publisher kafka.Publisher
}

func NewEventProcessor(assessor *Assessor, publisher kafka.Publisher) *EventProcessor {
	return &EventProcessor{assessor: assessor, publisher: publisher}
}

// Handle is a kafka.EventHandler. Only publish failures are returned;
// assessment failures become risk_failed events.
func (p *EventProcessor) Handle(ctx context.Context, event models.Event) error {
	if event.Type != "" && event.Type != models.EventRiskRequested {
		logger.Log.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).Debug("Ignoring event")
		return nil
	}

	req, ok := ingestion.FromEventData(event.Data)
	if !ok {
		return p.publishFailure(ctx, event, ingestion.RequestWrapper{}, errNoFeatures)
	}
	if req.CorrelationID == "" {
		req.CorrelationID = event.ID
	}

	_, resp, err := p.assessor.Assess(ctx, req.ToModel())
	if err != nil {
		return p.publishFailure(ctx, event, req, err)
	}

	data, err := toEventData(resp)
	if err != nil {
		return err
	}
	return p.publish(ctx, models.EventRiskAssessed, data)
}

func (p *EventProcessor) publishFailure(ctx context.Context, event models.Event, req ingestion.RequestWrapper, cause error) error {
	logger.Log.WithError(cause).WithFields(logrus.Fields{
		"event_id":   event.ID,
		"patient_id": req.PatientID,
	}).Warn("Risk assessment event failed")

	return p.publish(ctx, models.EventRiskFailed, map[string]interface{}{
		"patient_id":     req.PatientID,
		"correlation_id": req.CorrelationID,
		"request_id":     event.ID,
		"error":          cause.Error(),
		"status":         StatusFor(cause),
	})
}

// publish counts an event only once the broker has accepted it.
func (p *EventProcessor) publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	if err := p.publisher.PublishEvent(ctx, eventType, EventSource, data); err != nil {
		return err
	}
	metrics.ObserveEvent(eventType)
	return nil
}

func toEventData(v interface{}) (map[string]interface{}, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(encoded, &data); err != nil {
		return nil, err
	}
	return data, nil
}
