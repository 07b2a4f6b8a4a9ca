package repository

import (
	"context"
	"time"

	"OptSignal/internal/domain/models"
	domrepo "OptSignal/internal/domain/repository"
	pkgkafka "OptSignal/pkg/kafka"
)

// SignalEvent is published for every bar with a buy or sell decision.
type SignalEvent struct {
	Symbol string `json:"symbol"`
	models.SignalRow
}

// FeatureEvent is one engineered contract of a feature run.
type FeatureEvent struct {
	RunID         string    `json:"run_id"`
	Underlying    string    `json:"underlying"`
	ReferenceTime time.Time `json:"reference_time"`
	LatestClose   float64   `json:"latest_close"`
	models.OptionFeatureRow
}

// KafkaEventPublisher implements EventPublisher on the signals and
// features topics.
type KafkaEventPublisher struct {
	producer      *pkgkafka.Producer
	signalsTopic  string
	featuresTopic string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, signalsTopic, featuresTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, signalsTopic: signalsTopic, featuresTopic: featuresTopic}
}

func (p *KafkaEventPublisher) PublishSignals(ctx context.Context, series *models.PriceSeries) error {
	events := signalEvents(series)
	if len(events) == 0 {
		return nil
	}
	key := []byte(series.Symbol)
	msgs := make([]pkgkafka.Message, len(events))
	for i := range events {
		msgs[i] = pkgkafka.Message{Key: key, Value: events[i]}
	}
	return p.producer.PublishBatch(ctx, p.signalsTopic, msgs)
}

func (p *KafkaEventPublisher) PublishFeatures(ctx context.Context, runID string, set *models.FeatureSet) error {
	events := featureEvents(runID, set)
	if len(events) == 0 {
		return nil
	}
	key := []byte(set.Underlying)
	msgs := make([]pkgkafka.Message, len(events))
	for i := range events {
		msgs[i] = pkgkafka.Message{Key: key, Value: events[i]}
	}
	return p.producer.PublishBatch(ctx, p.featuresTopic, msgs)
}

func signalEvents(series *models.PriceSeries) []SignalEvent {
	var out []SignalEvent
	for _, row := range models.SignalRows(series) {
		if row.Signal == models.SignalHold {
			continue
		}
		out = append(out, SignalEvent{Symbol: series.Symbol, SignalRow: row})
	}
	return out
}

func featureEvents(runID string, set *models.FeatureSet) []FeatureEvent {
	if set == nil {
		return nil
	}
	out := make([]FeatureEvent, len(set.Rows))
	for i, r := range set.Rows {
		out[i] = FeatureEvent{
			RunID:            runID,
			Underlying:       set.Underlying,
			ReferenceTime:    set.ReferenceTime,
			LatestClose:      set.LatestClose,
			OptionFeatureRow: r,
		}
	}
	return out
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
