package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domrepo "OptSignal/internal/domain/repository"
	pkgkafka "OptSignal/pkg/kafka"
)

// KafkaBarsHandler consumes bar messages and writes them to storage.
type KafkaBarsHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// Handle stores one BarMessage. Malformed payloads end up in the DLQ
// after the consumer retries.
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var m domrepo.BarMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode bar: %w", err)
	}
	if m.Symbol == "" || !domrepo.IsValidTimeframe(m.Timeframe) || m.Bar.Timestamp.IsZero() {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("invalid bar message for %q/%q", m.Symbol, m.Timeframe)
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(m.Bar.Timestamp).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, &m)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent("clickhouse", m.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
