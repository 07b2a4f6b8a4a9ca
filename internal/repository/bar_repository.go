package repository

import (
	"context"
	"time"

	domrepo "OptSignal/internal/domain/repository"
	pkgch "OptSignal/pkg/clickhouse"
	pkgkafka "OptSignal/pkg/kafka"
)

var barColumns = []string{"symbol", "ts", "open", "high", "low", "close", "volume", "updated_at"}

// ClickHouseStorage implements Storage for the bar tables.
type ClickHouseStorage struct {
	ch  *pkgch.Client
	now func() time.Time
}

// NewClickHouseStorage creates ClickHouse bar storage.
func NewClickHouseStorage(ch *pkgch.Client) *ClickHouseStorage {
	return &ClickHouseStorage{ch: ch, now: time.Now}
}

// Init creates the database and every table the service writes.
func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, Schema(s.ch.Database()))
}

func (s *ClickHouseStorage) Store(ctx context.Context, b *domrepo.BarMessage) error {
	return s.StoreBatch(ctx, []*domrepo.BarMessage{b})
}

// StoreBatch groups bars by timeframe and writes one insert per table.
func (s *ClickHouseStorage) StoreBatch(ctx context.Context, bars []*domrepo.BarMessage) error {
	byTable, err := barRows(bars, s.now().UTC())
	if err != nil {
		return err
	}
	for table, rows := range byTable {
		if err := s.ch.InsertRows(ctx, s.ch.Table(table), barColumns, rows); err != nil {
			return err
		}
	}
	return nil
}

// barRows maps bar messages to insert rows keyed by table. Nil and
// symbol-less messages are skipped.
func barRows(bars []*domrepo.BarMessage, version time.Time) (map[string][][]interface{}, error) {
	out := make(map[string][][]interface{})
	for _, m := range bars {
		if m == nil || m.Symbol == "" {
			continue
		}
		table, err := barTable(m.Timeframe)
		if err != nil {
			return nil, err
		}
		b := m.Bar
		out[table] = append(out[table], []interface{}{
			m.Symbol, b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume, version,
		})
	}
	return out, nil
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil // client owned by the app
}

// KafkaPublisher implements Publisher for Kafka. Bars are keyed by symbol
// so one symbol stays on one partition.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, b *domrepo.BarMessage) error {
	return p.producer.Publish(ctx, p.topic, []byte(b.Symbol), b)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, bars []*domrepo.BarMessage) error {
	if len(bars) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(bars))
	for i, b := range bars {
		msgs[i] = pkgkafka.Message{Key: []byte(b.Symbol), Value: b}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// Close is a no-op; the producer is shared and closed by the app.
func (p *KafkaPublisher) Close() error {
	return nil
}

var (
	_ domrepo.Storage   = (*ClickHouseStorage)(nil)
	_ domrepo.Publisher = (*KafkaPublisher)(nil)
)
