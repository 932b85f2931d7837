package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"checkout-proxy/internal/entry"
	"checkout-proxy/internal/logger"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type paymentEvent struct {
	Event         string  `json:"event"`
	EntryID       int64   `json:"entry_id"`
	FormID        int64   `json:"form_id"`
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	PaidAt        string  `json:"paid_at,omitempty"`
}

func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	return sarama.NewSyncProducer(brokers, cfg)
}

// KafkaPublisher writes one JSON event per notification, keyed by entry id
// so events for the same entry stay ordered.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Dispatch(ctx context.Context, event string, e *entry.Entry) error {
	ev := paymentEvent{
		Event:         event,
		EntryID:       e.ID,
		FormID:        e.FormID,
		TransactionID: e.TransactionID,
		Amount:        e.PaymentAmount,
		Currency:      e.Currency,
	}
	if e.PaymentDate != nil {
		ev.PaidAt = e.PaymentDate.UTC().Format(time.RFC3339)
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(e.ID, 10)),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("publish %s for entry %d: %w", event, e.ID, err)
	}

	logger.FromCtx(ctx).Debug("payment event published",
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.Int64("entry_id", e.ID),
	)
	return nil
}
