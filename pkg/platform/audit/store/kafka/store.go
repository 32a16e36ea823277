// Package kafka forwards audit events to a Kafka topic as JSON, keyed by subject.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	audit "medcred/pkg/platform/audit"
)

// Producer is the subset of the platform Kafka producer this store needs.
type Producer interface {
	Produce(ctx context.Context, key, value []byte) error
}

// Store is write-only.
type Store struct {
	producer Producer
}

func New(producer Producer) *Store {
	return &Store{producer: producer}
}

type record struct {
	ID            string    `json:"id"`
	Category      string    `json:"category"`
	Timestamp     time.Time `json:"timestamp"`
	Subject       string    `json:"subject"`
	Action        string    `json:"action"`
	Decision      string    `json:"decision,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	SubjectIDHash string    `json:"subject_id_hash,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	Caller        string    `json:"caller,omitempty"`
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(record{
		ID:            event.ID.String(),
		Category:      string(event.Category),
		Timestamp:     event.Timestamp.UTC(),
		Subject:       event.Subject,
		Action:        event.Action,
		Decision:      event.Decision,
		Reason:        event.Reason,
		SubjectIDHash: event.SubjectIDHash,
		RequestID:     event.RequestID,
		Caller:        event.Caller,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.producer.Produce(ctx, []byte(event.Subject), payload)
}

// Tee appends to every store in order and returns the first error after
// trying all of them.
type Tee []audit.Store

func (t Tee) Append(ctx context.Context, event audit.Event) error {
	var first error
	for _, s := range t {
		if err := s.Append(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ListBySubject reads from the first member that supports reads.
func (t Tee) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	for _, s := range t {
		if l, ok := s.(audit.SubjectLister); ok {
			return l.ListBySubject(ctx, subject)
		}
	}
	return nil, fmt.Errorf("no readable audit store")
}
