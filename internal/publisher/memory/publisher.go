// Package memory keeps film.ingested events in-process, encoded the same way
// the Pub/Sub publisher puts them on the wire.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/JakeFAU/filmscraper/internal/catalog"
)

// Message is one recorded publish: the topic and the JSON body.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// Publisher records published events for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish marshals payload to JSON and records it under topic.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Messages returns a copy of every recorded publish.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Events decodes the messages published to topic as ingestion events.
func (p *Publisher) Events(topic string) ([]catalog.IngestedEvent, error) {
	var events []catalog.IngestedEvent
	for _, msg := range p.Messages() {
		if msg.Topic != topic {
			continue
		}
		var event catalog.IngestedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.ID, err)
		}
		events = append(events, event)
	}
	return events, nil
}
