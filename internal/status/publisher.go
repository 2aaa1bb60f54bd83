package status

import "fmt"

// Sender delivers a payload to a topic. mqtt.CommandChannel implements it.
type Sender interface {
	Send(topic string, payload []byte) error
}

// Publisher serializes snapshots and hands them to a Sender.
type Publisher struct {
	sender Sender
	topic  string
}

// NewPublisher creates a Publisher writing to topic.
func NewPublisher(sender Sender, topic string) *Publisher {
	return &Publisher{sender: sender, topic: topic}
}

// Publish sends one status message.
func (p *Publisher) Publish(snap Snapshot) error {
	if err := p.sender.Send(p.topic, FormatMessage(snap)); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	return nil
}
