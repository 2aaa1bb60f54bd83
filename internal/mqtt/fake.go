package mqtt

import "github.com/rs/zerolog"

// FakeChannel records sends and delivers scripted inbound messages.
type FakeChannel struct {
	// Sent contains all messages that were sent, in order.
	Sent []Message

	// SendError, if set, will be returned by Send.
	SendError error

	// Connected controls the return value of IsConnected.
	Connected bool

	inbox *mailbox
}

// NewFakeChannel creates a FakeChannel for testing.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{inbox: newMailbox(16, nil, zerolog.Nop())}
}

// Deliver queues an inbound payload on topic as the broker would.
func (f *FakeChannel) Deliver(topic string, payload []byte) {
	f.inbox.put(Message{Topic: topic, Payload: payload})
}

// Pending returns the number of undelivered inbound messages.
func (f *FakeChannel) Pending() int {
	return f.inbox.pending()
}

// TryReceive returns the oldest pending inbound message.
func (f *FakeChannel) TryReceive() (Message, bool) {
	return f.inbox.take()
}

// Ready is signalled when a message is pending.
func (f *FakeChannel) Ready() <-chan struct{} {
	return f.inbox.ready
}

// Send records the message.
func (f *FakeChannel) Send(topic string, payload []byte) error {
	if f.SendError != nil {
		return f.SendError
	}
	f.Sent = append(f.Sent, Message{Topic: topic, Payload: payload})
	return nil
}

// IsConnected reports whether the fake channel is "connected".
func (f *FakeChannel) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded sends.
func (f *FakeChannel) Reset() {
	f.Sent = nil
	f.SendError = nil
}
