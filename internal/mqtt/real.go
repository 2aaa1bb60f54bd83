package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Options configures a RealChannel.
type Options struct {
	Broker       string
	ClientID     string
	Username     string
	Password     string
	CommandTopic string
	StatusTopic  string

	// MaxRetries bounds the initial connection attempts.
	MaxRetries uint64

	// BufferSize is the number of inbound messages held for the event loop.
	BufferSize int

	// Keep marks inbound messages that a full buffer evicts last.
	Keep func(Message) bool

	Logger zerolog.Logger
}

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// RealChannel is a CommandChannel backed by an actual MQTT broker.
type RealChannel struct {
	client  paho.Client
	opts    Options
	inbox   *mailbox
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// Connect dials the broker, retrying with exponential backoff, and subscribes
// to the command topic. The subscription is renewed on every reconnect.
func Connect(ctx context.Context, opts Options) (*RealChannel, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 16
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}

	c := &RealChannel{
		opts:  opts,
		inbox: newMailbox(opts.BufferSize, opts.Keep, opts.Logger),
		log:   opts.Logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mqtt-publish",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("publish breaker state change")
		},
	})

	availability := AvailabilityTopic(opts.StatusTopic)
	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetWill(availability, AvailabilityOffline, 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.Warn().Err(err).Msg("mqtt connection lost")
		})

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, opts.MaxRetries), ctx)

	err := backoff.RetryNotify(func() error {
		client := paho.NewClient(po)
		token := client.Connect()
		if !token.WaitTimeout(connectTimeout) {
			return errors.New("connection timeout")
		}
		if err := token.Error(); err != nil {
			return err
		}
		c.client = client
		return nil
	}, policy, func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Dur("retry_in", wait).Str("broker", opts.Broker).Msg("mqtt connect failed")
	})
	if err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", opts.Broker, err)
	}

	c.log.Info().Str("broker", opts.Broker).Str("client_id", opts.ClientID).Msg("connected to broker")
	return c, nil
}

// onConnect runs on the first connection and after every automatic reconnect.
func (c *RealChannel) onConnect(client paho.Client) {
	token := client.Subscribe(c.opts.CommandTopic, 1, c.onMessage)
	if !token.WaitTimeout(connectTimeout) {
		c.log.Error().Str("topic", c.opts.CommandTopic).Msg("subscribe timeout")
		return
	}
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Str("topic", c.opts.CommandTopic).Msg("subscribe failed")
		return
	}
	c.log.Info().Str("topic", c.opts.CommandTopic).Msg("subscribed")

	client.Publish(AvailabilityTopic(c.opts.StatusTopic), 1, true, AvailabilityOnline)
}

func (c *RealChannel) onMessage(_ paho.Client, m paho.Message) {
	payload := make([]byte, len(m.Payload()))
	copy(payload, m.Payload())
	c.log.Debug().Str("topic", m.Topic()).Bytes("payload", payload).Msg("message received")
	c.inbox.put(Message{Topic: m.Topic(), Payload: payload})
}

// TryReceive returns the oldest pending inbound message.
func (c *RealChannel) TryReceive() (Message, bool) {
	return c.inbox.take()
}

// Ready is signalled when a message is pending.
func (c *RealChannel) Ready() <-chan struct{} {
	return c.inbox.ready
}

// Send publishes a payload with QoS 0, not retained. Consecutive failures
// open a circuit breaker so a dead broker costs nothing per call.
func (c *RealChannel) Send(topic string, payload []byte) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		token := c.client.Publish(topic, 0, false, payload)
		if !token.WaitTimeout(publishTimeout) {
			return nil, errors.New("publish timeout")
		}
		return nil, token.Error()
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (c *RealChannel) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// Close marks the device offline and disconnects from the broker.
func (c *RealChannel) Close() error {
	if c.client == nil {
		return nil
	}
	if c.client.IsConnectionOpen() {
		token := c.client.Publish(AvailabilityTopic(c.opts.StatusTopic), 1, true, AvailabilityOffline)
		token.WaitTimeout(publishTimeout)
	}
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
