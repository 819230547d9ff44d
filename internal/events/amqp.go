package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"update-user-service/internal/domain"
)

const dialTimeout = 30 * time.Second

// State is the lifecycle of the broker connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// DialFunc opens a channel on a broker. The returned closer releases the
// underlying connection.
type DialFunc func(ctx context.Context, url string) (Channel, io.Closer, error)

// AMQPPublisher sends events to a single durable queue through the default
// exchange. It connects once; a failed connect leaves it disconnected for the
// life of the process and every Publish returns ErrNotReady.
type AMQPPublisher struct {
	url    string
	queue  string
	dial   DialFunc
	logger *logrus.Logger

	mu        sync.RWMutex
	state     State
	attempted bool
	ch        Channel
	conn      io.Closer
}

func NewAMQPPublisher(url, queue string, logger *logrus.Logger) *AMQPPublisher {
	return newAMQPPublisher(url, queue, dialAMQP, logger)
}

func newAMQPPublisher(url, queue string, dial DialFunc, logger *logrus.Logger) *AMQPPublisher {
	if logger == nil {
		logger = logrus.New()
	}
	return &AMQPPublisher{
		url:    url,
		queue:  queue,
		dial:   dial,
		logger: logger,
	}
}

func (p *AMQPPublisher) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Connect dials the broker, opens a channel and declares the queue durable.
// Only the first call does any work.
func (p *AMQPPublisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.attempted {
		state := p.state
		p.mu.Unlock()
		if state == StateReady {
			return nil
		}
		return ErrNotReady
	}
	p.attempted = true
	p.state = StateConnecting
	p.mu.Unlock()

	ch, conn, err := p.dial(ctx, p.url)
	if err != nil {
		p.setState(StateDisconnected)
		return fmt.Errorf("connect broker: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		p.setState(StateDisconnected)
		return fmt.Errorf("declare queue %s: %w", p.queue, err)
	}

	p.mu.Lock()
	p.ch = ch
	p.conn = conn
	p.state = StateReady
	p.mu.Unlock()

	p.logger.Infof("connected to broker, queue %s declared", p.queue)
	return nil
}

func (p *AMQPPublisher) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *AMQPPublisher) Publish(ctx context.Context, eventType domain.EventType, payload any) error {
	p.mu.RLock()
	ch, state := p.ch, p.state
	p.mu.RUnlock()
	if state != StateReady {
		return ErrNotReady
	}

	body, err := json.Marshal(domain.Event{EventType: eventType, Data: payload})
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPublish, eventType, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         string(eventType),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("%w: send %s: %w", ErrPublish, eventType, err)
	}
	return nil
}

// Close releases the channel and connection. The publisher does not reconnect.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	ch, conn := p.ch, p.conn
	p.ch, p.conn = nil, nil
	p.state = StateDisconnected
	p.mu.Unlock()

	if ch == nil {
		return nil
	}
	if err := ch.Close(); err != nil {
		_ = conn.Close()
		return fmt.Errorf("close channel: %w", err)
	}
	return conn.Close()
}

func dialAMQP(ctx context.Context, url string) (Channel, io.Closer, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: dialTimeout}
			c, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			// cleared by the client once the AMQP handshake completes
			if err := c.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
				c.Close()
				return nil, err
			}
			return c, nil
		},
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, conn, nil
}
