// Package rabbitmq publishes rescan notifications for downstream scanners.
package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"cybersentinel/internal/ports"
)

const routingKey = "asm.rescan"

type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
}

func NewPublisher(amqpURL, exchange, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := declare(ch, exchange, queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, channel: ch, exchange: exchange, queue: queue}, nil
}

func declare(ch *amqp.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(queue, routingKey, exchange, false, nil)
}

// Encode renders the wire form of a rescan notification.
func Encode(msg ports.RescanRequested) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, err
	}
	ts := msg.RequestedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    msg.ScanID,
		Type:         string(msg.Kind),
		Body:         body,
		Timestamp:    ts,
		DeliveryMode: amqp.Persistent,
	}, nil
}

func (p *Publisher) PublishRescan(ctx context.Context, msg ports.RescanRequested) error {
	pub, err := Encode(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, pub)
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channel.Close()
	p.conn.Close()
}

var _ ports.RescanPublisher = (*Publisher)(nil)
