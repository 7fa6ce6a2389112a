package mq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"CloudKeep/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeEvents = "file.events"

	QueueCleanup = "file.cleanup.queue"

	RoutingPurged = "file.purged"
)

// FilePurgedMessage tells the cleanup worker which blob to remove from
// object storage.
type FilePurgedMessage struct {
	UserID   uint64    `json:"user_id"`
	BlobID   string    `json:"blob_id"`
	PurgedAt time.Time `json:"purged_at"`
}

type Client struct {
	Conn      *amqp.Connection //tcp
	Channel   *amqp.Channel    // AMQP
	publishMu sync.Mutex
}

var publisherMu sync.Mutex
var publisher *Client

func Dial() (*Client, error) {
	conn, err := amqp.Dial(config.AppConfig.RabbitMQURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, Channel: ch}, nil
}

// GetPublisher returns a shared publisher client, reconnecting when the
// previous one went away.
func GetPublisher() (*Client, error) {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	if publisher != nil {
		if !publisher.Conn.IsClosed() && !publisher.Channel.IsClosed() {
			return publisher, nil
		}
		publisher.Close()
		publisher = nil
	}
	client, err := Dial()
	if err != nil {
		return nil, err
	}
	if err := client.DeclareTopology(); err != nil {
		client.Close()
		return nil, err
	}
	publisher = client
	return publisher, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

// DeclareTopology declares the events exchange and the cleanup queue.
func (c *Client) DeclareTopology() error {
	if err := c.Channel.ExchangeDeclare(
		ExchangeEvents,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}
	if _, err := c.Channel.QueueDeclare(
		QueueCleanup,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}
	return c.Channel.QueueBind(QueueCleanup, RoutingPurged, ExchangeEvents, false, nil)
}

func (c *Client) publish(ctx context.Context, routingKey string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	return c.Channel.PublishWithContext(
		ctx,
		ExchangeEvents,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         data,
		},
	)
}

// FilePurged announces a permanent delete so the cleanup worker can remove
// the blob bytes. Implements service.EventPublisher.
func (c *Client) FilePurged(ctx context.Context, userID uint64, blobID string) error {
	return c.publish(ctx, RoutingPurged, FilePurgedMessage{
		UserID:   userID,
		BlobID:   blobID,
		PurgedAt: time.Now(),
	})
}
