package rabbitmq

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
)

// CategorizeJob asks a worker to categorize and complete one session.
type CategorizeJob struct {
	SessionID string `json:"session_id"`
	Attempt   int    `json:"attempt,omitempty"`
}

func DecodeCategorizeJob(body []byte) (CategorizeJob, error) {
	var j CategorizeJob
	if err := json.Unmarshal(body, &j); err != nil {
		return j, err
	}
	if strings.TrimSpace(j.SessionID) == "" {
		return j, errors.New("categorize job: missing session_id")
	}
	return j, nil
}

func RetryQueue(queue string) string { return queue + ".retry" }
func DeadQueue(queue string) string  { return queue + ".dlq" }

// DeclareQueues declares the main queue with its retry and dead-letter
// companions. Publisher and worker must agree on the arguments.
func DeclareQueues(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := RetryQueue(queue)
	dlqQ := DeadQueue(queue)

	// DLQ
	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// Retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(
		retryQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": mainQ,
		},
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		mainQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	)
	return err
}

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareQueues(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return NewChannelPublisher(conn, ch, queue), nil
}

// NewChannelPublisher publishes on an already open channel whose queues
// are declared. conn may be nil when the caller owns the connection.
func NewChannelPublisher(conn *amqp.Connection, ch *amqp.Channel, queue string) *Publisher {
	return &Publisher{conn: conn, ch: ch, queue: queue}
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) PublishCategorizeJob(ctx context.Context, sessionID string) error {
	return p.publish(ctx, p.queue, CategorizeJob{SessionID: sessionID}, 0)
}

// PublishRetry parks job on the retry queue for delay, after which it is
// dead-lettered back onto the main queue with its attempt count bumped.
func (p *Publisher) PublishRetry(ctx context.Context, job CategorizeJob, delay time.Duration) error {
	job.Attempt++
	return p.publish(ctx, RetryQueue(p.queue), job, delay)
}

func (p *Publisher) publish(ctx context.Context, queue string, job CategorizeJob, ttl time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	}
	if ttl > 0 {
		msg.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",    // default exchange
		queue, // routing key = queue
		false,
		false,
		msg,
	)
}
