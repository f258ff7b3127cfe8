package queue

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/aai-resources/internal/util"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// Exchange is the topic exchange migration events are published on.
	Exchange = "pubsub_exchange"
	// AuditQueue keeps a durable copy of every migration event.
	AuditQueue = "aai_migration_events"
	// TopicPrefix starts every migration event routing key.
	TopicPrefix = "aai.migration."
)

// URLFromEnv builds the broker URL from RABBITMQ_*. It returns "" when no
// host is configured.
func URLFromEnv() string {
	host := util.GetEnv("RABBITMQ_HOST")
	if host == "" {
		return ""
	}
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		util.GetEnvString("RABBITMQ_USER", "guest"),
		util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
		host,
		util.GetEnvString("RABBITMQ_PORT", "5672"),
	)
}

func Dial(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	return conn, nil
}

type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
}

// SetupTopology declares the event exchange and the audit queue with its
// dead-letter and retry companions.
func SetupTopology(ch declarer) error {
	if err := ch.ExchangeDeclare(
		Exchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}

	if _, err := ch.QueueDeclare(
		AuditQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp091.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": AuditQueue + "_dlq",
		},
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", AuditQueue, err)
	}

	dlqName := AuditQueue + "_dlq"
	if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", dlqName, err)
	}

	retryName := AuditQueue + "_retry"
	if _, err := ch.QueueDeclare(
		retryName,
		true,
		false,
		false,
		false,
		amqp091.Table{
			"x-message-ttl":             int32(10000),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": AuditQueue,
		},
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", retryName, err)
	}

	if err := ch.QueueBind(AuditQueue, TopicPrefix+"#", Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", AuditQueue, err)
	}
	return nil
}

func persistent(contentType string, body []byte, now time.Time) amqp091.Publishing {
	return amqp091.Publishing{
		ContentType:  contentType,
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    now,
	}
}
