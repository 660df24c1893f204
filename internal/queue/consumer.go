package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var notificationQueues = []string{
	InvitationCreatedQueue,
	InvitationAcceptedQueue,
	MemberRoleChangedQueue,
}

// StartNotificationConsumer connects to RabbitMQ, declares the three
// durable notification queues and consumes them, appending each event to
// logs/notifications.log in a single-line format. It runs a reconnect
// loop with exponential backoff and never returns under normal operation;
// processing errors are logged and the offending message rejected without
// requeue so the server keeps running.
func StartNotificationConsumer(url string) error {
	if url == "" {
		url = DefaultBrokerURL
	}

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("notification-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := consumeLoop(conn); err != nil {
			log.Printf("notification-consumer: consume loop ended: %v; reconnecting", err)
			_ = conn.Close()
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("notification-consumer: set QoS failed: %v", err)
	}

	type tagged struct {
		queue    string
		delivery amqp.Delivery
	}
	merged := make(chan tagged)

	for _, name := range notificationQueues {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		go func(name string, msgs <-chan amqp.Delivery) {
			for d := range msgs {
				merged <- tagged{queue: name, delivery: d}
			}
		}(name, msgs)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case m := <-merged:
			if err := handleMessage(m.queue, m.delivery.Body); err != nil {
				log.Printf("notification-consumer: handle %s failed: %v", m.queue, err)
				_ = m.delivery.Nack(false, false)
				continue
			}
			_ = m.delivery.Ack(false)
		case err := <-closed:
			if err != nil {
				return err
			}
			return errors.New("connection closed")
		}
	}
}

func handleMessage(queueName string, body []byte) error {
	line, err := formatLine(queueName, body)
	if err != nil {
		return err
	}

	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "notifications.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatLine(queueName string, body []byte) (string, error) {
	switch queueName {
	case InvitationCreatedQueue:
		var ev InvitationCreatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Invitation sent | invitation_id=%s | email=%s | property=%q | role=%s | expires_at=%s\n",
			ev.CreatedAt, ev.InvitationID, ev.Email, ev.PropertyName, ev.Role, ev.ExpiresAt), nil
	case InvitationAcceptedQueue:
		var ev InvitationAcceptedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Invitation accepted | invitation_id=%s | email=%s | property=%q | role=%s | user_id=%s\n",
			ev.AcceptedAt, ev.InvitationID, ev.Email, ev.PropertyName, ev.Role, ev.UserID), nil
	case MemberRoleChangedQueue:
		var ev MemberRoleChangedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Role changed | property_id=%s | user_id=%s | %s -> %s\n",
			ev.ChangedAt, ev.PropertyID, ev.UserID, ev.OldRole, ev.NewRole), nil
	default:
		return "", fmt.Errorf("unknown queue %q", queueName)
	}
}
