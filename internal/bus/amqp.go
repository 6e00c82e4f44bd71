package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"chat-gateway/internal/observability"
)

// frame is the wire format exchanged between gateway nodes.
type frame struct {
	Node    string          `json:"node"`
	Groups  []string        `json:"groups"`
	Payload json.RawMessage `json:"payload"`
}

// AMQP fans broadcasts out to every gateway node through a RabbitMQ fanout
// exchange. Group membership stays local; each node delivers the frames it
// consumes to its own members.
type AMQP struct {
	local    *Local
	conn     *amqp.Connection
	pub      *amqp.Channel
	sub      *amqp.Channel
	exchange string
	queue    string
	node     string
	log      *zap.Logger
}

// DialAMQP connects to the broker and declares the exchange and this node's
// exclusive queue.
func DialAMQP(url, exchange string, local *Local, log *zap.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	sub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	if err := pub.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	q, err := sub.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := sub.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	node := uuid.NewString()
	log.Info("cluster bus connected", zap.String("exchange", exchange), zap.String("node", node))
	return &AMQP{
		local:    local,
		conn:     conn,
		pub:      pub,
		sub:      sub,
		exchange: exchange,
		queue:    q.Name,
		node:     node,
		log:      log,
	}, nil
}

func (b *AMQP) Join(group string, m Member) {
	b.local.Join(group, m)
}

func (b *AMQP) Leave(group string, m Member) {
	b.local.Leave(group, m)
}

func (b *AMQP) LeaveAll(m Member) {
	b.local.LeaveAll(m)
}

// Broadcast delivers locally right away and publishes the frame for the
// other nodes. Frames from this node are skipped on consumption.
func (b *AMQP) Broadcast(ctx context.Context, payload []byte, groups ...string) error {
	if err := b.local.Broadcast(ctx, payload, groups...); err != nil {
		return err
	}

	body, err := json.Marshal(frame{Node: b.node, Groups: groups, Payload: payload})
	if err != nil {
		return err
	}
	err = b.pub.PublishWithContext(ctx, b.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		observability.IncAMQPPublishError()
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}

// Run consumes frames from other nodes until ctx is done or the channel
// closes.
func (b *AMQP) Run(ctx context.Context) error {
	deliveries, err := b.sub.Consume(b.queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("cluster bus deliveries closed")
			}
			var f frame
			if err := json.Unmarshal(d.Body, &f); err != nil {
				b.log.Warn("malformed bus frame", zap.Error(err))
				continue
			}
			if f.Node == b.node {
				continue
			}
			_ = b.local.Broadcast(ctx, f.Payload, f.Groups...)
		}
	}
}

// Close shuts the broker connection.
func (b *AMQP) Close() error {
	return b.conn.Close()
}
