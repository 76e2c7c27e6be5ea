// Package listener consumes order events and applies them to serialized stock.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/maisonfine/stockd/internal/config"
	"github.com/maisonfine/stockd/internal/services/inventory"
)

// EventOrderFulfilled is the only event type the consumer acts on
const EventOrderFulfilled = "OrderFulfilled"

// Seller marks serialized items as sold
type Seller interface {
	MarkItemsSold(ctx context.Context, cmd inventory.SoldCommand) (inventory.SoldResult, error)
}

// Reader is the subset of *kafka.Reader the consumer needs
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type OrderFulfilledEvent struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   OrderPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type OrderPayload struct {
	OrderID  uint     `json:"order_id"`
	ItemUIDs []string `json:"item_uids"`
}

// Fulfillment turns OrderFulfilled events into sold transitions
type Fulfillment struct {
	reader Reader
	seller Seller
	log    *zap.Logger
}

// NewReader opens a consumer group reader for the fulfillment topic
func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func NewFulfillment(reader Reader, seller Seller, log *zap.Logger) *Fulfillment {
	return &Fulfillment{
		reader: reader,
		seller: seller,
		log:    log,
	}
}

// Start blocks until ctx is cancelled
func (l *Fulfillment) Start(ctx context.Context) {
	l.log.Info("starting fulfillment listener")
	defer func() {
		if err := l.reader.Close(); err != nil {
			l.log.Warn("closing kafka reader failed", zap.Error(err))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			l.log.Info("stopping fulfillment listener")
			return
		default:
			msg, err := l.reader.ReadMessage(ctx)
			if err != nil {
				// context cancellation is a normal shutdown
				if ctx.Err() != nil {
					return
				}
				l.log.Error("failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

// Parse decodes one message. ok is false for events of other types.
func Parse(value []byte) (cmd inventory.SoldCommand, ok bool, err error) {
	var event OrderFulfilledEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return cmd, false, err
	}
	if event.EventType != EventOrderFulfilled {
		return cmd, false, nil
	}
	if event.Payload.OrderID == 0 {
		return cmd, false, errors.New("order_id is missing")
	}
	return inventory.SoldCommand{
		OrderID:  event.Payload.OrderID,
		ItemUIDs: event.Payload.ItemUIDs,
	}, true, nil
}

func (l *Fulfillment) processMessage(ctx context.Context, value []byte) {
	cmd, ok, err := Parse(value)
	if err != nil {
		l.log.Error("failed to decode fulfillment event", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	l.log.Info("processing OrderFulfilled event", zap.Uint("order_id", cmd.OrderID), zap.Int("items", len(cmd.ItemUIDs)))
	res, err := l.seller.MarkItemsSold(ctx, cmd)
	if err != nil {
		// TODO: route failed orders to a dead-letter topic once one is provisioned
		l.log.Error("failed to mark items sold",
			zap.Uint("order_id", cmd.OrderID),
			zap.Strings("item_uids", cmd.ItemUIDs),
			zap.Error(err),
		)
		return
	}
	if len(res.Skipped) > 0 {
		l.log.Warn("items were already sold", zap.Uint("order_id", cmd.OrderID), zap.Strings("item_uids", res.Skipped))
	}
}
