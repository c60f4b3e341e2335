package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-crm-ordersync/internal/aws"
)

// StatusChangeHandler evaluates an order status transition.
type StatusChangeHandler interface {
	OnOrderStatusChanged(ctx context.Context, orderID, oldStatus, newStatus string) error
}

// Processor handles SQS status change messages and runs them through the dispatcher.
type Processor struct {
	handler StatusChangeHandler
	logger  *zap.Logger
}

// NewProcessor creates a new worker processor.
func NewProcessor(handler StatusChangeHandler, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{handler: handler, logger: logger}
}

// Handle processes every record of the batch and reports the failed ones so only
// those are redelivered. Messages failing too many times go to the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg aws.StatusChangedMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.OrderID == "" {
		return fmt.Errorf("invalid message body: missing order_id")
	}

	log := p.logger.With(
		zap.String("order_id", msg.OrderID),
		zap.String("correlation_id", msg.CorrelationID),
		zap.String("old_status", msg.OldStatus),
		zap.String("new_status", msg.NewStatus),
	)
	log.Info("status change received")

	if err := p.handler.OnOrderStatusChanged(ctx, msg.OrderID, msg.OldStatus, msg.NewStatus); err != nil {
		return fmt.Errorf("order %s: %w", msg.OrderID, err)
	}
	log.Info("status change processed")
	return nil
}
