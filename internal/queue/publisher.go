// Package queue publishes verification-status change messages to SQS for
// the e-mail worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"petcare/internal/config"
	"petcare/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// VerificationPublisher sends VerificationChangedMessage payloads to the
// notification queue.
type VerificationPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewVerificationPublisher creates a publisher for the configured
// notification queue.
func NewVerificationPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *VerificationPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerificationPublisher{
		client:   client,
		queueURL: awsCfg.NotificationQueue,
		logger:   logger,
	}
}

// PublishVerificationChanged enqueues msg. MessageID and TraceID are filled
// in when empty; the message ID doubles as the SQS deduplication hint for
// the consumer.
func (p *VerificationPublisher) PublishVerificationChanged(ctx context.Context, msg types.VerificationChangedMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.TraceID == "" {
		msg.TraceID = uuid.NewString()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal VerificationChangedMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"type": {
				DataType:    aws.String("String"),
				StringValue: aws.String("verification_changed"),
			},
			"status": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Status)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send verification message to %s", p.queueURL),
			err,
		)
	}

	p.logger.InfoContext(ctx, "verification message sent",
		"queue_url", p.queueURL,
		"message_id", msg.MessageID,
		"trace_id", msg.TraceID,
		"user_id", msg.UserID,
		"status", string(msg.Status),
		"reason", msg.Reason,
	)
	return nil
}
