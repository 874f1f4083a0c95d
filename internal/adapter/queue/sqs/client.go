// Package sqs implements the ingress FIFO queue client.
//
// The queue guarantees ordering and at-most-one in-flight delivery per
// message group; this client only surfaces the group identity, ordering is
// enforced by the ingestion dispatcher.
package sqs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

const (
	maxBatch        = 10
	waitTimeSeconds = 20
)

// API is the subset of the SQS client used here, extracted for testing.
type API interface {
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *awssqs.DeleteMessageBatchInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageBatchOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
}

// Client pulls batches from one FIFO queue and acks them.
type Client struct {
	api      API
	queueURL string
}

// New constructs a Client from a resolved AWS config.
func New(cfg aws.Config, queueURL string) *Client {
	return &Client{api: awssqs.NewFromConfig(cfg), queueURL: queueURL}
}

// NewWithAPI constructs a Client with an explicit API, used by tests.
func NewWithAPI(api API, queueURL string) *Client {
	return &Client{api: api, queueURL: queueURL}
}

// Receive long-polls for up to 10 messages. An empty result on timeout is
// normal and not an error.
func (c *Client) Receive(ctx domain.Context) ([]domain.RawMessage, error) {
	out, err := c.api.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:              aws.String(c.queueURL),
		MaxNumberOfMessages:   maxBatch,
		WaitTimeSeconds:       waitTimeSeconds,
		MessageAttributeNames: []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameMessageGroupId,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("op=sqs.receive: %w", err)
	}

	msgs := make([]domain.RawMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		attrs := make(map[string]string, len(m.MessageAttributes))
		for name, v := range m.MessageAttributes {
			if v.StringValue != nil {
				attrs[name] = *v.StringValue
			}
		}
		msgs = append(msgs, domain.RawMessage{
			ID:            aws.ToString(m.MessageId),
			Body:          []byte(aws.ToString(m.Body)),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			GroupID:       m.Attributes[string(types.MessageSystemAttributeNameMessageGroupId)],
			Attributes:    attrs,
		})
	}
	return msgs, nil
}

// DeleteBatch acks messages in chunks of 10. On a failed chunk it falls back
// to per-message deletes so one bad handle cannot strand the rest.
func (c *Client) DeleteBatch(ctx domain.Context, msgs []domain.RawMessage) error {
	for start := 0; start < len(msgs); start += maxBatch {
		end := min(start+maxBatch, len(msgs))
		chunk := msgs[start:end]

		entries := make([]types.DeleteMessageBatchRequestEntry, len(chunk))
		for i, m := range chunk {
			entries[i] = types.DeleteMessageBatchRequestEntry{
				Id:            aws.String(fmt.Sprintf("%d", i)),
				ReceiptHandle: aws.String(m.ReceiptHandle),
			}
		}

		out, err := c.api.DeleteMessageBatch(ctx, &awssqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(c.queueURL),
			Entries:  entries,
		})
		if err != nil {
			slog.Error("batch delete failed, falling back to per-message deletes", slog.Any("error", err))
			c.deleteOneByOne(ctx, chunk)
			continue
		}
		for _, f := range out.Failed {
			idx := parseEntryID(aws.ToString(f.Id))
			if idx < 0 || idx >= len(chunk) {
				continue
			}
			if err := c.Delete(ctx, chunk[idx].ReceiptHandle); err != nil {
				slog.Error("fallback delete failed",
					slog.String("message_id", chunk[idx].ID),
					slog.Any("error", err))
			}
		}
	}
	return nil
}

// Delete acks a single message.
func (c *Client) Delete(ctx domain.Context, receiptHandle string) error {
	_, err := c.api.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("op=sqs.delete: %w", err)
	}
	return nil
}

func (c *Client) deleteOneByOne(ctx domain.Context, msgs []domain.RawMessage) {
	for _, m := range msgs {
		if err := c.Delete(ctx, m.ReceiptHandle); err != nil {
			slog.Error("delete failed", slog.String("message_id", m.ID), slog.Any("error", err))
		}
	}
}

func parseEntryID(id string) int {
	n := -1
	_, _ = fmt.Sscanf(id, "%d", &n)
	return n
}
