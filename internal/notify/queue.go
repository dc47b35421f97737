package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// TaskSendEmail carries one rendered Message.
	TaskSendEmail = "notify:email"

	maxSendRetries = 5
)

type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
}

// AsynqQueue hands messages to the worker process through Redis.
type AsynqQueue struct {
	client *asynq.Client
}

func NewAsynqQueue(client *asynq.Client) *AsynqQueue {
	return &AsynqQueue{client: client}
}

func (q *AsynqQueue) Enqueue(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal email task: %w", err)
	}
	task := asynq.NewTask(TaskSendEmail, data)
	if _, err := q.client.EnqueueContext(ctx, task, asynq.MaxRetry(maxSendRetries)); err != nil {
		return fmt.Errorf("failed to enqueue email task: %w", err)
	}
	return nil
}

// DirectQueue sends in-process. Used when no Redis is configured.
type DirectQueue struct {
	sender Sender
}

func NewDirectQueue(sender Sender) *DirectQueue {
	return &DirectQueue{sender: sender}
}

func (q *DirectQueue) Enqueue(ctx context.Context, msg Message) error {
	return q.sender.Send(ctx, msg)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	sender Sender
	logger *slog.Logger
}

func NewProcessor(sender Sender, logger *slog.Logger) *Processor {
	return &Processor{sender: sender, logger: logger}
}

// Handler registers the email task handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskSendEmail, p.handleSendEmail)
	return mux
}

func (p *Processor) handleSendEmail(ctx context.Context, task *asynq.Task) error {
	var msg Message
	if err := json.Unmarshal(task.Payload(), &msg); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := p.sender.Send(ctx, msg); err != nil {
		p.logger.Warn("email delivery failed", "template", string(msg.Template), "error", err)
		return err
	}
	p.logger.Info("email sent", "template", string(msg.Template), "to", msg.To)
	return nil
}
