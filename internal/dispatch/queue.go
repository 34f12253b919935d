// Package dispatch serializes turns per session, in process or through an
// SQS FIFO queue.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, job turnJob, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// turnJob is the queued form of one patient utterance.
type turnJob struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Utterance  string    `json:"utterance"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func encodeJob(job turnJob) (turnJob, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return turnJob{}, "", fmt.Errorf("dispatch: failed to encode job: %w", err)
	}
	return job, string(body), nil
}
