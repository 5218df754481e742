package model

import (
	"time"

	"ai-generation-broker/internal/domain"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusCreated JobStatus = "created"
	JobStatusPending JobStatus = "pending"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
	JobStatusStopped JobStatus = "stopped"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError || s == JobStatusStopped
}

// Job is the persisted record of one generation request's lifecycle.
// Mutation goes through the job instance's transition methods only.
type Job struct {
	ID                string
	Name              string // job kind: text, image, video, speech
	Status            JobStatus
	Progress          int // 0..100
	TimeoutMs         int64
	IsStopAllowed     bool
	Error             string
	ErrorCode         string
	ChatID            string
	MessageID         string
	MJNativeMessageID string // provider-native message id, patched after dispatch
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewJob(name, chatID, messageID string, timeoutMs int64) (*Job, error) {
	if name == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    JobStatusCreated,
		ChatID:    chatID,
		MessageID: messageID,
		TimeoutMs: timeoutMs,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
