package repository

import (
	"context"

	"ai-generation-broker/internal/domain/model"
)

// JobPatch lists the persisted fields a generic update may touch. Nil pointers
// mean "no change"; status and progress are deliberately absent, those move
// only through the job instance's transition methods.
type JobPatch struct {
	Name              *string
	TimeoutMs         *int64
	MJNativeMessageID *string
}

type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// Patch applies non-nil fields of p without touching status or progress.
	Patch(ctx context.Context, tx Tx, id string, p JobPatch) (*model.Job, error)
	Delete(ctx context.Context, tx Tx, id string) error
	// ListUnfinished returns jobs left in created/pending state, e.g. after a
	// crash of their owning process.
	ListUnfinished(ctx context.Context, tx Tx) ([]*model.Job, error)
}
