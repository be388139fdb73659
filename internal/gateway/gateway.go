package gateway

import (
	"context"
	"time"

	"github.com/loopydev/flowboard/internal/state"
)

// Task is the wire shape the remote task gateway stores and returns.
type Task struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Notes      string       `json:"notes,omitempty"`
	State      state.Remote `json:"state"`
	IsArchived bool         `json:"isArchived,omitempty"`
	CreatedAt  time.Time    `json:"createdAt,omitzero"`
	UpdatedAt  time.Time    `json:"updatedAt,omitzero"`
}

// Patch carries a partial update. Nil fields are left untouched by the
// gateway, so repeating an identical patch is idempotent.
type Patch struct {
	Title      *string       `json:"title,omitempty"`
	Notes      *string       `json:"notes,omitempty"`
	State      *state.Remote `json:"state,omitempty"`
	IsArchived *bool         `json:"isArchived,omitempty"`
}

type CreateRequest struct {
	Title string       `json:"title"`
	Notes string       `json:"notes,omitempty"`
	State state.Remote `json:"state"`
}

// TaskGateway is the remote system of record. The board only ever holds
// a revertible projection of what it returns.
type TaskGateway interface {
	List(ctx context.Context) ([]Task, error)
	Create(ctx context.Context, req CreateRequest) (Task, error)
	Update(ctx context.Context, id string, patch Patch) (Task, error)
	Archive(ctx context.Context, id string) error
}
