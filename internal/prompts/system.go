package prompts

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/pagination"
)

// Resolver returns the instructions in effect for a stage.
type Resolver interface {
	Resolve(ctx context.Context, stage Stage) (string, error)
}

// System is the prompt override registry.
type System interface {
	Resolver

	Handler() *Handler

	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Prompt], error)
	Find(ctx context.Context, id uuid.UUID) (*Prompt, error)
	Create(ctx context.Context, cmd CreateCommand) (*Prompt, error)
	Update(ctx context.Context, id uuid.UUID, cmd UpdateCommand) (*Prompt, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Activate makes id the only active override for its stage.
	Activate(ctx context.Context, id uuid.UUID) (*Prompt, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*Prompt, error)
}

// Defaults resolves every stage to its built-in instructions. The CLI and
// tests use it where no prompts table is consulted.
type Defaults struct{}

func (Defaults) Resolve(_ context.Context, stage Stage) (string, error) {
	return Instructions(stage)
}
