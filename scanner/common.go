package scanner

import (
	"context"

	"github.com/google/uuid"
	"github.com/pithecene-io/triage/coordinator"
	"github.com/pithecene-io/triage/types"
)

// pushChild stores data under a fresh pointer and builds the resulting
// child file descriptor, the shape every extracting scanner returns.
func pushChild(ctx context.Context, coord *coordinator.Client, parent *types.File, name, source string, data []byte) (*types.File, error) {
	child := &types.File{
		UID:     uuid.NewString(),
		Parent:  parent.UID,
		Depth:   parent.Depth + 1,
		Name:    name,
		Source:  source,
		Flavors: make(types.FlavorSet),
	}
	child.Pointer = child.UID

	if err := coord.PushBytes(ctx, child.Pointer, data); err != nil {
		return nil, err
	}
	return child, nil
}
