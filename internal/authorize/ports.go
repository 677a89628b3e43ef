package authorize

import (
	"context"

	"tramita/internal/domain"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// PermissionLookup answers whether a user holds a named permission. Backed by
// the identity provider's role assignments; this package never sees roles,
// only the flattened permission codes.
type PermissionLookup interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
}

// GroupReader is the slice of group storage the evaluator needs.
type GroupReader interface {
	Get(ctx context.Context, id domain.GroupID) (*domain.Group, error)
}
