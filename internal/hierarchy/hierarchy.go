// Package hierarchy answers read queries over the organizational group tree:
// ancestors, descendants, ambit membership, and the ambit-coordinator
// recomputation pass triggered by reparenting.
package hierarchy

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"tramita/internal/domain"
	"tramita/pkg/sentinel"
)

// Store is the persistence port for group tree queries. Implementations must
// return groups in stable id order so repeated queries over unchanged data
// yield identical sequences.
type Store interface {
	Get(ctx context.Context, id domain.GroupID) (*domain.Group, error)
	ByIDs(ctx context.Context, ids []domain.GroupID) ([]*domain.Group, error)
	// ByPlatePrefix returns every group whose plate starts with prefix,
	// including the group owning the prefix itself.
	ByPlatePrefix(ctx context.Context, prefix string) ([]*domain.Group, error)
	All(ctx context.Context) ([]*domain.Group, error)
	// ApplyTreeSnapshot persists a batch of derived tree values in one call.
	ApplyTreeSnapshot(ctx context.Context, updates []TreeUpdate) error
}

// TreeUpdate is one row of a derived-value snapshot produced by a maintenance
// pass. Fields left nil/empty keep their stored value, except
// AmbitCoordinatorID which is always written (nil clears it).
type TreeUpdate struct {
	ID                 domain.GroupID
	ParentID           *domain.GroupID
	Plate              string
	AmbitCoordinatorID *domain.GroupID
}

// Service provides the tree queries. It is read-only except for the explicit
// maintenance operations.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// PlateFor builds the plate a group carries under the given parent plate.
func PlateFor(parentPlate string, id domain.GroupID) string {
	return parentPlate + strconv.FormatInt(int64(id), 10) + "/"
}

// plateIDs parses a plate into the ordered id path from root to owner.
func plateIDs(plate string) ([]domain.GroupID, error) {
	parts := strings.Split(strings.Trim(plate, "/"), "/")
	ids := make([]domain.GroupID, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed plate %q: %w", plate, err)
		}
		ids = append(ids, domain.GroupID(n))
	}
	return ids, nil
}

// Ancestors returns the chain from the root down to the group's parent,
// or to the group itself when includeSelf is set.
func (s *Service) Ancestors(ctx context.Context, g *domain.Group, includeSelf bool) ([]*domain.Group, error) {
	ids, err := plateIDs(g.Plate)
	if err != nil {
		return nil, err
	}
	if !includeSelf && len(ids) > 0 {
		ids = ids[:len(ids)-1]
	}
	return s.store.ByIDs(ctx, ids)
}

// Descendants returns the group's sub-tree in stable id order.
func (s *Service) Descendants(ctx context.Context, g *domain.Group, includeSelf bool) ([]*domain.Group, error) {
	groups, err := s.store.ByPlatePrefix(ctx, g.Plate)
	if err != nil {
		return nil, err
	}
	if includeSelf {
		return groups, nil
	}
	out := groups[:0]
	for _, d := range groups {
		if d.ID != g.ID {
			out = append(out, d)
		}
	}
	return out, nil
}

// IsDescendant reports whether child sits strictly below ancestor.
func IsDescendant(child, ancestor *domain.Group) bool {
	return child.ID != ancestor.ID && strings.HasPrefix(child.Plate, ancestor.Plate)
}

// AmbitAncestor returns the nearest is_ambit strict ancestor of g, excluding
// the tree root, or nil when no such ancestor exists. A nil result is not an
// error: plenty of groups live outside any ambit.
func (s *Service) AmbitAncestor(ctx context.Context, g *domain.Group) (*domain.Group, error) {
	ancestors, err := s.Ancestors(ctx, g, false)
	if err != nil {
		return nil, err
	}
	// Walk nearest-first.
	for i := len(ancestors) - 1; i >= 0; i-- {
		a := ancestors[i]
		if a.IsRoot() {
			continue
		}
		if a.IsAmbit {
			return a, nil
		}
	}
	return nil, nil
}

// CoordinatorOf returns the group's ambit coordinator: the group itself when
// flagged is_ambit, else its nearest non-root ambit ancestor, else nil.
func (s *Service) CoordinatorOf(ctx context.Context, g *domain.Group) (*domain.Group, error) {
	if g.IsAmbit && !g.IsRoot() {
		return g, nil
	}
	return s.AmbitAncestor(ctx, g)
}

// AmbitOf returns the set of groups sharing reassignment responsibility with
// g, in stable id order.
//
// For an ambit root: itself plus descendants, minus nested ambit islands.
// A deeper is_ambit sub-tree (its root included) forms an independent ambit
// and must not leak into the enclosing view, at any nesting depth.
//
// For a plain group: the view of its nearest non-root ambit ancestor. With no
// ambit ancestor at all, the fallback is the group plus its ancestors
// excluding the root coordinating group.
func (s *Service) AmbitOf(ctx context.Context, g *domain.Group) ([]*domain.Group, error) {
	if g.IsAmbit && !g.IsRoot() {
		sub, err := s.Descendants(ctx, g, true)
		if err != nil {
			return nil, err
		}
		var islands []string
		for _, d := range sub {
			if d.ID != g.ID && d.IsAmbit {
				islands = append(islands, d.Plate)
			}
		}
		out := make([]*domain.Group, 0, len(sub))
	next:
		for _, d := range sub {
			for _, island := range islands {
				if strings.HasPrefix(d.Plate, island) {
					continue next
				}
			}
			out = append(out, d)
		}
		return out, nil
	}

	coordinator, err := s.AmbitAncestor(ctx, g)
	if err != nil {
		return nil, err
	}
	if coordinator != nil {
		return s.AmbitOf(ctx, coordinator)
	}

	ancestors, err := s.Ancestors(ctx, g, true)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Group, 0, len(ancestors))
	for _, a := range ancestors {
		if a.IsRoot() {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Contains reports whether the given ambit view includes id.
func Contains(view []*domain.Group, id domain.GroupID) bool {
	for _, g := range view {
		if g.ID == id {
			return true
		}
	}
	return false
}

// RecomputeAmbitCoordinators rebuilds the derived ambit_coordinator value for
// every group and applies the result as one snapshot. Idempotent: running it
// over an already-correct tree changes nothing.
func (s *Service) RecomputeAmbitCoordinators(ctx context.Context) error {
	groups, err := s.store.All(ctx)
	if err != nil {
		return err
	}
	byID := make(map[domain.GroupID]*domain.Group, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}

	updates := make([]TreeUpdate, 0, len(groups))
	for _, g := range groups {
		coord := coordinatorIn(byID, g)
		updates = append(updates, TreeUpdate{
			ID:                 g.ID,
			ParentID:           g.ParentID,
			Plate:              g.Plate,
			AmbitCoordinatorID: coord,
		})
	}
	return s.store.ApplyTreeSnapshot(ctx, updates)
}

// Reparent moves a group under a new parent, rewriting the plates of the
// moved sub-tree and refreshing ambit coordinators in the same snapshot. The
// new parent must not sit inside the moved sub-tree.
func (s *Service) Reparent(ctx context.Context, id, newParentID domain.GroupID) error {
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	parent, err := s.store.Get(ctx, newParentID)
	if err != nil {
		return err
	}
	if g.IsRoot() {
		return fmt.Errorf("reparent root group %d: %w", id, sentinel.ErrInvalidState)
	}
	if g.ID == parent.ID || strings.HasPrefix(parent.Plate, g.Plate) {
		return fmt.Errorf("reparent %d under its own sub-tree: %w", id, sentinel.ErrInvalidState)
	}

	sub, err := s.store.ByPlatePrefix(ctx, g.Plate)
	if err != nil {
		return err
	}
	newPlate := PlateFor(parent.Plate, g.ID)

	// Build the post-move tree in memory, then derive coordinators from it.
	groups, err := s.store.All(ctx)
	if err != nil {
		return err
	}
	byID := make(map[domain.GroupID]*domain.Group, len(groups))
	for _, grp := range groups {
		c := *grp
		byID[c.ID] = &c
	}
	moved := make(map[domain.GroupID]bool, len(sub))
	for _, d := range sub {
		moved[d.ID] = true
		c := byID[d.ID]
		c.Plate = newPlate + strings.TrimPrefix(d.Plate, g.Plate)
		if d.ID == id {
			p := newParentID
			c.ParentID = &p
		}
	}

	updates := make([]TreeUpdate, 0, len(byID))
	for _, c := range byID {
		coord := coordinatorIn(byID, c)
		if !moved[c.ID] && equalID(coord, c.AmbitCoordinatorID) {
			continue
		}
		updates = append(updates, TreeUpdate{
			ID:                 c.ID,
			ParentID:           c.ParentID,
			Plate:              c.Plate,
			AmbitCoordinatorID: coord,
		})
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].ID < updates[j].ID })
	return s.store.ApplyTreeSnapshot(ctx, updates)
}

// coordinatorIn resolves the ambit coordinator for g against an in-memory
// tree: nearest is_ambit node on the path from g to the root, excluding the
// root itself.
func coordinatorIn(byID map[domain.GroupID]*domain.Group, g *domain.Group) *domain.GroupID {
	cur := g
	for cur != nil {
		if cur.IsAmbit && !cur.IsRoot() {
			id := cur.ID
			return &id
		}
		if cur.ParentID == nil {
			return nil
		}
		cur = byID[*cur.ParentID]
	}
	return nil
}

func equalID(a, b *domain.GroupID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
