package domain

// GroupID identifies a node in the organizational tree.
type GroupID int64

// Group is a node in the organizational tree. The tree has exactly one
// parentless root (the top-level coordinating group). Plate is the
// materialized path of ids from the root down to and including this group
// ("1/4/9/") and must stay consistent with ParentID; prefix matching on
// plates answers ancestor/descendant queries without pointer chasing.
type Group struct {
	ID       GroupID
	Name     string
	ParentID *GroupID
	Plate    string

	// IsAmbit marks the root of an ambit: a bounded sub-tree sharing
	// reassignment responsibility. Nested ambits form independent islands.
	IsAmbit bool

	// AmbitCoordinatorID is a derived value: the nearest is_ambit ancestor
	// (the group itself when IsAmbit), excluding the tree root. Refreshed by
	// an explicit recomputation pass on reparenting, never mutated as a side
	// effect of unrelated saves.
	AmbitCoordinatorID *GroupID

	// ReassignTargets are the explicit outgoing reassignment edges configured
	// for this group.
	ReassignTargets []GroupID
}

// IsRoot reports whether the group is the top-level coordinating group.
func (g *Group) IsRoot() bool { return g.ParentID == nil }
