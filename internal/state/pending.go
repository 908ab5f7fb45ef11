package state

import (
	"context"
	"fmt"
)

// Pending-change markers bound the cost of a durable save: only ids in
// `pending:<entity>:inserts` and `pending:<entity>:deletes` are synced.
// Markers are authoritative until the save transaction commits; the
// persistence layer clears them only after a successful commit.

// MarkInserted records an entity id as created or updated since the last
// save. A later delete supersedes the insert.
func (w *World) MarkInserted(ctx context.Context, entity string, id uint64) error {
	if err := w.hot.SAdd(ctx, pendingKey(entity, "inserts"), formatID(id)); err != nil {
		return fmt.Errorf("mark %s %d inserted: %w", entity, id, err)
	}
	return nil
}

// MarkDeleted records an entity id as deleted since the last save and
// withdraws any pending insert for it.
func (w *World) MarkDeleted(ctx context.Context, entity string, id uint64) error {
	if err := w.hot.SRem(ctx, pendingKey(entity, "inserts"), formatID(id)); err != nil {
		return fmt.Errorf("unmark %s %d inserted: %w", entity, id, err)
	}
	if err := w.hot.SAdd(ctx, pendingKey(entity, "deletes"), formatID(id)); err != nil {
		return fmt.Errorf("mark %s %d deleted: %w", entity, id, err)
	}
	return nil
}

// PendingInserts returns the ids pending upsert for an entity type.
func (w *World) PendingInserts(ctx context.Context, entity string) ([]uint64, error) {
	members, err := w.hot.SMembers(ctx, pendingKey(entity, "inserts"))
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("pending %s inserts: %w", entity, err)
	}
	return parseIDs(members)
}

// PendingDeletes returns the ids pending delete for an entity type.
func (w *World) PendingDeletes(ctx context.Context, entity string) ([]uint64, error) {
	members, err := w.hot.SMembers(ctx, pendingKey(entity, "deletes"))
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("pending %s deletes: %w", entity, err)
	}
	return parseIDs(members)
}

// ClearPending removes the given ids from the pending sets. Called by the
// persistence layer strictly after a successful commit, so a failed save
// leaves the markers for retry.
func (w *World) ClearPending(ctx context.Context, entity string, inserts, deletes []uint64) error {
	if len(inserts) > 0 {
		members := make([]string, len(inserts))
		for i, id := range inserts {
			members[i] = formatID(id)
		}
		if err := w.hot.SRem(ctx, pendingKey(entity, "inserts"), members...); err != nil {
			return fmt.Errorf("clear pending %s inserts: %w", entity, err)
		}
	}
	if len(deletes) > 0 {
		members := make([]string, len(deletes))
		for i, id := range deletes {
			members[i] = formatID(id)
		}
		if err := w.hot.SRem(ctx, pendingKey(entity, "deletes"), members...); err != nil {
			return fmt.Errorf("clear pending %s deletes: %w", entity, err)
		}
	}
	return nil
}

// EntityKinds lists the entity hash keys that participate in pending
// tracking, in durable-save order.
func EntityKinds() []string {
	return []string{keyTile, keyVillage, keyPerson, keyFamily}
}

// Entity hash key names, exported for the persistence layer.
const (
	EntityPerson  = keyPerson
	EntityFamily  = keyFamily
	EntityVillage = keyVillage
	EntityTile    = keyTile
)
