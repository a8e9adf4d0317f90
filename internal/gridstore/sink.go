package gridstore

import (
	"github.com/banshee-data/occupancy.map/internal/occupancy/snapshot"
)

// SnapshotSink persists every Nth published snapshot. It satisfies
// pipeline.Sink.
type SnapshotSink struct {
	store *Store
	every uint64
	keep  int
	seen  uint64
}

// NewSnapshotSink stores one snapshot in every `every` (at least 1). When
// keep is positive older rows of the session are pruned to that many.
func NewSnapshotSink(store *Store, every, keep int) *SnapshotSink {
	if every < 1 {
		every = 1
	}
	return &SnapshotSink{store: store, every: uint64(every), keep: keep}
}

// Publish implements pipeline.Sink.
func (k *SnapshotSink) Publish(s *snapshot.Snapshot) error {
	k.seen++
	if (k.seen-1)%k.every != 0 {
		return nil
	}
	if _, err := k.store.InsertSnapshot(s); err != nil {
		return err
	}
	if k.keep > 0 {
		if _, err := k.store.PruneSnapshots(k.keep); err != nil {
			return err
		}
	}
	return nil
}
