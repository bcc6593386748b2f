package mmr

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// MerkleCheckpoint is the delta between two committed states of a
// MutableMMR: the leaves added, in order, and the leaves deleted.
// AccumulatedNodesAddedCount is the leaf count once the checkpoint is applied.
type MerkleCheckpoint struct {
	NodesAdded                 [][]byte
	NodesDeleted               *bitset.BitSet
	AccumulatedNodesAddedCount uint64
}

func NewMerkleCheckpoint(added [][]byte, deleted *bitset.BitSet, accumulated uint64) *MerkleCheckpoint {
	if deleted == nil {
		deleted = bitset.New(0)
	}
	return &MerkleCheckpoint{
		NodesAdded:                 added,
		NodesDeleted:               deleted,
		AccumulatedNodesAddedCount: accumulated,
	}
}

// Apply pushes the additions and then marks the deletions, so a checkpoint
// may delete leaves it adds itself.
func (cp *MerkleCheckpoint) Apply(m *MutableMMR) error {
	for _, h := range cp.NodesAdded {
		if _, err := m.Push(h); err != nil {
			return err
		}
	}
	return m.DeleteAll(cp.NodesDeleted)
}

// Append folds next into cp: additions are concatenated and deletions
// OR-ed.
func (cp *MerkleCheckpoint) Append(next *MerkleCheckpoint) *MerkleCheckpoint {
	added := make([][]byte, 0, len(cp.NodesAdded)+len(next.NodesAdded))
	added = append(added, cp.NodesAdded...)
	added = append(added, next.NodesAdded...)

	deleted := cp.NodesDeleted.Clone()
	deleted.InPlaceUnion(next.NodesDeleted)

	return NewMerkleCheckpoint(added, deleted, next.AccumulatedNodesAddedCount)
}

// CheckpointStore is the ordered, authoritative list of checkpoints.
type CheckpointStore interface {
	Len() (int, error)
	Get(index int) (*MerkleCheckpoint, error)
	Push(cp *MerkleCheckpoint) error
	// Truncate keeps the first n checkpoints.
	Truncate(n int) error
}

// CompactableCheckpointStore can replace its first k checkpoints by one.
type CompactableCheckpointStore interface {
	CheckpointStore
	ReplaceFirst(k int, merged *MerkleCheckpoint) error
}

// MemCheckpointStore keeps checkpoints in a slice.
type MemCheckpointStore struct {
	checkpoints []*MerkleCheckpoint
}

var _ CompactableCheckpointStore = (*MemCheckpointStore)(nil)

func NewMemCheckpointStore() *MemCheckpointStore {
	return &MemCheckpointStore{}
}

func (s *MemCheckpointStore) Len() (int, error) {
	return len(s.checkpoints), nil
}

func (s *MemCheckpointStore) Get(index int) (*MerkleCheckpoint, error) {
	if index < 0 || index >= len(s.checkpoints) {
		return nil, fmt.Errorf("checkpoint %d of %d: %w", index, len(s.checkpoints), ErrHashNotFound)
	}
	return s.checkpoints[index], nil
}

func (s *MemCheckpointStore) Push(cp *MerkleCheckpoint) error {
	s.checkpoints = append(s.checkpoints, cp)
	return nil
}

func (s *MemCheckpointStore) Truncate(n int) error {
	if n < len(s.checkpoints) {
		s.checkpoints = s.checkpoints[:n]
	}
	return nil
}

func (s *MemCheckpointStore) ReplaceFirst(k int, merged *MerkleCheckpoint) error {
	if k < 1 || k > len(s.checkpoints) {
		return ErrInvalidMerge
	}
	rest := s.checkpoints[k:]
	checkpoints := make([]*MerkleCheckpoint, 0, len(rest)+1)
	checkpoints = append(checkpoints, merged)
	s.checkpoints = append(checkpoints, rest...)
	return nil
}

// MergeCheckpoints folds the first k checkpoints of store into one and
// returns it. The state reached after replaying all checkpoints is
// unchanged.
func MergeCheckpoints(store CompactableCheckpointStore, k int) (*MerkleCheckpoint, error) {
	count, err := store.Len()
	if err != nil {
		return nil, err
	}
	if k < 1 || k > count {
		return nil, fmt.Errorf("merging %d of %d checkpoints: %w", k, count, ErrInvalidMerge)
	}

	merged, err := store.Get(0)
	if err != nil {
		return nil, err
	}
	for i := 1; i < k; i++ {
		cp, err := store.Get(i)
		if err != nil {
			return nil, err
		}
		merged = merged.Append(cp)
	}
	if k == 1 {
		return merged, nil
	}
	if err := store.ReplaceFirst(k, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// applyCheckpoints applies checkpoints [from, to) of store to m.
func applyCheckpoints(store CheckpointStore, m *MutableMMR, from, to int) error {
	for i := from; i < to; i++ {
		cp, err := store.Get(i)
		if err != nil {
			return err
		}
		if err := cp.Apply(m); err != nil {
			return fmt.Errorf("applying checkpoint %d: %w", i, err)
		}
	}
	return nil
}
