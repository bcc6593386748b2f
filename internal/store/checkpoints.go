package store

import (
	"fmt"

	"github.com/gogo/protobuf/proto"
	"github.com/google/orderedcode"

	"github.com/mmrnode/mmrnode/internal/mmr"
	storeproto "github.com/mmrnode/mmrnode/proto/mmrnode/store"
)

// Tree identifies one of the accumulators kept by the store.
type Tree int64

const (
	TreeKernel Tree = iota
	TreeOutput
	TreeRangeProof
)

// Trees lists every accumulator in a fixed order.
var Trees = []Tree{TreeKernel, TreeOutput, TreeRangeProof}

func (t Tree) String() string {
	switch t {
	case TreeKernel:
		return "kernel"
	case TreeOutput:
		return "output"
	case TreeRangeProof:
		return "rangeproof"
	default:
		return fmt.Sprintf("tree(%d)", int64(t))
	}
}

// checkpointStore persists the checkpoints of one tree. Checkpoint i lives
// under an absolute index first+i so that merging the head of the list only
// rewrites the merged entries.
type checkpointStore struct {
	kv   kvStore
	tree Tree
}

var _ mmr.CompactableCheckpointStore = (*checkpointStore)(nil)

func newCheckpointStore(kv kvStore, tree Tree) *checkpointStore {
	return &checkpointStore{kv: kv, tree: tree}
}

func (s *checkpointStore) bounds() (first, count uint64, err error) {
	bz, err := s.kv.Get(checkpointBoundsKey(s.tree))
	if err != nil {
		return 0, 0, storageErr("get checkpoint bounds", err)
	}
	if len(bz) == 0 {
		return 0, 0, nil
	}
	remaining, err := orderedcode.Parse(string(bz), &first, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("decoding %v checkpoint bounds: %w", s.tree, err)
	}
	if len(remaining) != 0 {
		return 0, 0, fmt.Errorf("decoding %v checkpoint bounds: trailing bytes", s.tree)
	}
	return first, count, nil
}

func (s *checkpointStore) setBounds(first, count uint64) error {
	return s.kv.Set(checkpointBoundsKey(s.tree), mustAppend(first, count))
}

func (s *checkpointStore) Len() (int, error) {
	_, count, err := s.bounds()
	return int(count), err
}

func (s *checkpointStore) Get(index int) (*mmr.MerkleCheckpoint, error) {
	first, count, err := s.bounds()
	if err != nil {
		return nil, err
	}
	if index < 0 || uint64(index) >= count {
		return nil, notFound("%v checkpoint %d of %d", s.tree, index, count)
	}
	bz, err := s.kv.Get(checkpointKey(s.tree, first+uint64(index)))
	if err != nil {
		return nil, storageErr("get checkpoint", err)
	}
	if bz == nil {
		return nil, notFound("%v checkpoint %d", s.tree, index)
	}
	pc := new(storeproto.MerkleCheckpoint)
	if err := proto.Unmarshal(bz, pc); err != nil {
		return nil, fmt.Errorf("unmarshal %v checkpoint %d: %w", s.tree, index, err)
	}
	deleted, err := mmr.DecodeBitmap(pc.NodesDeleted)
	if err != nil {
		return nil, fmt.Errorf("%v checkpoint %d: %w", s.tree, index, err)
	}
	return mmr.NewMerkleCheckpoint(pc.NodesAdded, deleted, pc.AccumulatedNodesAddedCount), nil
}

func (s *checkpointStore) put(abs uint64, cp *mmr.MerkleCheckpoint) error {
	return s.kv.Set(checkpointKey(s.tree, abs), mustEncode(&storeproto.MerkleCheckpoint{
		NodesAdded:                 cp.NodesAdded,
		NodesDeleted:               mmr.EncodeBitmap(cp.NodesDeleted),
		AccumulatedNodesAddedCount: cp.AccumulatedNodesAddedCount,
	}))
}

func (s *checkpointStore) Push(cp *mmr.MerkleCheckpoint) error {
	first, count, err := s.bounds()
	if err != nil {
		return err
	}
	if err := s.put(first+count, cp); err != nil {
		return err
	}
	return s.setBounds(first, count+1)
}

func (s *checkpointStore) Truncate(n int) error {
	first, count, err := s.bounds()
	if err != nil {
		return err
	}
	if n < 0 || uint64(n) >= count {
		return nil
	}
	for i := uint64(n); i < count; i++ {
		if err := s.kv.Delete(checkpointKey(s.tree, first+i)); err != nil {
			return storageErr("delete checkpoint", err)
		}
	}
	return s.setBounds(first, uint64(n))
}

func (s *checkpointStore) ReplaceFirst(k int, merged *mmr.MerkleCheckpoint) error {
	first, count, err := s.bounds()
	if err != nil {
		return err
	}
	if k < 1 || uint64(k) > count {
		return mmr.ErrInvalidMerge
	}
	last := first + uint64(k) - 1
	for i := first; i < last; i++ {
		if err := s.kv.Delete(checkpointKey(s.tree, i)); err != nil {
			return storageErr("delete checkpoint", err)
		}
	}
	if err := s.put(last, merged); err != nil {
		return err
	}
	return s.setBounds(last, count-uint64(k)+1)
}

// readOnlyKV serves committed reads of the database to the caches.
type readOnlyKV struct {
	db interface {
		Get([]byte) ([]byte, error)
		Has([]byte) (bool, error)
	}
}

func (r readOnlyKV) Get(key []byte) ([]byte, error) { return r.db.Get(key) }
func (r readOnlyKV) Has(key []byte) (bool, error)   { return r.db.Has(key) }

func (readOnlyKV) Set([]byte, []byte) error {
	return fmt.Errorf("set on committed view: %w", ErrInvalidOperation)
}

func (readOnlyKV) Delete([]byte) error {
	return fmt.Errorf("delete on committed view: %w", ErrInvalidOperation)
}
