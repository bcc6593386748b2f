package mmr

import "fmt"

// ArrayLike is the node storage an MMR is built on. Nodes are only ever
// appended; Clear drops all of them.
type ArrayLike interface {
	Len() (uint64, error)
	Push(hash []byte) (uint64, error)
	Get(index uint64) ([]byte, error)
	Clear() error
	Clone() ArrayLike
}

// MemBackend keeps every node in memory.
type MemBackend struct {
	nodes [][]byte
}

var _ ArrayLike = (*MemBackend)(nil)

func NewMemBackend() *MemBackend {
	return &MemBackend{}
}

func (b *MemBackend) Len() (uint64, error) {
	return uint64(len(b.nodes)), nil
}

func (b *MemBackend) Push(hash []byte) (uint64, error) {
	b.nodes = append(b.nodes, hash)
	return uint64(len(b.nodes) - 1), nil
}

func (b *MemBackend) Get(index uint64) ([]byte, error) {
	if index >= uint64(len(b.nodes)) {
		return nil, fmt.Errorf("node %d of %d: %w", index, len(b.nodes), ErrHashNotFound)
	}
	return b.nodes[index], nil
}

func (b *MemBackend) Clear() error {
	b.nodes = nil
	return nil
}

// Clone shares the node hashes, which are never mutated, but not the slice.
func (b *MemBackend) Clone() ArrayLike {
	nodes := make([][]byte, len(b.nodes))
	copy(nodes, b.nodes)
	return &MemBackend{nodes: nodes}
}
