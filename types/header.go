package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	tmbytes "github.com/mmrnode/mmrnode/libs/bytes"
	typesproto "github.com/mmrnode/mmrnode/proto/mmrnode/types"
	"github.com/mmrnode/mmrnode/version"
)

const (
	// HashSize is the size of header, block and MMR hashes.
	HashSize = blake2b.Size256

	// BlockHeaderVersion is the only header version this node produces and
	// accepts.
	BlockHeaderVersion = uint32(version.BlockProtocol)
)

// BlockHeader is the self-contained header of a block.
type BlockHeader struct {
	Version   uint32           `json:"version"`
	Height    uint64           `json:"height"`
	PrevHash  tmbytes.HexBytes `json:"prev_hash"`
	Timestamp uint64           `json:"timestamp"`

	// Roots of the output (with its deletion bitmap), range proof and kernel
	// MMRs after applying the block.
	OutputMR      tmbytes.HexBytes `json:"output_mr"`
	RangeProofMR  tmbytes.HexBytes `json:"range_proof_mr"`
	KernelMR      tmbytes.HexBytes `json:"kernel_mr"`
	OutputMMRSize uint64           `json:"output_mmr_size"`
	KernelMMRSize uint64           `json:"kernel_mmr_size"`

	TotalKernelOffset tmbytes.HexBytes `json:"total_kernel_offset"`

	Nonce uint64      `json:"nonce"`
	Pow   ProofOfWork `json:"pow"`
}

// Time returns the header timestamp.
func (h *BlockHeader) Time() time.Time {
	return time.Unix(int64(h.Timestamp), 0).UTC()
}

type hashWriter struct {
	buf bytes.Buffer
}

func (w *hashWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *hashWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// bytes writes a length prefixed byte slice.
func (w *hashWriter) bytes(v []byte) {
	w.u64(uint64(len(v)))
	w.buf.Write(v)
}

func (w *hashWriter) sum() []byte {
	h := blake2b.Sum256(w.buf.Bytes())
	return h[:]
}

// MiningHash commits to every field except the nonce and proof of work. It is
// the input miners search over.
func (h *BlockHeader) MiningHash() tmbytes.HexBytes {
	var w hashWriter
	w.bytes([]byte("mmrnode.header.mining"))
	w.u32(h.Version)
	w.u64(h.Height)
	w.bytes(h.PrevHash)
	w.u64(h.Timestamp)
	w.bytes(h.OutputMR)
	w.bytes(h.RangeProofMR)
	w.bytes(h.KernelMR)
	w.u64(h.OutputMMRSize)
	w.u64(h.KernelMMRSize)
	w.bytes(h.TotalKernelOffset)
	return w.sum()
}

// Hash returns the hash identifying the header.
func (h *BlockHeader) Hash() tmbytes.HexBytes {
	if h == nil {
		return nil
	}
	var w hashWriter
	w.bytes([]byte("mmrnode.header"))
	w.bytes(h.MiningHash())
	w.u32(uint32(h.Pow.Algo))
	w.bytes(h.Pow.Data)
	w.u64(h.Nonce)
	return w.sum()
}

// ValidateBasic performs stateless validation on a header.
func (h *BlockHeader) ValidateBasic() error {
	if h == nil {
		return errors.New("nil header")
	}
	if h.Version != BlockHeaderVersion {
		return fmt.Errorf("block header version is incorrect: got %d, want %d", h.Version, BlockHeaderVersion)
	}
	if h.Height > 0 && len(h.PrevHash) != HashSize {
		return fmt.Errorf("wrong PrevHash: expected size %d, got %d", HashSize, len(h.PrevHash))
	}
	for name, mr := range map[string][]byte{
		"OutputMR":     h.OutputMR,
		"RangeProofMR": h.RangeProofMR,
		"KernelMR":     h.KernelMR,
	} {
		if len(mr) != HashSize {
			return fmt.Errorf("wrong %s: expected size %d, got %d", name, HashSize, len(mr))
		}
	}
	if len(h.TotalKernelOffset) != 0 && len(h.TotalKernelOffset) != ScalarSize {
		return fmt.Errorf("wrong TotalKernelOffset: expected size %d, got %d", ScalarSize, len(h.TotalKernelOffset))
	}
	return h.Pow.Algo.ValidateBasic()
}

// StringIndented returns an indented string representation of the header.
func (h *BlockHeader) StringIndented(indent string) string {
	if h == nil {
		return "nil-BlockHeader"
	}
	return fmt.Sprintf(`BlockHeader{
%s  Version:       %v
%s  Height:        %v
%s  PrevHash:      %v
%s  Time:          %v
%s  OutputMR:      %v
%s  RangeProofMR:  %v
%s  KernelMR:      %v
%s  OutputMMRSize: %v
%s  KernelMMRSize: %v
%s  Pow:           %v
%s}#%v`,
		indent, h.Version,
		indent, h.Height,
		indent, h.PrevHash,
		indent, h.Time(),
		indent, h.OutputMR,
		indent, h.RangeProofMR,
		indent, h.KernelMR,
		indent, h.OutputMMRSize,
		indent, h.KernelMMRSize,
		indent, h.Pow.Algo,
		indent, h.Hash(),
	)
}

func (h *BlockHeader) String() string {
	if h == nil {
		return "nil-BlockHeader"
	}
	return fmt.Sprintf("BlockHeader{#%d %v %v}", h.Height, h.Pow.Algo, h.Hash().ShortString())
}

// ToProto converts BlockHeader to protobuf.
func (h *BlockHeader) ToProto() *typesproto.BlockHeader {
	if h == nil {
		return nil
	}
	return &typesproto.BlockHeader{
		Version:           h.Version,
		Height:            h.Height,
		PrevHash:          h.PrevHash,
		Timestamp:         h.Timestamp,
		OutputMr:          h.OutputMR,
		RangeProofMr:      h.RangeProofMR,
		KernelMr:          h.KernelMR,
		OutputMmrSize:     h.OutputMMRSize,
		KernelMmrSize:     h.KernelMMRSize,
		TotalKernelOffset: h.TotalKernelOffset,
		Nonce:             h.Nonce,
		Pow:               h.Pow.ToProto(),
	}
}

// BlockHeaderFromProto converts a protobuf header. It returns an error if the
// header is invalid.
func BlockHeaderFromProto(ph *typesproto.BlockHeader) (*BlockHeader, error) {
	if ph == nil {
		return nil, errors.New("nil BlockHeader")
	}
	h := &BlockHeader{
		Version:           ph.Version,
		Height:            ph.Height,
		PrevHash:          ph.PrevHash,
		Timestamp:         ph.Timestamp,
		OutputMR:          ph.OutputMr,
		RangeProofMR:      ph.RangeProofMr,
		KernelMR:          ph.KernelMr,
		OutputMMRSize:     ph.OutputMmrSize,
		KernelMMRSize:     ph.KernelMmrSize,
		TotalKernelOffset: ph.TotalKernelOffset,
		Nonce:             ph.Nonce,
		Pow:               ProofOfWorkFromProto(ph.GetPow()),
	}
	return h, h.ValidateBasic()
}
