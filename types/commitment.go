package types

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	// CommitmentSize is the size of a compressed commitment point.
	CommitmentSize = secp256k1.PubKeyBytesLenCompressed
	// ScalarSize is the size of a kernel offset scalar.
	ScalarSize = 32
)

// CommitmentSum is a running sum of commitment points. The zero value is the
// point at infinity.
type CommitmentSum struct {
	p secp256k1.JacobianPoint
}

func (s *CommitmentSum) isInfinity() bool {
	return (s.p.X.IsZero() && s.p.Y.IsZero()) || s.p.Z.IsZero()
}

func parseCommitment(c []byte) (*secp256k1.JacobianPoint, error) {
	pk, err := secp256k1.ParsePubKey(c)
	if err != nil {
		return nil, fmt.Errorf("invalid commitment %X: %w", c, err)
	}
	var p secp256k1.JacobianPoint
	pk.AsJacobian(&p)
	return &p, nil
}

func (s *CommitmentSum) add(p *secp256k1.JacobianPoint) {
	var result secp256k1.JacobianPoint
	secp256k1.AddNonConst(&s.p, p, &result)
	s.p = result
}

// Add adds a compressed commitment to the sum.
func (s *CommitmentSum) Add(c []byte) error {
	p, err := parseCommitment(c)
	if err != nil {
		return err
	}
	s.add(p)
	return nil
}

// Sub subtracts a compressed commitment from the sum.
func (s *CommitmentSum) Sub(c []byte) error {
	p, err := parseCommitment(c)
	if err != nil {
		return err
	}
	p.Y.Negate(1).Normalize()
	s.add(p)
	return nil
}

// Bytes returns the compressed sum, or nil for the point at infinity.
func (s *CommitmentSum) Bytes() []byte {
	if s.isInfinity() {
		return nil
	}
	p := s.p
	p.ToAffine()
	return secp256k1.NewPublicKey(&p.X, &p.Y).SerializeCompressed()
}

// Equal compares two sums by their serialized form.
func (s *CommitmentSum) Equal(o *CommitmentSum) bool {
	return string(s.Bytes()) == string(o.Bytes())
}

// CommitmentSumFromBytes parses the output of Bytes.
func CommitmentSumFromBytes(bz []byte) (*CommitmentSum, error) {
	s := new(CommitmentSum)
	if len(bz) == 0 {
		return s, nil
	}
	p, err := parseCommitment(bz)
	if err != nil {
		return nil, err
	}
	s.p = *p
	return s, nil
}

// AddScalars returns a + b mod the group order. Empty inputs are zero.
func AddScalars(a, b []byte) ([]byte, error) {
	var x, y secp256k1.ModNScalar
	if err := setScalar(&x, a); err != nil {
		return nil, err
	}
	if err := setScalar(&y, b); err != nil {
		return nil, err
	}
	out := x.Add(&y).Bytes()
	return out[:], nil
}

func setScalar(s *secp256k1.ModNScalar, bz []byte) error {
	if len(bz) == 0 {
		return nil
	}
	if len(bz) != ScalarSize {
		return fmt.Errorf("scalar must be %d bytes, got %d", ScalarSize, len(bz))
	}
	if s.SetByteSlice(bz) {
		return errors.New("scalar overflows the group order")
	}
	return nil
}
