package blocksync

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmrnode/mmrnode/internal/validation"
)

var (
	// ErrNoSyncPeers is returned when there is no peer to sync from.
	ErrNoSyncPeers = errors.New("no sync peers available")
	// ErrConnectivity wraps transport failures and timeouts.
	ErrConnectivity = errors.New("connectivity error")
	// ErrProtocol is returned when a peer's answer does not follow the
	// protocol.
	ErrProtocol = errors.New("protocol violation")

	ErrUnknownHeader       = errors.New("block header is not in the local header chain")
	ErrChainLinkage        = errors.New("block does not link to the previous block")
	ErrBlockValidation     = errors.New("block failed validation")
	ErrHeaderValidation    = errors.New("header failed validation")
	ErrPeerChainNotHeavier = errors.New("peer chain is not heavier than the local chain")

	// ErrBadRequest and ErrNotFound are the errors a Responder answers
	// requests with.
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
)

// PeerError is an error caused by a specific peer.
type PeerError struct {
	Peer PeerID
	Err  error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer %v: %v", e.Peer, e.Err)
}

func (e *PeerError) Unwrap() error { return e.Err }

func peerErr(peer PeerID, kind error, format string, args ...interface{}) error {
	return &PeerError{Peer: peer, Err: fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))}
}

// kindError tags an error with a sentinel kind and keeps the error itself
// in the chain, so both match with errors.Is.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string        { return fmt.Sprintf("%v: %v", e.kind, e.err) }
func (e *kindError) Is(target error) bool { return target == e.kind }
func (e *kindError) Unwrap() error        { return e.err }

func peerWrap(peer PeerID, kind, err error) error {
	return &PeerError{Peer: peer, Err: &kindError{kind: kind, err: err}}
}

// requestErr attributes an error returned by a SyncClient to peer. Errors
// the peer answered with keep their kind; anything else is a connectivity
// failure.
func requestErr(peer PeerID, err error) error {
	var perr *PeerError
	switch {
	case errors.As(err, &perr):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrConnectivity), errors.Is(err, ErrProtocol):
		return &PeerError{Peer: peer, Err: err}
	}
	return peerWrap(peer, ErrConnectivity, err)
}

// IsRetryable reports whether a sync round failing with err may succeed
// when tried again, possibly with other peers. Local failures such as
// storage errors and cancellation are not retryable.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrNoSyncPeers),
		errors.Is(err, ErrConnectivity),
		errors.Is(err, ErrProtocol),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnknownHeader),
		errors.Is(err, ErrChainLinkage),
		errors.Is(err, ErrBlockValidation),
		errors.Is(err, ErrHeaderValidation),
		errors.Is(err, ErrPeerChainNotHeavier):
		return true
	}
	return false
}

// isPeerMisbehavior reports whether err proves the peer sent invalid data,
// as opposed to being unreachable.
func isPeerMisbehavior(err error) bool {
	var verr *validation.Error
	return errors.Is(err, ErrChainLinkage) ||
		errors.Is(err, ErrBlockValidation) ||
		errors.Is(err, ErrHeaderValidation) ||
		errors.Is(err, ErrUnknownHeader) ||
		errors.Is(err, ErrProtocol) ||
		errors.As(err, &verr)
}
