// Package dhterrors defines the small taxonomy of error values the dht and
// repository packages use so callers (and tests) can errors.Is/errors.As
// against them instead of matching on message text.
package dhterrors

import "fmt"

// Sentinel errors for the common failure modes a Kademlia peer treats
// specially rather than just logging and moving on.
var (
	// ErrClockSkewRejection marks a STORE publication time too far in the
	// future to accept (see MaxClockSkew in the dht package).
	ErrClockSkewRejection = fmt.Errorf("tracklore: publication time exceeds clock skew tolerance")

	// ErrAdmissionConflict marks a routing-table applicant rejected
	// because the bucket's stalest contact answered its ping and keeps
	// its slot.
	ErrAdmissionConflict = fmt.Errorf("tracklore: admission rejected, blocker is live")
)

// PeerUnreachable records the endpoint of an RPC that timed out or whose
// transport faulted, wrapping the underlying transport error when there is
// one, so an iterative lookup can log which contact to drop from its
// shortlist.
type PeerUnreachable struct {
	Endpoint string
	Err      error
}

func (e *PeerUnreachable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tracklore: peer %s unreachable: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("tracklore: peer %s unreachable", e.Endpoint)
}

func (e *PeerUnreachable) Unwrap() error { return e.Err }

// NewPeerUnreachable constructs a PeerUnreachable for endpoint, optionally
// wrapping an underlying transport error.
func NewPeerUnreachable(endpoint string, err error) *PeerUnreachable {
	return &PeerUnreachable{Endpoint: endpoint, Err: err}
}
