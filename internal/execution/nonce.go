package execution

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceQuery fetches the account's transaction count from the network.
type NonceQuery func(ctx context.Context, account common.Address) (uint64, error)

// NonceSequencer hands out nonces for a single sending account. It assumes
// this process is the only sender for the account: after the first network
// read it counts locally until Reset.
type NonceSequencer struct {
	mu      sync.Mutex
	account common.Address
	cached  *uint64
}

func NewNonceSequencer(account common.Address) *NonceSequencer {
	return &NonceSequencer{account: account}
}

func (n *NonceSequencer) Account() common.Address { return n.account }

// Next returns the nonce for the next transaction.
func (n *NonceSequencer) Next(ctx context.Context, query NonceQuery) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cached != nil {
		next := *n.cached + 1
		n.cached = &next
		return next, nil
	}
	nonce, err := query(ctx, n.account)
	if err != nil {
		return 0, err
	}
	n.cached = &nonce
	return nonce, nil
}

// Reset forgets the cached nonce so the next call resynchronises with the network.
func (n *NonceSequencer) Reset() {
	n.mu.Lock()
	n.cached = nil
	n.mu.Unlock()
}

// Cached returns the last handed-out nonce, if any.
func (n *NonceSequencer) Cached() (uint64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cached == nil {
		return 0, false
	}
	return *n.cached, true
}
