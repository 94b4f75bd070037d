package matrix

import (
	"sync"

	"github.com/xclera/matrix-core/src/model"
)

// memberLocks serializes settlement work per member. Cross-member requests
// run fully in parallel; two requests for the same wallet are ordered so the
// loser observes the winner's pending intent or level bump. The postgres
// store additionally serializes through row locks, so a multi-process
// deployment does not depend on this in-process guard.
type memberLocks struct {
	mu    sync.Mutex
	locks map[model.WalletAddr]*memberLock
}

type memberLock struct {
	sync.Mutex
	refs int
}

func newMemberLocks() *memberLocks {
	return &memberLocks{locks: map[model.WalletAddr]*memberLock{}}
}

// Lock acquires the lock for wallet and returns the matching unlock.
func (ml *memberLocks) Lock(wallet model.WalletAddr) func() {
	ml.mu.Lock()
	l, ok := ml.locks[wallet]
	if !ok {
		l = &memberLock{}
		ml.locks[wallet] = l
	}
	l.refs++
	ml.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		ml.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(ml.locks, wallet)
		}
		ml.mu.Unlock()
	}
}
