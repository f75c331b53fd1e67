package netnode

import (
	"sync"

	"github.com/kaspanet/netnode/app/appmessage"
)

// addressLocks serializes work per peer address. Entries are dropped once
// nobody holds or waits for them.
type addressLocks struct {
	locksLock sync.Mutex
	locks     map[appmessage.NodeAddress]*addressLock
}

type addressLock struct {
	sync.Mutex
	references int
}

func newAddressLocks() *addressLocks {
	return &addressLocks{locks: make(map[appmessage.NodeAddress]*addressLock)}
}

// lock blocks until the lock of the given address is held, and returns the
// function that releases it.
func (l *addressLocks) lock(address appmessage.NodeAddress) (unlock func()) {
	l.locksLock.Lock()
	entry, ok := l.locks[address]
	if !ok {
		entry = &addressLock{}
		l.locks[address] = entry
	}
	entry.references++
	l.locksLock.Unlock()

	entry.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.Unlock()

			l.locksLock.Lock()
			defer l.locksLock.Unlock()
			entry.references--
			if entry.references == 0 {
				delete(l.locks, address)
			}
		})
	}
}

func (l *addressLocks) size() int {
	l.locksLock.Lock()
	defer l.locksLock.Unlock()

	return len(l.locks)
}
