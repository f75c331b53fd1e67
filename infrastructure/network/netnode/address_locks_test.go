package netnode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddressLocks(t *testing.T) {
	locks := newAddressLocks()

	unlockA := locks.lock(peerA)
	unlockB := locks.lock(peerB)
	require.Equal(t, 2, locks.size())

	acquired := make(chan struct{})
	go func() {
		unlock := locks.lock(peerA)
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatalf("the lock of an address was acquired twice")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	unlockA()
	select {
	case <-acquired:
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for the lock to be released")
	}

	unlockB()
	require.Eventually(t, func() bool { return locks.size() == 0 }, testTimeout, testTick)
}
