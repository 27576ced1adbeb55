package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncidentLocksMutualExclusion(t *testing.T) {
	locks := NewIncidentLocks()

	const workers = 16
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire("inc-1")
			defer release()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestIncidentLocksIndependentIncidents(t *testing.T) {
	locks := NewIncidentLocks()

	releaseA := locks.Acquire("inc-a")
	done := make(chan struct{})
	go func() {
		// A different incident must not block behind inc-a.
		release := locks.Acquire("inc-b")
		release()
		close(done)
	}()
	<-done
	releaseA()
}

func TestIncidentLocksEntriesReclaimed(t *testing.T) {
	locks := NewIncidentLocks()

	release := locks.Acquire("inc-1")
	release()
	release2 := locks.Acquire("inc-2")
	release2()

	locks.mu.Lock()
	remaining := len(locks.entries)
	locks.mu.Unlock()
	assert.Zero(t, remaining, "released locks leave no registry entries")
}
