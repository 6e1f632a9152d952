package flow

import (
	"sync"
	"time"

	"github.com/BTreeMap/precare/internal/models"
	"github.com/BTreeMap/precare/internal/store"
)

// testClock is the fixed time used by engine tests; DOB age checks depend on it.
var testClock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

// flakyStore wraps a Store and fails the next saveFailures calls to SaveSession.
type flakyStore struct {
	store.Store

	mu           sync.Mutex
	saveFailures int
	saveCalls    int
	failWith     error
}

func (f *flakyStore) SaveSession(sess *models.IntakeSession) error {
	f.mu.Lock()
	f.saveCalls++
	if f.saveFailures > 0 {
		f.saveFailures--
		err := f.failWith
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	return f.Store.SaveSession(sess)
}

func (f *flakyStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls
}
