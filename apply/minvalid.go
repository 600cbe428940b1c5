package apply

import "sync"

// MinValidJournal is the crash-safe record of the last op a writer batch
// intends to apply. It is written, under what stands in for
// the local-db write lock, before the writer phase of a batch begins; on
// reboot the Recovering->Secondary gate consults it.
type MinValidJournal struct {
	mu      sync.Mutex
	persist Persistence
}

// NewMinValidJournal wraps a Persistence backend.
func NewMinValidJournal(p Persistence) *MinValidJournal {
	return &MinValidJournal{persist: p}
}

// Record persists ts as the new minValid, happens-before any apply in the
// batch it guards.
func (j *MinValidJournal) Record(ts OpTime) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.persist.PutSingleton(minValidNS, ts.Bytes())
}

// Get reads the current minValid record. found is false only when no batch
// has ever been recorded (first boot of a seed member).
func (j *MinValidJournal) Get() (rec MinValidRecord, found bool, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	buf, found, err := j.persist.GetSingleton(minValidNS)
	if err != nil || !found {
		return MinValidRecord{}, found, err
	}
	return MinValidRecord{Ts: OpTimeFromBytes(buf)}, true, nil
}

// CanGoLive reports whether a node whose applied position is lastApplied may
// transition Recovering->Secondary: either minValid is absent (first boot of
// the seed member) or lastApplied has reached it.
func (j *MinValidJournal) CanGoLive(lastApplied OpTime) (bool, error) {
	rec, found, err := j.Get()
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return rec.Ts.LessEq(lastApplied), nil
}
