package apply

import "context"

// candidateWithinSeconds is how close a candidate's optime must be to ours
// to force-sync without a warning.
const candidateWithinSeconds = 10

// CandidateInfo is what the admin command learns about a forceSyncFrom
// candidate before accepting it.
type CandidateInfo struct {
	IsArbiter     bool
	Reachable     bool
	BuildsIndexes bool
	Optime        OpTime
}

// CandidateProber probes a candidate sync-source host. Its network protocol
// is out of scope; only this contract is modeled here.
type CandidateProber interface {
	Probe(ctx context.Context, host string) (CandidateInfo, error)
}

// ForceSyncResult is the admin command's response shape.
type ForceSyncResult struct {
	OK             bool   `json:"ok"`
	ErrMsg         string `json:"errmsg,omitempty"`
	Warning        string `json:"warning,omitempty"`
	PrevSyncTarget string `json:"prevSyncTarget,omitempty"`
}

// ForceSyncFrom validates host and, if acceptable, pins source's next
// sync-source selection to it.
//
//   - host must not be an arbiter and must be reachable.
//   - if this node builds indexes, host must too.
//   - if host's optime is more than candidateWithinSeconds behind ours,
//     the call still succeeds but with a warning rather than failing.
func ForceSyncFrom(ctx context.Context, prober CandidateProber, source OplogSource, host string, weBuildIndexes bool, ourOptime OpTime) ForceSyncResult {
	prev, _ := source.SyncTarget()

	info, err := prober.Probe(ctx, host)
	if err != nil {
		return ForceSyncResult{OK: false, ErrMsg: err.Error(), PrevSyncTarget: prev}
	}
	if info.IsArbiter {
		return ForceSyncResult{OK: false, ErrMsg: "candidate is an arbiter, cannot be a sync source", PrevSyncTarget: prev}
	}
	if !info.Reachable {
		return ForceSyncResult{OK: false, ErrMsg: "candidate is not reachable", PrevSyncTarget: prev}
	}
	if weBuildIndexes && !info.BuildsIndexes {
		return ForceSyncResult{OK: false, ErrMsg: "candidate does not build indexes, but this node does", PrevSyncTarget: prev}
	}

	res := ForceSyncResult{OK: true, PrevSyncTarget: prev}
	lagSeconds := ourOptime.Seconds - info.Optime.Seconds
	if lagSeconds > candidateWithinSeconds {
		res.Warning = "candidate is more than 10s behind our optime"
	}

	source.SetForceSyncTarget(host)
	return res
}
