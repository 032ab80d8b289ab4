package consensus

// Protocol-wide sizing constants. These are configuration, not
// runtime-tunable within a single simulation run; cmd/towersim exposes
// matching flags but rejects any value that differs from these constants.
const (
	// N is the number of validators carrying unit stake.
	N = 997
	// SubcommitteeSize is the target size of each rotating committee.
	SubcommitteeSize = 200
	// SubcommitteeEpoch is the number of super-root increases per rotation.
	SubcommitteeEpoch = 1
)
