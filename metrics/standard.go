package metrics

// Pre-defined metrics for the towersim consensus simulator. All metrics
// live in DefaultRegistry so they are globally accessible without passing a
// registry around.

var (
	// ---- Fork tree metrics ----

	// LowestRootSlot tracks the network's current lowest_root watermark.
	LowestRootSlot = DefaultRegistry.Gauge("towersim.lowest_root_slot")
	// ForkMapSize tracks the number of banks currently retained in memory.
	ForkMapSize = DefaultRegistry.Gauge("towersim.fork_map_size")
	// NumSuperRoots tracks the super-root counter at lowest_root's bank.
	NumSuperRoots = DefaultRegistry.Gauge("towersim.num_super_roots")
	// StepDuration records wall-clock time to apply one slot, in milliseconds.
	StepDuration = DefaultRegistry.Histogram("towersim.step_duration_ms")

	// ---- Safety-tracking metrics ----

	// OCSlotsSize tracks the number of slots currently optimistically
	// confirmed and awaiting the OC-safety check.
	OCSlotsSize = DefaultRegistry.Gauge("towersim.oc_slots_size")
	// InvariantViolations counts fatal invariant violations observed.
	InvariantViolations = DefaultRegistry.Counter("towersim.invariant_violations")

	// ---- Node gate metrics ----

	// VotesCommitted counts votes that passed every gate and committed.
	VotesCommitted = DefaultRegistry.Counter("towersim.votes_committed")
	// GateRejectionsNotSubcommittee counts abstentions for committee membership.
	GateRejectionsNotSubcommittee = DefaultRegistry.Counter("towersim.gate_rejections.not_subcommittee")
	// GateRejectionsTower counts abstentions from the speculative tower apply.
	GateRejectionsTower = DefaultRegistry.Counter("towersim.gate_rejections.tower")
	// GateRejectionsLockout counts abstentions from the lockout check.
	GateRejectionsLockout = DefaultRegistry.Counter("towersim.gate_rejections.lockout")
	// GateRejectionsThreshold counts abstentions from the threshold check.
	GateRejectionsThreshold = DefaultRegistry.Counter("towersim.gate_rejections.threshold")
	// GateRejectionsOptimisticConfirmation counts abstentions from the OC check.
	GateRejectionsOptimisticConfirmation = DefaultRegistry.Counter("towersim.gate_rejections.optimistic_confirmation")

	// ---- Partition/network metrics ----

	// PartitionedNodes tracks how many validators currently sit in an
	// inactive partition range.
	PartitionedNodes = DefaultRegistry.Gauge("towersim.partitioned_nodes")
	// RepairsApplied counts repair events that merged partitions back together.
	RepairsApplied = DefaultRegistry.Counter("towersim.repairs_applied")
)
