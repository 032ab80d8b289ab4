// Package consensus implements the lockout-tower fork-choice protocol
// simulated by towersim: the per-validator Tower, the frozen per-slot Bank,
// the Forks DAG of banks, and the rotating Subcommittee scheme that gates
// which votes count toward a super-root.
package consensus

import "fmt"

// Slot is a monotonically increasing block-height identifier.
type Slot uint64

// NodeID identifies a validator. Every node carries unit stake.
type NodeID uint32

// Epoch is a subcommittee rotation period, derived from num_super_roots.
type Epoch uint64

func (s Slot) String() string { return fmt.Sprintf("slot(%d)", uint64(s)) }
