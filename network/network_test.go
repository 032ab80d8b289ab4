package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/towersim/towersim/consensus"
)

func TestNetworkStepProducesLiveness(t *testing.T) {
	net := New(1)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		err := net.Step(ctx, 1)
		assert.NoError(t, err)
	}

	assert.Greater(t, len(net.Forks.ForkMap), 1, "expected at least one block beyond genesis")
}

func TestNetworkFourGroupPartitionThenRepairStaysSafe(t *testing.T) {
	net := New(2)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		assert.NoError(t, net.Step(ctx, 1))
	}

	partitions := FourGroupPartition()
	for i := 0; i < 20; i++ {
		leader := consensus.NodeID(consensus.HashU64(uint64(i)) % consensus.N)
		err := net.PartitionStep(ctx, partitions, leader)
		assert.NoError(t, err)
	}

	net.Repair()
	for i := 0; i < 20; i++ {
		assert.NoError(t, net.Step(ctx, 1))
	}

	for _, slot := range net.OCSlots.ToSlice() {
		ok := slot >= net.Forks.LowestRoot.Slot || net.Forks.Roots.Contains(slot)
		assert.True(t, ok, "oc-confirmed slot %d violated safety", slot)
	}
}

func TestScenarioRunsWithoutInvariantViolation(t *testing.T) {
	net := New(3)
	scenario := NewScenario(net, 4)
	err := scenario.Run(context.Background(), 200)
	assert.NoError(t, err)
}

func TestNetworkContextCancellation(t *testing.T) {
	net := New(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := net.Step(ctx, 1)
	assert.Error(t, err)
}
