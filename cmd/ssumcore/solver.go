package main

import "github.com/ssum-chain/core/subsetsum"

// solve is this CLI's own mining strategy: a bounded subset-sum solver
// used to actually produce witnesses when driving the core end to end.
// Spec §4.4 only specifies how a witness is *verified*, never how one
// is *found* — the search strategy is a producer-side concern the core
// itself is silent on, mirrored here the way a miner/worker.go in the
// pack turns a problem description into a submitted solution.
//
// Standard meet-in-the-middle-free DP with traceback: dp[s] holds the
// index (1-based, 0 meaning no element recorded, as for sum 0) of the
// last element added to reach sum s, so a solution can be reconstructed
// by walking dp backwards from the target.
func solve(p subsetsum.Problem) ([]uint64, bool) {
	target := p.Target
	dp := make([]int32, target+1) // dp[s] == 0 means "no predecessor element recorded"
	prevSum := make([]uint64, target+1)

	reachable := make([]bool, target+1)
	reachable[0] = true

	for i, v := range p.Multiset {
		if v > target {
			continue
		}
		for s := target; s >= v; s-- {
			if reachable[s-v] && !reachable[s] {
				reachable[s] = true
				dp[s] = int32(i + 1)
				prevSum[s] = s - v
			}
		}
	}

	if !reachable[target] {
		return nil, false
	}

	var subset []uint64
	s := target
	for s != 0 {
		idx := dp[s]
		if idx <= 0 {
			break
		}
		subset = append(subset, p.Multiset[idx-1])
		s = prevSum[s]
	}
	return subset, true
}
