package processor

// Hurdle computes the share of the estimated remaining relevant votes the
// trailing candidate must win to exactly tie the leader. The denominator is
// the top-two-estimated remaining pool, not all remaining votes. When no
// relevant votes remain the hurdle is defined as 0.
func Hurdle(voteDiff int, votesRemainingRelevant float64) float64 {
	if votesRemainingRelevant <= 0 {
		return 0
	}
	return (float64(voteDiff) + votesRemainingRelevant) / (2 * votesRemainingRelevant)
}
