package types

// Recommendation is the business outcome of an evaluation.
type Recommendation string

const (
	RecommendationApproved Recommendation = "approved"
	RecommendationBlocked  Recommendation = "blocked"
	RecommendationRejected Recommendation = "rejected"
)

const (
	JustificationApproved = "Transaction Approved. No further action required."
	JustificationBlocked  = "Transaction Blocked. Escalated to Human Review Team."
	justificationRejected = "Transaction Rejected. "
)

// Valid reports whether r is one of the known recommendations.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationApproved, RecommendationBlocked, RecommendationRejected:
		return true
	}
	return false
}

// Justify returns the human-readable justification for r. The detail is
// only used for rejections and carries the adapter's error message.
func (r Recommendation) Justify(detail string) string {
	switch r {
	case RecommendationApproved:
		return JustificationApproved
	case RecommendationBlocked:
		return JustificationBlocked
	default:
		return justificationRejected + detail
	}
}
