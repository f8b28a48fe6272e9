package summary

// TierSelector maps the plan flag onto a model name.
type TierSelector struct {
	Baseline string
	Premium  string
}

// Select is pure: premium callers get the premium model, everyone else
// (including unknown plans) the baseline one.
func (t TierSelector) Select(premium bool) string {
	if premium && t.Premium != "" {
		return t.Premium
	}
	return t.Baseline
}
