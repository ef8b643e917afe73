package domain

import "time"

// MarketWindow is a single time-boxed instance of a recurring binary market.
type MarketWindow struct {
	Slug            string
	StartTime       time.Time
	OutcomeTokenIDs [2]string
	ConditionID     string
	NegRisk         bool
}

// TokenID resolves an outcome index to the tradable instrument id.
func (m MarketWindow) TokenID(outcomeIndex int) (string, bool) {
	if outcomeIndex < 0 || outcomeIndex >= len(m.OutcomeTokenIDs) {
		return "", false
	}
	id := m.OutcomeTokenIDs[outcomeIndex]
	return id, id != ""
}

// Complete reports whether every field needed to ladder the window is set.
func (m MarketWindow) Complete() bool {
	return m.Slug != "" &&
		!m.StartTime.IsZero() &&
		m.OutcomeTokenIDs[0] != "" &&
		m.OutcomeTokenIDs[1] != "" &&
		m.ConditionID != ""
}
