package market

import (
	"fmt"
	"strings"
)

// DataTier is a quality classification of historical data.
type DataTier string

const (
	TierPremium      DataTier = "TIER_1_PREMIUM"
	TierProfessional DataTier = "TIER_2_PROFESSIONAL"
	TierStandard     DataTier = "TIER_3_STANDARD"
	TierBasic        DataTier = "TIER_4_BASIC"
)

var tierScores = map[DataTier]float64{
	TierPremium:      1.00,
	TierProfessional: 0.85,
	TierStandard:     0.70,
	TierBasic:        0.50,
}

// Tiers lists every tier from best to worst.
func Tiers() []DataTier {
	return []DataTier{TierPremium, TierProfessional, TierStandard, TierBasic}
}

// ParseDataTier accepts the full name or the short form ("premium", "tier_1").
func ParseDataTier(s string) (DataTier, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	for _, tier := range Tiers() {
		name := string(tier)
		if key == name || key == name[:6] || strings.HasSuffix(name, "_"+key) {
			return tier, nil
		}
	}
	return "", fmt.Errorf("unknown data tier %q", s)
}

// Valid reports whether t is a known tier.
func (t DataTier) Valid() bool {
	_, ok := tierScores[t]
	return ok
}

// QualityScore returns the tier's quality in (0, 1], zero for unknown tiers.
func (t DataTier) QualityScore() float64 {
	return tierScores[t]
}
