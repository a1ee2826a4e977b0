package domain

// Tier is a loyalty level derived from lifetime mileage.
type Tier string

const (
	TierBasic   Tier = "BASIC"
	TierSilver  Tier = "SILVER"
	TierGold    Tier = "GOLD"
	TierDiamond Tier = "DIAMOND"
)

// tierInfo bundles the static attributes of a tier.
type tierInfo struct {
	displayName     string
	requiredMileage int
	earnRate        float64
}

var tierTable = map[Tier]tierInfo{
	TierBasic:   {displayName: "Basic", requiredMileage: 0, earnRate: 1.0},
	TierSilver:  {displayName: "Silver", requiredMileage: 20000, earnRate: 1.2},
	TierGold:    {displayName: "Gold", requiredMileage: 50000, earnRate: 1.5},
	TierDiamond: {displayName: "Diamond", requiredMileage: 100000, earnRate: 2.0},
}

// TierForMileage maps cumulative lifetime mileage to a tier.
// Inclusive lower bounds, highest match wins.
func TierForMileage(totalMileage int) Tier {
	switch {
	case totalMileage >= tierTable[TierDiamond].requiredMileage:
		return TierDiamond
	case totalMileage >= tierTable[TierGold].requiredMileage:
		return TierGold
	case totalMileage >= tierTable[TierSilver].requiredMileage:
		return TierSilver
	default:
		return TierBasic
	}
}

// ParseTier validates a tier label supplied by a caller.
func ParseTier(s string) (Tier, bool) {
	tier := Tier(s)
	_, ok := tierTable[tier]
	return tier, ok
}

// DisplayName returns the human-readable label for the tier.
func (t Tier) DisplayName() string {
	return tierTable[t].displayName
}

// RequiredMileage returns the inclusive lower bound for the tier.
func (t Tier) RequiredMileage() int {
	return tierTable[t].requiredMileage
}

// EarnRate returns the tier's mileage-earning multiplier. It is informational
// only: accrual amounts are taken as already final and are never multiplied.
func (t Tier) EarnRate() float64 {
	return tierTable[t].earnRate
}
