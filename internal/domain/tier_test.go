package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestTierForMileageBoundaries(t *testing.T) {
	cases := []struct {
		mileage int
		want    Tier
	}{
		{0, TierBasic},
		{19999, TierBasic},
		{20000, TierSilver},
		{49999, TierSilver},
		{50000, TierGold},
		{99999, TierGold},
		{100000, TierDiamond},
		{1000000, TierDiamond},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierForMileage(tc.mileage), "mileage=%d", tc.mileage)
	}
}

func TestTierForMileageMonotonic(t *testing.T) {
	rank := map[Tier]int{TierBasic: 0, TierSilver: 1, TierGold: 2, TierDiamond: 3}

	rapid.Check(t, func(t *rapid.T) {
		a := rapid.IntRange(0, 500000).Draw(t, "a")
		b := rapid.IntRange(0, 500000).Draw(t, "b")
		if a > b {
			a, b = b, a
		}
		if rank[TierForMileage(a)] > rank[TierForMileage(b)] {
			t.Fatalf("tier decreased: %d -> %s, %d -> %s", a, TierForMileage(a), b, TierForMileage(b))
		}
	})
}

func TestTierAttributes(t *testing.T) {
	assert.Equal(t, "Silver", TierSilver.DisplayName())
	assert.Equal(t, 20000, TierSilver.RequiredMileage())
	assert.InDelta(t, 1.2, TierSilver.EarnRate(), 1e-9)
	assert.InDelta(t, 2.0, TierDiamond.EarnRate(), 1e-9)
}

func TestParseTier(t *testing.T) {
	tier, ok := ParseTier("GOLD")
	assert.True(t, ok)
	assert.Equal(t, TierGold, tier)

	_, ok = ParseTier("PLATINUM")
	assert.False(t, ok)
}
