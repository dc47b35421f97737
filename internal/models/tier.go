package models

import (
	"fmt"
	"strings"
	"time"
)

type Tier string

const (
	TierBasic    Tier = "basic"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// TierPlan describes what a subscription tier buys.
type TierPlan struct {
	Tier        Tier
	DisplayName string
	Allowance   int
	Turnaround  time.Duration
	LabelColor  string
}

var tierPlans = map[Tier]TierPlan{
	TierBasic:    {Tier: TierBasic, DisplayName: "Basic", Allowance: 2, Turnaround: 5 * 24 * time.Hour, LabelColor: "blue"},
	TierStandard: {Tier: TierStandard, DisplayName: "Standard", Allowance: 4, Turnaround: 3 * 24 * time.Hour, LabelColor: "green"},
	TierPremium:  {Tier: TierPremium, DisplayName: "Premium", Allowance: 8, Turnaround: 24 * time.Hour, LabelColor: "purple"},
}

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tierPlans[t]; !ok {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Plan returns the plan for t, falling back to basic for unknown tiers.
func (t Tier) Plan() TierPlan {
	if p, ok := tierPlans[t]; ok {
		return p
	}
	return tierPlans[TierBasic]
}

func Tiers() []Tier {
	return []Tier{TierBasic, TierStandard, TierPremium}
}
