package services

import (
	"github.com/NicoHurtado/cursia-sub002/model"
)

// Unlimited marks a plan without a monthly course cap.
const Unlimited = -1

// PlanInfo is the commercial definition of a plan tier.
type PlanInfo struct {
	Plan           model.Plan `json:"plan"`
	AmountInCents  int64      `json:"amountInCents"`
	Currency       string     `json:"currency"`
	MonthlyCourses int        `json:"monthlyCourses"`
	CanRate        bool       `json:"canRate"`
	CanPublish     bool       `json:"canPublish"`
}

var plans = map[model.Plan]PlanInfo{
	model.PlanFree:     {Plan: model.PlanFree, Currency: "COP", MonthlyCourses: 1},
	model.PlanAprendiz: {Plan: model.PlanAprendiz, AmountInCents: 2990000, Currency: "COP", MonthlyCourses: 5},
	model.PlanExperto:  {Plan: model.PlanExperto, AmountInCents: 4990000, Currency: "COP", MonthlyCourses: 15, CanRate: true},
	model.PlanMaestro:  {Plan: model.PlanMaestro, AmountInCents: 7990000, Currency: "COP", MonthlyCourses: Unlimited, CanRate: true, CanPublish: true},
}

// PlanDetails returns the definition of p. Unknown plans get the free tier.
func PlanDetails(p model.Plan) PlanInfo {
	if info, ok := plans[p]; ok {
		return info
	}
	return plans[model.PlanFree]
}

// AllPlans lists the tiers from cheapest to most expensive.
func AllPlans() []PlanInfo {
	return []PlanInfo{
		plans[model.PlanFree],
		plans[model.PlanAprendiz],
		plans[model.PlanExperto],
		plans[model.PlanMaestro],
	}
}
