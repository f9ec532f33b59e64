// Package planner implements the Policy Planner: given an (alias, policy)
// pair it produces the ordered candidate list of deployments the Request
// Pipeline drives through its fallback loop.
//
// The ordering algorithm is ported from the original router's
// get_ordered_deployments: walk the policy's tier order, append matching
// deployments not yet in the result, then append any stragglers in
// catalog order so nothing is ever silently dropped.
package planner

import "github.com/orcest-ai/rainymodel/internal/catalog"

// Policy is a client-supplied preference selecting tier ordering.
type Policy string

const (
	PolicyAuto       Policy = "auto"
	PolicyFree       Policy = "free"
	PolicyPremium    Policy = "premium"
	PolicyUncensored Policy = "uncensored"
)

// NormalizePolicy coerces unknown policy strings to PolicyAuto.
func NormalizePolicy(p string) Policy {
	switch Policy(p) {
	case PolicyFree, PolicyPremium, PolicyUncensored:
		return Policy(p)
	default:
		return PolicyAuto
	}
}

// tierOrders enumerates the four policy tier tables verbatim from §4.2.
var tierOrders = map[Policy][]catalog.Tier{
	PolicyAuto: {
		catalog.TierFreeHF, catalog.TierFreeOllama, catalog.TierInternal,
		catalog.TierDirectDeepSeek, catalog.TierDirectGemini, catalog.TierDirectOpenAI,
		catalog.TierDirectXAI, catalog.TierDirectClaude, catalog.TierPremium,
	},
	PolicyFree: {
		catalog.TierFreeHF, catalog.TierFreeOllama, catalog.TierInternal,
		catalog.TierDirectDeepSeek, catalog.TierDirectGemini, catalog.TierDirectOpenAI,
		catalog.TierDirectXAI, catalog.TierDirectClaude, catalog.TierPremium,
	},
	PolicyPremium: {
		catalog.TierDirectClaude, catalog.TierDirectOpenAI, catalog.TierDirectXAI,
		catalog.TierDirectGemini, catalog.TierDirectDeepSeek, catalog.TierPremium,
		catalog.TierFreeHF, catalog.TierFreeOllama, catalog.TierInternal,
	},
	PolicyUncensored: {
		catalog.TierInternal, catalog.TierFreeOllama, catalog.TierDirectDeepSeek,
		catalog.TierDirectXAI, catalog.TierFreeHF, catalog.TierDirectGemini,
		catalog.TierDirectOpenAI, catalog.TierDirectClaude, catalog.TierPremium,
	},
}

// Planner produces ordered fallback candidate lists from a Catalog and an
// HF-credit gate.
type Planner struct {
	cat  *catalog.Catalog
	gate interface{ Active() bool }
}

// New builds a Planner over the given catalog and HF-credit gate.
func New(cat *catalog.Catalog, gate interface{ Active() bool }) *Planner {
	return &Planner{cat: cat, gate: gate}
}

// Plan implements plan(alias, policy) -> sequence<Deployment>.
//
// providerOverride, when non-empty, moves deployments whose upstream
// matches it to the front (stable order preserved among matches) before
// the policy-ordered plan follows — the X-RainyModel-Provider supplement.
func (p *Planner) Plan(alias string, policy Policy, providerOverride string) []catalog.Deployment {
	d := p.cat.DeploymentsFor(alias)
	if len(d) == 0 {
		return nil
	}

	order := tierOrders[policy]
	if order == nil {
		order = tierOrders[PolicyAuto]
	}

	result := make([]catalog.Deployment, 0, len(d))
	placed := make(map[int]bool, len(d))

	place := func(idx int) {
		if !placed[idx] {
			placed[idx] = true
			result = append(result, d[idx])
		}
	}

	if providerOverride != "" {
		for i, dep := range d {
			if dep.RouteInfo.Upstream == providerOverride {
				place(i)
			}
		}
	}

	hfActive := p.gate != nil && p.gate.Active()
	for _, tier := range order {
		if tier == catalog.TierFreeHF && hfActive {
			continue
		}
		for i, dep := range d {
			if dep.Tier == tier {
				place(i)
			}
		}
	}

	// Anything not classified into a known tier order entry is still
	// appended, preserving catalog order, so no deployment is silently
	// dropped even under an unexpected classification.
	for i := range d {
		place(i)
	}

	return result
}
