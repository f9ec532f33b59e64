// Package catalog parses the declarative deployment list and classifies
// each entry into a cost/trust tier. The catalog is built once at startup
// and is treated as immutable for the process lifetime — reads never take
// a lock.
package catalog

import (
	"strings"
)

// Tier is a deployment's cost/trust classification. It informs planning order.
type Tier string

const (
	TierFreeHF        Tier = "free-hf"
	TierFreeOllama    Tier = "free-ollamafree"
	TierInternal      Tier = "internal"
	TierDirectDeepSeek Tier = "direct-deepseek"
	TierDirectGemini  Tier = "direct-gemini"
	TierDirectOpenAI  Tier = "direct-openai"
	TierDirectXAI     Tier = "direct-xai"
	TierDirectClaude  Tier = "direct-claude"
	TierPremium       Tier = "premium"
)

// Route is the coarse category surfaced to clients via response headers.
type Route string

const (
	RouteFree     Route = "free"
	RouteInternal Route = "internal"
	RouteDirect   Route = "direct"
	RoutePremium  Route = "premium"
	RouteError    Route = "error"
)

// RouteInfo is the {route, upstream, model} triple derived from a
// deployment's tier and upstream params, surfaced to clients.
type RouteInfo struct {
	Route    Route
	Upstream string
	Model    string
}

// tierRoute maps a tier to its coarse route category.
func tierRoute(tier Tier) Route {
	switch {
	case tier == TierFreeHF || tier == TierFreeOllama:
		return RouteFree
	case tier == TierInternal:
		return RouteInternal
	case strings.HasPrefix(string(tier), "direct-"):
		return RouteDirect
	default:
		return RoutePremium
	}
}

// tierUpstream maps a tier to its vendor-level label, used when the
// upstream params don't otherwise make the vendor obvious.
var tierUpstream = map[Tier]string{
	TierFreeHF:         "hf",
	TierFreeOllama:     "ollamafreeapi",
	TierInternal:       "ollama",
	TierDirectDeepSeek: "deepseek",
	TierDirectGemini:   "gemini",
	TierDirectOpenAI:   "openai",
	TierDirectXAI:      "xai",
	TierDirectClaude:   "anthropic",
	TierPremium:        "openrouter",
}

// Deployment is an individual upstream target bound to an alias.
type Deployment struct {
	Alias          string
	UpstreamParams map[string]any
	Description    string
	Tier           Tier
	RouteInfo      RouteInfo
}

// Entry is a raw declarative catalog entry as read from configuration,
// mirroring the model_list shape: {model_name, litellm_params, model_info}.
type Entry struct {
	ModelName      string
	LitellmParams  map[string]any
	ModelInfo      map[string]any
}

// ClassifyInputs holds the values the classification algorithm inspects.
type ClassifyInputs struct {
	APIBase     string
	Model       string
	Description string // already lower-cased
	OllamaHosts []string
}

// Classify runs the ten ordered classification rules, first match wins.
func Classify(in ClassifyInputs) Tier {
	apiBase := strings.ToLower(in.APIBase)
	model := strings.ToLower(in.Model)
	desc := in.Description

	switch {
	case strings.Contains(apiBase, "ollamafreeapi") || strings.Contains(desc, "ollamafree"):
		return TierFreeOllama
	case strings.Contains(apiBase, "huggingface") || strings.Contains(desc, " hf ") || strings.Contains(desc, "hf") || strings.HasPrefix(model, "huggingface/"):
		return TierFreeHF
	case strings.HasPrefix(model, "deepseek/") || strings.Contains(desc, "deepseek"):
		return TierDirectDeepSeek
	case strings.HasPrefix(model, "gemini/") || strings.Contains(desc, "gemini"):
		return TierDirectGemini
	case strings.HasPrefix(model, "gpt-") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.Contains(desc, "openai-direct"):
		return TierDirectOpenAI
	case strings.HasPrefix(model, "claude-") || strings.HasPrefix(model, "anthropic/") || strings.Contains(desc, "claude-direct"):
		return TierDirectClaude
	case strings.HasPrefix(model, "xai/") || strings.Contains(desc, "xai-direct"):
		return TierDirectXAI
	case strings.Contains(model, "openrouter") || strings.Contains(desc, "premium"):
		return TierPremium
	case containsAny(apiBase, in.OllamaHosts) || strings.Contains(desc, "internal") || strings.Contains(desc, "ollama"):
		return TierInternal
	default:
		return TierPremium
	}
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if sub == "" {
			continue
		}
		if strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// upstreamLabel resolves the vendor short name for a deployment, preferring
// an explicit upstream_params override over the tier's default label.
func upstreamLabel(tier Tier, params map[string]any) string {
	if v, ok := params["upstream"].(string); ok && v != "" {
		return v
	}
	if label, ok := tierUpstream[tier]; ok {
		return label
	}
	return "none"
}

func modelLabel(params map[string]any) string {
	if v, ok := params["model"].(string); ok {
		return v
	}
	return ""
}

// Catalog is an immutable mapping from alias to its ordered deployment list.
type Catalog struct {
	byAlias map[string][]Deployment
}

// Build constructs a Catalog from a sequence of declarative entries,
// classifying each one. ollamaHosts are substrings (from OLLAMA_*_URL env
// vars) checked against api_base for rule 9.
func Build(entries []Entry, ollamaHosts []string) *Catalog {
	c := &Catalog{byAlias: make(map[string][]Deployment)}
	for _, e := range entries {
		desc := ""
		if d, ok := e.ModelInfo["description"].(string); ok {
			desc = strings.ToLower(d)
		}
		apiBase, _ := e.LitellmParams["api_base"].(string)
		model := modelLabel(e.LitellmParams)

		tier := Classify(ClassifyInputs{
			APIBase:     apiBase,
			Model:       model,
			Description: desc,
			OllamaHosts: ollamaHosts,
		})

		dep := Deployment{
			Alias:          e.ModelName,
			UpstreamParams: cloneParams(e.LitellmParams),
			Description:    desc,
			Tier:           tier,
			RouteInfo: RouteInfo{
				Route:    tierRoute(tier),
				Upstream: upstreamLabel(tier, e.LitellmParams),
				Model:    model,
			},
		}
		c.byAlias[e.ModelName] = append(c.byAlias[e.ModelName], dep)
	}
	return c
}

func cloneParams(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DeploymentsFor returns the raw (policy-unordered) sequence of deployments
// registered for an alias. The returned slice is a defensive copy; callers
// never mutate the catalog.
func (c *Catalog) DeploymentsFor(alias string) []Deployment {
	deps := c.byAlias[alias]
	if len(deps) == 0 {
		return nil
	}
	out := make([]Deployment, len(deps))
	copy(out, deps)
	return out
}

// Aliases returns every alias known to the catalog.
func (c *Catalog) Aliases() []string {
	out := make([]string, 0, len(c.byAlias))
	for a := range c.byAlias {
		out = append(out, a)
	}
	return out
}
