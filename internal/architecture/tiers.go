package architecture

import (
	"sort"
	"strings"
	"unicode"

	"legacylens/internal/model"
)

// tierRule ties a tier to the name tokens that signal it. Matches are
// whole tokens or token prefixes ("orchestr" matches "orchestrator").
type tierRule struct {
	Tier  model.Tier
	Match []string
}

var tierRules = []tierRule{
	{Tier: model.TierPresentation, Match: []string{"controller", "ui", "view", "page", "form", "web", "api", "handler", "endpoint", "router", "route", "presentation", "screen", "widget", "component", "cmd", "main", "serve", "mvc", "razor"}},
	{Tier: model.TierBusiness, Match: []string{"service", "business", "logic", "manager", "usecase", "application", "workflow", "orchestr", "pipeline", "runner", "engine", "processor", "bll", "facade"}},
	{Tier: model.TierData, Match: []string{"data", "repositor", "repo", "dal", "dao", "db", "database", "persist", "store", "storage", "sqlite", "sql", "cache", "mapper", "migration", "dbcontext", "query", "index"}},
	{Tier: model.TierDomain, Match: []string{"domain", "model", "entity", "entities", "core", "dto", "valueobject", "aggregate"}},
	{Tier: model.TierCrossCutting, Match: []string{"util", "utilit", "common", "shared", "helper", "logging", "logger", "log", "config", "infrastructure", "extension", "middleware", "security", "auth", "authent"}},
}

// tierOrder breaks vote ties deterministically.
var tierOrder = map[model.Tier]int{
	model.TierPresentation: 0,
	model.TierBusiness:     1,
	model.TierData:         2,
	model.TierDomain:       3,
	model.TierCrossCutting: 4,
	model.TierUnknown:      5,
}

// tokens splits a name on separators and camel-case boundaries, lower-cased.
func tokens(name string) []string {
	var (
		out []string
		cur []rune
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && len(cur) > 0 &&
			(unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return out
}

// tokenTier returns the tier a single token signals, and the keyword that
// matched it.
func tokenTier(tok string) (model.Tier, string) {
	for _, rule := range tierRules {
		for _, m := range rule.Match {
			if tok == m || (len(m) >= 5 && strings.HasPrefix(tok, m)) || tok == m+"s" {
				return rule.Tier, m
			}
		}
	}
	return model.TierUnknown, ""
}

// TierOf classifies a single name (namespace, folder or type) by its
// tokens. The last matching token wins, so "Shop.Web.Services" is business.
func TierOf(name string) model.Tier {
	t, _ := nameTier(name)
	return t
}

func nameTier(name string) (model.Tier, string) {
	toks := tokens(name)
	for i := len(toks) - 1; i >= 0; i-- {
		if t, role := tokenTier(toks[i]); t != model.TierUnknown {
			return t, role
		}
	}
	return model.TierUnknown, ""
}

// tierVotes accumulates weighted tier signals for one component.
type tierVotes struct {
	votes map[model.Tier]int
	roles map[string]int
}

func newTierVotes() *tierVotes {
	return &tierVotes{votes: make(map[model.Tier]int), roles: make(map[string]int)}
}

func (v *tierVotes) add(name string, weight int) {
	t, role := nameTier(name)
	if t == model.TierUnknown {
		return
	}
	v.votes[t] += weight
	v.roles[role] += weight
}

// addType votes with a type name's suffix only: OrderController, OrderRepository.
func (v *tierVotes) addType(name string, weight int) {
	toks := tokens(name)
	if len(toks) == 0 {
		return
	}
	t, role := tokenTier(toks[len(toks)-1])
	if t == model.TierUnknown {
		return
	}
	v.votes[t] += weight
	v.roles[role] += weight
}

// result picks the tier and role with the most votes.
func (v *tierVotes) result() (model.Tier, string) {
	best, bestVotes := model.TierUnknown, 0
	for t, n := range v.votes {
		if n > bestVotes || (n == bestVotes && tierOrder[t] < tierOrder[best]) {
			best, bestVotes = t, n
		}
	}
	if best == model.TierUnknown {
		return best, ""
	}
	roles := make([]string, 0, len(v.roles))
	for r := range v.roles {
		if t, _ := tokenTier(r); t == best {
			roles = append(roles, r)
		}
	}
	sort.Slice(roles, func(i, j int) bool {
		if v.roles[roles[i]] != v.roles[roles[j]] {
			return v.roles[roles[i]] > v.roles[roles[j]]
		}
		return roles[i] < roles[j]
	})
	if len(roles) == 0 {
		return best, ""
	}
	return best, roles[0]
}

// layerName is the display name of a tier's layer.
func layerName(t model.Tier) string {
	switch t {
	case model.TierPresentation:
		return "Presentation"
	case model.TierBusiness:
		return "Business"
	case model.TierData:
		return "Data Access"
	case model.TierDomain:
		return "Domain"
	case model.TierCrossCutting:
		return "Cross-Cutting"
	}
	return "Unclassified"
}
