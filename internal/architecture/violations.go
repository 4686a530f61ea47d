package architecture

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"legacylens/internal/graph"
	"legacylens/internal/model"

	"gonum.org/v1/gonum/stat"
)

func (a *Analyzer) violations(ctx context.Context, in *input, arch *model.ArchitectureAnalysis) error {
	a.godClasses(ctx, in, arch)
	if ctx.Err() != nil {
		return nil
	}
	layerViolations(ctx, in, arch)
	if ctx.Err() != nil {
		return nil
	}
	for _, c := range graph.StronglyConnected(&arch.ComponentGraph) {
		sev := model.ViolationMedium
		if len(c.Nodes) > 2 {
			sev = model.ViolationHigh
		}
		walk := append(append([]string{}, c.Nodes...), c.Nodes[0])
		arch.Violations = append(arch.Violations, model.ArchitecturalViolation{
			Kind:        model.ViolationCyclicDeps,
			Severity:    sev,
			Symbol:      c.Nodes[0],
			From:        c.Nodes[0],
			To:          c.Nodes[len(c.Nodes)-1],
			Description: "components form a dependency cycle: " + strings.Join(walk, " -> "),
			Value:       float64(len(c.Nodes)),
			Threshold:   1,
		})
	}
	return nil
}

// distribution is a sorted sample that answers quantiles with one value
// held out, so a candidate is never measured against itself.
type distribution struct {
	sorted []float64
	buf    []float64
}

func newDistribution(values []float64) *distribution {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return &distribution{sorted: sorted, buf: make([]float64, 0, len(sorted))}
}

// quantile returns the p-quantile of the whole sample.
func (d *distribution) quantile(p float64) float64 {
	if len(d.sorted) == 0 {
		return 0
	}
	return stat.Quantile(p, stat.LinearInterpolation, d.sorted, nil)
}

// without returns the p-quantile of the sample with one occurrence of v
// removed. It reports false when no other value remains.
func (d *distribution) without(v, p float64) (float64, bool) {
	i := sort.SearchFloat64s(d.sorted, v)
	if len(d.sorted) < 2 || i == len(d.sorted) || d.sorted[i] != v {
		return 0, false
	}
	d.buf = append(append(d.buf[:0], d.sorted[:i]...), d.sorted[i+1:]...)
	return stat.Quantile(p, stat.LinearInterpolation, d.buf, nil), true
}

// godClasses flags types whose member count or total complexity exceeds the
// configured percentile of the other types' distribution. Types below the
// minimum member count are never flagged.
func (a *Analyzer) godClasses(ctx context.Context, in *input, arch *model.ArchitectureAnalysis) {
	var candidates []*model.CodeSymbol
	var members, complexity []float64
	for i := range in.code.Symbols {
		s := &in.code.Symbols[i]
		switch s.Kind {
		case model.KindClass, model.KindStruct, model.KindRecord:
			candidates = append(candidates, s)
			members = append(members, float64(s.Metrics.MemberCount))
			complexity = append(complexity, float64(s.Metrics.TotalComplexity))
		}
	}
	p := a.opts.GodClassPercentile
	memberDist, complexityDist := newDistribution(members), newDistribution(complexity)
	arch.Metrics.GodClassMemberLimit = memberDist.quantile(p)
	arch.Metrics.GodClassComplexity = complexityDist.quantile(p)

	for _, s := range candidates {
		if ctx.Err() != nil {
			return
		}
		if s.Metrics.MemberCount < a.opts.GodClassMinMembers {
			continue
		}
		m, cx := float64(s.Metrics.MemberCount), float64(s.Metrics.TotalComplexity)
		memberLimit, ok := memberDist.without(m, p)
		if !ok {
			continue
		}
		complexityLimit, _ := complexityDist.without(cx, p)
		overMembers, overComplexity := m > memberLimit, cx > complexityLimit
		if !overMembers && !overComplexity {
			continue
		}
		v := model.ArchitecturalViolation{
			Kind:     model.ViolationGodClass,
			Severity: model.ViolationMedium,
			Symbol:   s.FullName,
			Location: s.Location,
			Description: fmt.Sprintf("%s has %d members and total complexity %d (limits %.0f and %.0f)",
				s.Name, s.Metrics.MemberCount, s.Metrics.TotalComplexity, memberLimit, complexityLimit),
			Value:     m,
			Threshold: memberLimit,
		}
		if !overMembers {
			v.Value, v.Threshold = cx, complexityLimit
		}
		if overMembers && overComplexity {
			v.Severity = model.ViolationHigh
		}
		arch.Violations = append(arch.Violations, v)
	}
}

// layerViolations flags each type dependency that points from an inner
// layer to an outer one.
func layerViolations(ctx context.Context, in *input, arch *model.ArchitectureAnalysis) {
	comps := make(map[string]model.Component, len(arch.Components))
	for _, c := range arch.Components {
		comps[c.Name] = c
	}
	for _, d := range in.deps.Static {
		if ctx.Err() != nil {
			return
		}
		if d.Scope != model.ScopeType {
			continue
		}
		from, okFrom := comps[in.compOf[d.From]]
		to, okTo := comps[in.compOf[d.To]]
		if !okFrom || !okTo || !model.IsLayerViolation(from.Level, to.Level) {
			continue
		}
		sev := model.ViolationMedium
		if from.Level-to.Level >= 2 {
			sev = model.ViolationHigh
		}
		arch.Violations = append(arch.Violations, model.ArchitecturalViolation{
			Kind:     model.ViolationLayer,
			Severity: sev,
			Symbol:   d.From,
			From:     d.From,
			To:       d.To,
			Location: d.Location,
			Description: fmt.Sprintf("%s layer type %s depends on %s layer type %s (%s)",
				layerName(from.Tier), d.From, layerName(to.Tier), d.To, d.Kind),
			Value:     float64(from.Level),
			Threshold: float64(to.Level),
		})
	}
}
