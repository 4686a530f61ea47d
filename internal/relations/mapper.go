// Package relations unifies every pairwise reference between symbols into
// one canonical relationship list and derives all other relationship views
// from that list alone.
package relations

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"legacylens/internal/apperrors"
	"legacylens/internal/config"
	"legacylens/internal/logging"
	"legacylens/internal/model"
	"legacylens/internal/symbols"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
)

// Options tunes the mapper.
type Options struct {
	// StrengthSaturation is the reference count at which strength reaches 1.
	StrengthSaturation int
	Logger             logrus.FieldLogger
}

// OptionsFromConfig maps the relationships configuration section.
func OptionsFromConfig(cfg config.RelationshipConfig) Options {
	return Options{StrengthSaturation: cfg.StrengthSaturation}
}

// Mapper runs the relationship mapping phase.
type Mapper struct {
	opts Options
	log  logrus.FieldLogger
}

// NewMapper creates a mapper.
func NewMapper(opts Options) *Mapper {
	if opts.StrengthSaturation < 1 {
		opts.StrengthSaturation = config.Default().Relationships.StrengthSaturation
	}
	return &Mapper{
		opts: opts,
		log:  logging.OrDiscard(opts.Logger).WithField("phase", model.PhaseRelationships),
	}
}

type pairKey struct{ source, target string }

// pairAcc collects every reference seen for one ordered pair.
type pairAcc struct {
	typ        model.RelationshipType
	count      int
	constructs map[model.RelationshipType]int
	loc        model.Location
	dynamic    bool
}

type collector struct {
	pairs map[pairKey]*pairAcc
	order []pairKey
}

func newCollector() *collector {
	return &collector{pairs: make(map[pairKey]*pairAcc)}
}

// add records one reference. The pair keeps the highest-precedence type
// seen and counts every reference.
func (c *collector) add(source, target string, typ model.RelationshipType, loc model.Location) *pairAcc {
	if source == "" || target == "" || source == target {
		return nil
	}
	k := pairKey{source, target}
	p, ok := c.pairs[k]
	if !ok {
		p = &pairAcc{typ: typ, constructs: make(map[model.RelationshipType]int), loc: loc}
		c.pairs[k] = p
		c.order = append(c.order, k)
	}
	p.count++
	p.constructs[typ]++
	if typ.Precedence() > p.typ.Precedence() {
		p.typ = typ
	}
	return p
}

// Map builds the canonical relationship list and its views. On cancellation
// the relationships collected so far are returned with Partial set.
func (m *Mapper) Map(ctx context.Context, code *model.CodeAnalysis, deps *model.DependencyAnalysis, arch *model.ArchitectureAnalysis) *model.RelationshipMapping {
	start := time.Now()
	if code == nil {
		code = &model.CodeAnalysis{}
	}
	if deps == nil {
		deps = &model.DependencyAnalysis{}
	}
	if arch == nil {
		arch = &model.ArchitectureAnalysis{}
	}
	out := &model.RelationshipMapping{Relationships: []model.Relationship{}, Warnings: []model.Warning{}}
	ix := symbols.New(code)
	col := newCollector()

	for i := range code.Symbols {
		if ctx.Err() != nil {
			break
		}
		collectSymbol(ix, &code.Symbols[i], col)
	}
	if ctx.Err() == nil {
		for _, d := range deps.Dynamic {
			if d.ResolvedTo == "" {
				continue
			}
			if p := col.add(d.From, d.ResolvedTo, model.RelAssociation, d.Location); p != nil {
				p.dynamic = true
			}
		}
	}

	out.Relationships = m.finalize(ix, arch, col)
	if ctx.Err() != nil {
		out.Partial = true
		out.Warnings = append(out.Warnings, model.NewWarning(model.PhaseRelationships, model.SeverityWarning,
			apperrors.KindCancelled, "", fmt.Sprintf("relationship mapping cancelled after %d relationships", len(out.Relationships))))
	}
	out.Views = BuildViews(out.Relationships)
	out.Duration = time.Since(start)

	m.log.WithFields(logrus.Fields{
		"relationships":    len(out.Relationships),
		"layer_violations": out.Views.Metrics.LayerViolations,
		"max_call_depth":   out.Views.Metrics.MaxCallDepth,
	}).Info("relationship mapping finished")
	return out
}

// collectSymbol classifies every reference made by one symbol.
func collectSymbol(ix *symbols.Index, s *model.CodeSymbol, col *collector) {
	loc := s.Location
	switch {
	case s.Kind.IsType():
		resolved, _ := ix.ResolveBases(s)
		for _, b := range resolved {
			typ := model.RelInheritance
			if base, ok := ix.Symbol(b); ok && base.Kind == model.KindInterface && s.Kind != model.KindInterface {
				typ = model.RelImplementation
			}
			col.add(s.FullName, b, typ, loc)
		}
	case s.Kind.IsData() && s.Parent != "":
		owner, ok := ix.OwnerType(s.FullName)
		if !ok {
			break
		}
		typ := model.RelComposition
		if model.IsCollectionType(s.Type) {
			typ = model.RelAggregation
		}
		for _, t := range ix.ResolveTypeExpr(s.Type, s) {
			col.add(owner, t, typ, loc)
		}
	case s.Kind.IsCallable():
		unit := ix.Unit(s.FullName)
		for _, p := range s.Parameters {
			for _, t := range ix.ResolveTypeExpr(p.Type, s) {
				col.add(unit, t, model.RelAssociation, loc)
			}
		}
		for _, t := range ix.ResolveTypeExpr(s.ReturnType, s) {
			col.add(unit, t, model.RelAssociation, loc)
		}
	}

	unit := ix.Unit(s.FullName)
	for _, ref := range s.References {
		refLoc := model.Location{File: s.Location.File, StartLine: ref.Line, EndLine: ref.Line}
		for _, t := range ix.ResolveReference(s, ref) {
			target, ok := ix.Symbol(t.Symbol)
			if !ok {
				continue
			}
			switch {
			case target.Kind.IsType():
				typ := model.RelAssociation
				if ref.Kind == model.RefEvent {
					typ = model.RelEvent
				}
				col.add(unit, target.FullName, typ, refLoc)
			case target.Kind == model.KindEvent || ref.Kind == model.RefEvent:
				col.add(s.FullName, target.FullName, model.RelEvent, refLoc)
			case target.Kind.IsCallable():
				col.add(s.FullName, target.FullName, model.RelMethodCall, refLoc)
			case target.Kind.IsData():
				col.add(s.FullName, target.FullName, model.RelPropertyAccess, refLoc)
			}
		}
	}
}

// finalize turns the collected pairs into sorted canonical records.
func (m *Mapper) finalize(ix *symbols.Index, arch *model.ArchitectureAnalysis, col *collector) []model.Relationship {
	compOf := make(map[string]model.Component)
	for _, c := range arch.Components {
		for _, t := range c.Types {
			compOf[t] = c
		}
	}
	keys := append([]pairKey(nil), col.order...)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].source != keys[j].source {
			return keys[i].source < keys[j].source
		}
		return keys[i].target < keys[j].target
	})

	rels := make([]model.Relationship, 0, len(keys))
	for _, k := range keys {
		p := col.pairs[k]
		r := model.Relationship{
			ID:          RelationshipID(k.source, k.target),
			Source:      k.source,
			Target:      k.target,
			Type:        p.typ,
			Strength:    Strength(p.count, m.opts.StrengthSaturation),
			Direction:   model.DirectionOutgoing,
			Count:       p.count,
			SourceLevel: model.LevelUnranked,
			TargetLevel: model.LevelUnranked,
			Metadata: map[string]string{
				"constructs": joinConstructs(p.constructs),
				"file":       p.loc.File,
				"line":       strconv.Itoa(p.loc.StartLine),
			},
		}
		if p.dynamic {
			r.Metadata["dynamic"] = "true"
		}
		if _, ok := col.pairs[pairKey{k.target, k.source}]; ok {
			r.Direction = model.DirectionBidirectional
		}
		if s, ok := ix.Symbol(k.source); ok {
			r.SourceKind = s.Kind
		}
		if s, ok := ix.Symbol(k.target); ok {
			r.TargetKind = s.Kind
		}
		if c, ok := compOf[ix.Unit(k.source)]; ok {
			r.SourceComponent, r.SourceLayer, r.SourceLevel = c.Name, c.Layer, c.Level
		}
		if c, ok := compOf[ix.Unit(k.target)]; ok {
			r.TargetComponent, r.TargetLayer, r.TargetLevel = c.Name, c.Layer, c.Level
		}
		rels = append(rels, r)
	}
	return rels
}

// Strength normalizes a reference count into [0,1], reaching 1 at the
// saturation count.
func Strength(count, saturation int) float64 {
	if count <= 0 {
		return 0
	}
	if saturation < 1 {
		saturation = 1
	}
	if count >= saturation {
		return 1
	}
	return float64(count) / float64(saturation)
}

// RelationshipID is stable across runs for the same ordered pair.
func RelationshipID(source, target string) string {
	return fmt.Sprintf("rel-%016x", xxhash.Sum64String(source+"\x00"+target))
}

func joinConstructs(seen map[model.RelationshipType]int) string {
	out := make([]string, 0, len(seen))
	for _, t := range model.RelationshipTypes {
		if seen[t] > 0 {
			out = append(out, string(t))
		}
	}
	return strings.Join(out, ",")
}
