package architecture

import (
	"context"
	"path"
	"sort"
	"strings"

	"legacylens/internal/model"
)

// classify picks the overall architecture. A dominant flow from outer tiers
// to inner ones across at least two ranked tiers is Layered; otherwise
// controller, view and model triads sharing a name make MVC.
func (a *Analyzer) classify(_ context.Context, in *input, arch *model.ArchitectureAnalysis) error {
	ranked := make(map[model.Tier]bool)
	for _, c := range arch.Components {
		if c.Level != model.LevelUnranked {
			ranked[c.Tier] = true
		}
	}

	var forward, backward float64
	for _, e := range arch.ComponentGraph.Edges {
		from, to := arch.ComponentGraph.Nodes[e.From].Data, arch.ComponentGraph.Nodes[e.To].Data
		if from.Level == model.LevelUnranked || to.Level == model.LevelUnranked || from.Level == to.Level {
			continue
		}
		if from.Level < to.Level {
			forward += e.Weight
		} else {
			backward += e.Weight
		}
	}
	if total := forward + backward; total > 0 {
		arch.Metrics.ForwardFlowRatio = forward / total
	}

	if len(ranked) >= 2 && forward > 0 && arch.Metrics.ForwardFlowRatio >= a.opts.LayeredFlowRatio {
		arch.Pattern = model.PatternLayered
		arch.PatternConfidence = arch.Metrics.ForwardFlowRatio
		return nil
	}
	if controllers, triads := mvcTriads(in); triads > 0 {
		conf := float64(triads) / float64(controllers)
		if conf >= a.opts.PatternThreshold {
			arch.Pattern = model.PatternMVC
			arch.PatternConfidence = conf
			return nil
		}
	}
	arch.Pattern = model.PatternUnknown
	arch.PatternConfidence = 0
	return nil
}

// stem normalizes a name for triad matching: lower case, singular.
func stem(name string) string {
	s := strings.ToLower(name)
	if strings.HasSuffix(s, "ies") {
		return strings.TrimSuffix(s, "ies") + "y"
	}
	return strings.TrimSuffix(s, "s")
}

func trimSuffixFold(name string, suffixes ...string) (string, bool) {
	lower := strings.ToLower(name)
	for _, suf := range suffixes {
		if strings.HasSuffix(lower, suf) && len(name) > len(suf) {
			return name[:len(name)-len(suf)], true
		}
	}
	return name, false
}

// mvcTriads counts controllers and the controllers whose stem also names a
// view and a model.
func mvcTriads(in *input) (controllers, triads int) {
	ctrl := make(map[string]bool)
	views := make(map[string]bool)
	models := make(map[string]bool)

	for _, s := range in.code.Symbols {
		if !s.Kind.IsType() {
			continue
		}
		if base, ok := trimSuffixFold(s.Name, "controller"); ok {
			ctrl[stem(base)] = true
			continue
		}
		if base, ok := trimSuffixFold(s.Name, "viewmodel", "view", "page"); ok {
			views[stem(base)] = true
			if strings.HasSuffix(strings.ToLower(s.Name), "viewmodel") {
				models[stem(base)] = true
			}
			continue
		}
		if base, ok := trimSuffixFold(s.Name, "model", "entity", "dto"); ok {
			models[stem(base)] = true
			continue
		}
		if t, role := nameTier(s.Namespace); t == model.TierDomain || role == "model" {
			models[stem(s.Name)] = true
		}
	}
	for _, f := range in.code.Files {
		dirs := strings.Split(path.Dir(f.Path), "/")
		for i, d := range dirs {
			switch strings.ToLower(d) {
			case "views", "templates", "pages":
				if i+1 < len(dirs) {
					views[stem(dirs[i+1])] = true
				} else {
					base := path.Base(f.Path)
					views[stem(strings.TrimSuffix(base, path.Ext(base)))] = true
				}
			}
		}
	}
	for s := range ctrl {
		if views[s] && models[s] {
			triads++
		}
	}
	return len(ctrl), triads
}

type criterion struct {
	name string
	ok   bool
}

// detection is one candidate match before thresholding.
type detection struct {
	kind         model.DesignPatternKind
	anchorOK     bool
	criteria     []criterion
	participants []string
}

// designPatterns evaluates every structural signature against every type.
// A match is reported when its defining criteria hold and the satisfied
// fraction reaches the threshold.
func (a *Analyzer) designPatterns(ctx context.Context, in *input, arch *model.ArchitectureAnalysis) error {
	tierOf := make(map[string]model.Tier)
	for _, c := range arch.Components {
		for _, t := range c.Types {
			tierOf[t] = c.Tier
		}
	}
	detectors := []func(*input, *model.CodeSymbol, map[string]model.Tier) detection{
		detectSingleton, detectFactory, detectRepository, detectObserver,
		detectStrategy, detectDecorator, detectBuilder, detectAdapter,
	}
	for i := range in.code.Symbols {
		if ctx.Err() != nil {
			return nil
		}
		s := &in.code.Symbols[i]
		switch s.Kind {
		case model.KindClass, model.KindStruct, model.KindInterface, model.KindRecord:
		default:
			continue
		}
		for _, detect := range detectors {
			d := detect(in, s, tierOf)
			if !d.anchorOK || len(d.criteria) == 0 {
				continue
			}
			var satisfied []string
			for _, c := range d.criteria {
				if c.ok {
					satisfied = append(satisfied, c.name)
				}
			}
			conf := float64(len(satisfied)) / float64(len(d.criteria))
			if conf < a.opts.PatternThreshold {
				continue
			}
			participants := dedupe(append([]string{s.FullName}, d.participants...))
			arch.DesignPatterns = append(arch.DesignPatterns, model.DesignPattern{
				Kind:         d.kind,
				Anchor:       s.FullName,
				Participants: participants,
				Confidence:   conf,
				Satisfied:    satisfied,
				Total:        len(d.criteria),
				Location:     s.Location,
			})
		}
	}
	return nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out[1:])
	return out
}

// members resolves a type's direct members.
func (in *input) members(s *model.CodeSymbol) []*model.CodeSymbol {
	out := make([]*model.CodeSymbol, 0, len(s.Members))
	for _, m := range s.Members {
		if sym, ok := in.ix.Symbol(m); ok {
			out = append(out, sym)
		}
	}
	return out
}

func (in *input) constructs(from, to string) []model.DependencyKind {
	return in.out[from][to].Constructs
}

func (in *input) has(from, to string, kind model.DependencyKind) bool {
	return containsKind(in.constructs(from, to), kind)
}

// bases lists the direct supertypes a type inherits or implements.
func (in *input) bases(t string) []string {
	var out []string
	for to, d := range in.out[t] {
		if containsKind(d.Constructs, model.DepInheritance) || containsKind(d.Constructs, model.DepImplementation) {
			out = append(out, to)
		}
	}
	sort.Strings(out)
	return out
}

// subtypes lists the direct subtypes of a type.
func (in *input) subtypes(t string) []string {
	var out []string
	for from, d := range in.in[t] {
		if containsKind(d.Constructs, model.DepInheritance) || containsKind(d.Constructs, model.DepImplementation) {
			out = append(out, from)
		}
	}
	sort.Strings(out)
	return out
}

// ancestors returns every transitive supertype of t.
func (in *input) ancestors(t string) map[string]bool {
	seen := make(map[string]bool)
	stack := in.bases(t)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, in.bases(n)...)
	}
	return seen
}

func (in *input) instantiatedExternally(t string) bool {
	for from, d := range in.in[t] {
		if from != t && containsKind(d.Constructs, model.DepInstantiation) {
			return true
		}
	}
	return false
}

func (in *input) isAbstract(t string) bool {
	s, ok := in.ix.Symbol(t)
	return ok && s.IsAbstract()
}

// typesOf resolves the user types named by a type expression.
func (in *input) typesOf(expr string, from *model.CodeSymbol) []string {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	return in.ix.ResolveTypeExpr(expr, from)
}

func (in *input) typedAs(expr string, from *model.CodeSymbol, target string) bool {
	for _, t := range in.typesOf(expr, from) {
		if t == target {
			return true
		}
	}
	return false
}

func nameHasToken(name string, toks ...string) bool {
	for _, t := range tokens(name) {
		for _, want := range toks {
			if t == want {
				return true
			}
		}
	}
	return false
}

func lastToken(name string) string {
	toks := tokens(name)
	if len(toks) == 0 {
		return ""
	}
	return toks[len(toks)-1]
}

func firstToken(name string) string {
	toks := tokens(name)
	if len(toks) == 0 {
		return ""
	}
	return toks[0]
}

func detectSingleton(in *input, s *model.CodeSymbol, _ map[string]model.Tier) detection {
	if s.Kind == model.KindInterface {
		return detection{}
	}
	var ctors, privateCtors int
	var field, accessor bool
	for _, m := range in.members(s) {
		switch {
		case m.Kind == model.KindConstructor:
			ctors++
			if m.Access == model.AccessPrivate {
				privateCtors++
			}
		case m.Kind == model.KindField && m.IsStatic() && in.typedAs(m.Type, m, s.FullName):
			field = true
		case m.Kind == model.KindProperty && m.IsStatic() && in.typedAs(m.Type, m, s.FullName):
			accessor = true
		case m.Kind == model.KindMethod && m.IsStatic() && in.typedAs(m.ReturnType, m, s.FullName):
			accessor = true
		}
	}
	return detection{
		kind:     model.DesignSingleton,
		anchorOK: field || accessor,
		criteria: []criterion{
			{"private_constructor", ctors > 0 && ctors == privateCtors},
			{"static_instance", field},
			{"static_accessor", accessor},
			{"no_external_instantiation", !in.instantiatedExternally(s.FullName)},
		},
	}
}

func detectFactory(in *input, s *model.CodeSymbol, _ map[string]model.Tier) detection {
	if s.IsAbstract() {
		return detection{}
	}
	var public int
	allReturn := true
	products := make(map[string]bool)
	for _, m := range in.members(s) {
		if !m.Kind.IsCallable() || m.Kind == model.KindConstructor || m.Access != model.AccessPublic {
			continue
		}
		public++
		returned := false
		for _, t := range in.typesOf(m.ReturnType, m) {
			if t != s.FullName {
				products[t] = true
				returned = true
			}
		}
		if !returned {
			allReturn = false
		}
	}
	returnsUser := public > 0 && allReturn

	// the shared base is an abstract type every product is or extends
	var shared string
	if len(products) > 0 {
		var common map[string]bool
		for p := range products {
			cand := in.ancestors(p)
			cand[p] = true
			for c := range cand {
				if !in.isAbstract(c) {
					delete(cand, c)
				}
			}
			if common == nil {
				common = cand
				continue
			}
			for c := range common {
				if !cand[c] {
					delete(common, c)
				}
			}
		}
		for c := range common {
			if shared == "" || c < shared {
				shared = c
			}
		}
	}

	creates := false
	var participants []string
	for p := range products {
		participants = append(participants, p)
	}
	if shared != "" {
		participants = append(participants, shared)
		for _, sub := range in.subtypes(shared) {
			if in.has(s.FullName, sub, model.DepInstantiation) {
				creates = true
				participants = append(participants, sub)
			}
		}
	}
	return detection{
		kind:     model.DesignFactory,
		anchorOK: returnsUser && shared != "",
		criteria: []criterion{
			{"public_methods_return_products", returnsUser},
			{"products_share_abstract_base", shared != ""},
			{"creates_concrete_products", creates},
			{"not_constructed_externally", !in.instantiatedExternally(s.FullName)},
		},
		participants: participants,
	}
}

var crudVerbs = map[string]bool{
	"get": true, "find": true, "add": true, "save": true, "insert": true, "update": true,
	"delete": true, "remove": true, "list": true, "query": true, "create": true, "fetch": true,
	"load": true, "store": true, "upsert": true, "count": true, "exists": true,
}

func detectRepository(in *input, s *model.CodeSymbol, tierOf map[string]model.Tier) detection {
	named := false
	switch lastToken(s.Name) {
	case "repository", "repo", "dao", "store", "gateway":
		named = true
	}
	verbs := make(map[string]bool)
	for _, m := range in.members(s) {
		if m.Kind.IsCallable() && crudVerbs[firstToken(m.Name)] {
			verbs[firstToken(m.Name)] = true
		}
	}
	dbAccess := false
	for to := range in.out[s.FullName] {
		if in.has(s.FullName, to, model.DepDatabase) {
			dbAccess = true
		}
	}
	if !dbAccess {
		for _, d := range in.deps.Database {
			if d.From == s.FullName || in.ix.Unit(d.From) == s.FullName {
				dbAccess = true
				break
			}
		}
	}
	if !dbAccess {
		for _, m := range in.members(s) {
			if m.Kind.IsData() && nameHasToken(m.Type, "context", "connection", "session", "db", "template", "client") {
				dbAccess = true
				break
			}
		}
	}
	crud := len(verbs) >= 2
	return detection{
		kind:     model.DesignRepository,
		anchorOK: named || (crud && dbAccess),
		criteria: []criterion{
			{"repository_name", named},
			{"crud_methods", crud},
			{"data_tier", tierOf[s.FullName] == model.TierData},
			{"database_access", dbAccess},
		},
	}
}

func detectObserver(in *input, s *model.CodeSymbol, _ map[string]model.Tier) detection {
	var events, collection, subscribe, notify, observerType bool
	var participants []string
	for _, m := range in.members(s) {
		switch {
		case m.Kind == model.KindEvent:
			events = true
		case m.Kind.IsData() && nameHasToken(m.Name, "listener", "listeners", "observer", "observers",
			"subscriber", "subscribers", "handler", "handlers", "callback", "callbacks"):
			collection = true
			for _, t := range in.typesOf(m.Type, m) {
				if in.isAbstract(t) {
					observerType = true
					participants = append(participants, t)
				}
			}
		case m.Kind.IsCallable():
			if nameHasToken(m.Name, "subscribe", "attach", "register", "listen") ||
				(firstToken(m.Name) == "add" && nameHasToken(m.Name, "listener", "observer", "handler", "subscriber")) {
				subscribe = true
			}
			if nameHasToken(m.Name, "notify", "publish", "emit", "fire", "raise", "dispatch", "broadcast", "trigger") {
				notify = true
			}
		}
	}
	return detection{
		kind:     model.DesignObserver,
		anchorOK: events || (collection && (subscribe || notify)),
		criteria: []criterion{
			{"observer_collection", events || collection},
			{"subscribe_method", subscribe || events},
			{"notify_method", notify},
			{"observer_abstraction", observerType || events},
		},
		participants: participants,
	}
}

func detectStrategy(in *input, s *model.CodeSymbol, _ map[string]model.Tier) detection {
	if !s.IsAbstract() {
		return detection{}
	}
	var ops int
	for _, m := range in.members(s) {
		if m.Kind.IsCallable() && m.Kind != model.KindConstructor {
			ops++
		}
	}
	var impls []string
	isImpl := make(map[string]bool)
	for _, sub := range in.subtypes(s.FullName) {
		if !in.isAbstract(sub) {
			impls = append(impls, sub)
			isImpl[sub] = true
		}
	}
	var contexts []string
	injected := false
	for from, d := range in.in[s.FullName] {
		if isImpl[from] || !containsKind(d.Constructs, model.DepFieldType) {
			continue
		}
		contexts = append(contexts, from)
		if containsKind(d.Constructs, model.DepParameterType) {
			injected = true
		}
	}
	sort.Strings(contexts)
	return detection{
		kind:     model.DesignStrategy,
		anchorOK: len(impls) >= 2 && len(contexts) > 0,
		criteria: []criterion{
			{"focused_interface", ops >= 1 && ops <= 3},
			{"multiple_implementations", len(impls) >= 2},
			{"context_holds_strategy", len(contexts) > 0},
			{"strategy_injected", injected},
		},
		participants: append(impls, contexts...),
	}
}

func detectDecorator(in *input, s *model.CodeSymbol, _ map[string]model.Tier) detection {
	if s.IsAbstract() {
		return detection{}
	}
	best := detection{kind: model.DesignDecorator}
	bestScore := -1
	for _, b := range in.bases(s.FullName) {
		if !in.isAbstract(b) {
			continue
		}
		d := detection{
			kind:     model.DesignDecorator,
			anchorOK: in.has(s.FullName, b, model.DepFieldType),
			criteria: []criterion{
				{"implements_component", true},
				{"wraps_component", in.has(s.FullName, b, model.DepFieldType)},
				{"component_injected", in.has(s.FullName, b, model.DepParameterType)},
				{"delegates_to_component", in.has(s.FullName, b, model.DepMethodCall)},
			},
			participants: []string{b},
		}
		score := 0
		for _, c := range d.criteria {
			if c.ok {
				score++
			}
		}
		if d.anchorOK && score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

func detectBuilder(in *input, s *model.CodeSymbol, _ map[string]model.Tier) detection {
	if s.Kind == model.KindInterface {
		return detection{}
	}
	var fluent int
	var products []string
	for _, m := range in.members(s) {
		if m.Kind != model.KindMethod && m.Kind != model.KindFunction {
			continue
		}
		if in.typedAs(m.ReturnType, m, s.FullName) && !m.IsStatic() {
			fluent++
			continue
		}
		switch firstToken(m.Name) {
		case "build", "create", "make", "get", "to", "construct", "result":
			for _, t := range in.typesOf(m.ReturnType, m) {
				if t != s.FullName {
					products = append(products, t)
				}
			}
		}
	}
	constructs := false
	for _, p := range products {
		if in.has(s.FullName, p, model.DepInstantiation) {
			constructs = true
		}
	}
	named := lastToken(s.Name) == "builder"
	return detection{
		kind:     model.DesignBuilder,
		anchorOK: fluent >= 2 || (named && len(products) > 0),
		criteria: []criterion{
			{"builder_name", named},
			{"fluent_methods", fluent >= 2},
			{"build_method", len(products) > 0},
			{"constructs_product", constructs},
		},
		participants: products,
	}
}

func detectAdapter(in *input, s *model.CodeSymbol, _ map[string]model.Tier) detection {
	if s.IsAbstract() {
		return detection{}
	}
	targets := make(map[string]bool)
	for _, b := range in.bases(s.FullName) {
		if in.isAbstract(b) {
			targets[b] = true
		}
	}
	related := in.ancestors(s.FullName)
	var adaptees []string
	delegates := false
	for to, d := range in.out[s.FullName] {
		if targets[to] || related[to] || !containsKind(d.Constructs, model.DepFieldType) {
			continue
		}
		if in.ancestors(to)[s.FullName] {
			continue
		}
		adaptees = append(adaptees, to)
		if containsKind(d.Constructs, model.DepMethodCall) {
			delegates = true
		}
	}
	sort.Strings(adaptees)
	var participants []string
	for t := range targets {
		participants = append(participants, t)
	}
	return detection{
		kind:     model.DesignAdapter,
		anchorOK: len(targets) > 0 && len(adaptees) > 0 && delegates,
		criteria: []criterion{
			{"implements_target", len(targets) > 0},
			{"holds_adaptee", len(adaptees) > 0},
			{"delegates_to_adaptee", delegates},
			{"adapter_name", nameHasToken(s.Name, "adapter", "wrapper")},
		},
		participants: append(participants, adaptees...),
	}
}
