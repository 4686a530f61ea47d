package architecture

import (
	"context"
	"fmt"
	"testing"

	"legacylens/internal/apperrors"
	"legacylens/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fixture builds code and dependency analyses by hand so each test states
// exactly the structure it relies on.
type fixture struct {
	code model.CodeAnalysis
	deps model.DependencyAnalysis
	pos  map[string]int
}

func newFixture() *fixture {
	return &fixture{pos: make(map[string]int)}
}

func (f *fixture) add(s model.CodeSymbol) string {
	f.pos[s.FullName] = len(f.code.Symbols)
	f.code.Symbols = append(f.code.Symbols, s)
	if s.Parent != "" {
		owner := &f.code.Symbols[f.pos[s.Parent]]
		owner.Members = append(owner.Members, s.FullName)
		owner.Metrics.MemberCount++
	}
	return s.FullName
}

func (f *fixture) typ(ns, name string, kind model.SymbolKind, file string, mods ...string) string {
	return f.add(model.CodeSymbol{
		Name:      name,
		FullName:  ns + "." + name,
		Kind:      kind,
		Access:    model.AccessPublic,
		Namespace: ns,
		Assembly:  "Shop",
		Location:  model.Location{File: file, StartLine: 1},
		Modifiers: mods,
	})
}

func (f *fixture) member(owner, name string, kind model.SymbolKind, access model.Access, typ string, mods ...string) string {
	o := f.code.Symbols[f.pos[owner]]
	s := model.CodeSymbol{
		Name:      name,
		FullName:  owner + "." + name,
		Kind:      kind,
		Access:    access,
		Namespace: o.Namespace,
		Assembly:  o.Assembly,
		Location:  o.Location,
		Parent:    owner,
		Modifiers: mods,
	}
	if kind.IsCallable() {
		s.ReturnType = typ
	} else {
		s.Type = typ
	}
	return f.add(s)
}

func (f *fixture) dep(from, to string, kind model.DependencyKind, count int) {
	f.deps.Static = append(f.deps.Static, model.StaticDependency{
		From:       from,
		To:         to,
		Kind:       kind,
		Constructs: []model.DependencyKind{kind},
		Count:      count,
		Scope:      model.ScopeType,
	})
}

// link records one type-level dependency made of several constructs.
func (f *fixture) link(from, to string, kinds ...model.DependencyKind) {
	f.deps.Static = append(f.deps.Static, model.StaticDependency{
		From:       from,
		To:         to,
		Kind:       kinds[0],
		Constructs: kinds,
		Count:      len(kinds),
		Scope:      model.ScopeType,
	})
}

func (f *fixture) analyze(t *testing.T, opts Options) *model.ArchitectureAnalysis {
	t.Helper()
	arch := New(opts).Analyze(context.Background(), &f.code, &f.deps)
	require.NotNil(t, arch)
	return arch
}

// layeredShop is a four-tier application whose dependencies all flow inward.
func layeredShop() *fixture {
	f := newFixture()
	ctrl := f.typ("Shop.Web", "OrderController", model.KindClass, "Web/OrderController.cs")
	svc := f.typ("Shop.Services", "OrderService", model.KindClass, "Services/OrderService.cs")
	repo := f.typ("Shop.Data", "OrderRepository", model.KindClass, "Data/OrderRepository.cs")
	order := f.typ("Shop.Domain", "Order", model.KindClass, "Domain/Order.cs")
	line := f.typ("Shop.Domain", "OrderLine", model.KindClass, "Domain/OrderLine.cs")
	f.typ("Shop.Domain", "Customer", model.KindClass, "Domain/Customer.cs")

	f.member(repo, "context", model.KindField, model.AccessPrivate, "DbContext")
	f.member(repo, "GetById", model.KindMethod, model.AccessPublic, "Order")
	f.member(repo, "Save", model.KindMethod, model.AccessPublic, "void")

	f.dep(ctrl, svc, model.DepFieldType, 2)
	f.dep(svc, repo, model.DepFieldType, 1)
	f.dep(svc, order, model.DepParameterType, 1)
	f.dep(repo, order, model.DepInstantiation, 1)
	f.dep(order, line, model.DepFieldType, 1)
	return f
}

func componentNamed(arch *model.ArchitectureAnalysis, name string) (model.Component, bool) {
	for _, c := range arch.Components {
		if c.Name == name {
			return c, true
		}
	}
	return model.Component{}, false
}

func violationsOf(arch *model.ArchitectureAnalysis, kind model.ViolationKind) []model.ArchitecturalViolation {
	var out []model.ArchitecturalViolation
	for _, v := range arch.Violations {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

func patternsOf(arch *model.ArchitectureAnalysis, kind model.DesignPatternKind) []model.DesignPattern {
	var out []model.DesignPattern
	for _, p := range arch.DesignPatterns {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"http", "server", "handler"}, tokens("HTTPServerHandler"))
	assert.Equal(t, []string{"order", "line", "item"}, tokens("order_line-item"))
	assert.Equal(t, []string{"shop", "web", "services"}, tokens("Shop.Web.Services"))
	assert.Empty(t, tokens(""))
}

func TestTierOf(t *testing.T) {
	tests := []struct {
		name string
		want model.Tier
	}{
		{"OrderController", model.TierPresentation},
		{"Shop.Web.Services", model.TierBusiness},
		{"CustomerRepository", model.TierData},
		{"Shop.Domain", model.TierDomain},
		{"Utilities", model.TierCrossCutting},
		{"Formatter", model.TierUnknown},
		{"Order", model.TierUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TierOf(tt.name))
		})
	}
}

func TestAnalyze_Empty(t *testing.T) {
	arch := New(Options{}).Analyze(context.Background(), nil, nil)

	assert.Equal(t, model.PatternUnknown, arch.Pattern)
	assert.Empty(t, arch.Components)
	assert.Empty(t, arch.Violations)
	assert.NotNil(t, arch.DesignPatterns)
	assert.False(t, arch.Partial)
}

func TestAnalyze_ComponentsAndLayers(t *testing.T) {
	arch := layeredShop().analyze(t, Options{})

	require.Len(t, arch.Components, 4)
	want := map[string]model.Tier{
		"Shop.Web":      model.TierPresentation,
		"Shop.Services": model.TierBusiness,
		"Shop.Data":     model.TierData,
		"Shop.Domain":   model.TierDomain,
	}
	for name, tier := range want {
		c, ok := componentNamed(arch, name)
		require.True(t, ok, name)
		assert.Equal(t, tier, c.Tier, name)
		assert.Equal(t, tier.Level(), c.Level, name)
		assert.Equal(t, "Shop", c.Assembly)
	}

	require.Len(t, arch.Layers, 4)
	assert.Equal(t, "Presentation", arch.Layers[0].Name)
	assert.Equal(t, "Domain", arch.Layers[3].Name)

	require.Len(t, arch.Modules, 1)
	assert.Equal(t, "Shop", arch.Modules[0].Name)
	assert.Len(t, arch.Modules[0].Components, 4)

	svc, _ := componentNamed(arch, "Shop.Services")
	assert.Equal(t, []string{"Shop.Data", "Shop.Domain"}, svc.DependsOn)
	assert.True(t, arch.ComponentGraph.HasEdge("Shop.Web", "Shop.Services"))
	assert.False(t, arch.ComponentGraph.HasEdge("Shop.Domain", "Shop.Domain"))
	assert.Equal(t, 4, arch.Metrics.ComponentCount)
}

func TestAnalyze_LayeredPattern(t *testing.T) {
	arch := layeredShop().analyze(t, Options{})

	assert.Equal(t, model.PatternLayered, arch.Pattern)
	assert.InDelta(t, 1.0, arch.PatternConfidence, 1e-9)
	assert.InDelta(t, 1.0, arch.Metrics.ForwardFlowRatio, 1e-9)
	assert.Empty(t, violationsOf(arch, model.ViolationLayer))
	assert.Empty(t, violationsOf(arch, model.ViolationCyclicDeps))
}

func TestAnalyze_CohesionAndCoupling(t *testing.T) {
	arch := layeredShop().analyze(t, Options{})

	domain, ok := componentNamed(arch, "Shop.Domain")
	require.True(t, ok)
	// Order and OrderLine are linked, Customer stands alone.
	assert.Equal(t, 2, domain.Cohesion.LCOM)
	assert.InDelta(t, 1.0/3.0, domain.Cohesion.TCC, 1e-9)
	assert.Equal(t, 2, domain.Coupling.Afferent)
	assert.Equal(t, 0, domain.Coupling.Efferent)
	assert.InDelta(t, 0.0, domain.Coupling.Instability, 1e-9)
	assert.InDelta(t, 1.0, domain.Coupling.Distance, 1e-9)

	svc, _ := componentNamed(arch, "Shop.Services")
	assert.Equal(t, 1, svc.Coupling.Afferent)
	assert.Equal(t, 2, svc.Coupling.Efferent)
	assert.InDelta(t, 2.0/3.0, svc.Coupling.Instability, 1e-9)
	assert.Equal(t, model.Cohesion{LCOM: 1, TCC: 1}, svc.Cohesion)
}

func TestAnalyze_LayerViolationAndCycle(t *testing.T) {
	f := layeredShop()
	// the domain reaches back out to the controller
	f.dep("Shop.Domain.Order", "Shop.Web.OrderController", model.DepMethodCall, 1)
	arch := f.analyze(t, Options{})

	layer := violationsOf(arch, model.ViolationLayer)
	require.Len(t, layer, 1)
	assert.Equal(t, "Shop.Domain.Order", layer[0].From)
	assert.Equal(t, "Shop.Web.OrderController", layer[0].To)
	assert.Equal(t, model.ViolationHigh, layer[0].Severity)
	assert.Contains(t, layer[0].Description, "Domain layer type")

	cycles := violationsOf(arch, model.ViolationCyclicDeps)
	require.Len(t, cycles, 1)
	assert.Equal(t, model.ViolationHigh, cycles[0].Severity)
	assert.InDelta(t, 4, cycles[0].Value, 1e-9)

	// one backward unit against five forward keeps the layered verdict
	assert.Equal(t, model.PatternLayered, arch.Pattern)
	assert.InDelta(t, 5.0/6.0, arch.Metrics.ForwardFlowRatio, 1e-9)
	assert.Equal(t, len(arch.Violations), arch.Metrics.ViolationCount)
}

func TestAnalyze_StrictFlowRatioFallsBackToUnknown(t *testing.T) {
	f := layeredShop()
	f.dep("Shop.Domain.Order", "Shop.Web.OrderController", model.DepMethodCall, 1)
	arch := f.analyze(t, Options{LayeredFlowRatio: 0.95})

	assert.Equal(t, model.PatternUnknown, arch.Pattern)
	assert.Zero(t, arch.PatternConfidence)
}

func TestAnalyze_MVC(t *testing.T) {
	f := newFixture()
	ctrl := f.typ("App", "OrderController", model.KindClass, "Controllers/OrderController.cs")
	m := f.typ("App", "OrderModel", model.KindClass, "Models/OrderModel.cs")
	f.dep(ctrl, m, model.DepFieldType, 1)
	f.code.Files = []model.SourceFile{
		{Path: "Controllers/OrderController.cs"},
		{Path: "Models/OrderModel.cs"},
		{Path: "Views/Order/Index.cshtml"},
	}
	arch := f.analyze(t, Options{})

	assert.Equal(t, model.PatternMVC, arch.Pattern)
	assert.InDelta(t, 1.0, arch.PatternConfidence, 1e-9)
}

func TestAnalyze_Singleton(t *testing.T) {
	f := newFixture()
	s := f.typ("Shop.Config", "Settings", model.KindClass, "Config/Settings.cs")
	f.member(s, "Settings", model.KindConstructor, model.AccessPrivate, "")
	f.member(s, "instance", model.KindField, model.AccessPrivate, "Settings", "static")
	f.member(s, "Instance", model.KindProperty, model.AccessPublic, "Settings", "static")
	plain := f.typ("Shop.Config", "Options", model.KindClass, "Config/Options.cs")
	f.member(plain, "Name", model.KindProperty, model.AccessPublic, "string")
	arch := f.analyze(t, Options{})

	found := patternsOf(arch, model.DesignSingleton)
	require.Len(t, found, 1)
	assert.Equal(t, s, found[0].Anchor)
	assert.InDelta(t, 1.0, found[0].Confidence, 1e-9)
	assert.Equal(t, 4, found[0].Total)
	assert.Equal(t, []string{s}, found[0].Participants)
}

func TestAnalyze_SingletonBelowThreshold(t *testing.T) {
	f := newFixture()
	s := f.typ("Shop.Config", "Settings", model.KindClass, "Config/Settings.cs")
	f.member(s, "Settings", model.KindConstructor, model.AccessPublic, "")
	f.member(s, "Default", model.KindProperty, model.AccessPublic, "Settings", "static")
	other := f.typ("Shop.Config", "Loader", model.KindClass, "Config/Loader.cs")
	f.dep(other, s, model.DepInstantiation, 1)

	// only the static accessor holds: 1 of 4
	arch := f.analyze(t, Options{})
	assert.Empty(t, patternsOf(arch, model.DesignSingleton))

	arch = f.analyze(t, Options{PatternThreshold: 0.25})
	require.Len(t, patternsOf(arch, model.DesignSingleton), 1)
	assert.InDelta(t, 0.25, patternsOf(arch, model.DesignSingleton)[0].Confidence, 1e-9)
}

func TestAnalyze_Repository(t *testing.T) {
	arch := layeredShop().analyze(t, Options{})

	found := patternsOf(arch, model.DesignRepository)
	require.Len(t, found, 1)
	assert.Equal(t, "Shop.Data.OrderRepository", found[0].Anchor)
	assert.ElementsMatch(t,
		[]string{"repository_name", "crud_methods", "data_tier", "database_access"},
		found[0].Satisfied)
}

func patternAt(t *testing.T, arch *model.ArchitectureAnalysis, kind model.DesignPatternKind, anchor string) model.DesignPattern {
	t.Helper()
	for _, p := range patternsOf(arch, kind) {
		if p.Anchor == anchor {
			return p
		}
	}
	require.Failf(t, "pattern not found", "%s anchored at %s", kind, anchor)
	return model.DesignPattern{}
}

// shapes is a factory creating two products of one abstract base.
func shapes() (f *fixture, factory, circle, square, shape string) {
	f = newFixture()
	shape = f.typ("Shop.Shapes", "Shape", model.KindInterface, "Shapes/Shape.cs")
	circle = f.typ("Shop.Shapes", "Circle", model.KindClass, "Shapes/Circle.cs")
	square = f.typ("Shop.Shapes", "Square", model.KindClass, "Shapes/Square.cs")
	factory = f.typ("Shop.Shapes", "ShapeFactory", model.KindClass, "Shapes/ShapeFactory.cs")
	f.member(factory, "CreateCircle", model.KindMethod, model.AccessPublic, "Circle")
	f.member(factory, "CreateSquare", model.KindMethod, model.AccessPublic, "Square")
	f.dep(circle, shape, model.DepImplementation, 1)
	f.dep(square, shape, model.DepImplementation, 1)
	f.dep(factory, circle, model.DepInstantiation, 1)
	f.dep(factory, square, model.DepInstantiation, 1)
	return f, factory, circle, square, shape
}

func TestAnalyze_Factory(t *testing.T) {
	f, factory, circle, square, shape := shapes()
	arch := f.analyze(t, Options{})

	p := patternAt(t, arch, model.DesignFactory, factory)
	assert.InDelta(t, 1.0, p.Confidence, 1e-9)
	assert.Equal(t, 4, p.Total)
	assert.ElementsMatch(t,
		[]string{"public_methods_return_products", "products_share_abstract_base", "creates_concrete_products", "not_constructed_externally"},
		p.Satisfied)
	assert.Equal(t, []string{factory, circle, shape, square}, p.Participants)
}

func TestAnalyze_FactoryConstructedExternally(t *testing.T) {
	f, factory, _, _, _ := shapes()
	app := f.typ("Shop.Web", "App", model.KindClass, "Web/App.cs")
	f.dep(app, factory, model.DepInstantiation, 1)
	arch := f.analyze(t, Options{})

	p := patternAt(t, arch, model.DesignFactory, factory)
	assert.InDelta(t, 0.75, p.Confidence, 1e-9)
	assert.ElementsMatch(t,
		[]string{"public_methods_return_products", "products_share_abstract_base", "creates_concrete_products"},
		p.Satisfied)

	// three of four criteria fall below a stricter threshold
	arch = f.analyze(t, Options{PatternThreshold: 0.8})
	assert.Empty(t, patternsOf(arch, model.DesignFactory))
}

func TestAnalyze_Observer(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		notify    bool
		conf      float64
		satisfied []string
	}{
		{
			name: "abstract listeners", field: "List<IOrderListener>", notify: true, conf: 1.0,
			satisfied: []string{"observer_collection", "subscribe_method", "notify_method", "observer_abstraction"},
		},
		{
			name: "no notify method", field: "List<IOrderListener>", conf: 0.75,
			satisfied: []string{"observer_collection", "subscribe_method", "observer_abstraction"},
		},
		{
			name: "concrete callbacks", field: "List<Action>", notify: true, conf: 0.75,
			satisfied: []string{"observer_collection", "subscribe_method", "notify_method"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.typ("Shop.Orders", "IOrderListener", model.KindInterface, "Orders/IOrderListener.cs")
			pub := f.typ("Shop.Orders", "OrderPublisher", model.KindClass, "Orders/OrderPublisher.cs")
			f.member(pub, "listeners", model.KindField, model.AccessPrivate, tt.field)
			f.member(pub, "Subscribe", model.KindMethod, model.AccessPublic, "void")
			if tt.notify {
				f.member(pub, "NotifyAll", model.KindMethod, model.AccessPublic, "void")
			}
			arch := f.analyze(t, Options{})

			p := patternAt(t, arch, model.DesignObserver, pub)
			assert.InDelta(t, tt.conf, p.Confidence, 1e-9)
			assert.ElementsMatch(t, tt.satisfied, p.Satisfied)
		})
	}
}

func TestAnalyze_Strategy(t *testing.T) {
	tests := []struct {
		name      string
		holds     []model.DependencyKind
		conf      float64
		satisfied []string
	}{
		{
			name: "injected", holds: []model.DependencyKind{model.DepFieldType, model.DepParameterType}, conf: 1.0,
			satisfied: []string{"focused_interface", "multiple_implementations", "context_holds_strategy", "strategy_injected"},
		},
		{
			name: "created by context", holds: []model.DependencyKind{model.DepFieldType}, conf: 0.75,
			satisfied: []string{"focused_interface", "multiple_implementations", "context_holds_strategy"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			pricing := f.typ("Shop.Pricing", "IPricing", model.KindInterface, "Pricing/IPricing.cs")
			f.member(pricing, "Price", model.KindMethod, model.AccessPublic, "decimal")
			regular := f.typ("Shop.Pricing", "RegularPricing", model.KindClass, "Pricing/RegularPricing.cs")
			sale := f.typ("Shop.Pricing", "SalePricing", model.KindClass, "Pricing/SalePricing.cs")
			checkout := f.typ("Shop.Pricing", "Checkout", model.KindClass, "Pricing/Checkout.cs")
			f.dep(regular, pricing, model.DepImplementation, 1)
			f.dep(sale, pricing, model.DepImplementation, 1)
			f.link(checkout, pricing, tt.holds...)
			arch := f.analyze(t, Options{})

			p := patternAt(t, arch, model.DesignStrategy, pricing)
			assert.InDelta(t, tt.conf, p.Confidence, 1e-9)
			assert.ElementsMatch(t, tt.satisfied, p.Satisfied)
			assert.Equal(t, []string{pricing, checkout, regular, sale}, p.Participants)
		})
	}
}

func TestAnalyze_StrategyNeedsTwoImplementations(t *testing.T) {
	f := newFixture()
	pricing := f.typ("Shop.Pricing", "IPricing", model.KindInterface, "Pricing/IPricing.cs")
	f.member(pricing, "Price", model.KindMethod, model.AccessPublic, "decimal")
	regular := f.typ("Shop.Pricing", "RegularPricing", model.KindClass, "Pricing/RegularPricing.cs")
	checkout := f.typ("Shop.Pricing", "Checkout", model.KindClass, "Pricing/Checkout.cs")
	f.dep(regular, pricing, model.DepImplementation, 1)
	f.dep(checkout, pricing, model.DepFieldType, 1)

	arch := f.analyze(t, Options{PatternThreshold: 0.25})
	assert.Empty(t, patternsOf(arch, model.DesignStrategy))
}

func TestAnalyze_Decorator(t *testing.T) {
	tests := []struct {
		name      string
		wraps     []model.DependencyKind
		conf      float64
		satisfied []string
	}{
		{
			name:      "injected and delegating",
			wraps:     []model.DependencyKind{model.DepImplementation, model.DepFieldType, model.DepParameterType, model.DepMethodCall},
			conf:      1.0,
			satisfied: []string{"implements_component", "wraps_component", "component_injected", "delegates_to_component"},
		},
		{
			name:      "wraps without delegating",
			wraps:     []model.DependencyKind{model.DepImplementation, model.DepFieldType},
			conf:      0.5,
			satisfied: []string{"implements_component", "wraps_component"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			notifier := f.typ("Shop.Mail", "INotifier", model.KindInterface, "Mail/INotifier.cs")
			f.member(notifier, "Send", model.KindMethod, model.AccessPublic, "void")
			email := f.typ("Shop.Mail", "EmailNotifier", model.KindClass, "Mail/EmailNotifier.cs")
			logging := f.typ("Shop.Mail", "LoggingNotifier", model.KindClass, "Mail/LoggingNotifier.cs")
			f.dep(email, notifier, model.DepImplementation, 1)
			f.link(logging, notifier, tt.wraps...)
			arch := f.analyze(t, Options{})

			p := patternAt(t, arch, model.DesignDecorator, logging)
			assert.InDelta(t, tt.conf, p.Confidence, 1e-9)
			assert.ElementsMatch(t, tt.satisfied, p.Satisfied)
			assert.Equal(t, []string{logging, notifier}, p.Participants)
			assert.Len(t, patternsOf(arch, model.DesignDecorator), 1, "the plain implementation wraps nothing")
		})
	}
}

func TestAnalyze_Builder(t *testing.T) {
	tests := []struct {
		name       string
		builder    string
		constructs bool
		conf       float64
		satisfied  []string
	}{
		{
			name: "named and constructing", builder: "OrderBuilder", constructs: true, conf: 1.0,
			satisfied: []string{"builder_name", "fluent_methods", "build_method", "constructs_product"},
		},
		{
			name: "fluent without construction", builder: "OrderBuilder", conf: 0.75,
			satisfied: []string{"builder_name", "fluent_methods", "build_method"},
		},
		{
			name: "fluent only by shape", builder: "OrderComposer", conf: 0.5,
			satisfied: []string{"fluent_methods", "build_method"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			order := f.typ("Shop.Orders", "Order", model.KindClass, "Orders/Order.cs")
			b := f.typ("Shop.Orders", tt.builder, model.KindClass, "Orders/"+tt.builder+".cs")
			f.member(b, "WithCustomer", model.KindMethod, model.AccessPublic, tt.builder)
			f.member(b, "WithLine", model.KindMethod, model.AccessPublic, tt.builder)
			f.member(b, "Build", model.KindMethod, model.AccessPublic, "Order")
			if tt.constructs {
				f.dep(b, order, model.DepInstantiation, 1)
			}
			arch := f.analyze(t, Options{})

			p := patternAt(t, arch, model.DesignBuilder, b)
			assert.InDelta(t, tt.conf, p.Confidence, 1e-9)
			assert.ElementsMatch(t, tt.satisfied, p.Satisfied)
			assert.Equal(t, []string{b, order}, p.Participants)
		})
	}
}

func TestAnalyze_Adapter(t *testing.T) {
	tests := []struct {
		name      string
		adapter   string
		conf      float64
		satisfied []string
	}{
		{
			name: "named adapter", adapter: "BankAdapter", conf: 1.0,
			satisfied: []string{"implements_target", "holds_adaptee", "delegates_to_adaptee", "adapter_name"},
		},
		{
			name: "unnamed adapter", adapter: "BankBridge", conf: 0.75,
			satisfied: []string{"implements_target", "holds_adaptee", "delegates_to_adaptee"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			gateway := f.typ("Shop.Payments", "IPaymentGateway", model.KindInterface, "Payments/IPaymentGateway.cs")
			bank := f.typ("Shop.Payments", "LegacyBank", model.KindClass, "Payments/LegacyBank.cs")
			adapter := f.typ("Shop.Payments", tt.adapter, model.KindClass, "Payments/"+tt.adapter+".cs")
			f.dep(adapter, gateway, model.DepImplementation, 1)
			f.link(adapter, bank, model.DepFieldType, model.DepMethodCall)
			arch := f.analyze(t, Options{})

			p := patternAt(t, arch, model.DesignAdapter, adapter)
			assert.InDelta(t, tt.conf, p.Confidence, 1e-9)
			assert.ElementsMatch(t, tt.satisfied, p.Satisfied)
			assert.Equal(t, []string{adapter, gateway, bank}, p.Participants)
		})
	}
}

func TestAnalyze_AdapterMustDelegate(t *testing.T) {
	f := newFixture()
	gateway := f.typ("Shop.Payments", "IPaymentGateway", model.KindInterface, "Payments/IPaymentGateway.cs")
	bank := f.typ("Shop.Payments", "LegacyBank", model.KindClass, "Payments/LegacyBank.cs")
	adapter := f.typ("Shop.Payments", "BankAdapter", model.KindClass, "Payments/BankAdapter.cs")
	f.dep(adapter, gateway, model.DepImplementation, 1)
	f.dep(adapter, bank, model.DepFieldType, 1)

	arch := f.analyze(t, Options{PatternThreshold: 0.25})
	assert.Empty(t, patternsOf(arch, model.DesignAdapter))
}

func TestAnalyze_GodClass(t *testing.T) {
	f := newFixture()
	for i := 0; i < 10; i++ {
		name := f.typ("Shop.Domain", fmt.Sprintf("Small%d", i), model.KindClass, "Domain/Small.cs")
		f.member(name, "A", model.KindMethod, model.AccessPublic, "void")
		f.member(name, "B", model.KindMethod, model.AccessPublic, "void")
		f.code.Symbols[f.pos[name]].Metrics.TotalComplexity = 2
	}
	monster := f.typ("Shop.Domain", "Everything", model.KindClass, "Domain/Everything.cs")
	for i := 0; i < 40; i++ {
		f.member(monster, fmt.Sprintf("Do%d", i), model.KindMethod, model.AccessPublic, "void")
	}
	f.code.Symbols[f.pos[monster]].Metrics.TotalComplexity = 90
	arch := f.analyze(t, Options{})

	gods := violationsOf(arch, model.ViolationGodClass)
	require.Len(t, gods, 1)
	assert.Equal(t, monster, gods[0].Symbol)
	assert.Equal(t, model.ViolationHigh, gods[0].Severity)
	assert.InDelta(t, 40, gods[0].Value, 1e-9)
	assert.InDelta(t, 2, arch.Metrics.GodClassMemberLimit, 1e-9)
	assert.InDelta(t, 2, arch.Metrics.GodClassComplexity, 1e-9)
}

func TestAnalyze_GodClassInSmallCodebase(t *testing.T) {
	f := newFixture()
	for i := 0; i < 4; i++ {
		name := f.typ("Shop.Domain", fmt.Sprintf("Small%d", i), model.KindClass, "Domain/Small.cs")
		for j := 0; j < 3; j++ {
			f.member(name, fmt.Sprintf("M%d", j), model.KindMethod, model.AccessPublic, "void")
		}
		f.code.Symbols[f.pos[name]].Metrics.TotalComplexity = 3
	}
	monster := f.typ("Shop.Domain", "Everything", model.KindClass, "Domain/Everything.cs")
	for i := 0; i < 30; i++ {
		f.member(monster, fmt.Sprintf("Do%d", i), model.KindMethod, model.AccessPublic, "void")
	}
	f.code.Symbols[f.pos[monster]].Metrics.TotalComplexity = 30
	arch := f.analyze(t, Options{})

	gods := violationsOf(arch, model.ViolationGodClass)
	require.Len(t, gods, 1)
	assert.Equal(t, monster, gods[0].Symbol)
	assert.Equal(t, model.ViolationHigh, gods[0].Severity)
	assert.InDelta(t, 30, gods[0].Value, 1e-9)
	assert.InDelta(t, 3, gods[0].Threshold, 1e-9)
}

func TestAnalyze_GodClassNotFlaggedAmongPeers(t *testing.T) {
	f := newFixture()
	for i := 0; i < 3; i++ {
		name := f.typ("Shop.Domain", fmt.Sprintf("Wide%d", i), model.KindClass, "Domain/Wide.cs")
		for j := 0; j < 15; j++ {
			f.member(name, fmt.Sprintf("M%d", j), model.KindMethod, model.AccessPublic, "void")
		}
		f.code.Symbols[f.pos[name]].Metrics.TotalComplexity = 15
	}
	lone := newFixture()
	big := lone.typ("Shop.Domain", "Only", model.KindClass, "Domain/Only.cs")
	for j := 0; j < 50; j++ {
		lone.member(big, fmt.Sprintf("M%d", j), model.KindMethod, model.AccessPublic, "void")
	}

	assert.Empty(t, violationsOf(f.analyze(t, Options{}), model.ViolationGodClass))
	assert.Empty(t, violationsOf(lone.analyze(t, Options{}), model.ViolationGodClass), "a single type has no distribution")
}

func TestAnalyze_GodClassRespectsMinimumMembers(t *testing.T) {
	f := newFixture()
	for i := 0; i < 10; i++ {
		f.typ("Shop.Domain", fmt.Sprintf("Empty%d", i), model.KindClass, "Domain/Empty.cs")
	}
	big := f.typ("Shop.Domain", "Bigger", model.KindClass, "Domain/Bigger.cs")
	for i := 0; i < 5; i++ {
		f.member(big, fmt.Sprintf("M%d", i), model.KindMethod, model.AccessPublic, "void")
	}
	arch := f.analyze(t, Options{})

	assert.Empty(t, violationsOf(arch, model.ViolationGodClass))
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := layeredShop()
	arch := New(Options{}).Analyze(ctx, &f.code, &f.deps)

	assert.True(t, arch.Partial)
	assert.Empty(t, arch.Components)
	require.Len(t, arch.Warnings, 1)
	assert.Equal(t, string(apperrors.KindCancelled), arch.Warnings[0].Kind)
	assert.Equal(t, model.PhaseArchitecture, arch.Warnings[0].Phase)
}

func TestAnalyze_GroupByAssembly(t *testing.T) {
	f := layeredShop()
	arch := f.analyze(t, Options{GroupBy: GroupByAssembly})

	require.Len(t, arch.Components, 1)
	assert.Equal(t, "Shop", arch.Components[0].Name)
	assert.Len(t, arch.Components[0].Types, 6)
	assert.Empty(t, arch.ComponentGraph.Edges)
}
