package analysis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/anvilbuild/anvil/internal/analysis"
	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/label"
	"github.com/anvilbuild/anvil/internal/providerset"
	"github.com/anvilbuild/anvil/internal/target"
	"github.com/anvilbuild/anvil/internal/transition"
)

// fakeLoader is the test double for analysis.PackageLoader: an in-memory
// table of already-parsed packages, keyed by repository+package name.
type fakeLoader struct {
	packages map[string]*target.Package
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{packages: make(map[string]*target.Package)}
}

func (f *fakeLoader) add(repo, pkgName string, targets ...*target.Target) {
	pkg := &target.Package{Name: pkgName, Repository: repo, Targets: make(map[string]*target.Target)}
	for _, t := range targets {
		pkg.Targets[t.Label.Name] = t
	}
	f.packages[repo+"|"+pkgName] = pkg
}

func (f *fakeLoader) Load(_ context.Context, repo, pkgName string) analysis.PackageValue {
	pkg, ok := f.packages[repo+"|"+pkgName]
	if !ok {
		return analysis.PackageValue{ContainsErrors: true, FailureDetail: "no such package " + pkgName}
	}
	return analysis.PackageValue{Package: pkg}
}

// fakeRule adapts a plain function to analysis.RuleImplementation.
type fakeRule struct {
	fn func(ctx context.Context, renv *analysis.AnalysisEnvironment, input analysis.RuleInput) (*analysis.RuleOutput, error)
}

func (r fakeRule) Analyze(ctx context.Context, renv *analysis.AnalysisEnvironment, input analysis.RuleInput) (*analysis.RuleOutput, error) {
	return r.fn(ctx, renv, input)
}

type fakeRules map[string]analysis.RuleImplementation

func (r fakeRules) Lookup(class string) (analysis.RuleImplementation, bool) {
	v, ok := r[class]
	return v, ok
}

// providerOutput builds a RuleOutput whose Providers contains a single
// string-valued provider, the common case exercised by most tests below.
func providerOutput(id providerset.ID, val string) *analysis.RuleOutput {
	b := providerset.NewBuilder().Put(id, cty.StringVal(val))
	set, _ := b.Build()
	return &analysis.RuleOutput{Providers: set}
}

// conditionTarget builds a target whose rule implementation exposes
// ConfigMatchingProviderID, used to stand in for a select() condition or a
// target_compatible_with constraint.
func conditionTarget(lbl label.Label, matches bool) *target.Target {
	return &target.Target{Label: lbl, RuleClass: "config_setting", IsConfigurable: true}
}

func conditionRule(matches bool) analysis.RuleImplementation {
	return fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, _ analysis.RuleInput) (*analysis.RuleOutput, error) {
		b := providerset.NewBuilder().Put(analysis.ConfigMatchingProviderID, cty.BoolVal(matches))
		set, _ := b.Build()
		return &analysis.RuleOutput{Providers: set}, nil
	}}
}

func testConfiguration(t *testing.T, interner *buildopts.Interner) buildopts.ConfigurationKey {
	opts := buildopts.NewBuildOptions(buildopts.Fragment{
		Type:   "platform",
		Values: map[string]cty.Value{"arch": cty.StringVal("amd64")},
	})
	cfg := interner.Intern(opts)
	return cfg.Key()
}

func newGraph() *evalgraph.Graph {
	return evalgraph.New(evalgraph.Options{Workers: 4})
}

func mainLabel(pkg, name string) label.Label {
	return label.Label{Package: pkg, Name: name}
}

func TestConfiguredTarget_simpleLeaf(t *testing.T) {
	loader := newFakeLoader()
	leaf := &target.Target{
		Label:          mainLabel("lib", "foo"),
		RuleClass:      "go_library",
		IsConfigurable: true,
	}
	loader.add("", "lib", leaf)

	interner := buildopts.NewInterner()
	cfgKey := testConfiguration(t, interner)

	rules := fakeRules{"go_library": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, _ analysis.RuleInput) (*analysis.RuleOutput, error) {
		return providerOutput("DefaultInfo", "built"), nil
	}}}

	collabs := &analysis.Collaborators{
		Packages: loader,
		Rules:    rules,
		Interner: interner,
	}

	g := newGraph()
	v, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: leaf.Label, Configuration: cfgKey, Collabs: collabs,
	})
	require.Nil(t, f)
	ct := v.(analysis.ConfiguredTarget)
	require.False(t, ct.Empty)
	require.False(t, ct.Incompatible)
	val, ok := ct.Providers.Get("DefaultInfo")
	require.True(t, ok)
	require.Equal(t, "built", val.AsString())
}

func TestConfiguredTarget_configurabilityMismatch(t *testing.T) {
	loader := newFakeLoader()
	leaf := &target.Target{Label: mainLabel("lib", "foo"), RuleClass: "go_library", IsConfigurable: true}
	loader.add("", "lib", leaf)

	collabs := &analysis.Collaborators{
		Packages: loader,
		Rules:    fakeRules{},
		Interner: buildopts.NewInterner(),
	}

	g := newGraph()
	// Requesting a configurable target under the null configuration must
	// short-circuit to an empty configured target without ever invoking a
	// rule implementation.
	v, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: leaf.Label, Collabs: collabs,
	})
	require.Nil(t, f)
	ct := v.(analysis.ConfiguredTarget)
	require.True(t, ct.Empty)
}

func TestConfiguredTarget_missingPackage(t *testing.T) {
	collabs := &analysis.Collaborators{
		Packages: newFakeLoader(),
		Rules:    fakeRules{},
		Interner: buildopts.NewInterner(),
	}
	g := newGraph()
	_, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: mainLabel("missing", "foo"), Collabs: collabs,
	})
	require.NotNil(t, f)
	require.Equal(t, analysis.KindLoadingFailed, f.Kind)
}

func TestConfiguredTarget_dependencyResolution(t *testing.T) {
	loader := newFakeLoader()
	childLabel := mainLabel("lib", "dep")
	child := &target.Target{Label: childLabel, RuleClass: "go_library", IsConfigurable: true}

	parentLabel := mainLabel("lib", "parent")
	parent := &target.Target{
		Label:          parentLabel,
		RuleClass:      "go_binary",
		IsConfigurable: true,
		Attrs: map[string]target.AttrValue{
			"deps": target.ConcreteAttr(cty.ListVal([]cty.Value{cty.StringVal(childLabel.String())})),
		},
		Dependencies: []target.DeclaredDependency{
			{AttrName: "deps", Kind: target.DependencyRegular},
		},
	}
	loader.add("", "lib", child, parent)

	interner := buildopts.NewInterner()
	cfgKey := testConfiguration(t, interner)
	resolver := transition.NewResolver(interner, nil)

	var sawDep bool
	rules := fakeRules{
		"go_library": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, _ analysis.RuleInput) (*analysis.RuleOutput, error) {
			return providerOutput("DefaultInfo", "child-built"), nil
		}},
		"go_binary": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, input analysis.RuleInput) (*analysis.RuleOutput, error) {
			deps := input.DependencyValues["deps"]
			if len(deps) == 1 {
				if v, ok := deps[0].Providers.Get("DefaultInfo"); ok && v.AsString() == "child-built" {
					sawDep = true
				}
			}
			return providerOutput("DefaultInfo", "parent-built"), nil
		}},
	}

	collabs := &analysis.Collaborators{
		Packages:    loader,
		Rules:       rules,
		Interner:    interner,
		Resolver:    resolver,
		Transitions: fakeTransitions{},
	}

	g := newGraph()
	v, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: parentLabel, Configuration: cfgKey, Collabs: collabs,
	})
	require.Nil(t, f)
	require.True(t, sawDep, "parent rule must observe the child's resolved providers")
	ct := v.(analysis.ConfiguredTarget)
	val, _ := ct.Providers.Get("DefaultInfo")
	require.Equal(t, "parent-built", val.AsString())
}

type fakeTransitions struct{}

func (fakeTransitions) Transition(string) (transition.Transition, bool) { return nil, false }

// fakeTransitionRegistry resolves transition ids out of a plain map, used by
// tests that need a real (non-identity) transition attached to an edge.
type fakeTransitionRegistry map[string]transition.Transition

func (r fakeTransitionRegistry) Transition(id string) (transition.Transition, bool) {
	t, ok := r[id]
	return t, ok
}

// multiArchSplit is a split transition fanning the "arch" platform fragment
// value out to every value in Archs, the fixture for spec.md §8 S3 ("a
// dependency via a split transition yielding two options sets").
type multiArchSplit struct {
	archs []string
}

func (multiArchSplit) String() string { return "multi_arch" }

func (multiArchSplit) RequiredFragments() []buildopts.FragmentType {
	return []buildopts.FragmentType{"platform"}
}

func (t multiArchSplit) Apply(_ context.Context, input buildopts.BuildOptions) ([]buildopts.BuildOptions, error) {
	out := make([]buildopts.BuildOptions, 0, len(t.archs))
	for _, arch := range t.archs {
		out = append(out, input.WithFragment(buildopts.Fragment{
			Type:   "platform",
			Values: map[string]cty.Value{"arch": cty.StringVal(arch)},
		}))
	}
	return out, nil
}

// TestConfiguredTarget_splitTransitionEdge exercises spec.md §8 S3: a
// dependency edge via a split transition must produce one Dependency entry
// per output configuration, each with a distinct TransitionKey, and the
// rule implementation must observe every resulting configured target.
func TestConfiguredTarget_splitTransitionEdge(t *testing.T) {
	loader := newFakeLoader()
	childLabel := mainLabel("c", "d")
	child := &target.Target{Label: childLabel, RuleClass: "go_library", IsConfigurable: true}

	parentLabel := mainLabel("a", "b")
	parent := &target.Target{
		Label:          parentLabel,
		RuleClass:      "go_binary",
		IsConfigurable: true,
		Attrs: map[string]target.AttrValue{
			"deps": target.ConcreteAttr(cty.ListVal([]cty.Value{cty.StringVal(childLabel.String())})),
		},
		Dependencies: []target.DeclaredDependency{
			{AttrName: "deps", Kind: target.DependencyRegular, Transition: "multi_arch"},
		},
	}
	loader.add("", "c", child)
	loader.add("", "a", parent)

	interner := buildopts.NewInterner()
	cfgKey := testConfiguration(t, interner)
	resolver := transition.NewResolver(interner, nil)
	transitions := fakeTransitionRegistry{"multi_arch": multiArchSplit{archs: []string{"amd64", "arm64"}}}

	var seenArchs []string
	rules := fakeRules{
		"go_library": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, input analysis.RuleInput) (*analysis.RuleOutput, error) {
			arch, _ := input.Configuration.Fragment("platform")
			seenArchs = append(seenArchs, arch.Values["arch"].AsString())
			return providerOutput("DefaultInfo", "child-built"), nil
		}},
		"go_binary": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, input analysis.RuleInput) (*analysis.RuleOutput, error) {
			deps := input.DependencyValues["deps"]
			require.Len(t, deps, 2, "split transition must fan out to both configured targets")
			return providerOutput("DefaultInfo", "parent-built"), nil
		}},
	}

	collabs := &analysis.Collaborators{
		Packages:    loader,
		Rules:       rules,
		Interner:    interner,
		Resolver:    resolver,
		Transitions: transitions,
	}

	g := newGraph()
	v, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: parentLabel, Configuration: cfgKey, Collabs: collabs,
	})
	require.Nil(t, f)
	ct := v.(analysis.ConfiguredTarget)
	val, _ := ct.Providers.Get("DefaultInfo")
	require.Equal(t, "parent-built", val.AsString())
	require.ElementsMatch(t, []string{"amd64", "arm64"}, seenArchs)
}

func TestConfiguredTarget_selectCondition(t *testing.T) {
	loader := newFakeLoader()
	condLabel := mainLabel("conditions", "is_amd64")
	cond := conditionTarget(condLabel, true)
	valLabel := mainLabel("lib", "target")
	tgt := &target.Target{
		Label:          valLabel,
		RuleClass:      "go_library",
		IsConfigurable: true,
		Attrs: map[string]target.AttrValue{
			"copts": target.SelectAttr(&target.SelectChain{
				Branches: []target.SelectBranch{
					{Condition: condLabel, Value: cty.StringVal("-amd64-flag")},
				},
				Default: func() *cty.Value { v := cty.StringVal("-default-flag"); return &v }(),
			}),
		},
	}
	loader.add("", "conditions", cond)
	loader.add("", "lib", tgt)

	interner := buildopts.NewInterner()
	cfgKey := testConfiguration(t, interner)

	var observed string
	rules := fakeRules{
		"config_setting": conditionRule(true),
		"go_library": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, input analysis.RuleInput) (*analysis.RuleOutput, error) {
			av, _ := input.Target.Attr("copts")
			resolved, ok := av.Select.Resolve(func(l label.Label) bool {
				c, ok := input.ConfigConditions[l.String()]
				return ok && c.Matches
			})
			if ok {
				observed = resolved.AsString()
			}
			return providerOutput("DefaultInfo", "ok"), nil
		}},
	}

	collabs := &analysis.Collaborators{Packages: loader, Rules: rules, Interner: interner}
	g := newGraph()
	_, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: valLabel, Configuration: cfgKey, Collabs: collabs,
	})
	require.Nil(t, f)
	require.Equal(t, "-amd64-flag", observed)
}

func TestConfiguredTarget_directIncompatibility(t *testing.T) {
	loader := newFakeLoader()
	constraintLabel := mainLabel("platforms", "linux_only")
	constraint := conditionTarget(constraintLabel, false)

	tgtLabel := mainLabel("lib", "unixonly")
	tgt := &target.Target{
		Label:          tgtLabel,
		RuleClass:      "go_library",
		IsConfigurable: true,
		CompatibleWith: []label.Label{constraintLabel},
	}
	loader.add("", "platforms", constraint)
	loader.add("", "lib", tgt)

	interner := buildopts.NewInterner()
	cfgKey := testConfiguration(t, interner)

	called := false
	rules := fakeRules{
		"config_setting": conditionRule(false),
		"go_library": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, _ analysis.RuleInput) (*analysis.RuleOutput, error) {
			called = true
			return providerOutput("DefaultInfo", "should not run"), nil
		}},
	}

	collabs := &analysis.Collaborators{Packages: loader, Rules: rules, Interner: interner}
	g := newGraph()
	v, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: tgtLabel, Configuration: cfgKey, Collabs: collabs,
	})
	require.Nil(t, f)
	ct := v.(analysis.ConfiguredTarget)
	require.True(t, ct.Incompatible)
	require.False(t, called, "an incompatible target's rule implementation must never run")
}

func TestConfiguredTarget_indirectIncompatibility(t *testing.T) {
	loader := newFakeLoader()
	constraintLabel := mainLabel("platforms", "linux_only")
	constraint := conditionTarget(constraintLabel, false)

	childLabel := mainLabel("lib", "unixonly")
	child := &target.Target{
		Label: childLabel, RuleClass: "go_library", IsConfigurable: true,
		CompatibleWith: []label.Label{constraintLabel},
	}

	parentLabel := mainLabel("lib", "parent")
	parent := &target.Target{
		Label: parentLabel, RuleClass: "go_binary", IsConfigurable: true,
		Attrs: map[string]target.AttrValue{
			"deps": target.ConcreteAttr(cty.ListVal([]cty.Value{cty.StringVal(childLabel.String())})),
		},
		Dependencies: []target.DeclaredDependency{{AttrName: "deps", Kind: target.DependencyRegular}},
	}
	loader.add("", "platforms", constraint)
	loader.add("", "lib", child, parent)

	interner := buildopts.NewInterner()
	cfgKey := testConfiguration(t, interner)
	resolver := transition.NewResolver(interner, nil)

	parentCalled := false
	rules := fakeRules{
		"config_setting": conditionRule(false),
		"go_library": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, _ analysis.RuleInput) (*analysis.RuleOutput, error) {
			return providerOutput("DefaultInfo", "unreachable"), nil
		}},
		"go_binary": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, _ analysis.RuleInput) (*analysis.RuleOutput, error) {
			parentCalled = true
			return providerOutput("DefaultInfo", "parent"), nil
		}},
	}

	collabs := &analysis.Collaborators{
		Packages: loader, Rules: rules, Interner: interner,
		Resolver: resolver, Transitions: fakeTransitions{},
	}
	g := newGraph()
	v, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: parentLabel, Configuration: cfgKey, Collabs: collabs,
	})
	require.Nil(t, f)
	ct := v.(analysis.ConfiguredTarget)
	require.True(t, ct.Incompatible)
	require.NotNil(t, ct.IncompatibleReason)
	require.Equal(t, childLabel, ct.IncompatibleReason.ViaDependency)
	require.False(t, parentCalled, "a target with an incompatible dependency must not invoke its own rule implementation")
}

func TestConfiguredTarget_aliasTwoPass(t *testing.T) {
	loader := newFakeLoader()
	realLabel := mainLabel("lib", "real")
	real := &target.Target{Label: realLabel, RuleClass: "go_library", IsConfigurable: true}

	aliasLabel := mainLabel("lib", "alias")
	alias := &target.Target{Label: aliasLabel, RuleClass: "alias", IsConfigurable: true}

	parentLabel := mainLabel("lib", "parent")
	parent := &target.Target{
		Label: parentLabel, RuleClass: "go_binary", IsConfigurable: true,
		Attrs: map[string]target.AttrValue{
			"deps": target.ConcreteAttr(cty.ListVal([]cty.Value{cty.StringVal(aliasLabel.String())})),
		},
		Dependencies: []target.DeclaredDependency{{AttrName: "deps", Kind: target.DependencyRegular}},
	}
	loader.add("", "lib", real, alias, parent)

	interner := buildopts.NewInterner()
	cfgKey := testConfiguration(t, interner)
	resolver := transition.NewResolver(interner, nil)

	var sawReal bool
	rules := fakeRules{
		"go_library": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, _ analysis.RuleInput) (*analysis.RuleOutput, error) {
			return providerOutput("DefaultInfo", "real-built"), nil
		}},
		"alias": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, _ analysis.RuleInput) (*analysis.RuleOutput, error) {
			redirect := realLabel
			return &analysis.RuleOutput{AliasRedirect: &redirect}, nil
		}},
		"go_binary": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, input analysis.RuleInput) (*analysis.RuleOutput, error) {
			deps := input.DependencyValues["deps"]
			if len(deps) == 1 {
				if v, ok := deps[0].Providers.Get("DefaultInfo"); ok && v.AsString() == "real-built" {
					sawReal = true
				}
			}
			return providerOutput("DefaultInfo", "parent"), nil
		}},
	}

	collabs := &analysis.Collaborators{
		Packages: loader, Rules: rules, Interner: interner,
		Resolver: resolver, Transitions: fakeTransitions{},
	}
	g := newGraph()
	_, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: parentLabel, Configuration: cfgKey, Collabs: collabs,
	})
	require.Nil(t, f)
	require.True(t, sawReal, "the parent must see the alias's redirect target's providers, not the alias's own (empty) providers")
}

func TestConfiguredTarget_actionConflict(t *testing.T) {
	loader := newFakeLoader()
	lbl := mainLabel("lib", "conflicting")
	tgt := &target.Target{Label: lbl, RuleClass: "go_library", IsConfigurable: true}
	loader.add("", "lib", tgt)

	interner := buildopts.NewInterner()
	cfgKey := testConfiguration(t, interner)

	rules := fakeRules{"go_library": fakeRule{fn: func(_ context.Context, renv *analysis.AnalysisEnvironment, _ analysis.RuleInput) (*analysis.RuleOutput, error) {
		if err := renv.RegisterAction(analysis.RegisteredAction{Mnemonic: "Compile", Outputs: []string{"out.o"}}); err != nil {
			return nil, err
		}
		if err := renv.RegisterAction(analysis.RegisteredAction{Mnemonic: "Compile2", Outputs: []string{"out.o"}}); err != nil {
			return nil, err
		}
		return providerOutput("DefaultInfo", "unused"), nil
	}}}

	collabs := &analysis.Collaborators{Packages: loader, Rules: rules, Interner: interner}
	g := newGraph()
	_, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: lbl, Configuration: cfgKey, Collabs: collabs,
	})
	require.NotNil(t, f)
	require.Equal(t, analysis.KindActionConflict, f.Kind)
}

func TestConfiguredTarget_duplicateProvider(t *testing.T) {
	loader := newFakeLoader()
	lbl := mainLabel("lib", "dup")
	tgt := &target.Target{Label: lbl, RuleClass: "go_library", IsConfigurable: true}
	loader.add("", "lib", tgt)

	interner := buildopts.NewInterner()
	cfgKey := testConfiguration(t, interner)

	rules := fakeRules{"go_library": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, _ analysis.RuleInput) (*analysis.RuleOutput, error) {
		b := providerset.NewBuilder().Put("DefaultInfo", cty.StringVal("a")).Put("DefaultInfo", cty.StringVal("b"))
		set, dup := b.Build()
		return &analysis.RuleOutput{Providers: set, DuplicateProvider: dup}, nil
	}}}

	collabs := &analysis.Collaborators{Packages: loader, Rules: rules, Interner: interner}
	g := newGraph()
	_, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: lbl, Configuration: cfgKey, Collabs: collabs,
	})
	require.NotNil(t, f)
	require.Equal(t, analysis.KindDuplicateProvider, f.Kind)
}

// TestConfiguredTarget_dependencyCycle exercises spec.md §8's cycle
// scenario at the ConfiguredTargetKey level: a depends on b, b depends back
// on a, so the graph's own cycle detection (not a collaborator) must fail
// the request with evalgraph.KindCycle.
func TestConfiguredTarget_dependencyCycle(t *testing.T) {
	loader := newFakeLoader()
	aLabel := mainLabel("lib", "a")
	bLabel := mainLabel("lib", "b")

	a := &target.Target{
		Label: aLabel, RuleClass: "go_library", IsConfigurable: true,
		Attrs:        map[string]target.AttrValue{"deps": target.ConcreteAttr(cty.ListVal([]cty.Value{cty.StringVal(bLabel.String())}))},
		Dependencies: []target.DeclaredDependency{{AttrName: "deps", Kind: target.DependencyRegular}},
	}
	b := &target.Target{
		Label: bLabel, RuleClass: "go_library", IsConfigurable: true,
		Attrs:        map[string]target.AttrValue{"deps": target.ConcreteAttr(cty.ListVal([]cty.Value{cty.StringVal(aLabel.String())}))},
		Dependencies: []target.DeclaredDependency{{AttrName: "deps", Kind: target.DependencyRegular}},
	}
	loader.add("", "lib", a, b)

	interner := buildopts.NewInterner()
	cfgKey := testConfiguration(t, interner)
	resolver := transition.NewResolver(interner, nil)

	rules := fakeRules{"go_library": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, _ analysis.RuleInput) (*analysis.RuleOutput, error) {
		return providerOutput("DefaultInfo", "unreachable"), nil
	}}}

	collabs := &analysis.Collaborators{
		Packages: loader, Rules: rules, Interner: interner,
		Resolver: resolver, Transitions: fakeTransitions{},
	}
	g := newGraph()
	_, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: aLabel, Configuration: cfgKey, Collabs: collabs,
	})
	require.NotNil(t, f)
	require.Equal(t, evalgraph.KindCycle, f.Kind)
}

// TestConfiguredTarget_dependencyChainLoadFailure exercises spec.md §8 S5:
// a parent depends on a child whose *package* fails to parse (as opposed to
// TestConfiguredTarget_missingPackage's direct top-level failure). The root
// cause must propagate up through the dependency chain as
// KindDependencyEvaluationFailed wrapping the child's own KindLoadingFailed,
// and the parent's rule implementation must never run.
func TestConfiguredTarget_dependencyChainLoadFailure(t *testing.T) {
	loader := newFakeLoader()
	childLabel := mainLabel("broken", "dep")

	parentLabel := mainLabel("lib", "parent")
	parent := &target.Target{
		Label:          parentLabel,
		RuleClass:      "go_binary",
		IsConfigurable: true,
		Attrs: map[string]target.AttrValue{
			"deps": target.ConcreteAttr(cty.ListVal([]cty.Value{cty.StringVal(childLabel.String())})),
		},
		Dependencies: []target.DeclaredDependency{{AttrName: "deps", Kind: target.DependencyRegular}},
	}
	// Deliberately no loader.add for the "broken" package: Load returns
	// ContainsErrors for any package it doesn't know about.
	loader.add("", "lib", parent)

	interner := buildopts.NewInterner()
	cfgKey := testConfiguration(t, interner)
	resolver := transition.NewResolver(interner, nil)

	parentCalled := false
	rules := fakeRules{"go_binary": fakeRule{fn: func(_ context.Context, _ *analysis.AnalysisEnvironment, _ analysis.RuleInput) (*analysis.RuleOutput, error) {
		parentCalled = true
		return providerOutput("DefaultInfo", "unreachable"), nil
	}}}

	collabs := &analysis.Collaborators{
		Packages: loader, Rules: rules, Interner: interner,
		Resolver: resolver, Transitions: fakeTransitions{},
	}
	g := newGraph()
	_, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: parentLabel, Configuration: cfgKey, Collabs: collabs,
	})
	require.NotNil(t, f)
	require.Equal(t, analysis.KindDependencyEvaluationFailed, f.Kind)
	require.False(t, parentCalled, "a parent must not invoke its rule implementation once a dependency fails to load")
}

func TestConfiguredTarget_errorEventFailsAnalysis(t *testing.T) {
	loader := newFakeLoader()
	lbl := mainLabel("lib", "erroring")
	tgt := &target.Target{Label: lbl, RuleClass: "go_library", IsConfigurable: true}
	loader.add("", "lib", tgt)

	interner := buildopts.NewInterner()
	cfgKey := testConfiguration(t, interner)

	rules := fakeRules{"go_library": fakeRule{fn: func(_ context.Context, renv *analysis.AnalysisEnvironment, _ analysis.RuleInput) (*analysis.RuleOutput, error) {
		renv.Emit(true, "missing required attribute")
		return providerOutput("DefaultInfo", "unused"), nil
	}}}

	collabs := &analysis.Collaborators{Packages: loader, Rules: rules, Interner: interner}
	g := newGraph()
	_, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: lbl, Configuration: cfgKey, Collabs: collabs,
	})
	require.NotNil(t, f)
	require.Equal(t, analysis.KindRuleImplementationFailed, f.Kind)
	require.Contains(t, f.Message, "missing required attribute")
}
