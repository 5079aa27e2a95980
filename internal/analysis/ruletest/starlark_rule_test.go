package ruletest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/anvilbuild/anvil/internal/analysis"
	"github.com/anvilbuild/anvil/internal/analysis/ruletest"
	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/label"
	"github.com/anvilbuild/anvil/internal/target"
	"github.com/anvilbuild/anvil/internal/transition"
)

type fakeLoader struct{ packages map[string]*target.Package }

func newFakeLoader() *fakeLoader { return &fakeLoader{packages: make(map[string]*target.Package)} }

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

type fakeRules map[string]analysis.RuleImplementation

func (r fakeRules) Lookup(class string) (analysis.RuleImplementation, bool) {
	v, ok := r[class]
	return v, ok
}

type fakeTransitions struct{}

func (fakeTransitions) Transition(string) (transition.Transition, bool) { return nil, false }

// TestStarlarkRule_endToEnd drives the real analysis pipeline (Component D)
// with a go.starlark.net-backed rule implementation on both a leaf and a
// target depending on it, checking that the interpreter's output actually
// flows through providerset merging and into the parent's DependencyValues.
func TestStarlarkRule_endToEnd(t *testing.T) {
	loader := newFakeLoader()

	leafLabel := label.Label{Package: "lib", Name: "greeter"}
	leaf := &target.Target{Label: leafLabel, RuleClass: "star_rule", IsConfigurable: true}

	rootLabel := label.Label{Package: "lib", Name: "app"}
	root := &target.Target{
		Label:          rootLabel,
		RuleClass:      "star_rule",
		IsConfigurable: true,
		Attrs: map[string]target.AttrValue{
			"deps": target.ConcreteAttr(cty.ListVal([]cty.Value{cty.StringVal(leafLabel.String())})),
		},
		Dependencies: []target.DeclaredDependency{{AttrName: "deps", Kind: target.DependencyRegular}},
	}
	loader.add("", "lib", leaf, root)

	interner := buildopts.NewInterner()
	opts := buildopts.NewBuildOptions(buildopts.Fragment{Type: "platform", Values: map[string]cty.Value{"arch": cty.StringVal("amd64")}})
	cfgKey := interner.Intern(opts).Key()
	resolver := transition.NewResolver(interner, nil)

	impl := ruletest.StarlarkRule{Script: `
def analyze(name, deps):
    if len(deps) == 0:
        return {"DefaultInfo": "hello from " + name}
    return {"DefaultInfo": deps[0] + " via " + name}
`}

	collabs := &analysis.Collaborators{
		Packages:    loader,
		Rules:       fakeRules{"star_rule": impl},
		Interner:    interner,
		Resolver:    resolver,
		Transitions: fakeTransitions{},
	}

	g := evalgraph.New(evalgraph.Options{Workers: 4})
	v, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{
		Label: rootLabel, Configuration: cfgKey, Collabs: collabs,
	})
	require.Nil(t, f)
	ct := v.(analysis.ConfiguredTarget)
	val, ok := ct.Providers.Get("DefaultInfo")
	require.True(t, ok)
	require.Equal(t, "hello from greeter via app", val.AsString())
}

func TestStarlarkRule_scriptErrorSurfacesAsRuleFailure(t *testing.T) {
	loader := newFakeLoader()
	lbl := label.Label{Package: "lib", Name: "broken"}
	loader.add("", "lib", &target.Target{Label: lbl, RuleClass: "star_rule", IsConfigurable: true})

	interner := buildopts.NewInterner()
	opts := buildopts.NewBuildOptions(buildopts.Fragment{Type: "platform", Values: map[string]cty.Value{"arch": cty.StringVal("amd64")}})
	cfgKey := interner.Intern(opts).Key()

	impl := ruletest.StarlarkRule{Script: `
def analyze(name, deps):
    return 1 / 0
`}
	collabs := &analysis.Collaborators{
		Packages: loader,
		Rules:    fakeRules{"star_rule": impl},
		Interner: interner,
	}

	g := evalgraph.New(evalgraph.Options{Workers: 4})
	_, f := g.Request(context.Background(), analysis.ConfiguredTargetKey{Label: lbl, Configuration: cfgKey, Collabs: collabs})
	require.NotNil(t, f)
	require.Equal(t, analysis.KindRuleImplementationFailed, f.Kind)
}
