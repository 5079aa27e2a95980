// Package ruletest hosts one concrete analysis.RuleImplementation backed by
// a real go.starlark.net/starlark interpreter. Production code never
// depends on an embedded scripting language (spec.md §1 Non-goals place the
// rule-implementation runtime itself out of scope); this package exists
// purely so integration tests exercise the dependency-edge and
// provider-merging code paths of internal/analysis against a genuine
// interpreter rather than a hand-rolled Go stub.
package ruletest

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"go.starlark.net/starlark"

	"github.com/anvilbuild/anvil/internal/analysis"
	"github.com/anvilbuild/anvil/internal/providerset"
)

// StarlarkRule is an analysis.RuleImplementation whose body is a starlark
// script defining a single top-level function:
//
//	def analyze(name, deps):
//	    ...
//	    return {"DefaultInfo": "..."}
//
// name is the target's own name; deps is a list of the string-valued
// DefaultInfo provider of every dependency in the "deps" attribute, in
// declared order. The returned dict's values become this target's own
// string-valued providers, keyed by the dict's string keys.
type StarlarkRule struct {
	Script string
}

// Analyze compiles and runs the script fresh on every invocation — rule
// implementations in this style of system are expected to be pure
// functions of their inputs, and a freshly executed module matches that
// contract more directly than caching a parsed program across targets that
// may be analyzed concurrently on different goroutines (starlark.Thread is
// not safe for concurrent use).
func (r StarlarkRule) Analyze(_ context.Context, renv *analysis.AnalysisEnvironment, input analysis.RuleInput) (*analysis.RuleOutput, error) {
	thread := &starlark.Thread{
		Name: input.Target.Label.String(),
		Print: func(_ *starlark.Thread, msg string) {
			renv.Emit(false, msg)
		},
	}

	globals, err := starlark.ExecFile(thread, input.Target.Label.Name+".star", r.Script, nil)
	if err != nil {
		return nil, fmt.Errorf("executing rule script: %w", err)
	}
	analyzeFn, ok := globals["analyze"].(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("rule script must define a top-level analyze(name, deps) function")
	}

	var depInfos []starlark.Value
	for _, dep := range input.DependencyValues["deps"] {
		v, ok := dep.Providers.Get("DefaultInfo")
		if !ok {
			continue
		}
		depInfos = append(depInfos, starlark.String(v.AsString()))
	}

	args := starlark.Tuple{
		starlark.String(input.Target.Label.Name),
		starlark.NewList(depInfos),
	}
	result, err := starlark.Call(thread, analyzeFn, args, nil)
	if err != nil {
		return nil, fmt.Errorf("calling analyze: %w", err)
	}

	dict, ok := result.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("analyze must return a dict of provider name -> string value, got %s", result.Type())
	}

	b := providerset.NewBuilder()
	for _, item := range dict.Items() {
		key, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("provider keys must be strings, got %s", item[0].Type())
		}
		val, ok := starlark.AsString(item[1])
		if !ok {
			return nil, fmt.Errorf("provider %q value must be a string, got %s", key, item[1].Type())
		}
		b.Put(providerset.ID(key), cty.StringVal(val))
	}
	set, dup := b.Build()
	return &analysis.RuleOutput{Providers: set, DuplicateProvider: dup}, nil
}
