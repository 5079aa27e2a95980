package analysis

import (
	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/evalgraph"
)

// stageLoad is spec.md §4.D step 1: "Request PackageKey(label.package) and
// (if non-null) the ConfigurationKey. On package error, record a
// LoadingFailure root cause but continue so more root causes can surface."
//
// Nothing downstream of this function can safely proceed without a loaded
// Target, so — unlike step 6's "continue for more root causes" policy for
// dependency failures — a load failure here fails the whole activation
// immediately; it is the surrounding caller (a parent's stage 6/7) that
// gets the chance to accumulate this as one of several root causes.
func (p *pipelineState) stageLoad() (evalgraph.Result, bool) {
	if p.scratch.loaded != nil {
		return evalgraph.Result{}, false
	}

	pkgKey := PackageKey{
		Repository: p.key.Label.Repository,
		Package:    p.key.Label.Package,
		Loader:     p.key.Collabs.Packages,
	}
	v, ok := p.env.GetValue(pkgKey)
	if !ok {
		return evalgraph.Pending(), true
	}
	pv := v.(PackageValue)
	if pv.ContainsErrors {
		return evalgraph.Failed(newLoadingFailure(pkgKey.String(), pv.FailureDetail)), true
	}

	tgt, ok := pv.Package.TargetNamed(p.key.Label.Name)
	if !ok {
		return evalgraph.Failed(newLoadingFailure(pkgKey.String(), "no such target "+p.key.Label.Name)), true
	}

	var opts buildopts.BuildOptions
	if !p.key.Configuration.IsNull() {
		cfg, found := p.key.Collabs.Interner.Lookup(p.key.Configuration)
		if !found {
			return evalgraph.Failed(newLoadingFailure(p.key.Label.String(), "unknown configuration "+p.key.Configuration.String())), true
		}
		opts = cfg.Options
	}

	p.scratch.loaded = &targetAndConfiguration{Target: tgt, Options: opts}
	return evalgraph.Result{}, false
}

// stageConfigurability is spec.md §4.D step 2: "If target.isConfigurable !=
// (configurationKey != null), return an empty configured target."
func (p *pipelineState) stageConfigurability() (evalgraph.Result, bool) {
	hasConfig := !p.key.Configuration.IsNull()
	if p.scratch.loaded.Target.IsConfigurable != hasConfig {
		return evalgraph.Done(emptyConfiguredTarget(p.key.Label, p.key.Configuration)), true
	}
	return evalgraph.Result{}, false
}
