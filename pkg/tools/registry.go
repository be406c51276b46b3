package tools

import (
	"fmt"
	"sort"

	ssar "github.com/goliatone/go-ssar"
	"github.com/goliatone/go-ssar/pkg/config"
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithBaker sets the baker used by the pack workflow tool.
func WithBaker(baker Baker) RegistryOption {
	return func(r *Registry) {
		r.baker = baker
	}
}

// WithEvaluator overrides the evaluator used for tool filters.
func WithEvaluator(evaluator ssar.Evaluator) RegistryOption {
	return func(r *Registry) {
		if evaluator != nil {
			r.evaluator = evaluator
		}
	}
}

// WithEvaluatorLogger reports filter evaluations to logger.
func WithEvaluatorLogger(logger ssar.EvaluatorLogger) RegistryOption {
	return func(r *Registry) {
		r.evalLogger = logger
	}
}

// Registry builds tool plans by name from configuration.
type Registry struct {
	cfg        config.Config
	evaluator  ssar.Evaluator
	evalLogger ssar.EvaluatorLogger
	baker      Baker
}

type builder func(r *Registry, tool config.ToolConfig) (ssar.Plan, error)

var builders = map[string]builder{
	NameTextureMaxSize: func(_ *Registry, tool config.ToolConfig) (ssar.Plan, error) {
		size, ok := toInt(tool.Target)
		if !ok {
			return ssar.Plan{}, fmt.Errorf("tools: %s target %v is not a size", NameTextureMaxSize, tool.Target)
		}
		return TextureMaxSize(size, tool.IncludeEqual != nil && *tool.IncludeEqual)
	},
	NameNormalMapMaxSize: func(_ *Registry, tool config.ToolConfig) (ssar.Plan, error) {
		size, ok := toInt(tool.Target)
		if !ok {
			return ssar.Plan{}, fmt.Errorf("tools: %s target %v is not a size", NameNormalMapMaxSize, tool.Target)
		}
		return NormalMapMaxSize(size)
	},
	NameNormalMapPlatform: func(_ *Registry, tool config.ToolConfig) (ssar.Plan, error) {
		size, ok := toInt(tool.Target)
		if !ok {
			return ssar.Plan{}, fmt.Errorf("tools: %s target %v is not a size", NameNormalMapPlatform, tool.Target)
		}
		return NormalMapPlatformSizes(size)
	},
	NameMeshCompression: func(_ *Registry, tool config.ToolConfig) (ssar.Plan, error) {
		level, ok := toString(tool.Target)
		if !ok {
			return ssar.Plan{}, fmt.Errorf("tools: %s needs a compression level", NameMeshCompression)
		}
		return MeshCompression(level)
	},
	NameSecondaryUV: func(*Registry, config.ToolConfig) (ssar.Plan, error) {
		return SecondaryUV(), nil
	},
	NameLightmapScale: func(_ *Registry, tool config.ToolConfig) (ssar.Plan, error) {
		scale, ok := toFloat(tool.Target)
		if !ok {
			return ssar.Plan{}, fmt.Errorf("tools: %s target %v is not a number", NameLightmapScale, tool.Target)
		}
		return LightmapScale(scale)
	},
	NameLODOverride: func(r *Registry, tool config.ToolConfig) (ssar.Plan, error) {
		level, ok := toInt(tool.Target)
		if !ok {
			return ssar.Plan{}, fmt.Errorf("tools: %s target %v is not a level", NameLODOverride, tool.Target)
		}
		return LODOverride(level, LODPolicy(r.cfg.Policy.LODMissing))
	},
	NameLODGroupsEnabled: func(_ *Registry, tool config.ToolConfig) (ssar.Plan, error) {
		enabled, ok := toBool(tool.Target)
		if !ok {
			return ssar.Plan{}, fmt.Errorf("tools: %s target %v is not a boolean", NameLODGroupsEnabled, tool.Target)
		}
		return LODGroupsEnabled(enabled), nil
	},
	NamePackWorkflow: func(r *Registry, _ config.ToolConfig) (ssar.Plan, error) {
		policy := WorkflowPolicy{
			Separate:      r.cfg.Policy.WorkflowSeparate,
			Packed:        r.cfg.Policy.WorkflowPacked,
			PackedKeyword: r.cfg.Policy.PackedKeyword,
			SkipPacked:    r.cfg.Policy.SkipPacked == nil || *r.cfg.Policy.SkipPacked,
		}
		return PackWorkflow(policy, r.baker)
	},
}

// NewRegistry builds a registry. Tool filters compile with the engine named
// by cfg.Rules.Engine unless WithEvaluator is given.
func NewRegistry(cfg config.Config, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.evaluator == nil {
		evaluator, err := ssar.NewEvaluator(cfg.Rules.Engine, ssar.NewMemoryProgramCache(), ssar.NewBuiltinRegistry())
		if err != nil {
			return nil, fmt.Errorf("tools: %w", err)
		}
		r.evaluator = evaluator
	}
	return r, nil
}

// Names lists every known tool, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Plan builds the named tool. A configured filter expression is compiled
// and must also match for an object to change.
func (r *Registry) Plan(name string) (ssar.Plan, error) {
	build, ok := builders[name]
	if !ok {
		return ssar.Plan{}, fmt.Errorf("tools: unknown tool %q (known: %v)", name, r.Names())
	}
	tool := r.cfg.Tool(name)
	plan, err := build(r, tool)
	if err != nil {
		return ssar.Plan{}, err
	}
	if tool.Filter == "" {
		return plan, nil
	}
	var ruleOpts []ssar.RuleOption
	if r.evalLogger != nil {
		ruleOpts = append(ruleOpts, ssar.RuleWithLogger(r.evalLogger))
	}
	filter, err := ssar.RulePredicate(r.evaluator, tool.Filter, ruleOpts...)
	if err != nil {
		return ssar.Plan{}, fmt.Errorf("tools: %s filter: %w", name, err)
	}
	base := plan.Predicate
	if base == nil {
		base = ssar.NotEqual()
	}
	plan.Predicate = ssar.All(base, filter)
	return plan, nil
}
