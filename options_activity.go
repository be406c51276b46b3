package ssar

import "github.com/goliatone/go-ssar/pkg/activity"

type (
	activityHooks  = activity.Hooks
	activityConfig = activity.Config
)

// WithActivityHooks attaches audit hooks. Hooks are cloned and nil entries
// dropped. Emission is enabled unless WithActivityConfig says otherwise.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := activity.CloneHooks(hooks)
	return func(cfg *engineConfig) {
		cfg.activityHooks = normalized
	}
}

// WithActivityConfig sets channel, actor and tenant defaults for emitted
// events and can disable emission.
func WithActivityConfig(config activity.Config) Option {
	return func(cfg *engineConfig) {
		c := config
		cfg.activityConfig = &c
	}
}

// ActivityHooks returns a copy of the configured hooks.
func (e *Engine) ActivityHooks() activity.Hooks {
	if e == nil {
		return nil
	}
	return activity.CloneHooks(e.cfg.activityHooks)
}

func (e *Engine) newEmitter() *activity.Emitter {
	config := activity.Config{Enabled: true}
	if e.cfg.activityConfig != nil {
		config = *e.cfg.activityConfig
	}
	if config.SessionID == "" {
		config.SessionID = e.sessionID
	}
	return activity.NewEmitter(e.cfg.activityHooks, config)
}

func (e *Engine) operationInput(plan string, summary Summary) activity.OperationEventInput {
	return activity.OperationEventInput{
		Plan: plan,
		Counts: activity.Counts{
			Changed:       summary.Changed,
			Skipped:       summary.Skipped,
			Failed:        summary.Failed,
			Missing:       summary.Missing,
			NotApplicable: summary.NotApplicable,
		},
		Canceled:   summary.Canceled,
		OccurredAt: e.cfg.now(),
	}
}
