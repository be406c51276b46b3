package activity

import (
	"context"
	"strings"
)

// DefaultChannel is applied to events emitted without a channel.
const DefaultChannel = "ssar"

// Config controls activity emission defaults supplied by configuration.
type Config struct {
	Enabled   bool
	Channel   string
	ActorID   string
	TenantID  string
	SessionID string
}

// Emitter fans out events to hooks while applying defaults.
type Emitter struct {
	hooks     Hooks
	enabled   bool
	channel   string
	actorID   string
	tenantID  string
	sessionID string
}

// NewEmitter constructs an emitter from hooks and configuration.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	normalizedHooks := cloneHooks(hooks)
	return &Emitter{
		hooks:     normalizedHooks,
		enabled:   cfg.Enabled && len(normalizedHooks) > 0,
		channel:   channel,
		actorID:   strings.TrimSpace(cfg.ActorID),
		tenantID:  strings.TrimSpace(cfg.TenantID),
		sessionID: strings.TrimSpace(cfg.SessionID),
	}
}

// Enabled reports whether emissions should be attempted.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled && len(e.hooks) > 0
}

// Emit forwards the event to all hooks, filling channel, actor, tenant and
// session when the event leaves them empty.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	if strings.TrimSpace(event.ActorID) == "" {
		event.ActorID = e.actorID
	}
	if strings.TrimSpace(event.TenantID) == "" {
		event.TenantID = e.tenantID
	}
	if strings.TrimSpace(event.SessionID) == "" {
		event.SessionID = e.sessionID
	}
	return e.hooks.Notify(ctx, event)
}
