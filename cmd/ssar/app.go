package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	ssar "github.com/goliatone/go-ssar"
	"github.com/goliatone/go-ssar/pkg/config"
	"github.com/goliatone/go-ssar/pkg/memhost"
	"github.com/goliatone/go-ssar/pkg/tools"
)

type globalFlags struct {
	configPath string
	scenePath  string
	logLevel   string
	yes        bool
}

// overrides turns flags that shadow settings into a config layer.
func (f *globalFlags) overrides() map[string]any {
	if f.logLevel == "" {
		return nil
	}
	return map[string]any{"log": map[string]any{"level": f.logLevel}}
}

// app is the state shared by one command invocation.
type app struct {
	ctx      context.Context
	flags    *globalFlags
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	cfg      config.Config
	host     *memhost.Host
	engine   *ssar.Engine
	registry *tools.Registry
}

func (a *app) open() error {
	cfg, _, err := config.LoadStack(a.flags.configPath, a.flags.overrides())
	if err != nil {
		return err
	}
	a.cfg = cfg
	logger, err := config.NewLogger(cfg.Log, a.errOut)
	if err != nil {
		return err
	}
	if a.flags.scenePath == "" {
		return fmt.Errorf("--scene is required")
	}
	host, err := memhost.LoadFile(a.flags.scenePath)
	if err != nil {
		return err
	}
	a.host = host
	store, err := config.OpenBackupStore(cfg.Backup, "", logger)
	if err != nil {
		return err
	}
	opts := []ssar.Option{
		ssar.WithLogger(logger),
		ssar.WithBackupStore(store),
	}
	if !a.flags.yes {
		opts = append(opts, ssar.WithConfirmer(ssar.ConfirmFunc(a.confirm)))
	}
	engine, err := ssar.New(host, opts...)
	if err != nil {
		store.Close()
		return err
	}
	a.engine = engine
	registry, err := tools.NewRegistry(cfg, tools.WithEvaluatorLogger(engine.EvaluatorLogger()))
	if err != nil {
		return err
	}
	a.registry = registry
	return nil
}

func (a *app) close() error {
	if a.engine == nil {
		return nil
	}
	return a.engine.Close()
}

func (a *app) confirm(_ context.Context, prompt ssar.Prompt) (bool, error) {
	fmt.Fprintf(a.out, "%s: %s [y/N] ", prompt.Title, prompt.Message)
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// durablePlan resolves name and rejects session scoped tools, whose baseline
// would be lost when the process exits.
func (a *app) durablePlan(name string) (ssar.Plan, error) {
	plan, err := a.registry.Plan(name)
	if err != nil {
		return ssar.Plan{}, err
	}
	if plan.Identity != ssar.IdentityDurable {
		return ssar.Plan{}, fmt.Errorf("tool %q is session scoped and can only run inside a live editor session", name)
	}
	return plan, nil
}

func (a *app) save() error {
	return a.host.SaveFile(a.flags.scenePath)
}
