package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	ssar "github.com/goliatone/go-ssar"
	"github.com/goliatone/go-ssar/pkg/config"
)

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	flags := &globalFlags{}
	a := &app{flags: flags, in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "ssar",
		Short:         "Scan, apply and restore batch edits on a scene manifest",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "settings file (YAML)")
	root.PersistentFlags().StringVar(&flags.scenePath, "scene", "scene.yaml", "scene manifest (YAML)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level")
	root.PersistentFlags().BoolVarP(&flags.yes, "yes", "y", false, "apply without asking")

	withApp := func(run func(a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			a.ctx = ctx
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()
			return run(a, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "tools",
			Short: "List the available tools",
			Args:  cobra.NoArgs,
			RunE:  withApp(runTools),
		},
		&cobra.Command{
			Use:   "scan <tool>",
			Short: "Preview what a tool would change",
			Args:  cobra.ExactArgs(1),
			RunE:  withApp(runScan),
		},
		&cobra.Command{
			Use:   "apply <tool>",
			Short: "Back up originals, apply a tool and save the manifest",
			Args:  cobra.ExactArgs(1),
			RunE:  withApp(runApply),
		},
		&cobra.Command{
			Use:   "restore <tool>",
			Short: "Write the backed up originals of a tool back",
			Args:  cobra.ExactArgs(1),
			RunE:  withApp(runRestore),
		},
		&cobra.Command{
			Use:   "config [setting]",
			Short: "Print the effective settings, or trace where one setting comes from",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return runConfig(a, args)
			},
		},
		newBackupCommand(withApp),
	)
	return root
}

func newBackupCommand(withApp func(func(*app, []string) error) func(*cobra.Command, []string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Inspect or clear recorded originals",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <tool>",
			Short: "List recorded originals",
			Args:  cobra.ExactArgs(1),
			RunE:  withApp(runBackupList),
		},
		&cobra.Command{
			Use:   "clear <tool>",
			Short: "Forget recorded originals so the next apply records new ones",
			Args:  cobra.ExactArgs(1),
			RunE:  withApp(runBackupClear),
		},
	)
	return cmd
}

func runTools(a *app, _ []string) error {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tIDENTITY\tATTRIBUTE\tTARGET")
	for _, name := range a.registry.Names() {
		plan, err := a.registry.Plan(name)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t%v\n", name, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", name, plan.Identity, plan.Attribute, plan.Target)
	}
	return w.Flush()
}

func runScan(a *app, args []string) error {
	plan, err := a.registry.Plan(args[0])
	if err != nil {
		return err
	}
	result, err := a.engine.Scan(a.ctx, plan)
	if err != nil {
		return err
	}
	if err := printCandidates(a.out, result); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d of %d candidate(s) will change, %d not applicable\nfingerprint %s\n",
		result.ChangeCount(), len(result.Candidates), result.NotApplicable, result.Fingerprint)
	return nil
}

func runApply(a *app, args []string) error {
	plan, err := a.durablePlan(args[0])
	if err != nil {
		return err
	}
	ctx := a.ctx
	result, err := a.engine.Scan(ctx, plan)
	if err != nil {
		return err
	}
	if result.ChangeCount() == 0 {
		fmt.Fprintln(a.out, "nothing to change")
		return nil
	}
	report, err := a.engine.Apply(ctx, plan, result)
	if errors.Is(err, ssar.ErrDeclined) {
		fmt.Fprintln(a.out, "canceled")
		return nil
	}
	if err != nil {
		return err
	}
	printFailures(a.out, report.Failures)
	fmt.Fprintln(a.out, report.Summary())
	if report.Changed == 0 {
		return nil
	}
	return a.save()
}

func runRestore(a *app, args []string) error {
	plan, err := a.durablePlan(args[0])
	if err != nil {
		return err
	}
	report, err := a.engine.Restore(a.ctx, plan)
	if errors.Is(err, ssar.ErrDeclined) {
		fmt.Fprintln(a.out, "canceled")
		return nil
	}
	if err != nil {
		return err
	}
	printFailures(a.out, report.Failures)
	fmt.Fprintln(a.out, report.Summary(ssar.OpRestore))
	if report.Restored == 0 {
		return nil
	}
	return a.save()
}

func runBackupList(a *app, args []string) error {
	plan, err := a.durablePlan(args[0])
	if err != nil {
		return err
	}
	entries, err := a.engine.Backups(a.ctx, plan)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tATTRIBUTE\tORIGINAL\tRECORDED")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", entry.Path, entry.Attribute, entry.Original, entry.CreatedAt.Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d backup(s)\n", len(entries))
	return nil
}

func runBackupClear(a *app, args []string) error {
	plan, err := a.durablePlan(args[0])
	if err != nil {
		return err
	}
	n, err := a.engine.ClearBackups(a.ctx, plan)
	if errors.Is(err, ssar.ErrDeclined) {
		fmt.Fprintln(a.out, "canceled")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "cleared %d backup(s)\n", n)
	return nil
}

func runConfig(a *app, args []string) error {
	_, stack, err := config.LoadStack(a.flags.configPath, a.flags.overrides())
	if err != nil {
		return err
	}
	if len(args) == 0 {
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(stack.Effective()); err != nil {
			return err
		}
		return enc.Close()
	}

	trace := stack.Trace(args[0])
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tPRIORITY\tVALUE")
	for _, p := range trace.Layers {
		value := "-"
		if p.Found {
			value = fmt.Sprint(p.Value)
		}
		name := p.Source.Name
		if p.Source.Label != "" {
			name += " (" + p.Source.Label + ")"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, p.Source.Priority, value)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	winner, ok := trace.Winner()
	if !ok {
		return fmt.Errorf("setting %q is not set by any source", args[0])
	}
	fmt.Fprintf(a.out, "%s = %v (from %s)\n", trace.Path, winner.Value, winner.Source.Name)
	return nil
}

func printCandidates(out io.Writer, result ssar.ScanResult) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tCURRENT\tPROPOSED\tCHANGE\tREASON")
	for _, c := range result.Candidates {
		change := ""
		if c.WillChange {
			change = "yes"
		}
		fmt.Fprintf(w, "%s\t%v\t%v\t%s\t%s\n", c.Path, c.Current, c.Proposed, change, c.Reason)
	}
	return w.Flush()
}

func printFailures(out io.Writer, failures []*ssar.ObjectError) {
	for _, failure := range failures {
		fmt.Fprintf(out, "failed: %v\n", failure)
	}
}
