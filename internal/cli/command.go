package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"awacsweep/internal/config"
	"awacsweep/internal/core"
)

type rootOptions struct {
	inv CLIInvocation

	lambdas             string
	mode                string
	expPrefix           string
	python              string
	script              string
	envName             string
	numExplorationSteps int
	useRND              bool
	extraArgs           []string
	onError             string
	parallel            int

	logLevel string
	logFile  string
}

// overrides collects only the flags the user actually set, so that they do
// not mask preset or config file values.
func (o *rootOptions) overrides(cmd *cobra.Command) (config.Overrides, error) {
	fs := cmd.Flags()
	var ov config.Overrides
	if fs.Changed("mode") {
		ov.Mode = &o.mode
	}
	if fs.Changed("exp-prefix") {
		ov.ExpPrefix = &o.expPrefix
	}
	if fs.Changed("lambdas") {
		lambdas, err := core.ParseLambdas(o.lambdas)
		if err != nil {
			return config.Overrides{}, invalidInvocationf("--lambdas: %v", err)
		}
		ov.Lambdas = lambdas
	}
	if fs.Changed("python") {
		ov.Interpreter = &o.python
	}
	if fs.Changed("script") {
		ov.Script = &o.script
	}
	if fs.Changed("env-name") {
		ov.EnvName = &o.envName
	}
	if fs.Changed("use-rnd") {
		ov.UseRND = &o.useRND
	}
	if fs.Changed("num-exploration-steps") {
		ov.NumExplorationSteps = &o.numExplorationSteps
	}
	if fs.Changed("on-error") {
		ov.FailurePolicy = &o.onError
	}
	if fs.Changed("parallel") {
		ov.Parallel = &o.parallel
	}
	ov.ExtraArgs = o.extraArgs
	return ov, nil
}

// prepare canonicalizes the invocation for run and plan.
func (o *rootOptions) prepare(cmd *cobra.Command, args []string) error {
	ov, err := o.overrides(cmd)
	if err != nil {
		return err
	}
	// Only arguments after "--" reach the training script.
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		dash = len(args)
	}
	if dash > 0 {
		return invalidInvocationf("unexpected positional arguments %q (pass script arguments after --)", args[:dash])
	}
	ov.ExtraArgs = append(ov.ExtraArgs, args[dash:]...)
	o.inv.Overrides = ov

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	return o.inv.canonicalize(cwd)
}

func addSweepFlags(cmd *cobra.Command, o *rootOptions) {
	fs := cmd.Flags()
	fs.StringVar(&o.inv.Preset, "preset", "", fmt.Sprintf("Built-in preset (%s)", strings.Join(config.PresetNames(), "|")))
	fs.StringVar(&o.inv.ConfigPath, "config", "", "TOML sweep configuration file")
	fs.StringVar(&o.mode, "mode", string(core.ModeSupervised), "Exploration mode: supervised|unsupervised")
	fs.StringVar(&o.lambdas, "lambdas", "", "Comma separated AWAC lambda values, e.g. 0.1,1,2")
	fs.StringVar(&o.expPrefix, "exp-prefix", "", "Experiment name prefix (default q4_awac_easy_<mode>)")
	fs.StringVar(&o.python, "python", core.DefaultInterpreter, "Python interpreter")
	fs.StringVar(&o.script, "script", core.DefaultScript, "Training script")
	fs.StringVar(&o.envName, "env-name", core.DefaultEnvName, "Environment name passed as --env_name")
	fs.IntVar(&o.numExplorationSteps, "num-exploration-steps", core.DefaultNumExplorationSteps, "Value of --num_exploration_steps")
	fs.BoolVar(&o.useRND, "use-rnd", true, "Pass --use_rnd")
	fs.StringArrayVar(&o.extraArgs, "extra-arg", nil, "Extra argument appended to every invocation (repeatable)")
	fs.StringVar(&o.inv.WorkDir, "workdir", "", "Working directory of the children and of .awacsweep state (default: current directory)")
}

// NewRootCommand builds the awacsweep command tree. exitCode receives the
// semantic exit code of run.
func NewRootCommand(ctx context.Context, stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	o := &rootOptions{}

	root := &cobra.Command{
		Use:           "awacsweep",
		Short:         "Run AWAC lambda hyperparameter sweeps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initLogger(o.logLevel, o.logFile, stderr); err != nil {
				return &InvocationError{ExitCode: ExitInvalidInvocation, Message: err.Error()}
			}
			return nil
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&o.logFile, "log-file", "", "Write logs to this file instead of stderr")

	runCmd := &cobra.Command{
		Use:   "run [flags] [-- extra script args]",
		Short: "Run the sweep, one training process per lambda",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.prepare(cmd, args); err != nil {
				return err
			}
			res, err := Execute(ctx, o.inv, Output{Stdout: stdout, Stderr: stderr})
			*exitCode = res.ExitCode
			if res.Result != nil {
				printSummary(stdout, res)
			}
			return err
		},
	}
	addSweepFlags(runCmd, o)
	runCmd.Flags().StringVar(&o.onError, "on-error", "continue", "Failure policy: continue|stop|ignore")
	runCmd.Flags().IntVar(&o.parallel, "parallel", 1, "Maximum number of concurrent training processes")
	runCmd.Flags().StringVar(&o.inv.LogDir, "log-dir", "", "Also write each job's output to <log-dir>/<exp_name>.log")
	runCmd.Flags().StringVar(&o.inv.TracePath, "trace", "", "Write the canonical sweep trace to this file")
	runCmd.Flags().StringVar(&o.inv.MetricsPath, "metrics-file", "", "Write Prometheus metrics in text format to this file")
	runCmd.Flags().BoolVar(&o.inv.Resume, "resume", false, "Skip jobs that succeeded in the latest unsuccessful run of the same sweep")
	runCmd.Flags().StringVar(&o.inv.ResumeFrom, "resume-from", "", "Resume the given run ID")

	planCmd := &cobra.Command{
		Use:   "plan [flags] [-- extra script args]",
		Short: "Print the invocations of the sweep without running them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.prepare(cmd, args); err != nil {
				return err
			}
			return printPlan(stdout, o.inv)
		},
	}
	addSweepFlags(planCmd, o)

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "List built-in presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			for _, name := range config.PresetNames() {
				fmt.Fprintf(tw, "%s\t%s\n", name, config.PresetDescription(name))
			}
			return tw.Flush()
		},
	}

	root.AddCommand(runCmd, planCmd, presetsCmd)
	return root
}

func printPlan(w io.Writer, inv CLIInvocation) error {
	resolved, err := inv.Resolve()
	if err != nil {
		return err
	}
	invocations, err := core.BuildInvocations(resolved.Spec)
	if err != nil {
		return &config.ConfigError{Err: err}
	}
	hash := core.ComputeSweepHash(inv.WorkDir, invocations)
	fmt.Fprintf(w, "# sweep %s: %d jobs, mode=%s, on-error=%s, parallel=%d\n",
		hash.Short(), len(invocations), resolved.Spec.Mode, resolved.Policy, resolved.Parallel)
	for _, i := range invocations {
		fmt.Fprintln(w, shellJoin(i.Argv))
	}
	return nil
}

func printSummary(w io.Writer, res CLIResult) {
	r := res.Result
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s\n", res.RunID)
	for _, name := range r.Order {
		line := fmt.Sprintf("%s\t%s", name, r.FinalState[name])
		if jr := r.Jobs[name]; jr != nil {
			line += fmt.Sprintf("\texit=%d\t%s", jr.ExitCode, jr.Duration.Round(time.Millisecond))
		}
		fmt.Fprintln(tw, line)
	}
	if err := tw.Flush(); err != nil {
		log.Warn("print summary failed", zap.Error(err))
	}
}

// shellJoin renders argv for copy-pasting into a POSIX shell.
func shellJoin(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a != "" && strings.IndexFunc(a, needsQuote) < 0 {
			parts[i] = a
			continue
		}
		parts[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(parts, " ")
}

func needsQuote(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_=./,:+@%", r))
}
