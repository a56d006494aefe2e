package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/box-go/internal/config"
	"github.com/tonimelisma/box-go/internal/events"
	"github.com/tonimelisma/box-go/internal/metrics"
	"github.com/tonimelisma/box-go/internal/sdk"
	"github.com/tonimelisma/box-go/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
	flagAsUser     string
	flagMetrics    string
)

// CLIFlags is a snapshot of the persistent flags taken after parsing.
type CLIFlags struct {
	JSON   bool
	Quiet  bool
	AsUser string
}

// CLIContext is what every subcommand gets from the root pre-run: the
// resolved config, a logger and the output streams.
type CLIContext struct {
	Flags   CLIFlags
	Cfg     *config.Config
	CfgPath string
	Logger  *slog.Logger
	Sink    events.Sink
	Out     io.Writer
	Err     io.Writer

	// registry is non-nil when --metrics-file is set.
	registry *prometheus.Registry
}

type cliContextKey struct{}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "box-go",
		Short:   "Box API command line client",
		Long:    "A command line client for the Box content API, built on the box-go SDK.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			cc, ok := cmd.Context().Value(cliContextKey{}).(*CLIContext)
			if !ok {
				return nil
			}

			return writeMetrics(cc)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.PersistentFlags().StringVar(&flagAsUser, "as-user", "", "act on behalf of this user ID (As-User header)")
	cmd.PersistentFlags().StringVar(&flagMetrics, "metrics-file", "",
		"write Prometheus metrics of the run to this file (textfile collector format)")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newCpCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newWatermarkCmd())
	cmd.AddCommand(newCollabCmd())
	cmd.AddCommand(newCollectionCmd())
	cmd.AddCommand(newMetadataCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from file, environment and
// flags, then attaches a CLIContext to the command.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		LogLevel:   flagLogLevel(),
	}

	cfg, cfgPath, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cc := &CLIContext{
		Flags:   CLIFlags{JSON: flagJSON, Quiet: flagQuiet, AsUser: flagAsUser},
		Cfg:     cfg,
		CfgPath: cfgPath,
		Out:     cmd.OutOrStdout(),
		Err:     cmd.ErrOrStderr(),
	}
	cc.Logger = buildLogger(cfg, cc.Err)

	sinks := []events.Sink{events.NewLogSink(cc.Logger)}

	if flagMetrics != "" {
		cc.registry = prometheus.NewRegistry()

		ms, err := metrics.NewSink(cc.registry)
		if err != nil {
			return err
		}

		sinks = append(sinks, ms)
	}

	cc.Sink = events.Multi(sinks...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// writeMetrics dumps the run's metrics when --metrics-file is set.
func writeMetrics(cc *CLIContext) error {
	if cc.registry == nil {
		return nil
	}

	if err := prometheus.WriteToTextfile(flagMetrics, cc.registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}

	return nil
}

// mustCLIContext returns the context attached by loadConfig.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("cli context missing: command ran without the root pre-run")
	}

	return cc
}

// flagLogLevel maps --verbose and --quiet to a log level override. CLI
// flags win over the config file.
func flagLogLevel() string {
	switch {
	case flagQuiet:
		return "error"
	case flagVerbose:
		return "debug"
	default:
		return ""
	}
}

// buildLogger creates an slog.Logger from the resolved config. The "auto"
// format is text on a terminal and JSON otherwise.
func buildLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Logging.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Logging.LogFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts))
	case "text":
		return slog.New(slog.NewTextHandler(w, opts))
	}

	if isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, opts))
	}

	return slog.New(slog.NewJSONHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// openSDK builds the SDK from the resolved config. The caller closes it.
func (cc *CLIContext) openSDK(ctx context.Context) (*sdk.Configured, error) {
	return sdk.FromConfig(ctx, cc.Cfg, sdk.Options{Logger: cc.Logger, Sink: cc.Sink})
}

// apiClient opens the SDK and returns the client for the configured auth
// mode, scoped to --as-user when set. The returned close func releases the
// token stores.
func (cc *CLIContext) apiClient(ctx context.Context) (*sdk.Client, func(), error) {
	s, err := cc.openSDK(ctx)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		if cerr := s.Close(); cerr != nil {
			cc.Logger.Warn("closing token stores", slog.String("error", cerr.Error()))
		}
	}

	client, err := s.DefaultClient(ctx)
	if err != nil {
		closeFn()

		if errors.Is(err, session.ErrNotLoggedIn) {
			return nil, nil, errors.New("not logged in, run 'box-go login' first")
		}

		return nil, nil, err
	}

	if cc.Flags.AsUser != "" {
		client = client.AsUser(cc.Flags.AsUser)
	}

	return client, closeFn, nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
