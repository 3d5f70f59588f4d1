package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

const (
	ModeFleet    = "fleet-service"
	ModeMatching = "matching-service"
)

// ServiceOptions carries the flags every service subcommand accepts.
type ServiceOptions struct {
	ConfigPath    string
	Prefetch      int // 0 keeps rabbitmq.prefetch from the config file
	MaxConcurrent int
}

// RunFunc starts one service and blocks until ctx is cancelled.
type RunFunc func(ctx context.Context, opts ServiceOptions) error

// Runners binds each mode to its entry point.
type Runners struct {
	Fleet    RunFunc
	Matching RunFunc
}

// NewRootCommand builds the CLI. Services run as subcommands; --mode=<service>
// is accepted as an alternative spelling.
func NewRootCommand(runners Runners) *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "logistics",
		Short: "Logistics status-synchronization services",
		Long: `Runs one logistics service per process. Pick the service with a subcommand
or with --mode=<service>; flags after it are passed to that service.`,
		Example: `  logistics fleet-service --max-concurrent=150
  logistics matching-service --prefetch=8 -c config/config.yaml
  logistics --mode=fleet-service`,
		SilenceUsage: true,
		// flags are parsed by the selected service command
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, rest := splitMode(args)
			if mode == "" {
				return cmd.Help()
			}
			sub, _, err := cmd.Find([]string{mode})
			if err != nil || sub == cmd {
				return fmt.Errorf("unknown mode %q", mode)
			}
			sub.SetContext(cmd.Context())
			if err := sub.ParseFlags(rest); err != nil {
				return err
			}
			return sub.RunE(sub, sub.Flags().Args())
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config/config.yaml", "configuration file")

	root.AddCommand(
		serviceCommand(ModeFleet, []string{"fleet", "f"},
			"Driver, vehicle and assignment owner; consumes order events", 100, &cfgPath, runners.Fleet),
		serviceCommand(ModeMatching, []string{"matching", "m"},
			"Order owner; publishes order events and validates drivers", 100, &cfgPath, runners.Matching),
	)
	return root
}

// splitMode pulls --mode=<v> or --mode <v> out of args.
func splitMode(args []string) (string, []string) {
	var mode string
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if after, ok := strings.CutPrefix(arg, "--mode="); ok {
			mode = after
			continue
		}
		if arg == "--mode" && i+1 < len(args) {
			mode = args[i+1]
			i++
			continue
		}
		rest = append(rest, arg)
	}
	return strings.TrimSpace(mode), rest
}

func serviceCommand(name string, aliases []string, short string, defaultConc int, cfgPath *string, run RunFunc) *cobra.Command {
	var opts ServiceOptions

	cmd := &cobra.Command{
		Use:     name,
		Aliases: aliases,
		Short:   short,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if run == nil {
				return fmt.Errorf("%s is not available in this build", name)
			}
			if opts.Prefetch < 0 {
				return errors.New("--prefetch must be >= 0")
			}
			if opts.MaxConcurrent < 1 {
				return errors.New("--max-concurrent must be >= 1")
			}
			opts.ConfigPath = strings.TrimSpace(*cfgPath)
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.Prefetch, "prefetch", 0, "RabbitMQ prefetch per consumer channel (0 = from config)")
	cmd.Flags().IntVar(&opts.MaxConcurrent, "max-concurrent", defaultConc, "maximum number of concurrent HTTP requests")
	return cmd
}
