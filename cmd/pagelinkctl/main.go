package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lanewave/pagelink-go/probe"
	"github.com/lanewave/pagelink-go/transports/amqp"
	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pagelinkctl",
		Short: "Probe remote origins for web-push subscription state",
		Long: `pagelinkctl drives the pagelink probing flow over a RabbitMQ broker.
It probes a list of origins strictly one at a time for a pre-existing push
subscription, or serves frames with canned subscription state for probers
to find.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
	}

	// Global flags
	var (
		configPath string
		brokerURL  string
		verbose    bool
	)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&brokerURL, "url", "u", "", "RabbitMQ connection URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Probe command
	var (
		probeOrigin string
		fragment    string
		agentAddr   string
		agentOrigin string
	)
	probeCmd := &cobra.Command{
		Use:   "probe [target-urls...]",
		Short: "Probe targets one at a time for an existing push subscription",
		Long: `Probe loads each target through the frame agent, connects to it and asks
for its subscription state. The first target with a live subscription
freezes the run; it then holds until interrupted. Targets given as
arguments are probed after the ones from the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			if brokerURL != "" {
				cfg.Broker.URL = brokerURL
			}
			if probeOrigin != "" {
				cfg.Origin = probeOrigin
			}
			if fragment != "" {
				cfg.Probe.WorkerPathFragment = fragment
			}
			if agentAddr != "" {
				cfg.Agent.Address = agentAddr
			}
			if agentOrigin != "" {
				cfg.Agent.Origin = agentOrigin
			}
			targets := append(cfg.Probe.Targets, args...)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// Handle signals
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			return runProbe(ctx, cfg, targets, newLogger(verbose))
		},
	}
	probeCmd.Flags().StringVar(&probeOrigin, "origin", "", "Origin the prober presents itself as (overrides config)")
	probeCmd.Flags().StringVar(&fragment, "fragment", "", "Path fragment required in a target's worker script URL")
	probeCmd.Flags().StringVar(&agentAddr, "agent-address", "", "Broadcast address of the frame agent")
	probeCmd.Flags().StringVar(&agentOrigin, "agent-origin", "", "Origin the frame agent must present")

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve frames with canned subscription state",
		Long: `Serve runs a frame agent: it answers frame-load requests from a prober
by hosting a frame per requested URL, each reporting the subscription
state configured for its origin. It runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			if brokerURL != "" {
				cfg.Broker.URL = brokerURL
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// Handle signals
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			return runServe(ctx, cfg, newLogger(verbose))
		},
	}

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pagelinkctl %s (commit: %s, built: %s)\n", version, gitCommit, buildTime)
		},
	}

	rootCmd.AddCommand(probeCmd, serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runProbe(ctx context.Context, cfg *Config, targets []string, logger *slog.Logger) error {
	if cfg.Origin == "" {
		return fmt.Errorf("an origin is required (set origin in config or --origin)")
	}
	if len(targets) == 0 {
		return fmt.Errorf("no targets to probe (set probe.targets in config or pass URLs)")
	}

	ep, err := amqp.Dial(ctx, cfg.Broker.URL, cfg.Origin, amqp.WithEndpointLogger(logger))
	if err != nil {
		return err
	}
	defer ep.Close()

	loaderOpts := []amqp.LoaderOption{
		amqp.WithLoaderLogger(logger),
		amqp.WithAgentAddress(cfg.Agent.Address),
	}
	if cfg.Agent.Origin != "" {
		loaderOpts = append(loaderOpts, amqp.WithAgentOrigin(cfg.Agent.Origin))
	}
	loader, err := amqp.NewLoader(ep, loaderOpts...)
	if err != nil {
		return err
	}
	defer loader.Close()

	prober, err := probe.NewProber(loader, ep, targets,
		probe.WithLogger(logger),
		probe.WithWorkerPathFragment(cfg.Probe.WorkerPathFragment),
	)
	if err != nil {
		return err
	}

	fmt.Printf("Probing %d targets... Press Ctrl+C to stop\n", len(targets))
	fmt.Println(strings.Repeat("-", 70))

	if err := prober.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	printTargets(prober.Targets())

	switch prober.State() {
	case probe.RunExhausted:
		fmt.Println("\nNo pre-existing subscription on any target.")
	case probe.RunFrozen:
		for _, target := range prober.Targets() {
			if target.Status == probe.TargetSubscribed {
				fmt.Printf("\nSubscription found at %s; the run froze there.\n", target.URL)
			}
		}
	default:
		fmt.Println("\nProbing interrupted.")
	}
	return nil
}

func runServe(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	if cfg.Agent.Origin == "" {
		return fmt.Errorf("an agent origin is required (set agent.origin in config)")
	}

	opts := []amqp.AgentOption{
		amqp.WithAgentLogger(logger),
		amqp.WithServeAddress(cfg.Agent.Address),
	}
	if len(cfg.Agent.AllowedOrigins) > 0 {
		opts = append(opts, amqp.WithAllowedLoaders(cfg.Agent.AllowedOrigins...))
	}

	agent, err := amqp.NewAgent(cfg.Broker.URL, cfg.Agent.Origin, opts...)
	if err != nil {
		return err
	}

	for _, frame := range cfg.Frames {
		if err := agent.RegisterReport(frame.URL, frame.Report()); err != nil {
			return err
		}
	}

	fmt.Printf("Serving frames at %s... Press Ctrl+C to stop\n", cfg.Agent.Address)

	if err := agent.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Output formatting functions

func printTargets(targets []probe.TargetInfo) {
	if len(targets) == 0 {
		fmt.Println("No targets probed")
		return
	}

	fmt.Printf("%-50s %-15s\n", "Target", "Status")
	fmt.Println(strings.Repeat("-", 65))

	for _, t := range targets {
		fmt.Printf("%-50s %-15s\n", truncate(t.URL, 50), string(t.Status))
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
