package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	cachedemo "github.com/DuncanSchouten/cdn-cache-demo"
	"github.com/DuncanSchouten/cdn-cache-demo/cache"
	"github.com/DuncanSchouten/cdn-cache-demo/cdn"
	"github.com/DuncanSchouten/cdn-cache-demo/content"
	"github.com/DuncanSchouten/cdn-cache-demo/probe"
)

var (
	configFlag string
	traceFlag  bool

	// serve flags
	listenFlag   string
	providerFlag string
	remoteFlag   bool

	// probe flags
	urlFlag      string
	attemptsFlag int
	delayFlag    string
)

func main() {
	root := &cobra.Command{
		Use:   "cdn-cache-demo",
		Short: "Demo server for fetch-cache strategies and CDN tag invalidation",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel := zerolog.DebugLevel
			if traceFlag {
				logLevel = zerolog.TraceLevel
			}
			log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout})
		},
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file")
	root.PersistentFlags().BoolVar(&traceFlag, "vv", false, "Verbosity: trace logging")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo server",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&listenFlag, "listen", "", "Listen address (overrides config)")
	serve.Flags().StringVar(&providerFlag, "provider", "", "Cache provider: sqlite, memory or leveldb (overrides config)")
	serve.Flags().BoolVar(&remoteFlag, "remote", false, "Use the remote data source (overrides config)")
	root.AddCommand(serve)

	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Drive the probe/revalidate/verify workflow against a server",
		RunE:  runProbe,
	}
	probeCmd.Flags().StringVar(&urlFlag, "url", "http://localhost:8080", "Base URL of the demo server")
	probeCmd.Flags().IntVar(&attemptsFlag, "attempts", 5, "Polling attempts per phase")
	probeCmd.Flags().StringVar(&delayFlag, "delay", "2s", "Delay between polls")
	root.AddCommand(probeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (cachedemo.Config, error) {
	if configFlag == "" {
		return cachedemo.DefaultConfig(), nil
	}
	return cachedemo.LoadConfig(configFlag)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = listenFlag
	}
	if cmd.Flags().Changed("provider") {
		cfg.Provider = providerFlag
	}
	if cmd.Flags().Changed("remote") {
		cfg.Content.Remote = remoteFlag
	}

	var provider cache.CacheProvider
	switch cfg.Provider {
	case "sqlite":
		sqlite := cache.NewSQLiteCache(cfg.SQLitePath)
		defer sqlite.Close()
		provider = sqlite
	case "memory":
		provider = cache.NewMemCache()
	case "leveldb":
		level, err := cache.NewLevelCache(cfg.LevelDBPath)
		if err != nil {
			return fmt.Errorf("open leveldb: %w", err)
		}
		defer level.Close()
		provider = level
	default:
		return fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}

	var source content.Source
	if cfg.Content.Remote {
		if cfg.Content.BaseURL == "" {
			return fmt.Errorf("remote data source needs a base URL")
		}
		source = content.NewRemoteSource(content.RemoteConfig{
			BaseURL:      cfg.Content.BaseURL,
			ClientID:     cfg.Content.ClientID,
			ClientSecret: cfg.Content.ClientSecret,
			TokenURL:     cfg.Content.TokenURL,
		})
		log.Info().Str("baseUrl", cfg.Content.BaseURL).Msg("Using remote data source")
	} else {
		source = content.NewMockSource()
		log.Info().Msg("Using mock data source")
	}

	var purger cdn.Purger = cdn.NopPurger{}
	if cfg.CDN.PurgeURL != "" {
		purger = cdn.NewHTTPPurger(cfg.CDN.PurgeURL, cfg.CDN.Token, log.Logger)
		log.Info().Str("purgeUrl", cfg.CDN.PurgeURL).Msg("CDN purge enabled")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := cachedemo.NewServer(cfg, source, provider, purger, log.Logger)
	return server.Run(ctx)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := probe.NewClient(urlFlag, log.Logger)
	client.Attempts = attemptsFlag
	if cfg.Probe.Attempts > 0 && !cmd.Flags().Changed("attempts") {
		client.Attempts = cfg.Probe.Attempts
	}
	delay, err := time.ParseDuration(delayFlag)
	if err != nil {
		return fmt.Errorf("invalid delay: %w", err)
	}
	client.Delay = delay
	if cfg.Probe.Delay > 0 && !cmd.Flags().Changed("delay") {
		client.Delay = cfg.Probe.Delay
	}
	client.OnTransition = func(state probe.State) {
		fmt.Printf("-> %s\n", state)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	baseline, err := client.Probe(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("baseline: generated_at=%s nonce=%s age=%d\n",
		baseline.GeneratedAt.Format("15:04:05.000"), baseline.Nonce, baseline.Age)

	if err := client.Revalidate(ctx); err != nil {
		return err
	}

	result, err := client.Verify(ctx)
	if err != nil {
		return err
	}
	if result.Verified {
		fmt.Printf("verified: generated_at=%s nonce=%s\n",
			result.Observation.GeneratedAt.Format("15:04:05.000"), result.Observation.Nonce)
	} else {
		fmt.Println(result.Message)
	}
	return nil
}
