package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"asyncimage/pkg/cacheclient"
	"asyncimage/pkg/codec"
	"asyncimage/pkg/config"
	"asyncimage/pkg/loader"
	"asyncimage/pkg/metrics"
	"asyncimage/pkg/view"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const version = "v0.1.0"

var (
	skipCache  bool
	scale      float64
	noSuppress bool
	timeout    time.Duration
	memory     bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "asyncimage",
	Short: "Load images through a local HTTP cache",
	Long:  `asyncimage drives the image load controller headlessly: it fetches images through an RFC 7234 cache, decodes them and reports the phase a view would show.`,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [url...]",
	Short: "Load one or more images and print the resulting phase",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		cache, err := cfg.NewCache()
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		client := cacheclient.NewClient(cache,
			cacheclient.WithTimeout(cfg.Timeout),
			cacheclient.WithLogger(logger),
		)

		m := metrics.NewMetrics()
		lcfg := loader.DefaultConfiguration()
		lcfg.SkipCache = skipCache
		lcfg.Scale = cfg.Scale
		lcfg.SuppressAnimationOnCacheHit = cfg.SuppressAnimationOnCacheHit
		lcfg.Logger = logger
		lcfg.Metrics = m

		lines := make([]string, len(args))
		failed := make([]bool, len(args))
		g, ctx := errgroup.WithContext(cmd.Context())
		for i, raw := range args {
			i, raw := i, raw
			g.Go(func() error {
				line, ok, err := fetchOne(ctx, logger, client, lcfg, raw)
				if err != nil {
					return err
				}
				lines[i], failed[i] = line, !ok
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		var failures int
		for i, line := range lines {
			fmt.Println(line)
			if failed[i] {
				failures++
			}
		}
		m.LogSummary(logger)

		if failures > 0 {
			return fmt.Errorf("%d of %d images failed to load", failures, len(args))
		}
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the on-disk response cache",
}

var cacheLookupCmd = &cobra.Command{
	Use:   "lookup [url]",
	Short: "Report whether the cache holds a usable response for a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		u, err := parseURL(args[0])
		if err != nil {
			return err
		}

		cache, err := cfg.NewCache()
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}

		body, ok := cacheclient.NewClient(cache).Lookup(u)
		if !ok {
			fmt.Printf("%s is not cached\n", args[0])
			return nil
		}
		fmt.Printf("%s is cached (%d bytes)\n", args[0], len(body))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached response",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cacheDir, err := cfg.GetCacheDir()
		if err != nil {
			return err
		}

		if err := cacheclient.RemoveDiskCache(cacheDir); err != nil {
			return err
		}
		fmt.Printf("Cache %s cleared\n", cacheDir)
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&skipCache, "skip-cache", false, "ignore cached responses and force a network fetch")
	fetchCmd.Flags().Float64Var(&scale, "scale", 1, "pixels per point used when decoding")
	fetchCmd.Flags().BoolVar(&noSuppress, "no-suppress", false, "animate transitions even when the cache served the image")
	fetchCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "per-request timeout")
	fetchCmd.Flags().BoolVar(&memory, "memory", false, "use an in-memory cache instead of the disk cache")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cacheCmd.AddCommand(cacheLookupCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(cacheCmd)
}

// loadConfig reads the environment and lets explicit flags win over it.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("scale") {
		cfg.Scale = scale
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeout
	}
	if flags.Changed("no-suppress") {
		cfg.SuppressAnimationOnCacheHit = !noSuppress
	}
	if flags.Changed("memory") && memory {
		cfg.CacheMode = config.CacheModeMemory
	}

	if err := cfg.EnsureConfigDir(); err != nil {
		return nil, nil, err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	metrics.LogStartupBanner(logger, version)
	return cfg, logger, nil
}

func parseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url %s: %w", raw, err)
	}
	return u, nil
}

var textBuilders = view.Builders[string]{
	Content: func(img *codec.Image) string {
		b := img.Bounds()
		w, h := img.Size()
		return fmt.Sprintf("loaded %s %dx%d px (%gx%g pt @%gx) %s", img.Format(), b.Dx(), b.Dy(), w, h, img.Scale(), img.Digest())
	},
	Placeholder: func() string { return "placeholder" },
	Failure:     func(err error) string { return "failed: " + err.Error() },
}

// fetchOne mounts a component for raw, waits for the load to settle and
// returns the rendered line and whether an image was loaded.
func fetchOne(ctx context.Context, logger logrus.FieldLogger, svc cacheclient.Service, cfg loader.Configuration, raw string) (string, bool, error) {
	u, err := parseURL(raw)
	if err != nil {
		return "", false, err
	}

	timer := metrics.NewTimer(logger, "fetch "+raw)
	defer timer.Stop()

	var last view.Frame[string]
	comp := view.NewComponent(loader.NewController(u, svc, cfg), textBuilders, func(f view.Frame[string]) {
		last = f
	})
	comp.Mount()
	defer comp.Unmount()

	if err := comp.Controller().Wait(ctx); err != nil {
		return "", false, fmt.Errorf("interrupted while loading %s: %w", raw, err)
	}

	line := fmt.Sprintf("%s\t%s\tanimated=%t", raw, comp.View(), last.Animated)
	return line, comp.Controller().Phase().Kind() == loader.PhaseLoaded, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
