package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gcalfeed/internal/config"
	"gcalfeed/internal/feed"
	appLog "gcalfeed/internal/log"
	"gcalfeed/internal/pipeline"
	"gcalfeed/internal/render"
	"gcalfeed/internal/scheduler"
	"gcalfeed/internal/web"
)

// snapshotTTL bounds how old the feed snapshot served over HTTP may get when
// a scheduled refresh was missed.
const snapshotTTL = time.Hour

type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
	html       bool
}

func main() {
	flags := parseFlags()

	if err := config.LoadEnvFile(flags.envFile); err != nil {
		appLog.Error("failed to load env file", err, "path", flags.envFile)
		os.Exit(1)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()

	// CLI --listen overrides config file and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	loc, err := conf.Location()
	if err != nil {
		appLog.Warn("unknown timezone; using local time", "timezone", conf.Timezone, "err", err)
	}

	appLog.Info("gcalfeed starting",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"refresh", conf.RefreshCron,
		"items", conf.Items,
		"mode", conf.Mode,
		"horizon_days", conf.HorizonDays,
		"until_policy", conf.UntilPolicy,
		"feed_count", len(conf.Feeds),
		"once", flags.once,
	)

	svc, err := feed.NewServiceFromConfig(conf, loc, snapshotTTL)
	if err != nil {
		appLog.Error("no usable feeds", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once {
		if err := runOnce(ctx, conf, svc, loc, flags.html); err != nil {
			appLog.Error("single run failed", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, conf, svc, loc); err != nil {
		appLog.Error("gcalfeed stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("gcalfeed exiting")
}

// runOnce fetches all feeds, runs the pipeline once and prints the result to
// stdout, as JSON or as the shortlist fragment.
func runOnce(ctx context.Context, conf *config.Config, svc *feed.Service, loc *time.Location, html bool) error {
	if err := svc.Refresh(ctx); err != nil {
		return err
	}
	events, err := svc.Events(ctx)
	if err != nil {
		return err
	}
	list := pipeline.Run(events, pipeline.OptionsFromConfig(conf, loc))

	if html {
		out, err := render.Shortlist(list, render.FormatFromConfig(conf))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, out)
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}

// serve runs the refresh scheduler and the HTTP server until ctx is done.
func serve(ctx context.Context, conf *config.Config, svc *feed.Service, loc *time.Location) error {
	sched, err := scheduler.New(conf.RefreshCron, loc)
	if err != nil {
		return err
	}

	// Warm the snapshot so the first request does not wait for the feeds.
	if err := svc.Refresh(ctx); err != nil {
		appLog.Warn("initial feed refresh failed", "err", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx, func(ctx context.Context) {
			if err := svc.Refresh(ctx); err != nil {
				appLog.Error("scheduled feed refresh failed", err)
			}
		})
	}()

	err = web.NewServer(conf, svc, loc).Run(ctx)
	// A listener failure has to stop the scheduler as well.
	cancel()
	wg.Wait()
	return err
}

func parseFlags() flagConfig {
	var cfg flagConfig

	defaultConfig := os.Getenv(config.EnvConfigPath)
	if defaultConfig == "" {
		defaultConfig = "/etc/gcalfeed/config.yaml"
	}

	flag.StringVar(&cfg.configPath, "config", defaultConfig, "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Optional dotenv file with GCALFEED_* overrides")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch feeds, print the event list and exit")
	flag.BoolVar(&cfg.html, "html", false, "With -once, print the shortlist HTML fragment instead of JSON")

	flag.Parse()

	return cfg
}
