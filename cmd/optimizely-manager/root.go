package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	manager "github.com/asaschachar/optimizely-manager-go"
)

var rootCmd = &cobra.Command{
	Use:          "optimizely-manager",
	Short:        "Keep an Optimizely datafile in sync",
	Long:         `Fetch, cache and poll an Optimizely datafile and evaluate feature flags against it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

var cfgFile string

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("sdk-key", "", "sdk key of the datafile to fetch")
	flags.String("url", "", "fetch the datafile from this url instead of the CDN")
	flags.Duration("interval", manager.DefaultUpdateInterval, "time between datafile fetches")
	flags.Bool("live-updates", true, "keep polling for new datafiles")
	flags.String("cache-file", "", "bolt file used to cache the datafile")
	flags.String("log-level", "info", "one of debug, info, warning, error")
	flags.String("datafile-format", string(manager.DatafileFormatOptimizely), "how flags are read from the datafile: optimizely or rules")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

type config struct {
	SDKKey         string        `mapstructure:"sdk-key"`
	URL            string        `mapstructure:"url"`
	Interval       time.Duration `mapstructure:"interval"`
	LiveUpdates    bool          `mapstructure:"live-updates"`
	CacheFile      string        `mapstructure:"cache-file"`
	LogLevel       string        `mapstructure:"log-level"`
	DatafileFormat string        `mapstructure:"datafile-format"`
	MetricsAddr    string        `mapstructure:"metrics-addr"`
	UserID         string        `mapstructure:"user-id"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

var v = viper.New()

func loadConfig(cmd *cobra.Command) error {
	v.SetEnvPrefix("OPTIMIZELY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", cfgFile, err)
		}
	}
	return nil
}

func currentConfig() (config, error) {
	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if cfg.SDKKey == "" && cfg.URL == "" {
		return cfg, fmt.Errorf("one of --sdk-key or --url is required")
	}
	return cfg, nil
}

// managerOptions turns the cli config into manager options. The returned
// cleanup func closes the cache file.
func managerOptions(cfg config) (manager.Options, func(), error) {
	level, err := manager.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return manager.Options{}, nil, err
	}
	format, err := manager.ParseDatafileFormat(cfg.DatafileFormat)
	if err != nil {
		return manager.Options{}, nil, err
	}

	options := manager.Options{
		SDKKey: cfg.SDKKey,
		DatafileOptions: manager.DatafileOptions{
			UpdateInterval: cfg.Interval,
			LiveUpdates:    manager.Bool(cfg.LiveUpdates),
		},
		EvaluationOptions:   manager.EvaluationOptions{DatafileFormat: format},
		OutputLoggerOptions: manager.OutputLoggerOptions{LogLevel: level},
	}
	if cfg.URL != "" {
		url := cfg.URL
		options.DatafileOptions.GetURL = func(string) string { return url }
	}
	if cfg.MetricsAddr != "" {
		options.ObservabilityClient = manager.NewPrometheusObservabilityClient(prometheus.DefaultRegisterer)
	}

	cleanup := func() {}
	if cfg.CacheFile != "" {
		cache, err := manager.NewBoltCache(cfg.CacheFile)
		if err != nil {
			return manager.Options{}, nil, err
		}
		options.Cache = cache
		cleanup = func() { _ = cache.Close() }
	}
	return options, cleanup, nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(rootCmd.ErrOrStderr(), "metrics server: %v\n", err)
		}
	}()
	return srv
}
