// Package cmd contains nfpcapd's command line interface implementation.
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nfpcapd-go/nfpcapd/internal/api"
	"github.com/nfpcapd-go/nfpcapd/internal/bookkeeper"
	"github.com/nfpcapd-go/nfpcapd/internal/capturestage"
	"github.com/nfpcapd-go/nfpcapd/internal/config"
	"github.com/nfpcapd-go/nfpcapd/internal/daemonize"
	"github.com/nfpcapd-go/nfpcapd/internal/flowtree"
	"github.com/nfpcapd-go/nfpcapd/internal/logging"
	"github.com/nfpcapd-go/nfpcapd/internal/metrics"
	"github.com/nfpcapd-go/nfpcapd/internal/pidfile"
	"github.com/nfpcapd-go/nfpcapd/internal/privdrop"
	"github.com/nfpcapd-go/nfpcapd/internal/supervisor"
	"github.com/nfpcapd-go/nfpcapd/pkg/version"
)

const shutdownGracePeriod = 30 * time.Second

const daemonizeMarkerEnv = "NFPCAPD_DAEMONIZED"

// cliFlags holds the command-line-only inputs that need translation before
// landing on config.Config (mutually exclusive compression flags and the
// combined active:inactive expiry flag).
type cliFlags struct {
	showVersion  bool
	compressLZ4  bool
	compressZstd bool
	compressGzip bool
	expire       string
}

// Execute builds and runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cfg := config.New()
	cli := &cliFlags{expire: "300:60"}

	cmd := &cobra.Command{
		Use:   "nfpcapd [flags] [bpf-filter]",
		Short: "nfpcapd captures packets and writes periodic nfcapd-style flow records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cli.showVersion {
				fmt.Print(version.Version())
				return nil
			}
			if len(args) > 0 {
				cfg.Capture.BPFFilter = strings.Join(args, " ")
			}
			if err := bindEnv(cmd, cfg); err != nil {
				return fmt.Errorf("failed to assemble configuration: %w", err)
			}
			if err := applyCLIOverrides(cfg, cli); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	registerFlags(cmd, cfg, cli)
	return cmd
}

func registerFlags(cmd *cobra.Command, cfg *config.Config, cli *cliFlags) {
	flags := cmd.Flags()

	flags.StringVarP(&cfg.Capture.Interface, "interface", "i", "", "capture on this live interface")
	flags.StringVarP(&cfg.Capture.ReadFile, "read-file", "r", "", "read packets from this offline pcap file instead of a live interface")
	flags.StringVarP(&cfg.Flow.Dir, "flow-dir", "l", "", "flow-record output directory")
	flags.StringVarP(&cfg.Pcap.Dir, "pcap-dir", "p", "", "pcap dual-output directory (disabled when empty)")
	flags.IntVarP(&cfg.Flow.SubdirIndex, "subdir-index", "S", 0, "subdirectory hierarchy depth for rotated files")
	flags.StringVarP(&cfg.Ident, "ident", "I", "", "exporter identifier recorded with every flow")
	flags.StringVarP(&cfg.PidFile, "pidfile", "P", "", "pidfile path")
	flags.IntVarP(&cfg.Flow.WindowSeconds, "window", "t", 300, "rotation window in seconds, minimum 2")
	flags.IntVarP(&cfg.Capture.Snaplen, "snaplen", "s", 1518, "capture snapshot length in bytes, minimum 54")
	flags.StringVarP(&cli.expire, "expire", "e", cli.expire, "active:inactive flow expiry timers in seconds")
	flags.IntVarP(&cfg.Flow.CacheSize, "cache-size", "B", flowtree.DefaultCacheSize, "maximum number of live flows")
	flags.IntVarP(&cfg.Capture.BufferMB, "buffer-mb", "b", 4, "live capture ring buffer size in MiB, 1..2047")
	flags.BoolVarP(&cli.compressLZ4, "lz4", "y", false, "compress flow files with LZ4")
	flags.BoolVarP(&cli.compressZstd, "zstd", "z", false, "compress flow files with zstd (substitutes for the original's LZO)")
	flags.BoolVarP(&cli.compressGzip, "gzip", "j", false, "compress flow files with gzip (substitutes for the original's BZ2)")
	flags.BoolVarP(&cfg.ExtensionTags, "time-extension", "T", false, "record the extension-tags setting in the configuration; output file names and contents do not change")
	flags.BoolVarP(&cfg.ExtendedDebug, "extended-debug", "E", false, "enable extended debug logging")
	flags.BoolVarP(&cfg.Daemonize, "daemonize", "D", false, "daemonize after startup")
	flags.StringVarP(&cfg.User, "user", "u", "", "drop privileges to this user after opening the capture device")
	flags.StringVarP(&cfg.Group, "group", "g", "", "drop privileges to this group after opening the capture device")
	flags.BoolVarP(&cli.showVersion, "version", "V", false, "print version and exit")
	flags.StringVar(&cfg.API.Host, "api-addr", "localhost:6520", "status API listen address (host:port or unix:/path)")
	flags.BoolVar(&cfg.API.Metrics, "api-metrics", false, "expose prometheus metrics on the status API")
}

// applyCLIOverrides resolves the mutually exclusive compression flags and
// the combined "-e active:inactive" expiry flag onto cfg (spec §6).
func applyCLIOverrides(cfg *config.Config, cli *cliFlags) error {
	switch {
	case cli.compressLZ4 && cli.compressZstd, cli.compressLZ4 && cli.compressGzip, cli.compressZstd && cli.compressGzip:
		return fmt.Errorf("-y, -z and -j are mutually exclusive")
	case cli.compressLZ4:
		cfg.Flow.Compression = "lz4"
	case cli.compressZstd:
		cfg.Flow.Compression = "zstd"
	case cli.compressGzip:
		cfg.Flow.Compression = "gzip"
	}

	active, inactive, ok := strings.Cut(cli.expire, ":")
	if !ok {
		return fmt.Errorf("-e must be of the form active:inactive, got %q", cli.expire)
	}
	a, err := strconv.Atoi(active)
	if err != nil {
		return fmt.Errorf("invalid active expiry %q: %w", active, err)
	}
	in, err := strconv.Atoi(inactive)
	if err != nil {
		return fmt.Errorf("invalid inactive expiry %q: %w", inactive, err)
	}
	cfg.Flow.ActiveSeconds = a
	cfg.Flow.InactiveSeconds = in
	cfg.Pcap.SubdirIndex = cfg.Flow.SubdirIndex

	return nil
}

// bindEnv lets the flags it lists below be overridden from an NFPCAPD_*
// environment variable, an ambient capability the original getopt CLI never
// had but that every long-running daemon in the teacher's stack carries. The
// expiry (-e), compression (-y/-z/-j) and version (-V) flags have no
// environment binding. Flags explicitly passed on the command line always
// win over the environment.
func bindEnv(cmd *cobra.Command, cfg *config.Config) error {
	v := viper.New()
	v.SetEnvPrefix("NFPCAPD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := cmd.Flags()

	envString := func(flag string, dst *string) {
		if flags.Changed(flag) {
			return
		}
		if s := v.GetString(flag); s != "" {
			*dst = s
		}
	}
	envInt := func(flag string, dst *int) {
		if flags.Changed(flag) {
			return
		}
		if s := v.GetString(flag); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				*dst = n
			}
		}
	}
	envBool := func(flag string, dst *bool) {
		if flags.Changed(flag) {
			return
		}
		if s := v.GetString(flag); s != "" {
			if b, err := strconv.ParseBool(s); err == nil {
				*dst = b
			}
		}
	}

	envString("interface", &cfg.Capture.Interface)
	envString("read-file", &cfg.Capture.ReadFile)
	envInt("snaplen", &cfg.Capture.Snaplen)
	envInt("buffer-mb", &cfg.Capture.BufferMB)
	envString("flow-dir", &cfg.Flow.Dir)
	envInt("subdir-index", &cfg.Flow.SubdirIndex)
	envInt("window", &cfg.Flow.WindowSeconds)
	envInt("cache-size", &cfg.Flow.CacheSize)
	envString("pcap-dir", &cfg.Pcap.Dir)
	envString("ident", &cfg.Ident)
	envString("pidfile", &cfg.PidFile)
	envBool("time-extension", &cfg.ExtensionTags)
	envBool("extended-debug", &cfg.ExtendedDebug)
	envBool("daemonize", &cfg.Daemonize)
	envString("user", &cfg.User)
	envString("group", &cfg.Group)
	envString("api-addr", &cfg.API.Host)
	envBool("api-metrics", &cfg.API.Metrics)

	// NFPCAPD_LOG_LEVEL / NFPCAPD_LOG_ENCODING / NFPCAPD_LOG_DESTINATION have
	// no corresponding flag, so they're bound directly by key instead.
	if s := v.GetString("log_level"); s != "" {
		cfg.Logging.Level = s
	}
	if s := v.GetString("log_encoding"); s != "" {
		cfg.Logging.Encoding = s
	}
	if s := v.GetString("log_destination"); s != "" {
		cfg.Logging.Destination = s
	}

	return nil
}

func initLogging(cfg *config.Config) error {
	level := logging.LevelFromString(cfg.Logging.Level)
	if cfg.ExtendedDebug {
		level = logging.LevelDebug
	}
	opts := []logging.Option{
		logging.WithVersion(version.Short()),
		logging.WithName("nfpcapd"),
	}
	if cfg.Logging.Destination != "" {
		opts = append(opts, logging.WithFileOutput(cfg.Logging.Destination))
	}
	return logging.Init(level, logging.EncodingFromString(cfg.Logging.Encoding), opts...)
}

// reportMetrics periodically mirrors the pipeline's status into the
// prometheus gauges/counters exposed on the metrics route (spec §4.4
// status reporting, generalized to a push-on-tick rather than pull-only).
func reportMetrics(ctx context.Context, sup *supervisor.Supervisor, m *metrics.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var lastCaptured, lastDropped, lastEvicted, lastRotations uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := sup.Status()
			m.FlowsActive.Set(float64(st.FlowsActive))
			m.NodeListLength.Set(float64(st.NodeListLength))
			m.PacketsCaptured.Add(float64(st.PacketsCaptured - lastCaptured))
			m.PacketsDropped.Add(float64(st.PacketsDropped - lastDropped))
			m.FlowsEvicted.Add(float64(st.FlowsEvicted - lastEvicted))
			m.Rotations.Add(float64(st.Rotations - lastRotations))
			lastCaptured, lastDropped = st.PacketsCaptured, st.PacketsDropped
			lastEvicted, lastRotations = st.FlowsEvicted, st.Rotations
		}
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := initLogging(cfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := logging.Logger()

	if cfg.Daemonize {
		if err := daemonize.Daemonize(daemonizeMarkerEnv); err != nil {
			return fmt.Errorf("failed to daemonize: %w", err)
		}
	}

	if cfg.PidFile != "" {
		if err := pidfile.Acquire(cfg.PidFile); err != nil {
			return fmt.Errorf("failed to acquire pidfile: %w", err)
		}
		defer pidfile.Release(cfg.PidFile)
	}

	dev, err := openDevice(cfg)
	if err != nil {
		return fmt.Errorf("failed to open capture device: %w", err)
	}
	defer dev.Close()

	if cfg.User != "" || cfg.Group != "" {
		if err := privdrop.Drop(cfg.User, cfg.Group); err != nil {
			return fmt.Errorf("failed to drop privileges: %w", err)
		}
	}

	books := bookkeeper.New()
	sup, err := supervisor.New(cfg, dev, books)
	if err != nil {
		return fmt.Errorf("failed to construct pipeline: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var apiServer *api.Server
	if cfg.API.Host != "" {
		var opts []api.Option
		if cfg.API.Metrics {
			reg := prometheus.NewRegistry()
			m := metrics.New(reg, "nfpcapd")
			go reportMetrics(ctx, sup, m)
			opts = append(opts, api.WithMetrics(reg))
		}
		apiServer = api.New(cfg.API.Host, sup, opts...)
		go func() {
			if err := apiServer.Serve(); err != nil {
				logger.Warn("status API server stopped", "error", err)
			}
		}()
	}

	logger.Info("started nfpcapd", "interface", cfg.Capture.Interface, "read_file", cfg.Capture.ReadFile)

	runErr := sup.Run(ctx)

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status API server did not shut down cleanly", "error", err)
		}
	}

	logger.Info("nfpcapd shut down")
	return runErr
}

func openDevice(cfg *config.Config) (capturestage.Device, error) {
	if cfg.Capture.ReadFile != "" {
		return capturestage.OpenFile(cfg.Capture.ReadFile, cfg.Capture.BPFFilter)
	}
	return capturestage.OpenLive(cfg.Capture.Interface, cfg.Capture.Snaplen, cfg.Capture.BufferMB, cfg.Capture.Promisc, cfg.Capture.BPFFilter)
}
