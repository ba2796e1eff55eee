package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	ashperf "github.com/Borislavv/go-ash-perf"
	"github.com/Borislavv/go-ash-perf/config"
	"github.com/Borislavv/go-ash-perf/internal/compressor"
	"github.com/Borislavv/go-ash-perf/internal/network"
	"github.com/Borislavv/go-ash-perf/internal/shared/bytes"
	"github.com/Borislavv/go-ash-perf/model"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "ashperf",
		Short:         "Inspect and exercise the adaptive performance optimizer",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a yaml config")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log debug messages")

	root.AddCommand(
		newStatusCmd(flags),
		newCompressCmd(flags),
		newProbeCmd(flags),
		newServeMetricsCmd(flags),
	)
	return root
}

func (f *rootFlags) load() (*config.Optimizer, error) {
	if f.configPath == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(f.configPath)
}

func (f *rootFlags) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (f *rootFlags) optimizer(cmd *cobra.Command) (*ashperf.Optimizer, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, err
	}
	o, err := ashperf.New(cmd.Context(), cfg, f.logger(cmd.ErrOrStderr()))
	if err != nil {
		return nil, err
	}
	if err = o.Initialize(cmd.Context()); err != nil {
		_ = o.Close()
		return nil, err
	}
	return o, nil
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Detect the device and network and print the derived settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := flags.optimizer(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = o.Close() }()

			out := struct {
				Status   model.Status              `json:"status"`
				Settings model.PerformanceSettings `json:"settings"`
				Device   model.DeviceProfile       `json:"device"`
				Network  model.NetworkState        `json:"network"`
			}{
				Status:   o.OptimizationStatus(),
				Settings: o.Settings(),
			}
			m := o.PerformanceMetrics()
			out.Device, out.Network = m.DeviceInfo, m.NetworkInfo

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func newCompressCmd(flags *rootFlags) *cobra.Command {
	var (
		level string
		file  string
	)
	cmd := &cobra.Command{
		Use:   "compress [text]",
		Short: "Compress text or a JSON file at the given level",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl := model.CompressionLevel(level)
			if !lvl.Valid() {
				return fmt.Errorf("unknown compression level %q", level)
			}

			var input string
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				input = string(data)
			case len(args) == 1:
				input = args[0]
			default:
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				input = string(data)
			}

			out := compressor.New(nil).CompressString(input, lvl)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
			flags.logger(cmd.ErrOrStderr()).Debug("compressed",
				"level", lvl,
				"in", bytes.FmtMem(uint64(len(input))),
				"out", bytes.FmtMem(uint64(len(out))),
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&level, "level", "l", string(model.CompressionMaximum), "low, medium, high or maximum")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the payload from a file")
	return cmd
}

func newProbeCmd(flags *rootFlags) *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Time a GET of the probe resource and print the speed class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if url != "" {
				cfg.Network.ProbeURL = url
			}
			if timeout > 0 {
				cfg.Network.ProbeTimeout = timeout
			}
			if cfg.Network.ProbeURL == "" {
				return errors.New("probe url is required (--url or network.probe_url)")
			}

			mon := network.New(cmd.Context(), cfg.Network, flags.logger(cmd.ErrOrStderr()))
			defer func() { _ = mon.Close() }()

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), mon.ProbeSpeed(cmd.Context()))
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "probe resource url")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "probe timeout (default 5s)")
	return cmd
}

func newServeMetricsCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Initialize the optimizer and expose its prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := flags.optimizer(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = o.Close() }()

			mux := http.NewServeMux()
			mux.Handle("/metrics", o.MetricsHandler())
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()

			flags.logger(cmd.ErrOrStderr()).Info("serving metrics", "addr", addr)
			if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve metrics: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9464", "listen address")
	return cmd
}
