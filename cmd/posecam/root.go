package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ayusman/posecam/internal/app"
	"github.com/ayusman/posecam/internal/capture"
	"github.com/ayusman/posecam/internal/config"
	"github.com/ayusman/posecam/internal/detector"
	"github.com/ayusman/posecam/internal/logging"
	"github.com/ayusman/posecam/internal/metrics"
	"github.com/ayusman/posecam/internal/server"
	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

// Options holds the command line overrides for the config file.
type Options struct {
	ConfigPath string
	Addr       string
	DeviceID   int
	ModelPath  string
	Backend    string
	LogLevel   string
}

var opts Options

var rootCmd = &cobra.Command{
	Use:          "posecam",
	Short:        "Serve pose landmarks from a webcam over HTTP",
	Version:      Version, // This enables the --version flag
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cmd)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		data, err := cfg.Marshal()
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

// Execute runs the root command until it returns or the process is signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	flags.StringVar(&opts.Addr, "addr", "", "HTTP listen address (default "+config.DefaultAddr+")")
	flags.IntVar(&opts.DeviceID, "device", 0, "Camera device index")
	flags.StringVar(&opts.ModelPath, "model", "", "Path to the pose landmarker .task model")
	flags.StringVar(&opts.Backend, "backend", "", "Detector backend: mediapipe or mock")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the config file and applies flag overrides. A missing
// file is only an error when --config was given explicitly. The returned
// path is empty when no file was read.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	explicit := cmd.Flags().Changed("config")

	var (
		cfg *config.Config
		err error
	)
	if explicit {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadOrDefault(opts.ConfigPath)
	}
	if err != nil {
		return nil, "", err
	}

	if err := applyOverrides(cmd, cfg); err != nil {
		return nil, "", err
	}

	path := ""
	if _, err := os.Stat(opts.ConfigPath); err == nil {
		path = opts.ConfigPath
	}
	return cfg, path, nil
}

// applyOverrides copies explicitly set flags into cfg and revalidates it.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("addr") {
		cfg.Server.Addr = opts.Addr
	}
	if flags.Changed("device") {
		cfg.Camera.DeviceID = opts.DeviceID
	}
	if flags.Changed("model") {
		cfg.Detector.ModelPath = opts.ModelPath
	}
	if flags.Changed("backend") {
		cfg.Detector.Backend = opts.Backend
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.LogLevel
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func serve(ctx context.Context, cmd *cobra.Command) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level, err := logging.Setup(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}

	slog.Info("starting posecam",
		"version", Version,
		"config", path,
		"addr", cfg.Server.Addr,
		"device", cfg.Camera.DeviceID,
		"backend", cfg.Detector.Backend,
	)

	m := metrics.New()

	// The model is loaded before the camera is touched; either failing is fatal.
	det, err := newDetector(cfg)
	if err != nil {
		return fmt.Errorf("load pose model: %w", err)
	}

	a, err := app.New(app.Config{
		Camera:   capture.NewCamera(cfg.CameraSettings()),
		Detector: det,
		Retry:    cfg.RetryPolicy(),
		FPS:      cfg.Camera.FPS,
		Metrics:  m,
	})
	if err != nil {
		det.Close()
		return err
	}
	defer a.Stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	if path != "" {
		r := &reloader{current: cfg, level: level, app: a, overrides: func(next *config.Config) error {
			return applyOverrides(cmd, next)
		}}
		go func() {
			if err := config.Watch(ctx, path, r.apply); err != nil {
				slog.Warn("config hot reload disabled", "error", err)
			}
		}()
	}

	sc := cfg.ServerSettings()
	sc.Pipeline = a
	sc.Metrics = m
	if sc.StaticDir == "" {
		sc.StaticDir = findWebDir()
	}
	if sc.StaticDir != "" {
		slog.Info("serving static files", "dir", sc.StaticDir)
	}

	return server.New(sc).ListenAndServe(ctx, cfg.Server.Addr)
}

func newDetector(cfg *config.Config) (detector.Detector, error) {
	if cfg.Detector.Backend == config.BackendMock {
		slog.Warn("using mock pose detector")
		d := detector.NewMockDetector()
		d.SetLandmarks(detector.StandingPoseLandmarks())
		return d, nil
	}
	return detector.NewMediaPipeDetector(cfg.DetectorSettings())
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.posecam/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".posecam", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
