package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/simplerecord/internal/config"
	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	configMgr *config.Manager

	rootCmd = &cobra.Command{
		Use:   "simplerecord [video-uri] [output-uri]",
		Short: "SimpleRecord - show a video source and record it",
		Long: `SimpleRecord opens a video source, shows it in a window and records every
frame to an output, both selected by URI.

With no arguments the usage is printed and the configured fallback sources
are tried in order. With one argument the source is recorded to the default
record URI. With two arguments the fallback list is never consulted.

Close the window, press Escape or q, or send SIGINT to stop.`,
		Example: `  # Record the first webcam to video.avi
  simplerecord v4l:///dev/video0

  # Record a test pattern into a Motion-JPEG AVI
  simplerecord test://bars avi:[fps=30]//bars.avi

  # Stream the screen over HTTP without a window
  simplerecord --display none screen://0 http:[addr=:8090]//stream

  # Serve status and preview on :8080 while recording
  simplerecord --http :8080 v4l:///dev/video0`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRecord,
	}
)

// flagKeys maps persistent flags to the config keys they override
var flagKeys = map[string]string{
	"log-level":       "log_level",
	"log-pretty":      "log_pretty",
	"display":         "display.backend",
	"capture-timeout": "capture_timeout",
	"sink-format":     "sink_format",
	"max-frames":      "max_frames",
	"exit-on-eos":     "exit_on_eos",
	"hud":             "display.hud",
	"http":            "http_addr",
}

func init() {
	rootCmd.PersistentPreRunE = initApp

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/simplerecord/config.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human readable console logs")
	flags.String("display", "", "display backend (x11, none, opencv)")
	flags.Duration("capture-timeout", 0, "longest wait for a frame")
	flags.String("sink-format", "", "pixel format stored by the sink, e.g. YUV420P or RGB24")
	flags.Int("max-frames", 0, "stop after this many frames (0 records until stopped)")
	flags.Bool("exit-on-eos", false, "stop when a file source reaches its end")
	flags.Bool("hud", false, "draw the recording indicator over the video")
	flags.String("http", "", "serve the status API on this address, e.g. :8080")
}

// initApp loads the configuration, binds flag overrides and sets up logging
func initApp(cmd *cobra.Command, args []string) error {
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for name, key := range flagKeys {
		if err := mgr.BindFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}

	cfg := mgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	logger.WithComponent("config").Debug().
		Str("path", mgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	configMgr = mgr
	return nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
