package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/godbus/dbus/v5"
	"github.com/gopxl/beep/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	loopFlag string
	shuffle  bool
	logLevel string
	volume   float64
)

var rootCmd = &cobra.Command{
	Use:   "wavescope [flags] PATH...",
	Short: "Terminal audio player with a live waveform and oscilloscope",
	Long: `wavescope plays audio files (FLAC, MP3, WAV, Ogg Vorbis) and draws the
track's waveform with a playback marker plus an oscilloscope of the audio
under the playhead. Directories are scanned recursively.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return run(cfg, args)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.config/wavescope/config.toml)")
	rootCmd.Flags().StringVarP(&loopFlag, "loop", "l", "", "loop mode: none, all or one")
	rootCmd.Flags().BoolVarP(&shuffle, "shuffle", "s", false, "shuffle the track list")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.Flags().Float64Var(&volume, "volume", -1, "initial volume 0..1")
}

// loadConfig reads the config file, applies remembered settings and then the
// flags, in that order.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	path := cfgFile
	if path == "" {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return nil, err
		}
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.App.RememberSettings {
		storage, err := NewStorage(cfg.App.Storage, true)
		if err != nil {
			return nil, err
		}
		data, err := storage.Load()
		if err != nil {
			// A corrupt settings file should not keep the player from starting.
			fmt.Fprintln(os.Stderr, "warning:", err)
		} else {
			data.ApplySettings(&cfg.App)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("loop") {
		cfg.App.LoopMode = loopFlag
	}
	if flags.Changed("shuffle") {
		cfg.App.Shuffle = shuffle
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("volume") {
		cfg.App.Volume = volume
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cfg *Config, paths []string) error {
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	tracks, err := NewLibrary(beepMetadata{}, log).Collect(paths)
	if err != nil {
		return err
	}
	log.Info("starting", zap.Int("tracks", len(tracks)))

	backend, err := newSpeakerBackend(
		beep.SampleRate(cfg.App.SampleRate),
		cfg.App.SpeakerBuffer.Duration,
		cfg.App.ResamplingQuality,
		log,
	)
	if err != nil {
		return fmt.Errorf("could not initialize audio output: %w", err)
	}
	defer backend.Close()

	m := newModel(cfg, log)
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	ctrl := NewTransportController(TransportOptions{
		Backend:    backend,
		Loader:     NewSampleDecoder(cfg.Visual.PeakPoints, cfg.Visual.Decimation, log),
		Renderer:   m.frame,
		Dispatcher: program,
		Projector:  NewVisualProjector(cfg.Visual.ScopeWindow.Duration),
		Logger:     log,
		Epsilon:    cfg.Visual.Epsilon.Duration,
		OnEvent:    m.onEvent,
	})
	ctrl.AddTracks(tracks...)
	loop, _ := ParseLoopMode(cfg.App.LoopMode)
	ctrl.SetLoopMode(loop)
	ctrl.SetShuffle(cfg.App.Shuffle)
	ctrl.SetVolume(cfg.App.Volume)

	var mpris *MPRISServer
	if cfg.App.MPRIS {
		mpris, err = NewMPRISServer(program, log)
		if err == nil {
			err = mpris.Start()
		}
		if err != nil {
			log.Warn("mpris unavailable", zap.Error(err))
			if mpris != nil {
				mpris.StopService()
			}
			mpris = nil
		}
	}
	if mpris != nil {
		defer mpris.StopService()
	}

	var notifier *Notifier
	if cfg.App.Notifications {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			log.Warn("notifications unavailable", zap.Error(err))
		} else {
			defer conn.Close()
			notifier = NewNotifier(conn, log)
		}
	}

	m.attach(ctrl, mpris, notifier)
	if err := ctrl.Load(0, true); err != nil {
		return err
	}

	_, runErr := program.Run()

	ctrl.Shutdown(cfg.App.ShutdownGrace.Duration)
	if cfg.App.RememberSettings {
		if storage, err := NewStorage(cfg.App.Storage, true); err == nil {
			if err := storage.SaveSettings(ctrl.Snapshot()); err != nil {
				log.Warn("could not save settings", zap.Error(err))
			}
		}
	}

	if runErr != nil {
		return fmt.Errorf("ui error: %w", runErr)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, FormatError(err))
		os.Exit(1)
	}
}
