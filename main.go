// Package main provides the entry point for the parley CLI application.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/parley/internal/audio"
	"github.com/dgnsrekt/parley/internal/client"
	"github.com/dgnsrekt/parley/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile     string
	serverURL      string
	playbackRate   float64
	typingInterval int
	cacheCapacity  int
	muted          bool
	style          string
	width          uint
	mouse          bool

	rootCmd = &cobra.Command{
		Use:   "parley",
		Short: "Chat with a voice on the CLI",
		Long: paragraph(
			fmt.Sprintf("\nTalk to your assistant from the terminal, %s.", keyword("out loud")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: func(*cobra.Command, []string) error {
			return runTUI()
		},
	}
)

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != styles.AutoStyle && styles.DefaultStyles[style] == nil {
		if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func validateOptions(cmd *cobra.Command) error {
	// grab config values from Viper
	serverURL = viper.GetString("server")
	playbackRate = viper.GetFloat64("rate")
	typingInterval = viper.GetInt("typing_interval")
	cacheCapacity = viper.GetInt("cache_capacity")
	muted = viper.GetBool("mute")
	mouse = viper.GetBool("mouse")
	width = viper.GetUint("width")

	if playbackRate < 0.5 || playbackRate > 2.0 {
		return fmt.Errorf("playback rate must be between 0.5 and 2.0, got %.2f", playbackRate)
	}
	if typingInterval < 1 || typingInterval > 1000 {
		return fmt.Errorf("typing interval must be between 1 and 1000 ms, got %d", typingInterval)
	}
	if cacheCapacity < 0 || cacheCapacity > 10000 {
		return fmt.Errorf("cache capacity must be between 0 and 10000, got %d", cacheCapacity)
	}

	// validate the glamour style
	style = viper.GetString("style")
	if err := validateStyle(style); err != nil {
		return err
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") { //nolint:nestif
		isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}

			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

func runTUI() error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	// use style set in env, or the flag value if unset
	if err := validateStyle(cfg.GlamourStyle); err != nil {
		cfg.GlamourStyle = style
	}

	if cfg.ServerURL == "" {
		cfg.ServerURL = serverURL
	}
	cfg.PlaybackRate = playbackRate
	cfg.TypingIntervalMS = typingInterval
	cfg.CacheCapacity = cacheCapacity
	cfg.GlamourMaxWidth = width
	cfg.EnableMouse = mouse
	if muted {
		cfg.Muted = true
	}

	if !cfg.Muted {
		if err := audio.ValidateTranscoder(); err != nil {
			log.Warn("speech may be unavailable", "error", err)
		}
	}

	// Run Bubble Tea program
	if _, err := ui.NewProgram(cfg).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}

	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", client.DefaultBaseURL, "server base URL")
	rootCmd.Flags().Float64VarP(&playbackRate, "rate", "r", 1.5, "speech playback rate")
	rootCmd.Flags().IntVar(&typingInterval, "typing-interval", 30, "typing reveal delay in milliseconds")
	rootCmd.Flags().IntVarP(&cacheCapacity, "cache-capacity", "c", 50, "audio clips kept in memory (0 disables caching)")
	rootCmd.Flags().BoolVar(&muted, "mute", false, "disable audio playback")
	rootCmd.Flags().StringVar(&style, "style", styles.AutoStyle, "style name or JSON path")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap at width (set to 0 to disable)")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("server", rootCmd.Flags().Lookup("server"))
	_ = viper.BindPFlag("rate", rootCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("typing_interval", rootCmd.Flags().Lookup("typing-interval"))
	_ = viper.BindPFlag("cache_capacity", rootCmd.Flags().Lookup("cache-capacity"))
	_ = viper.BindPFlag("mute", rootCmd.Flags().Lookup("mute"))
	_ = viper.BindPFlag("style", rootCmd.Flags().Lookup("style"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	viper.SetDefault("server", client.DefaultBaseURL)
	viper.SetDefault("rate", 1.5)
	viper.SetDefault("typing_interval", 30)
	viper.SetDefault("cache_capacity", 50)
	viper.SetDefault("mute", false)
	viper.SetDefault("style", styles.AutoStyle)
	viper.SetDefault("width", 0)

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "parley")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "parley")}, dirs...)
	}

	if c := os.Getenv("PARLEY_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("parley")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("parley")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "parley.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
