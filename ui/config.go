package ui

// Config contains TUI-specific configuration.
type Config struct {
	// ServerURL is the parley server address.
	ServerURL string `env:"PARLEY_SERVER"`

	// PlaybackRate speeds up spoken replies.
	PlaybackRate float64 `env:"PARLEY_RATE" envDefault:"1.5"`

	// TypingIntervalMS is the per-character reveal delay in milliseconds.
	TypingIntervalMS int `env:"PARLEY_TYPING_INTERVAL" envDefault:"30"`

	// CacheCapacity is the number of audio clips kept in memory. Zero
	// disables the cache.
	CacheCapacity int `env:"PARLEY_CACHE_CAPACITY" envDefault:"50"`

	// Muted starts the session without audio playback.
	Muted bool `env:"PARLEY_MUTED"`

	GlamourMaxWidth uint
	GlamourStyle    string `env:"GLAMOUR_STYLE"`
	EnableMouse     bool

	// For debugging the UI
	GlamourEnabled bool `env:"PARLEY_ENABLE_GLAMOUR" envDefault:"true"`
}
