package ui

// Config contains player configuration.
type Config struct {
	Title          string
	Engine         string
	MaxChunkLength int

	// Quit once the lesson has been read to the end
	QuitOnComplete bool

	// For debugging the UI
	AltScreen     bool `env:"CIVICHERO_ALT_SCREEN"      envDefault:"true"`
	VisibleChunks int  `env:"CIVICHERO_VISIBLE_CHUNKS" envDefault:"5"`
}
