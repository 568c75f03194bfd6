package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// RAGSettings are the tunables of chunking, retrieval and conversation.
type RAGSettings struct {
	ChunkSize          int     `toml:"chunk_size"`
	ChunkOverlap       int     `toml:"chunk_overlap"`
	MaxResults         int     `toml:"max_results"`
	MaxHistory         int     `toml:"max_history"`
	MaxModelCalls      int     `toml:"max_model_calls"`
	MaxResolveDistance float64 `toml:"max_resolve_distance"`
}

// DefaultRAGSettings returns the built-in tunables.
func DefaultRAGSettings() RAGSettings {
	return RAGSettings{
		ChunkSize:     800,
		ChunkOverlap:  100,
		MaxResults:    5,
		MaxHistory:    2,
		MaxModelCalls: 2,
	}
}

// Validate checks that the settings are usable together.
func (s *RAGSettings) Validate() error {
	switch {
	case s.ChunkSize <= 0:
		return goerr.Wrap(ErrInvalidConfig, "chunk_size must be positive", goerr.V("chunk_size", s.ChunkSize))
	case s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize:
		return goerr.Wrap(ErrInvalidConfig, "chunk_overlap must be in [0, chunk_size)",
			goerr.V("chunk_overlap", s.ChunkOverlap), goerr.V("chunk_size", s.ChunkSize))
	case s.MaxResults <= 0:
		return goerr.Wrap(ErrInvalidConfig, "max_results must be positive", goerr.V("max_results", s.MaxResults))
	case s.MaxHistory < 0:
		return goerr.Wrap(ErrInvalidConfig, "max_history must not be negative", goerr.V("max_history", s.MaxHistory))
	case s.MaxModelCalls < 1:
		return goerr.Wrap(ErrInvalidConfig, "max_model_calls must be at least 1", goerr.V("max_model_calls", s.MaxModelCalls))
	case s.MaxResolveDistance < 0:
		return goerr.Wrap(ErrInvalidConfig, "max_resolve_distance must not be negative",
			goerr.V("max_resolve_distance", s.MaxResolveDistance))
	}
	return nil
}

// fileConfig is the layout of the TOML configuration file.
type fileConfig struct {
	RAG RAGSettings `toml:"rag"`
}

// LoadRAGSettings reads the [rag] table of a TOML file over the defaults.
// Keys absent from the file keep their default values.
func LoadRAGSettings(path string) (RAGSettings, error) {
	settings := DefaultRAGSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return settings, goerr.Wrap(ErrConfigNotFound, "failed to read config file", goerr.V(ConfigPathKey, path))
		}
		return settings, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	cfg := fileConfig{RAG: settings}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return settings, goerr.Wrap(ErrInvalidConfig, "failed to parse config file",
			goerr.V(ConfigPathKey, path), goerr.V("cause", err.Error()))
	}

	return cfg.RAG, nil
}

// RAG holds CLI flags for the RAG tunables. Flags given explicitly override
// the configuration file.
type RAG struct {
	configPath string
	flagValues RAGSettings
}

// Flags returns CLI flags for RAG configuration
func (r *RAG) Flags() []cli.Flag {
	d := DefaultRAGSettings()
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to a TOML configuration file with a [rag] table",
			Category:    "RAG",
			Sources:     cli.EnvVars("SYLLABUS_CONFIG"),
			Destination: &r.configPath,
		},
		&cli.IntFlag{
			Name:        "chunk-size",
			Usage:       "Maximum chunk length in characters",
			Category:    "RAG",
			Value:       d.ChunkSize,
			Sources:     cli.EnvVars("SYLLABUS_CHUNK_SIZE"),
			Destination: &r.flagValues.ChunkSize,
		},
		&cli.IntFlag{
			Name:        "chunk-overlap",
			Usage:       "Characters of trailing sentences carried into the next chunk",
			Category:    "RAG",
			Value:       d.ChunkOverlap,
			Sources:     cli.EnvVars("SYLLABUS_CHUNK_OVERLAP"),
			Destination: &r.flagValues.ChunkOverlap,
		},
		&cli.IntFlag{
			Name:        "max-results",
			Usage:       "Number of chunks returned by a content search",
			Category:    "RAG",
			Value:       d.MaxResults,
			Sources:     cli.EnvVars("SYLLABUS_MAX_RESULTS"),
			Destination: &r.flagValues.MaxResults,
		},
		&cli.IntFlag{
			Name:        "max-history",
			Usage:       "Number of past exchanges sent with a query",
			Category:    "RAG",
			Value:       d.MaxHistory,
			Sources:     cli.EnvVars("SYLLABUS_MAX_HISTORY"),
			Destination: &r.flagValues.MaxHistory,
		},
		&cli.IntFlag{
			Name:        "max-model-calls",
			Usage:       "Maximum model invocations per query",
			Category:    "RAG",
			Value:       d.MaxModelCalls,
			Sources:     cli.EnvVars("SYLLABUS_MAX_MODEL_CALLS"),
			Destination: &r.flagValues.MaxModelCalls,
		},
		&cli.FloatFlag{
			Name:        "max-resolve-distance",
			Usage:       "Reject course name matches farther than this cosine distance (0 disables)",
			Category:    "RAG",
			Value:       d.MaxResolveDistance,
			Sources:     cli.EnvVars("SYLLABUS_MAX_RESOLVE_DISTANCE"),
			Destination: &r.flagValues.MaxResolveDistance,
		},
	}
}

// Configure merges defaults, the configuration file and explicitly set flags.
func (r *RAG) Configure(c *cli.Command) (RAGSettings, error) {
	settings := DefaultRAGSettings()
	if r.configPath != "" {
		loaded, err := LoadRAGSettings(r.configPath)
		if err != nil {
			return settings, err
		}
		settings = loaded
	}

	if c != nil {
		if c.IsSet("chunk-size") {
			settings.ChunkSize = r.flagValues.ChunkSize
		}
		if c.IsSet("chunk-overlap") {
			settings.ChunkOverlap = r.flagValues.ChunkOverlap
		}
		if c.IsSet("max-results") {
			settings.MaxResults = r.flagValues.MaxResults
		}
		if c.IsSet("max-history") {
			settings.MaxHistory = r.flagValues.MaxHistory
		}
		if c.IsSet("max-model-calls") {
			settings.MaxModelCalls = r.flagValues.MaxModelCalls
		}
		if c.IsSet("max-resolve-distance") {
			settings.MaxResolveDistance = r.flagValues.MaxResolveDistance
		}
	}

	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// LogAttrs returns log attributes for the RAG configuration
func (r *RAG) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("config", r.configPath),
		slog.Int("chunk_size", r.flagValues.ChunkSize),
		slog.Int("chunk_overlap", r.flagValues.ChunkOverlap),
		slog.Int("max_results", r.flagValues.MaxResults),
		slog.Int("max_history", r.flagValues.MaxHistory),
		slog.Int("max_model_calls", r.flagValues.MaxModelCalls),
	}
}
