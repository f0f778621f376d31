package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Search backends selectable with SEARCH_BACKEND.
const (
	BackendAzure    = "azure"
	BackendPgVector = "pgvector"
)

// Config is the process configuration read from the environment.
type Config struct {
	ServerAddr string

	// Azure OpenAI (chat + embeddings)
	OpenAIKey        string
	OpenAIEndpoint   string
	OpenAIAPIVersion string
	EmbedModel       string
	EmbedDimensions  int

	// Retrieval backend
	SearchBackend     string
	SearchEndpoint    string
	SearchIndex       string
	SearchKey         string
	SearchAPIVersion  string
	SearchVectorField string
	PgConn            string
	TopK              int

	HTTPTimeout time.Duration
	CORSOrigins string
	LogLevel    string
	LogFormat   string
}

// MissingError lists every required variable that was empty at startup.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Vars, ", "))
}

// Load reads the process environment, seeded from envFile when it exists.
// The returned config is usable for ambient settings (address, logging)
// even when err is a *MissingError.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		ServerAddr:        v.GetString("SERVER_ADDR"),
		OpenAIKey:         v.GetString("AZURE_OPENAI_API_KEY"),
		OpenAIEndpoint:    v.GetString("AZURE_OPENAI_ENDPOINT"),
		OpenAIAPIVersion:  v.GetString("OPENAI_API_VERSION"),
		EmbedModel:        v.GetString("EMBEDDING_MODEL"),
		EmbedDimensions:   v.GetInt("EMBEDDING_DIMENSIONS"),
		SearchBackend:     strings.ToLower(v.GetString("SEARCH_BACKEND")),
		SearchEndpoint:    v.GetString("AZURE_SEARCH_SERVICE_ENDPOINT"),
		SearchIndex:       v.GetString("AZURE_SEARCH_INDEX"),
		SearchKey:         v.GetString("AZURE_SEARCH_ADMIN_KEY"),
		SearchAPIVersion:  v.GetString("AZURE_SEARCH_API_VERSION"),
		SearchVectorField: v.GetString("AZURE_SEARCH_VECTOR_FIELD"),
		PgConn:            v.GetString("PG_CONN"),
		TopK:              v.GetInt("RAG_TOP_K"),
		HTTPTimeout:       v.GetDuration("HTTP_CLIENT_TIMEOUT"),
		CORSOrigins:       v.GetString("CORS_ALLOW_ORIGINS"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFormat:         v.GetString("LOG_FORMAT"),
	}

	return cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDR", ":8000")
	v.SetDefault("EMBEDDING_MODEL", "text-embedding-ada-002")
	v.SetDefault("EMBEDDING_DIMENSIONS", 1536)
	v.SetDefault("SEARCH_BACKEND", BackendAzure)
	v.SetDefault("AZURE_SEARCH_API_VERSION", "2024-07-01")
	v.SetDefault("AZURE_SEARCH_VECTOR_FIELD", "text_vector")
	v.SetDefault("RAG_TOP_K", 3)
	v.SetDefault("HTTP_CLIENT_TIMEOUT", 60*time.Second)
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

type envVar struct {
	name  string
	value string
}

// Validate reports the required connection parameters that are absent.
func (c *Config) Validate() error {
	required := []envVar{
		{"AZURE_OPENAI_API_KEY", c.OpenAIKey},
		{"AZURE_OPENAI_ENDPOINT", c.OpenAIEndpoint},
		{"OPENAI_API_VERSION", c.OpenAIAPIVersion},
	}

	switch c.SearchBackend {
	case BackendAzure:
		required = append(required,
			envVar{"AZURE_SEARCH_SERVICE_ENDPOINT", c.SearchEndpoint},
			envVar{"AZURE_SEARCH_INDEX", c.SearchIndex},
			envVar{"AZURE_SEARCH_ADMIN_KEY", c.SearchKey},
		)
	case BackendPgVector:
		required = append(required, envVar{"PG_CONN", c.PgConn})
	default:
		return fmt.Errorf("unknown SEARCH_BACKEND %q (want %s or %s)", c.SearchBackend, BackendAzure, BackendPgVector)
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}
	if c.TopK <= 0 {
		return fmt.Errorf("RAG_TOP_K must be positive, got %d", c.TopK)
	}
	return nil
}
