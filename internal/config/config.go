package config

import "time"

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Answer  AnswerConfig
	Upload  UploadConfig
	Sheets  SheetsConfig
	Admin   AdminConfig
	Site    SiteConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// AnswerConfig tunes the matching thresholds and the optional embedding
// provider. A score equal to a threshold accepts.
type AnswerConfig struct {
	TagThreshold    float64
	ChunkThreshold  float64
	ProviderURL     string
	ProviderModel   string
	ProviderTimeout string
}

type UploadConfig struct {
	MaxBytes int
}

type SheetsConfig struct {
	Endpoint string
	Token    string
}

// AdminConfig holds the bcrypt hash of the admin credential. The plaintext
// never appears in config or storage.
type AdminConfig struct {
	TokenHash string
}

type SiteConfig struct {
	URL string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Answer: AnswerConfig{
			TagThreshold:    0.6,
			ChunkThreshold:  0.4,
			ProviderModel:   "nomic-embed-text",
			ProviderTimeout: "5s",
		},
		Upload: UploadConfig{
			MaxBytes: 10 << 20,
		},
	}
}

// ProviderTimeoutDuration parses the configured timeout, defaulting to 5s on
// a bad value.
func (a AnswerConfig) ProviderTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(a.ProviderTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/assistd/config.json, then applies ASSISTD_* environment
// overrides. Secrets (the sheet token) come from the environment only.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
