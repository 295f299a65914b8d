package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/hl7gate/internal/storage"
)

const (
	DefaultPort    = 1080
	DefaultWorkers = 3

	UploadFailureDrop = "drop"
	UploadFailureExit = "exit"

	EnvBucket         = "S3_BUCKET"
	EnvStorageBackend = "HL7GATE_STORAGE_BACKEND"
	EnvStorageDir     = "HL7GATE_STORAGE_DIR"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config is the resolved gateway process configuration.
type Config struct {
	Port            int
	Workers         int
	AdminAddr       string
	CorsOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int
	UploadFailure   string
	Storage         storage.Config
}

// fileConfig mirrors the TOML layout; durations are Go duration strings.
type fileConfig struct {
	Port            int         `toml:"port"`
	Workers         int         `toml:"workers"`
	AdminAddr       string      `toml:"admin_addr"`
	CorsOrigins     []string    `toml:"cors_origins"`
	ReadTimeout     string      `toml:"read_timeout"`
	WriteTimeout    string      `toml:"write_timeout"`
	MaxMessageBytes int         `toml:"max_message_bytes"`
	UploadFailure   string      `toml:"upload_failure"`
	Storage         fileStorage `toml:"storage"`
}

type fileStorage struct {
	Backend     string `toml:"backend"`
	Bucket      string `toml:"bucket"`
	Region      string `toml:"region"`
	Endpoint    string `toml:"endpoint"`
	PathStyle   bool   `toml:"path_style"`
	Prefix      string `toml:"prefix"`
	Dir         string `toml:"dir"`
	Compression string `toml:"compression"`
}

func Default() Config {
	return Config{
		Port:            DefaultPort,
		Workers:         DefaultWorkers,
		AdminAddr:       "",
		CorsOrigins:     []string{"http://localhost:3000"},
		MaxMessageBytes: 8 * 1024 * 1024,
		UploadFailure:   UploadFailureDrop,
		Storage: storage.Config{
			Backend:     storage.BackendS3,
			Region:      "us-east-1",
			Compression: storage.CompressionNone,
		},
	}
}

// Load overlays the keys present in the TOML file at path onto Default. An
// empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}

	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("read_timeout") {
		d, err := parseDuration(raw.ReadTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := parseDuration(raw.WriteTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.WriteTimeout = d
	}
	if meta.IsDefined("max_message_bytes") {
		cfg.MaxMessageBytes = raw.MaxMessageBytes
	}
	if meta.IsDefined("upload_failure") {
		cfg.UploadFailure = strings.ToLower(strings.TrimSpace(raw.UploadFailure))
	}

	s := &cfg.Storage
	if meta.IsDefined("storage", "backend") {
		s.Backend = strings.ToLower(strings.TrimSpace(raw.Storage.Backend))
	}
	if meta.IsDefined("storage", "bucket") {
		s.Bucket = strings.TrimSpace(raw.Storage.Bucket)
	}
	if meta.IsDefined("storage", "region") {
		s.Region = strings.TrimSpace(raw.Storage.Region)
	}
	if meta.IsDefined("storage", "endpoint") {
		s.Endpoint = strings.TrimSpace(raw.Storage.Endpoint)
	}
	if meta.IsDefined("storage", "path_style") {
		s.PathStyle = raw.Storage.PathStyle
	}
	if meta.IsDefined("storage", "prefix") {
		s.Prefix = strings.TrimSpace(raw.Storage.Prefix)
	}
	if meta.IsDefined("storage", "dir") {
		s.Dir = strings.TrimSpace(raw.Storage.Dir)
	}
	if meta.IsDefined("storage", "compression") {
		s.Compression = strings.ToLower(strings.TrimSpace(raw.Storage.Compression))
	}
	return cfg, nil
}

// ApplyEnv lets the environment name the upload destination.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvStorageBackend)); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(getenv(EnvBucket)); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := strings.TrimSpace(getenv(EnvStorageDir)); v != "" {
		cfg.Storage.Dir = v
	}
}

// ParsePort reads the positional port argument. ok is false when raw is not a
// usable TCP port.
func ParsePort(raw string) (int, bool) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port < 1 || port > 65535 {
		return DefaultPort, false
	}
	return port, true
}

func Validate(cfg Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Port)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidConfig, cfg.Workers)
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	if cfg.MaxMessageBytes < 0 {
		return fmt.Errorf("%w: max_message_bytes must not be negative", ErrInvalidConfig)
	}
	switch cfg.UploadFailure {
	case UploadFailureDrop, UploadFailureExit:
	default:
		return fmt.Errorf("%w: upload_failure must be %q or %q, got %q", ErrInvalidConfig, UploadFailureDrop, UploadFailureExit, cfg.UploadFailure)
	}
	return cfg.Storage.Validate()
}

// ListenAddr is the MLLP listener address for cfg.Port on all interfaces.
func (c Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
