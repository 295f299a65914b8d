package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const templateHeader = `# hl7gate configuration.
# S3_BUCKET in the environment overrides storage.bucket; a positional CLI
# argument overrides port. Durations use Go syntax ("30s"); "0" disables.

`

// Template renders the defaults as a commented TOML document.
func Template() (string, error) {
	cfg := Default()
	out := fileConfig{
		Port:            cfg.Port,
		Workers:         cfg.Workers,
		AdminAddr:       "127.0.0.1:9180",
		CorsOrigins:     cfg.CorsOrigins,
		ReadTimeout:     cfg.ReadTimeout.String(),
		WriteTimeout:    cfg.WriteTimeout.String(),
		MaxMessageBytes: cfg.MaxMessageBytes,
		UploadFailure:   cfg.UploadFailure,
		Storage: fileStorage{
			Backend:     cfg.Storage.Backend,
			Bucket:      "",
			Region:      cfg.Storage.Region,
			Prefix:      "inbound/",
			Dir:         "local/messages",
			Compression: cfg.Storage.Compression,
		},
	}
	body, err := toml.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return templateHeader + string(body), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
