// Package storage persists framed message payloads to an object store.
//
// The gateway only sees Uploader. Store layers key prefixing, optional zstd
// compression and a blake3 digest over one Backend (s3, file or memory).
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/hl7gate/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
)

const (
	BackendS3     = "s3"
	BackendFile   = "file"
	BackendMemory = "memory"

	CompressionNone = "none"
	CompressionZstd = "zstd"

	KeySuffix   = ".hl7"
	ContentType = "application/hl7-v2"
)

var (
	ErrDestinationRequired = errors.New("storage: upload destination required")
	ErrUnknownBackend      = errors.New("storage: unknown backend")
	ErrUnknownCompression  = errors.New("storage: unknown compression")
)

// Uploader receives one payload under a unique key.
type Uploader interface {
	Upload(ctx context.Context, key string, payload []byte) error
}

// Object is what a Backend writes for one key.
type Object struct {
	Body            []byte
	Digest          string
	ContentEncoding string
}

type Backend interface {
	Put(ctx context.Context, key string, obj Object) error
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend     string
	Bucket      string
	Region      string
	Endpoint    string
	PathStyle   bool
	Prefix      string
	Dir         string
	Compression string
}

// NewKey returns a fresh storage key: a random (v4) uuid plus ".hl7".
func NewKey() string {
	return uuid.NewString() + KeySuffix
}

// Digest is the hex blake3-256 of payload.
func Digest(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (c Config) Validate() error {
	switch normalize(c.Backend) {
	case BackendS3:
		if strings.TrimSpace(c.Bucket) == "" {
			return fmt.Errorf("%w: s3 bucket is empty", ErrDestinationRequired)
		}
	case BackendFile:
		if strings.TrimSpace(c.Dir) == "" {
			return fmt.Errorf("%w: file dir is empty", ErrDestinationRequired)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	switch normalize(c.Compression) {
	case "", CompressionNone, CompressionZstd:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCompression, c.Compression)
	}
	return nil
}

// Store is the Uploader handed to workers.
type Store struct {
	name     string
	backend  Backend
	prefix   string
	compress bool
}

var _ Uploader = (*Store)(nil)

// Open validates cfg and connects the configured backend. Configuration
// problems surface here, at startup, never per request.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var (
		backend Backend
		err     error
	)
	name := normalize(cfg.Backend)
	switch name {
	case BackendS3:
		backend, err = NewS3(ctx, cfg)
	case BackendFile:
		backend, err = NewFile(cfg.Dir)
	case BackendMemory:
		backend = NewMemory()
	}
	if err != nil {
		return nil, err
	}
	return NewStore(name, backend, cfg), nil
}

func NewStore(name string, backend Backend, cfg Config) *Store {
	return &Store{
		name:     name,
		backend:  backend,
		prefix:   strings.TrimSpace(cfg.Prefix),
		compress: normalize(cfg.Compression) == CompressionZstd,
	}
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) Backend() Backend {
	return s.backend
}

// ObjectKey is the final object name written for key.
func (s *Store) ObjectKey(key string) string {
	out := s.prefix + key
	if s.compress {
		out += zstdSuffix
	}
	return out
}

func (s *Store) Upload(ctx context.Context, key string, payload []byte) error {
	start := time.Now()
	obj := Object{Body: payload, Digest: Digest(payload)}
	if s.compress {
		obj.Body = compressZstd(payload)
		obj.ContentEncoding = CompressionZstd
	}
	objectKey := s.ObjectKey(key)

	err := s.backend.Put(ctx, objectKey, obj)
	observability.RecordUpload(s.name, time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", objectKey, err)
	}
	log.Debug().
		Str("backend", s.name).
		Str("key", objectKey).
		Int("bytes", len(payload)).
		Int("stored_bytes", len(obj.Body)).
		Str("blake3", obj.Digest).
		Dur("duration", time.Since(start)).
		Msg("payload stored")
	return nil
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
