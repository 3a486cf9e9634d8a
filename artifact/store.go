// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact stores dynamic-analysis byproducts (screenshots
// and event trails) as content-addressed records on the local
// filesystem.
//
// Each artifact is addressed by the BLAKE3 hash of its uncompressed
// content, stored as one file containing a CBOR envelope with a
// zstd-compressed payload. Writes are atomic (temp file + rename) and
// idempotent: storing the same bytes twice yields the same reference
// and a single file.
package artifact

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// Ref is a content-addressed artifact reference: the lowercase hex
// BLAKE3-256 hash of the uncompressed content.
type Ref string

// Valid reports whether the reference is a well-formed hash string.
func (r Ref) Valid() bool {
	if len(r) != 64 {
		return false
	}
	_, err := hex.DecodeString(string(r))
	return err == nil
}

// Kind labels what an artifact is. Free-form but conventional:
// "screenshot", "event_trail".
type Kind string

const (
	// KindScreenshot is a raw PNG device capture.
	KindScreenshot Kind = "screenshot"
	// KindEventTrail is a CBOR-encoded list of session events.
	KindEventTrail Kind = "event_trail"
)

// envelope is the on-disk record. The payload is zstd-compressed;
// Size is the uncompressed length for integrity checking on read.
type envelope struct {
	Kind    Kind   `cbor:"kind"`
	Created int64  `cbor:"created"`
	Size    int64  `cbor:"size"`
	Payload []byte `cbor:"payload"`
}

// Store is a filesystem-backed artifact store. Safe for concurrent
// use: writes are atomic renames, reads never see partial files.
type Store struct {
	dir     string
	logger  *slog.Logger
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewStore opens (creating if needed) a store rooted at dir.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact: store directory is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: creating store directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("artifact: creating zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("artifact: creating zstd decoder: %w", err)
	}

	return &Store{dir: dir, logger: logger, encoder: encoder, decoder: decoder}, nil
}

// Put stores data and returns its content-addressed reference.
// Storing identical content again is a no-op returning the same Ref.
func (s *Store) Put(kind Kind, data []byte) (Ref, error) {
	hash := blake3.Sum256(data)
	ref := Ref(hex.EncodeToString(hash[:]))

	path := s.path(ref)
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	record := envelope{
		Kind:    kind,
		Created: time.Now().Unix(),
		Size:    int64(len(data)),
		Payload: s.encoder.EncodeAll(data, nil),
	}
	encoded, err := cbor.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("artifact: encoding envelope: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("artifact: creating shard directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return "", fmt.Errorf("artifact: creating temp file: %w", err)
	}
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("artifact: writing %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("artifact: closing %s: %w", ref, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("artifact: committing %s: %w", ref, err)
	}

	s.logger.Debug("artifact stored",
		"ref", string(ref),
		"kind", string(kind),
		"size", len(data),
	)
	return ref, nil
}

// Get returns the artifact's kind and uncompressed content.
func (s *Store) Get(ref Ref) (Kind, []byte, error) {
	if !ref.Valid() {
		return "", nil, fmt.Errorf("artifact: malformed reference %q", ref)
	}

	encoded, err := os.ReadFile(s.path(ref))
	if os.IsNotExist(err) {
		return "", nil, fmt.Errorf("artifact: %s: not found", ref)
	}
	if err != nil {
		return "", nil, fmt.Errorf("artifact: reading %s: %w", ref, err)
	}

	var record envelope
	if err := cbor.Unmarshal(encoded, &record); err != nil {
		return "", nil, fmt.Errorf("artifact: decoding envelope %s: %w", ref, err)
	}

	data, err := s.decoder.DecodeAll(record.Payload, nil)
	if err != nil {
		return "", nil, fmt.Errorf("artifact: decompressing %s: %w", ref, err)
	}
	if int64(len(data)) != record.Size {
		return "", nil, fmt.Errorf("artifact: %s: size mismatch, envelope says %d, payload is %d",
			ref, record.Size, len(data))
	}

	return record.Kind, data, nil
}

// path shards by the first two hash characters so no single directory
// accumulates every artifact.
func (s *Store) path(ref Ref) string {
	return filepath.Join(s.dir, string(ref[:2]), string(ref)+".cbor")
}
