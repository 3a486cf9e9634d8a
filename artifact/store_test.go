// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	return store, dir
}

func TestPutGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	content := []byte("\x89PNG fake screenshot bytes")

	ref, err := store.Put(KindScreenshot, content)
	if err != nil {
		t.Fatal(err)
	}
	if !ref.Valid() {
		t.Fatalf("invalid ref %q", ref)
	}

	kind, data, err := store.Get(ref)
	if err != nil {
		t.Fatal(err)
	}
	if kind != KindScreenshot {
		t.Fatalf("kind = %q", kind)
	}
	if !bytes.Equal(data, content) {
		t.Fatal("content corrupted in round trip")
	}
}

func TestPutIsIdempotent(t *testing.T) {
	store, dir := newTestStore(t)
	content := []byte("same bytes")

	first, err := store.Put(KindEventTrail, content)
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Put(KindEventTrail, content)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("refs differ: %s vs %s", first, second)
	}

	entries, err := filepath.Glob(filepath.Join(dir, "*", "*.cbor"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("%d files on disk, want 1", len(entries))
	}
}

func TestGetUnknownRef(t *testing.T) {
	store, _ := newTestStore(t)

	_, _, err := store.Get(Ref(strings.Repeat("ab", 32)))
	if err == nil {
		t.Fatal("unknown ref succeeded")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("error = %v", err)
	}
}

func TestGetMalformedRef(t *testing.T) {
	store, _ := newTestStore(t)
	for _, bad := range []Ref{"", "short", Ref(strings.Repeat("zz", 32))} {
		if _, _, err := store.Get(bad); err == nil {
			t.Fatalf("malformed ref %q accepted", bad)
		}
	}
}

func TestPutSurvivesExistingShardDir(t *testing.T) {
	store, dir := newTestStore(t)
	content := []byte("sharded")

	ref, err := store.Put(KindScreenshot, content)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, string(ref[:2]), string(ref)+".cbor")); err != nil {
		t.Fatal(err)
	}

	// Shard directory still exists; a re-put must recreate the file.
	again, err := store.Put(KindScreenshot, content)
	if err != nil {
		t.Fatal(err)
	}
	if again != ref {
		t.Fatalf("refs differ after re-put: %s vs %s", again, ref)
	}
	if _, _, err := store.Get(ref); err != nil {
		t.Fatal(err)
	}
}
