// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package devicepool

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSeedParsesComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.jsonc")
	content := `{
    // rack 3, keep for regression triage
    "emulator": [
        "http://emulator-lab1:5555", // primary
        "http://emulator-lab2:5555",
    ],
    "sandbox": ["http://sandbox1:5555"]
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	pool := New(&fakeProvisioner{}, 1, nil)
	if err := pool.LoadSeed(path, "emulator"); err != nil {
		t.Fatal(err)
	}

	if stats := pool.Stats(); stats.Available != 2 {
		t.Fatalf("available = %d, want the 2 emulator entries only", stats.Available)
	}
}

func TestLoadSeedMissingFileIsNotAnError(t *testing.T) {
	pool := New(&fakeProvisioner{}, 1, nil)
	if err := pool.LoadSeed(filepath.Join(t.TempDir(), "absent.jsonc"), "emulator"); err != nil {
		t.Fatal(err)
	}
	if err := pool.LoadSeed("", "emulator"); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSeedMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.jsonc")
	if err := os.WriteFile(path, []byte(`{"emulator": [unquoted]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	pool := New(&fakeProvisioner{}, 1, nil)
	if err := pool.LoadSeed(path, "emulator"); err == nil {
		t.Fatal("malformed seed accepted")
	}
}
