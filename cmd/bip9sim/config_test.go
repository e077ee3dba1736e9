// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"testing"

	"github.com/decred/versionbits/netparams"
	"github.com/decred/versionbits/versionbits"
)

// TestLoadConfig ensures the configuration is loaded from the command line
// and config file as expected.
func TestLoadConfig(t *testing.T) {
	appData := t.TempDir()
	cfg, err := loadConfig([]string{"--appdata=" + appData})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.params != &netparams.MainNetParams {
		t.Fatalf("unexpected default network %s", cfg.params.Name)
	}
	if cfg.DBType != defaultDBType {
		t.Fatalf("unexpected default database type %q", cfg.DBType)
	}
	wantDataDir := filepath.Join(appData, defaultDataDirname, "mainnet")
	if cfg.dataDir != wantDataDir {
		t.Fatalf("mismatched data dir -- got %q, want %q", cfg.dataDir,
			wantDataDir)
	}
	if len(cfg.segments) == 0 {
		t.Fatal("default scenario has no segments")
	}

	// Options in the config file are used while the command line takes
	// precedence.
	configFile := filepath.Join(appData, defaultConfigFilename)
	contents := "[Application Options]\nsimnet=1\ndbtype=pebble\n" +
		"segment=5:+600\n"
	if err := os.WriteFile(configFile, []byte(contents), 0600); err != nil {
		t.Fatalf("unable to write config file: %v", err)
	}
	cfg, err = loadConfig([]string{"--appdata=" + appData,
		"--dbtype=leveldb", "--deployment=extra:5:0:never:10:8"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.params != &netparams.SimNetParams {
		t.Fatalf("unexpected network %s", cfg.params.Name)
	}
	if cfg.DBType != "leveldb" {
		t.Fatalf("command line option did not take precedence: %q",
			cfg.DBType)
	}
	if len(cfg.segments) != 1 || cfg.segments[0].count != 5 {
		t.Fatalf("unexpected segments %+v", cfg.segments)
	}
	wantExtra := versionbits.Deployment{Name: "extra", Bit: 5,
		Timeout: versionbits.NoTimeout, Period: 10, Threshold: 8}
	if len(cfg.extraDeployments) != 1 || cfg.extraDeployments[0] != wantExtra {
		t.Fatalf("unexpected extra deployments %+v", cfg.extraDeployments)
	}
}

// TestLoadConfigErrors ensures invalid configurations are rejected.
func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"multiple networks", []string{"--testnet", "--simnet"}},
		{"unknown database type", []string{"--dbtype=ffldb"}},
		{"invalid debug level", []string{"--debuglevel=loud"}},
		{"invalid subsystem", []string{"--debuglevel=XXXX=info"}},
		{"malformed segment", []string{"--segment=5"}},
		{"malformed deployment", []string{"--deployment=extra:5"}},
		{"missing config file", []string{"--configfile=/nonexistent/x.conf"}},
		{"unexpected argument", []string{"extra"}},
		{"non loopback profile address", []string{"--profile=0.0.0.0:6060"}},
	}

	for _, test := range tests {
		args := append([]string{"--appdata=" + t.TempDir()}, test.args...)
		if _, err := loadConfig(args); err == nil {
			t.Errorf("%q: did not receive expected error", test.name)
		}
	}
}

// TestParseAndSetDebugLevels ensures per subsystem debug levels are accepted.
func TestParseAndSetDebugLevels(t *testing.T) {
	if err := parseAndSetDebugLevels("VBIT=debug,STDB=warn"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := parseAndSetDebugLevels("info"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := parseAndSetDebugLevels("VBIT"); err == nil {
		t.Fatal("did not receive expected error")
	}
}

// TestCleanAndExpandPath ensures leading home directory references and
// environment variables are expanded in paths.
func TestCleanAndExpandPath(t *testing.T) {
	t.Setenv("BIP9SIM_TEST_DIR", "/tmp/bip9sim")

	homeDir := filepath.Dir(defaultAppDataDir)
	tests := []struct {
		name string
		path string
		want string
	}{
		{"empty", "", ""},
		{"home only", "~", homeDir},
		{"home subdir", "~/data", filepath.Join(homeDir, "data")},
		{"env var", "$BIP9SIM_TEST_DIR/logs", "/tmp/bip9sim/logs"},
		{"unclean", "/tmp//bip9sim/../x", "/tmp/x"},
		{"unknown user", "~nosuchuser-bip9sim/data", "~nosuchuser-bip9sim/data"},
	}

	// Resolve the current user by name when the platform supports it.
	if u, err := user.Current(); err == nil && u.Username != "" &&
		!strings.ContainsAny(u.Username, "\\/") {

		tests = append(tests, struct {
			name string
			path string
			want string
		}{"named user", "~" + u.Username + "/data",
			filepath.Join(u.HomeDir, "data")})
	}

	for _, test := range tests {
		if got := cleanAndExpandPath(test.path); got != test.want {
			t.Errorf("%q: mismatched path -- got %q, want %q", test.name,
				got, test.want)
		}
	}
}
