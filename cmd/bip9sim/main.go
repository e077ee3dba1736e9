// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/decred/versionbits/internal/statedb"
	"github.com/decred/versionbits/internal/version"
	"github.com/decred/versionbits/versionbits"
	flags "github.com/jessevdk/go-flags"
)

// openStateDB opens the cached deployment state database in the data
// directory.
func openStateDB(cfg *config) (*statedb.Store, error) {
	dbPath := filepath.Join(cfg.dataDir, "vbstate_"+cfg.DBType)
	if err := os.MkdirAll(cfg.dataDir, 0700); err != nil {
		return nil, err
	}
	backend, err := statedb.Open(cfg.DBType, dbPath)
	if err != nil {
		return nil, err
	}
	store, err := statedb.New(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	simLog.Infof("Loaded state database from %s", dbPath)
	return store, nil
}

// newRegistry returns a registry with the deployments of the network along
// with any extra configured deployments.
func newRegistry(cfg *config) (*versionbits.Registry, error) {
	return cfg.params.Registry(nil, cfg.extraDeployments...)
}

// run is the real main function for bip9sim.  It is necessary to work around
// the fact that deferred functions do not run when os.Exit() is called.
func run(ctx context.Context, cfg *config) error {
	if err := cfg.params.Validate(); err != nil {
		simLog.Warnf("Network deployments: %v", err)
	}
	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	sim, err := newSimulator(cfg.params, registry)
	if err != nil {
		return err
	}
	chain, err := sim.buildHeaders(ctx, cfg.segments)
	if err != nil {
		return err
	}
	simLog.Infof("Built %d simulated headers", len(chain)-1)

	var store *statedb.Store
	if !cfg.NoStateDB {
		store, err = openStateDB(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		// A stored state from a different scenario refers to blocks that are
		// not part of the simulated chain, so start over with empty caches.
		err := store.LoadRegistry(registry, sim.index.Lookup)
		if err != nil {
			simLog.Warnf("Ignoring stored deployment states: %v", err)
			registry, err = newRegistry(cfg)
			if err != nil {
				return err
			}
			sim.registry = registry
		}
	}

	if err := sim.connect(ctx, chain); err != nil {
		return err
	}
	sim.summarize()

	if store != nil {
		if err := store.SaveRegistry(registry); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !cfg.NoFileLog {
		logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
		if err := initLogRotator(logFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	simLog.Infof("Version %s (Go version %s %s/%s)", version.String(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	simLog.Infof("Simulating %s with %d %s", cfg.params.Name,
		len(cfg.segments), pickNoun(len(cfg.segments), "segment", "segments"))

	var profiler profileServer
	if cfg.Profile != "" {
		if err := profiler.Start(cfg.Profile); err != nil {
			simLog.Errorf("Unable to start profiling server: %v", err)
		}
	}
	defer profiler.Stop()

	ctx := shutdownListener()
	if err := run(ctx, cfg); err != nil {
		if !errors.Is(err, context.Canceled) {
			simLog.Criticalf("%v", err)
		}
		profiler.Stop()
		if logRotator != nil {
			logRotator.Close()
		}
		os.Exit(1)
	}
}
