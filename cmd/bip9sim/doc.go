// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Bip9sim simulates version bits soft fork deployments over a synthetic chain of
block headers and reports the resulting deployment states.

The chain is described by a list of segments.  Each segment appends a number of
blocks that share the same timing and signaling behavior.  When no segments are
provided, a scenario that activates every deployment of the selected network is
simulated.

The cached deployment states are stored in a state database after each run and
restored on the next run of the same scenario.

Usage:

	bip9sim [OPTIONS]

Application Options:

	-V, --version       Display version information and exit
	-C, --configfile=   Path to configuration file
	-A, --appdata=      Application data directory for config, state and logs
	    --logdir=       Directory to log output
	    --nofilelogging Disable file logging
	    --profile=      Enable HTTP profiling on given [addr:]port
	-d, --debuglevel=   Logging level for all subsystems {trace, debug, info,
	                    warn, error, critical} (default: info)
	    --testnet       Use the test network deployments
	    --simnet        Use the simulation test network deployments
	    --regnet        Use the regression test network deployments
	    --deployment=   Add a deployment in the form
	                    name:bit:start:timeout:period:threshold
	    --segment=      Append blocks in the form count:time[:bits[:signaling]]
	    --nostatedb     Do not load or save the cached deployment states
	    --dbtype=       Database backend to use for the cached deployment
	                    states {leveldb, pebble} (default: leveldb)

Example:

Signal for the simnet testdummy deployment with 120 of every 144 blocks:

	bip9sim --simnet --segment=120:+600:28 --segment=24:+600 \
	  --segment=120:+600:28 --segment=24:+600 \
	  --segment=120:+600:28 --segment=24:+600
*/
package main
