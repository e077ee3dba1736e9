// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/versionbits/internal/statedb"
	"github.com/decred/versionbits/internal/version"
	"github.com/decred/versionbits/netparams"
	"github.com/decred/versionbits/versionbits"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "bip9sim.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "bip9sim.log"
	defaultLogLevel       = "info"
	defaultDBType         = statedb.TypeLevelDB
)

var (
	defaultAppDataDir = dcrutil.AppDataDir("bip9sim", false)
)

// config defines the configuration options for bip9sim.
//
// See loadConfig for details on the configuration load process.
type config struct {
	// General application behavior.
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	AppDataDir  string `short:"A" long:"appdata" description:"Application data directory for config, state and logs"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	NoFileLog   bool   `long:"nofilelogging" description:"Disable file logging"`
	Profile     string `long:"profile" description:"Enable HTTP profiling on given [addr:]port -- NOTE port must be between 1024 and 65535"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	// Network selection.
	TestNet bool `long:"testnet" description:"Use the test network deployments"`
	SimNet  bool `long:"simnet" description:"Use the simulation test network deployments"`
	RegNet  bool `long:"regnet" description:"Use the regression test network deployments"`

	// Scenario.
	Deployments []string `long:"deployment" description:"Add a deployment in the form name:bit:start:timeout:period:threshold where start may be 'always' and timeout may be 'never'; may be specified multiple times"`
	Segments    []string `long:"segment" description:"Append blocks in the form count:time[:bits[:signaling]] where time is a unix timestamp or +seconds between blocks; may be specified multiple times"`

	// State database.
	NoStateDB bool   `long:"nostatedb" description:"Do not load or save the cached deployment states"`
	DBType    string `long:"dbtype" description:"Database backend to use for the cached deployment states {leveldb, pebble}"`

	// The following fields are set by loadConfig from the options above.
	params           *netparams.Params
	dataDir          string
	extraDeployments []versionbits.Deployment
	segments         []segment
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser to
	// otheruser's home directory.  On Windows, both forward and backward
	// slashes can be used.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultAppDataDir)
		var userName string
		if i := strings.IndexAny(path, "\\/"); i != -1 {
			userName = path[1:i]
		} else {
			userName = path[1:]
		}
		switch {
		case userName == "":
			path = homeDir + path[1:]

		default:
			// Paths for unknown users are left unmodified.
			if u, err := user.Lookup(userName); err == nil {
				path = u.HomeDir + path[1+len(userName):]
			}
		}
	}

	return filepath.Clean(os.ExpandEnv(path))
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	_, err := os.Stat(name)
	return !errors.Is(err, os.ErrNotExist)
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in bip9sim functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig(args []string) (*config, error) {
	// Default config.
	cfg := config{
		AppDataDir: defaultAppDataDir,
		DebugLevel: defaultLogLevel,
		DBType:     defaultDBType,
	}

	// Pre-parse the command line options to see if an alternative config
	// file, the version flag, or an alternative application data directory
	// was specified.  Any errors aside from the help message error can be
	// ignored here since they will be caught by the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, version.String())
		os.Exit(0)
	}

	// Update the application data directory and the default config file
	// path when an alternative application data directory was specified.
	cfg.AppDataDir = cleanAndExpandPath(preCfg.AppDataDir)
	configFile := filepath.Join(cfg.AppDataDir, defaultConfigFilename)
	if preCfg.ConfigFile != "" {
		configFile = cleanAndExpandPath(preCfg.ConfigFile)
	}

	// Load additional config from file.
	parser := newConfigParser(&cfg, flags.Default)
	if fileExists(configFile) {
		err := flags.NewIniParser(parser).ParseFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if preCfg.ConfigFile != "" {
		return nil, fmt.Errorf("config file %q does not exist", configFile)
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if len(remainingArgs) > 0 {
		return nil, fmt.Errorf("unexpected arguments %v", remainingArgs)
	}

	// Multiple networks can't be selected simultaneously.
	numNets := 0
	cfg.params = &netparams.MainNetParams
	if cfg.TestNet {
		numNets++
		cfg.params = &netparams.TestNet3Params
	}
	if cfg.SimNet {
		numNets++
		cfg.params = &netparams.SimNetParams
	}
	if cfg.RegNet {
		numNets++
		cfg.params = &netparams.RegNetParams
	}
	if numNets > 1 {
		return nil, errors.New("the testnet, regnet, and simnet params can't " +
			"be used together -- choose one of the three")
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, err
	}

	// Validate the profile address.
	if cfg.Profile != "" {
		cfg.Profile = portToLocalHostAddr(cfg.Profile)
		if err := validateProfileAddr(cfg.Profile); err != nil {
			return nil, fmt.Errorf("invalid profile address: %w", err)
		}
	}

	// Validate the database backend.
	var validDBType bool
	for _, dbType := range statedb.SupportedBackends() {
		if cfg.DBType == dbType {
			validDBType = true
			break
		}
	}
	if !validDBType {
		return nil, fmt.Errorf("the specified database type [%v] is invalid "+
			"-- supported types %v", cfg.DBType, statedb.SupportedBackends())
	}

	// Append the network type to the data and log directories so they are
	// "namespaced" per network.
	cfg.dataDir = filepath.Join(cfg.AppDataDir, defaultDataDirname,
		cfg.params.Name)
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.AppDataDir, defaultLogDirname)
	}
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir), cfg.params.Name)

	// Parse the scenario.
	for _, s := range cfg.Deployments {
		d, err := parseDeployment(s)
		if err != nil {
			return nil, err
		}
		cfg.extraDeployments = append(cfg.extraDeployments, d)
	}
	for _, s := range cfg.Segments {
		seg, err := parseSegment(s)
		if err != nil {
			return nil, err
		}
		cfg.segments = append(cfg.segments, seg)
	}
	if len(cfg.segments) == 0 {
		deployments := make([]versionbits.Deployment, 0,
			len(cfg.params.Deployments)+len(cfg.extraDeployments))
		deployments = append(deployments, cfg.params.Deployments...)
		deployments = append(deployments, cfg.extraDeployments...)
		cfg.segments = defaultSegments(cfg.params.GenesisTimestamp(),
			deployments)
	}

	return &cfg, nil
}
