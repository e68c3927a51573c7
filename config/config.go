// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config defines the node configuration and loads it from the
// command line and an optional configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/engine/spow"
	"github.com/randchain/randchaind/params"
)

const (
	defaultConfigFilename = "randchaind.conf"
	defaultLogFilename    = "randchaind.log"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultDebugLevel     = "info"
	defaultMaxPeers       = 32
	defaultBanThreshold   = 100
	defaultBanDuration    = time.Hour
	defaultDbCacheSize    = 64
	defaultTrustLevel     = "full"
	defaultRPCListener    = "127.0.0.1:28334"
)

// defaultHomeDir is the base directory the node keeps its data and logs
// under unless overridden.
var defaultHomeDir = appDataDir()

func appDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".randchaind")
}

// Config defines the configuration options for the node.
//
// See LoadConfig for details on the configuration load process.
type Config struct {
	HomeDir       string        `short:"A" long:"appdata" description:"Path to application home directory"`
	ShowVersion   bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile    string        `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir       string        `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir        string        `long:"logdir" description:"Directory to log output"`
	NoFileLogging bool          `long:"nofilelogging" description:"Disable file logging"`
	Listener      string        `long:"listen" description:"Interface/port to listen for peer connections"`
	RPCListener   string        `long:"rpclisten" description:"Interface/port to listen for RPC connections"`
	NoRPC         bool          `long:"norpc" description:"Disable the administrative RPC server"`
	MaxPeers      int           `long:"maxpeers" description:"Max number of inbound and outbound peers"`
	BanDuration   time.Duration `long:"banduration" description:"How long to ban misbehaving peers.  Valid time units are {s, m, h}.  Minimum 1 second"`
	BanThreshold  uint32        `long:"banthreshold" description:"Maximum allowed ban score before disconnecting and banning misbehaving peers"`
	MaxOrphans    int           `long:"maxorphans" description:"Max number of orphan blocks to keep in memory"`
	DbCacheSize   int           `long:"dbcachesize" description:"Block database cache size in MiB"`
	TrustLevel    string        `long:"trustlevel" description:"Verification strictness below the trust edge {full, headers, none}"`
	TrustEdge     string        `long:"trustedge" description:"Hash of the block at which full verification resumes; required for trustlevel below full"`
	TestNet       bool          `long:"testnet" description:"Use the test network"`
	PrivNet       bool          `long:"privnet" description:"Use the private network"`
	DebugLevel    string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	// Resolved from the string options above during LoadConfig.
	ActiveParams *params.Params
	TrustLvl     spow.Level
	TrustHash    *hash.Hash
}

// LoadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig() (*Config, []string, error) {
	// Default config.
	cfg := Config{
		HomeDir:      defaultHomeDir,
		ConfigFile:   filepath.Join(defaultHomeDir, defaultConfigFilename),
		DataDir:      filepath.Join(defaultHomeDir, defaultDataDirname),
		LogDir:       filepath.Join(defaultHomeDir, defaultLogDirname),
		RPCListener:  defaultRPCListener,
		MaxPeers:     defaultMaxPeers,
		BanDuration:  defaultBanDuration,
		BanThreshold: defaultBanThreshold,
		DbCacheSize:  defaultDbCacheSize,
		TrustLevel:   defaultTrustLevel,
		DebugLevel:   defaultDebugLevel,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return nil, nil, err
		}
	}

	// Update the home directory for the paths not already explicitly set
	// when an alternative one was specified.
	if preCfg.HomeDir != defaultHomeDir {
		cfg.HomeDir = cleanAndExpandPath(preCfg.HomeDir)
		if preCfg.ConfigFile == cfg.ConfigFile {
			cfg.ConfigFile = filepath.Join(cfg.HomeDir, defaultConfigFilename)
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.Default)
	configFile := cfg.ConfigFile
	if preCfg.ConfigFile != filepath.Join(defaultHomeDir, defaultConfigFilename) {
		configFile = preCfg.ConfigFile
	}
	if fileExists(configFile) {
		err = flags.NewIniParser(parser).ParseFile(configFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse config "+
				"file: %v", err)
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.resolve(); err != nil {
		return nil, nil, err
	}
	return &cfg, remainingArgs, nil
}

// resolve validates the string options and derives the typed fields.
func (cfg *Config) resolve() error {
	// Multiple networks can't be selected simultaneously.
	numNets := 0
	cfg.ActiveParams = &params.MainNetParams
	if cfg.TestNet {
		numNets++
		cfg.ActiveParams = &params.TestNetParams
	}
	if cfg.PrivNet {
		numNets++
		cfg.ActiveParams = &params.PrivNetParams
	}
	if numNets > 1 {
		return fmt.Errorf("the testnet and privnet options may not be " +
			"used together")
	}

	// Append the network name to the data and log directories so the
	// networks never mix state.
	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir),
		cfg.ActiveParams.Name)
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir),
		cfg.ActiveParams.Name)

	if cfg.Listener == "" {
		cfg.Listener = ":" + cfg.ActiveParams.DefaultPort
	}

	lvl, err := spow.ParseLevel(cfg.TrustLevel)
	if err != nil {
		return fmt.Errorf("invalid trustlevel %q -- valid levels are "+
			"{full, headers, none}", cfg.TrustLevel)
	}
	cfg.TrustLvl = lvl

	if cfg.TrustEdge != "" {
		edge, err := hash.NewHashFromStr(cfg.TrustEdge)
		if err != nil {
			return fmt.Errorf("invalid trustedge: %v", err)
		}
		cfg.TrustHash = edge
	}
	if cfg.TrustLvl != spow.LevelFull && cfg.TrustHash == nil {
		return fmt.Errorf("trustlevel %q requires a trustedge hash",
			cfg.TrustLevel)
	}

	if cfg.BanDuration != 0 && cfg.BanDuration < time.Second {
		return fmt.Errorf("banduration must be at least one second")
	}
	return nil
}

// LogFile returns the path of the rotated log file, or an empty string when
// file logging is disabled.
func (cfg *Config) LogFile() string {
	if cfg.NoFileLogging {
		return ""
	}
	return filepath.Join(cfg.LogDir, defaultLogFilename)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		return !os.IsNotExist(err)
	}
	return true
}
