// Package config defines chainhookd's CLI configuration: a go-flags struct
// with defaults resolved against an OS-appropriate application data
// directory.
package config

import (
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	appName        = "chainhookd"
	logFilename    = "chainhookd.log"
	defaultNNet    = 16
	defaultNProc   = 4
	defaultH0      = 765000
	defaultRPCAddr = "127.0.0.1:8332"
)

var activeConfig *Config

// Config is chainhookd's full set of CLI-configurable parameters.
type Config struct {
	BaseDir string `long:"basedir" description:"Directory to store hord.sqlite and hord.rocksdb under"`

	RPCAddr string `long:"rpcaddr" description:"host:port of the RPC collaborator"`
	RPCUser string `long:"rpcuser" description:"RPC username"`
	RPCPass string `long:"rpcpass" description:"RPC password"`

	OrdinalActivationHeight uint32 `long:"ordinal-activation-height" description:"Height at/above which the pipeline computes ordinal traversals inline"`
	StartHeight             uint32 `long:"start-height" description:"Height to begin ingestion from (defaults to one past the last stored block)"`
	EndHeight               uint32 `long:"end-height" description:"Height to stop ingestion at (inclusive)"`

	NNet  int `long:"n-net" description:"Worker count for the hash-fetch and block-fetch stages"`
	NProc int `long:"n-proc" description:"Worker count for the compact stage below the activation height"`

	Archive bool `long:"archive" description:"Archive the existing block store (rename to hord.rocksdb_archive) and exit, instead of ingesting"`

	DebugLevel string `long:"debuglevel" description:"Logging level: trace, debug, info, warn, error, critical, or subsys=level,subsys=level,..."`
	LogDir     string `long:"logdir" description:"Directory to write rotated log files to"`
}

// ActiveConfig returns the configuration parsed by Parse.
func ActiveConfig() *Config {
	return activeConfig
}

// Parse parses CLI arguments into a Config, applying defaults for anything
// left unset.
func Parse() (*Config, error) {
	defaultBaseDir := appDataDir(appName)

	cfg := &Config{
		BaseDir:                 defaultBaseDir,
		RPCAddr:                 defaultRPCAddr,
		OrdinalActivationHeight: defaultH0,
		NNet:                    defaultNNet,
		NProc:                   defaultNProc,
		DebugLevel:              "info",
		LogDir:                  filepath.Join(defaultBaseDir, "logs"),
	}

	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.Parse(); err != nil {
		return nil, errors.Wrap(err, "parsing command-line flags")
	}

	activeConfig = cfg
	return cfg, nil
}

// SqliteStorePath is the path to the inscription catalogue.
func (c *Config) SqliteStorePath() string {
	return filepath.Join(c.BaseDir, "hord.sqlite")
}

// RocksdbStorePath is the path to the packed block store.
func (c *Config) RocksdbStorePath() string {
	return filepath.Join(c.BaseDir, "hord.rocksdb")
}

// ArchiveStorePath is the destination of the archive-and-reset operation: a
// directory rename of the block store.
func (c *Config) ArchiveStorePath() string {
	return filepath.Join(c.BaseDir, "hord.rocksdb_archive")
}

// LogFilePath is the path to the main rotated log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogDir, logFilename)
}
