package main

import (
	"flag"
	"os"

	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/grafana/cqlclient/pkg/cluster"
	util_log "github.com/grafana/cqlclient/pkg/util/log"
)

// Config is the YAML configuration of the tool. Command line flags override
// the values loaded from the file.
type Config struct {
	Cassandra cluster.Config  `yaml:"cassandra"`
	Log       util_log.Config `yaml:"log"`
}

// RegisterFlags registers flag defaults, which also serve as the defaults
// for values missing from the config file.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.Cassandra.RegisterFlags(f)
	cfg.Log.RegisterFlags(f)
}

// Validate the config.
func (cfg *Config) Validate() error {
	if err := cfg.Cassandra.Validate(); err != nil {
		return errors.Wrap(err, "invalid cassandra config")
	}
	if err := cfg.Log.Validate(); err != nil {
		return errors.Wrap(err, "invalid log config")
	}
	return nil
}

// loadConfig returns the defaults overlaid with the file at path, if any.
func loadConfig(path string) (Config, error) {
	var cfg Config
	flagext.DefaultValues(&cfg)
	if path == "" {
		return cfg, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "reading config file")
	}
	if err := yaml.UnmarshalStrict(buf, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config file %s", path)
	}
	return cfg, nil
}
