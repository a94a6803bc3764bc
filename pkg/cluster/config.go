package cluster

import (
	"flag"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
)

// Config for a Cluster.
type Config struct {
	Addresses                flagext.StringSliceCSV `yaml:"addresses"`
	Port                     int                    `yaml:"port"`
	Keyspace                 string                 `yaml:"keyspace"`
	Consistency              string                 `yaml:"consistency"`
	DisableInitialHostLookup bool                   `yaml:"disable_initial_host_lookup"`
	SSL                      bool                   `yaml:"SSL"`
	HostVerification         bool                   `yaml:"host_verification"`
	CAPath                   string                 `yaml:"CA_path"`
	Auth                     bool                   `yaml:"auth"`
	Username                 string                 `yaml:"username"`
	Password                 flagext.Secret         `yaml:"password"`
	Timeout                  time.Duration          `yaml:"timeout"`
	ConnectTimeout           time.Duration          `yaml:"connect_timeout"`
	NumConnections           int                    `yaml:"num_connections"`
}

// RegisterFlags adds the flags required to config this to the given FlagSet
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("cassandra.", f)
}

// RegisterFlagsWithPrefix adds the flags required to config this to the given FlagSet, with a prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.Var(&cfg.Addresses, prefix+"addresses", "Comma-separated hostnames or IPs of Cassandra instances.")
	f.IntVar(&cfg.Port, prefix+"port", 9042, "Port that Cassandra is running on")
	f.StringVar(&cfg.Keyspace, prefix+"keyspace", "", "Keyspace to use in Cassandra.")
	f.StringVar(&cfg.Consistency, prefix+"consistency", "QUORUM", "Default consistency level for Cassandra.")
	f.BoolVar(&cfg.DisableInitialHostLookup, prefix+"disable-initial-host-lookup", false, "Instruct the cassandra driver to not attempt to get host info from the system.peers table.")
	f.BoolVar(&cfg.SSL, prefix+"ssl", false, "Use SSL when connecting to cassandra instances.")
	f.BoolVar(&cfg.HostVerification, prefix+"host-verification", true, "Require SSL certificate validation.")
	f.StringVar(&cfg.CAPath, prefix+"ca-path", "", "Path to certificate file to verify the peer.")
	f.BoolVar(&cfg.Auth, prefix+"auth", false, "Enable password authentication when connecting to cassandra.")
	f.StringVar(&cfg.Username, prefix+"username", "", "Username to use when connecting to cassandra.")
	f.Var(&cfg.Password, prefix+"password", "Password to use when connecting to cassandra.")
	f.DurationVar(&cfg.Timeout, prefix+"timeout", 2*time.Second, "Default timeout of a single request, applied by the driver.")
	f.DurationVar(&cfg.ConnectTimeout, prefix+"connect-timeout", 5*time.Second, "Timeout when connecting to cassandra.")
	f.IntVar(&cfg.NumConnections, prefix+"num-connections", 2, "Number of TCP connections per host.")
}

// Validate checks the config and returns an error if invalid.
func (cfg *Config) Validate() error {
	if cfg.Port <= 0 {
		return errors.Errorf("invalid cassandra port %d", cfg.Port)
	}
	if _, err := ParseConsistency(cfg.Consistency); err != nil {
		return err
	}
	if cfg.Auth && cfg.Username == "" {
		return errors.New("cassandra auth is enabled but no username is set")
	}
	if cfg.ConnectTimeout <= 0 {
		return errors.Errorf("cassandra connect timeout must be positive, got %s", cfg.ConnectTimeout)
	}
	return nil
}

// ParseConsistency parses a consistency level name such as "QUORUM" or
// "local_quorum". Matching is case insensitive.
func ParseConsistency(s string) (gocql.Consistency, error) {
	c, err := gocql.ParseConsistencyWrapper(strings.ToUpper(s))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid consistency %q", s)
	}
	return c, nil
}

// apply config settings to a cassandra ClusterConfig
func (cfg *Config) setClusterConfig(cluster *gocql.ClusterConfig) {
	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}
	cluster.Keyspace = cfg.Keyspace
	cluster.DisableInitialHostLookup = cfg.DisableInitialHostLookup
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.NumConnections > 0 {
		cluster.NumConns = cfg.NumConnections
	}

	if cfg.SSL {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 cfg.CAPath,
			EnableHostVerification: cfg.HostVerification,
		}
	}
	if cfg.Auth {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password.String(),
		}
	}
}
