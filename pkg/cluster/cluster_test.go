package cluster

import (
	"flag"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/grafana/dskit/flagext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func defaultConfig() Config {
	var cfg Config
	flagext.DefaultValues(&cfg)
	return cfg
}

func TestConfig_Defaults(t *testing.T) {
	cfg := defaultConfig()
	require.Equal(t, 9042, cfg.Port)
	require.Equal(t, "QUORUM", cfg.Consistency)
	require.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Flags(t *testing.T) {
	var cfg Config
	fs := flag.NewFlagSet("test", flag.PanicOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"-cassandra.addresses=10.0.0.1,10.0.0.2",
		"-cassandra.keyspace=users",
		"-cassandra.consistency=local_quorum",
		"-cassandra.auth=true",
		"-cassandra.username=admin",
		"-cassandra.password=hunter2",
	}))
	require.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, []string(cfg.Addresses))
	require.NoError(t, cfg.Validate())

	c, err := New(cfg, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.BootstrapHosts())
	gcfg, err := c.ClusterConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, gcfg.Hosts)
	require.Equal(t, "users", gcfg.Keyspace)
	require.Equal(t, gocql.LocalQuorum, gcfg.Consistency)
	require.Equal(t, gocql.PasswordAuthenticator{Username: "admin", Password: "hunter2"}, gcfg.Authenticator)
}

func TestConfig_Validate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(*Config)
	}{
		{"bad consistency", func(cfg *Config) { cfg.Consistency = "MOST" }},
		{"bad port", func(cfg *Config) { cfg.Port = 0 }},
		{"auth without user", func(cfg *Config) { cfg.Auth = true }},
		{"no connect timeout", func(cfg *Config) { cfg.ConnectTimeout = 0 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.modify(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestParseConsistency(t *testing.T) {
	for in, want := range map[string]gocql.Consistency{
		"ONE":          gocql.One,
		"quorum":       gocql.Quorum,
		"ALL":          gocql.All,
		"LOCAL_QUORUM": gocql.LocalQuorum,
	} {
		got, err := ParseConsistency(in)
		require.NoError(t, err)
		require.Equal(t, want, got, in)
	}
	_, err := ParseConsistency("nope")
	require.Error(t, err)
}

func TestCluster_BootstrapOnce(t *testing.T) {
	c, err := New(defaultConfig(), prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	require.ErrorIs(t, c.BootstrapHosts(), ErrNoHosts)
	_, err = c.ClusterConfig()
	require.ErrorIs(t, err, ErrNotBootstrapped)

	require.NoError(t, c.AddHost("127.0.0.1"))
	require.NoError(t, c.AddHost("127.0.0.2"))
	require.NoError(t, c.BootstrapHosts())
	require.ErrorIs(t, c.BootstrapHosts(), ErrAlreadyBootstrapped)
	require.ErrorIs(t, c.AddHost("127.0.0.3"), ErrAlreadyBootstrapped)
	require.Equal(t, []string{"127.0.0.1", "127.0.0.2"}, c.Hosts())

	gcfg, err := c.ClusterConfig()
	require.NoError(t, err)
	require.Equal(t, c.Hosts(), gcfg.Hosts)
	require.NotNil(t, gcfg.QueryObserver)
	require.NotNil(t, gcfg.ConnectObserver)
}

func TestCluster_Release(t *testing.T) {
	cfg := defaultConfig()
	cfg.Addresses = flagext.StringSliceCSV{"127.0.0.1"}
	c, err := New(cfg, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.BootstrapHosts())

	c.Release()
	c.Release()
	require.True(t, c.Released())
	_, err = c.ClusterConfig()
	require.ErrorIs(t, err, ErrReleased)
	require.ErrorIs(t, c.BootstrapHosts(), ErrReleased)
	require.ErrorIs(t, c.AddHost("127.0.0.2"), ErrReleased)
}

func TestNew_InvalidConsistency(t *testing.T) {
	cfg := defaultConfig()
	cfg.Consistency = "sometimes"
	_, err := New(cfg, nil, nil)
	require.Error(t, err)
}
