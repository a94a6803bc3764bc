// Package cluster aggregates the hosts of a Cassandra cluster and binds them,
// together with the connection settings, into the gocql cluster
// configuration an engine connects with.
package cluster

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrAlreadyBootstrapped = errors.New("cluster hosts already bootstrapped")
	ErrNotBootstrapped     = errors.New("cluster hosts not bootstrapped")
	ErrNoHosts             = errors.New("no cluster hosts configured")
	ErrReleased            = errors.New("cluster has been released")
)

// Cluster collects bootstrap hosts with AddHost and binds them to a gocql
// cluster configuration exactly once, with BootstrapHosts. A Cluster is owned
// by the session that connects with it and is released together with that
// session's connection.
type Cluster struct {
	cfg      Config
	observer *observer
	logger   log.Logger

	mu           sync.Mutex
	hosts        []string
	clusterCfg   *gocql.ClusterConfig
	bootstrapped bool
	released     bool
}

// New returns a cluster seeded with cfg.Addresses.
func New(cfg Config, reg prometheus.Registerer, logger log.Logger) (*Cluster, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if cfg.Consistency != "" {
		if _, err := ParseConsistency(cfg.Consistency); err != nil {
			return nil, err
		}
	}
	c := &Cluster{
		cfg:      cfg,
		observer: newObserver(reg, logger),
		logger:   logger,
	}
	for _, addr := range cfg.Addresses {
		if addr != "" {
			c.hosts = append(c.hosts, addr)
		}
	}
	return c, nil
}

// AddHost adds a bootstrap host. Hosts can only be added before BootstrapHosts.
func (c *Cluster) AddHost(host string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.released:
		return ErrReleased
	case c.bootstrapped:
		return errors.Wrapf(ErrAlreadyBootstrapped, "cannot add host %s", host)
	}
	c.hosts = append(c.hosts, host)
	return nil
}

// Hosts returns the bootstrap hosts.
func (c *Cluster) Hosts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.hosts...)
}

// BootstrapHosts binds all registered hosts to the cluster configuration. It
// must be called exactly once, before connecting.
func (c *Cluster) BootstrapHosts() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.released:
		return ErrReleased
	case c.bootstrapped:
		return ErrAlreadyBootstrapped
	case len(c.hosts) == 0:
		return ErrNoHosts
	}

	cluster := gocql.NewCluster(c.hosts...)
	consistency := gocql.Quorum
	if c.cfg.Consistency != "" {
		// Already validated by New.
		consistency, _ = ParseConsistency(c.cfg.Consistency)
	}
	cluster.Consistency = consistency
	cluster.QueryObserver = c.observer
	cluster.ConnectObserver = c.observer
	c.cfg.setClusterConfig(cluster)

	c.clusterCfg = cluster
	c.bootstrapped = true
	level.Debug(c.logger).Log("msg", "bootstrapped cluster hosts", "hosts", len(c.hosts), "keyspace", cluster.Keyspace, "consistency", consistency)
	return nil
}

// ClusterConfig returns the bound gocql configuration.
func (c *Cluster) ClusterConfig() (*gocql.ClusterConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.released:
		return nil, ErrReleased
	case !c.bootstrapped:
		return nil, ErrNotBootstrapped
	}
	return c.clusterCfg, nil
}

// Release drops the bound configuration. Safe to call more than once.
func (c *Cluster) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	c.clusterCfg = nil
}

// Released reports whether Release has been called.
func (c *Cluster) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}
