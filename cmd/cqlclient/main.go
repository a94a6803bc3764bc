// Command cqlclient runs CQL statements against a Cassandra cluster, either
// once and synchronously or many times in parallel through the asynchronous
// path.
package main

import (
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	util_log "github.com/grafana/cqlclient/pkg/util/log"
)

// globalOptions are flags shared by every command. Unset flags keep the value
// from the config file.
type globalOptions struct {
	configFile     string
	addresses      []string
	keyspace       string
	username       string
	password       string
	connectTimeout time.Duration
	logLevel       string
}

func (o *globalOptions) register(app *kingpin.Application) {
	app.Flag("config.file", "YAML file to load the configuration from.").StringVar(&o.configFile)
	app.Flag("addresses", "Cassandra hosts to bootstrap from. Repeatable.").Short('a').StringsVar(&o.addresses)
	app.Flag("keyspace", "Keyspace to use.").Short('k').StringVar(&o.keyspace)
	app.Flag("username", "Username for password authentication.").StringVar(&o.username)
	app.Flag("password", "Password for password authentication.").Envar("CQLCLIENT_PASSWORD").StringVar(&o.password)
	app.Flag("connect-timeout", "Time to wait for the connection to the cluster.").DurationVar(&o.connectTimeout)
	app.Flag("log.level", "Only log messages with the given severity or above.").EnumVar(&o.logLevel, "debug", "info", "warn", "error")
}

// config loads the config file and applies the flags set on the command line.
func (o *globalOptions) config() (Config, error) {
	cfg, err := loadConfig(o.configFile)
	if err != nil {
		return cfg, err
	}
	if len(o.addresses) > 0 {
		cfg.Cassandra.Addresses = o.addresses
	}
	if o.keyspace != "" {
		cfg.Cassandra.Keyspace = o.keyspace
	}
	if o.username != "" {
		cfg.Cassandra.Auth = true
		cfg.Cassandra.Username = o.username
	}
	if o.password != "" {
		if err := cfg.Cassandra.Password.Set(o.password); err != nil {
			return cfg, err
		}
	}
	if o.connectTimeout > 0 {
		cfg.Cassandra.ConnectTimeout = o.connectTimeout
	}
	if o.logLevel != "" {
		if err := cfg.Log.Level.Set(o.logLevel); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

// environment is what a command needs to open a session.
type environment struct {
	cfg    Config
	logger log.Logger
	reg    *prometheus.Registry
}

func (o *globalOptions) environment() (*environment, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	return &environment{
		cfg:    cfg,
		logger: util_log.NewLogger(cfg.Log),
		reg:    prometheus.NewRegistry(),
	}, nil
}

func main() {
	app := kingpin.New("cqlclient", "Run CQL statements against a Cassandra cluster.")
	app.HelpFlag.Short('h')

	opts := &globalOptions{}
	opts.register(app)
	addQueryCommand(app, opts)
	addAsyncCommand(app, opts)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}
