package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/gocql/gocql"
	"github.com/grafana/dskit/flagext"
	"github.com/stretchr/testify/require"

	"github.com/grafana/cqlclient/pkg/client"
	"github.com/grafana/cqlclient/pkg/cluster"
	"github.com/grafana/cqlclient/pkg/driver"
	"github.com/grafana/cqlclient/pkg/driver/drivertest"
)

const configYAML = `
cassandra:
  addresses: 10.0.0.1,10.0.0.2
  keyspace: events
  consistency: LOCAL_QUORUM
  connect_timeout: 3s
log:
  level: debug
  format: json
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, configYAML))
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, []string(cfg.Cassandra.Addresses))
	require.Equal(t, "events", cfg.Cassandra.Keyspace)
	require.Equal(t, "LOCAL_QUORUM", cfg.Cassandra.Consistency)
	require.Equal(t, 3*time.Second, cfg.Cassandra.ConnectTimeout)
	require.Equal(t, "debug", cfg.Log.Level.String())
	require.Equal(t, "json", cfg.Log.Format)

	// Unset values keep their flag defaults.
	require.Equal(t, 9042, cfg.Cassandra.Port)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = loadConfig(writeConfig(t, "cassandra:\n  hostz: 10.0.0.1\n"))
	require.Error(t, err)
}

func TestGlobalOptions_Overrides(t *testing.T) {
	o := &globalOptions{
		configFile:     writeConfig(t, configYAML),
		addresses:      []string{"192.168.1.1"},
		username:       "admin",
		password:       "hunter2",
		connectTimeout: 10 * time.Second,
		logLevel:       "warn",
	}
	cfg, err := o.config()
	require.NoError(t, err)
	require.Equal(t, flagext.StringSliceCSV{"192.168.1.1"}, cfg.Cassandra.Addresses)
	require.Equal(t, "events", cfg.Cassandra.Keyspace)
	require.True(t, cfg.Cassandra.Auth)
	require.Equal(t, "admin", cfg.Cassandra.Username)
	require.Equal(t, "hunter2", cfg.Cassandra.Password.String())
	require.Equal(t, 10*time.Second, cfg.Cassandra.ConnectTimeout)
	require.Equal(t, "warn", cfg.Log.Level.String())
}

func TestGlobalOptions_Invalid(t *testing.T) {
	o := &globalOptions{configFile: writeConfig(t, "cassandra:\n  consistency: MOST\n")}
	_, err := o.config()
	require.Error(t, err)
}

func newSession(t *testing.T, e *drivertest.Engine) *client.Session {
	c, err := cluster.New(cluster.Config{Addresses: flagext.StringSliceCSV{"127.0.0.1"}}, nil, nil)
	require.NoError(t, err)
	s, err := client.Connect(context.Background(), c, time.Second, e, nil, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestDispatch(t *testing.T) {
	e := drivertest.NewEngine()
	e.Handle("SELECT name FROM users", drivertest.Response{
		Rows: driver.NewRows(
			[]driver.Column{{Name: "name", Type: gocql.TypeVarchar}},
			[]driver.Value{drivertest.Text("alice")},
			[]driver.Value{drivertest.Text("bob")},
		),
		Delay: time.Millisecond,
	})
	s := newSession(t, e)

	o := &statementOptions{query: "SELECT name FROM users", prepared: "names", timeout: time.Second}
	sum := dispatch(context.Background(), s, log.NewNopLogger(), o, gocql.One, 25)
	require.Equal(t, int64(25), sum.succeeded.Load())
	require.Equal(t, int64(0), sum.failed.Load())
	require.Equal(t, int64(50), sum.rows.Load())
	require.Equal(t, 1, e.Calls(drivertest.OpPrepare))
	require.Equal(t, int64(0), s.InFlight())

	color.NoColor = true
	var buf bytes.Buffer
	sum.print(&buf)
	require.Contains(t, buf.String(), "succeeded: 25, failed: 0, rows: 50")
}

func TestDispatch_Failures(t *testing.T) {
	e := drivertest.NewEngine()
	s := newSession(t, e)

	o := &statementOptions{query: "SELECT * FROM missing"}
	sum := dispatch(context.Background(), s, log.NewNopLogger(), o, gocql.One, 3)
	require.Equal(t, int64(3), sum.failed.Load())
	require.Contains(t, sum.firstErr, "no response registered")
}

func TestPrintResult(t *testing.T) {
	e := drivertest.NewEngine()
	e.Handle("SELECT * FROM events", drivertest.Response{Rows: driver.NewRows(
		[]driver.Column{
			{Name: "id", Type: gocql.TypeInt},
			{Name: "at", Type: gocql.TypeTimestamp},
			{Name: "ok", Type: gocql.TypeBoolean},
			{Name: "note", Type: gocql.TypeText},
			{Name: "blob", Type: gocql.TypeBlob},
		},
		[]driver.Value{
			drivertest.Int(1),
			drivertest.Timestamp(1700000000123),
			drivertest.Bool(true),
			drivertest.Null(gocql.TypeText),
			driver.NewValue(gocql.TypeBlob, []byte{1}),
		},
	)})
	s := newSession(t, e)

	r, err := s.Execute(context.Background(), client.NewStatement("SELECT * FROM events"), time.Second, gocql.One)
	require.NoError(t, err)
	defer r.Close()

	color.NoColor = true
	var buf bytes.Buffer
	printResult(&buf, r)
	require.Equal(t, "id\tat\tok\tnote\tblob\n1\t2023-11-14T22:13:20.123Z\ttrue\tnull\t<blob>\n(1 rows)\n", buf.String())
}

func TestQueryCommand(t *testing.T) {
	e := drivertest.NewEngine()
	e.Handle("SELECT name FROM users", drivertest.Response{Rows: driver.NewRows(
		[]driver.Column{{Name: "name", Type: gocql.TypeVarchar}},
		[]driver.Value{drivertest.Text("alice")},
	)})
	e.Handle("SELECT * FROM missing", drivertest.Response{Err: errors.New("unconfigured table missing")})

	newCommand := func(query string, out *bytes.Buffer) *queryCommand {
		return &queryCommand{
			global: &globalOptions{addresses: []string{"127.0.0.1"}},
			stmt:   statementOptions{query: query, consistency: "one", timeout: time.Second},
			engine: e,
			out:    out,
		}
	}

	color.NoColor = true
	var out bytes.Buffer
	require.NoError(t, newCommand("SELECT name FROM users", &out).run(nil))
	require.Equal(t, "name\nalice\n(1 rows)\n", out.String())
	require.True(t, e.Conns()[0].Closed())

	// Failures are returned so the session and result are still released.
	out.Reset()
	err := newCommand("SELECT * FROM missing", &out).run(nil)
	require.EqualError(t, err, "query failed: unconfigured table missing")
	require.Empty(t, out.String())
	conn := e.Conns()[1]
	require.True(t, conn.Closed())
	require.Eventually(t, func() bool { return conn.Futures()[0].Freed() }, time.Second, 5*time.Millisecond)
}

func TestAsyncCommand_Failures(t *testing.T) {
	e := drivertest.NewEngine()
	var out bytes.Buffer
	cmd := &asyncCommand{
		global: &globalOptions{addresses: []string{"127.0.0.1"}},
		stmt:   statementOptions{query: "SELECT * FROM missing", consistency: "one"},
		count:  4,
		engine: e,
		out:    &out,
	}

	color.NoColor = true
	require.EqualError(t, cmd.run(nil), "4 of 4 executions failed")
	require.Contains(t, out.String(), "succeeded: 0, failed: 4, rows: 0")
	require.True(t, e.Conns()[0].Closed())
}
