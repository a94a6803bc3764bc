package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/grafana/cqlclient/pkg/client"
	"github.com/grafana/cqlclient/pkg/cluster"
	"github.com/grafana/cqlclient/pkg/driver"
)

// statementOptions select what to run and how.
type statementOptions struct {
	query       string
	args        []string
	prepared    string
	consistency string
	timeout     time.Duration
}

func (o *statementOptions) register(cmd *kingpin.CmdClause) {
	cmd.Arg("query", "CQL statement to run.").Required().StringVar(&o.query)
	cmd.Arg("args", "Values bound to the statement placeholders, as text.").StringsVar(&o.args)
	cmd.Flag("prepared", "Register the statement under this name and execute it prepared.").StringVar(&o.prepared)
	cmd.Flag("consistency", "Consistency level of the statement.").Default("QUORUM").StringVar(&o.consistency)
	cmd.Flag("timeout", "Per-request timeout. 0 waits for the cluster.").Default("2s").DurationVar(&o.timeout)
}

// statement returns a fresh statement for o. Prepared statements are
// registered on first use and looked up afterwards.
func (o *statementOptions) statement(ctx context.Context, s *client.Session) (*client.Statement, error) {
	args := make([]interface{}, len(o.args))
	for i, a := range o.args {
		args[i] = a
	}
	if o.prepared == "" {
		return client.NewStatement(o.query, args...), nil
	}

	p, ok := s.LookupPrepared(o.prepared)
	if !ok {
		var err error
		if p, err = s.RegisterPrepared(ctx, o.prepared, o.query); err != nil {
			return nil, err
		}
	}
	return p.Bind(args...), nil
}

// connect opens a session with engine, or with gocql when engine is nil.
func connect(ctx context.Context, env *environment, engine driver.Engine) (*client.Session, error) {
	c, err := cluster.New(env.cfg.Cassandra, env.reg, env.logger)
	if err != nil {
		return nil, err
	}
	return client.Connect(ctx, c, env.cfg.Cassandra.ConnectTimeout, engine, env.reg, env.logger)
}

// queryCommand runs one statement and prints its rows.
type queryCommand struct {
	global *globalOptions
	stmt   statementOptions
	engine driver.Engine
	out    io.Writer
}

func addQueryCommand(app *kingpin.Application, global *globalOptions) {
	cmd := &queryCommand{global: global, out: os.Stdout}
	clause := app.Command("query", "Run a statement once and print the result.").Action(cmd.run)
	cmd.stmt.register(clause)
}

func (cmd *queryCommand) run(_ *kingpin.ParseContext) error {
	env, err := cmd.global.environment()
	if err != nil {
		return err
	}
	consistency, err := cluster.ParseConsistency(cmd.stmt.consistency)
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := connect(ctx, env, cmd.engine)
	if err != nil {
		return err
	}
	defer s.Close()

	stmt, err := cmd.stmt.statement(ctx, s)
	if err != nil {
		return err
	}
	r, err := s.Execute(ctx, stmt, cmd.stmt.timeout, consistency)
	if err != nil {
		return err
	}
	defer r.Close()
	if r.IsError() {
		return r.Err()
	}
	printResult(cmd.out, r)
	return nil
}

// asyncCommand dispatches a statement many times without waiting and
// summarizes the outcomes.
type asyncCommand struct {
	global *globalOptions
	stmt   statementOptions
	count  int
	engine driver.Engine
	out    io.Writer
}

func addAsyncCommand(app *kingpin.Application, global *globalOptions) {
	cmd := &asyncCommand{global: global, out: os.Stdout}
	clause := app.Command("async", "Run a statement many times concurrently.").Action(cmd.run)
	cmd.stmt.register(clause)
	clause.Flag("count", "Number of executions.").Short('n').Default("100").IntVar(&cmd.count)
}

func (cmd *asyncCommand) run(_ *kingpin.ParseContext) error {
	env, err := cmd.global.environment()
	if err != nil {
		return err
	}
	consistency, err := cluster.ParseConsistency(cmd.stmt.consistency)
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := connect(ctx, env, cmd.engine)
	if err != nil {
		return err
	}
	defer s.Close()

	sum := dispatch(ctx, s, env.logger, &cmd.stmt, consistency, cmd.count)
	sum.print(cmd.out)
	if sum.failed.Load() > 0 {
		return errors.Errorf("%d of %d executions failed", sum.failed.Load(), cmd.count)
	}
	return nil
}

type summary struct {
	succeeded atomic.Int64
	failed    atomic.Int64
	rows      atomic.Int64
	elapsed   time.Duration

	mu       sync.Mutex
	firstErr string
}

// dispatch executes the statement n times through the asynchronous path and
// waits for every callback.
func dispatch(ctx context.Context, s *client.Session, logger log.Logger, o *statementOptions, c gocql.Consistency, n int) *summary {
	sum := &summary{}
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		stmt, err := o.statement(ctx, s)
		if err == nil {
			wg.Add(1)
			err = s.ExecuteAsync(stmt, func(r *client.Result) {
				defer wg.Done()
				sum.record(r)
			}, o.timeout, c)
			if err != nil {
				wg.Done()
			}
		}
		if err != nil {
			sum.failed.Inc()
			sum.setErr(err.Error())
		}
	}
	wg.Wait()

	sum.elapsed = time.Since(start)
	level.Debug(logger).Log("msg", "async run finished", "executions", n, "in_flight", s.InFlight())
	return sum
}

func (sum *summary) record(r *client.Result) {
	if r.IsError() {
		sum.failed.Inc()
		sum.setErr(r.ErrorMessage())
		return
	}
	sum.succeeded.Inc()
	sum.rows.Add(int64(r.RowCount()))
}

func (sum *summary) setErr(msg string) {
	sum.mu.Lock()
	defer sum.mu.Unlock()
	if sum.firstErr == "" {
		sum.firstErr = msg
	}
}

func (sum *summary) print(w io.Writer) {
	bold := color.New(color.Bold)
	bold.Fprintln(w, "Executions:")
	fmt.Fprintf(w, "\tsucceeded: %s, failed: %s, rows: %s\n",
		humanize.Comma(sum.succeeded.Load()),
		humanize.Comma(sum.failed.Load()),
		humanize.Comma(sum.rows.Load()),
	)
	total := sum.succeeded.Load() + sum.failed.Load()
	if total > 0 && sum.elapsed > 0 {
		fmt.Fprintf(w, "\telapsed: %v, %s executions/s\n", sum.elapsed.Round(time.Millisecond), humanize.FormatFloat("#,###.#", float64(total)/sum.elapsed.Seconds()))
	}
	if sum.firstErr != "" {
		fmt.Fprintf(w, "\tfirst error: %s\n", color.RedString(sum.firstErr))
	}
}

// printResult writes the rows of r as tab separated columns under a header.
func printResult(w io.Writer, r *client.Result) {
	bold := color.New(color.Bold)
	bold.Fprintln(w, strings.Join(r.Columns(), "\t"))
	for _, row := range r.Rows() {
		cells := make([]string, row.Len())
		for i := range cells {
			cells[i] = formatValue(row.Column(i))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	fmt.Fprintf(w, "(%s rows)\n", humanize.Comma(int64(r.RowCount())))
}

func formatValue(v *client.Value) string {
	if v.IsNull() {
		return "null"
	}
	var (
		out interface{}
		err error
	)
	switch v.Type() {
	case gocql.TypeAscii, gocql.TypeVarchar, gocql.TypeText:
		out, err = v.Text()
	case gocql.TypeTimestamp:
		out, err = v.FormattedTimestamp()
	case gocql.TypeInt:
		out, err = v.Int32()
	case gocql.TypeBigInt, gocql.TypeCounter:
		out, err = v.Int64()
	case gocql.TypeBoolean:
		out, err = v.Bool()
	default:
		return fmt.Sprintf("<%s>", v.Type())
	}
	if err != nil {
		return color.RedString("<%v>", err)
	}
	return fmt.Sprint(out)
}
