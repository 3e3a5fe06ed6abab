// Package console is the interactive operator shell.
//
// It drives the scalar service directly over the local database file: logging
// test points, inspecting the dynamic schema and name mapping, running reads,
// exporting series, and issuing raw SQL. With a terminal attached it runs a
// completing prompt; with piped input it falls back to a plain line reader so
// it stays scriptable.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/MalchuL/experiment-tracker-sub000/internal/errors"
	"github.com/MalchuL/experiment-tracker-sub000/internal/export"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/types"
	"github.com/MalchuL/experiment-tracker-sub000/internal/store"
)

// =============================================================================
// Console
// =============================================================================

// Console is an interactive shell over one scalar service instance.
type Console struct {
	svc   *metrics.Service
	store *store.Store
	out   io.Writer

	// Current project context, set with "use".
	project string

	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc

	done bool
}

// New creates a console bound to a service and its store.
func New(svc *metrics.Service, st *store.Store) *Console {
	return &Console{
		svc:   svc,
		store: st,
		out:   os.Stdout,
	}
}

// Run processes input until EOF or "exit". It picks the prompt mode by
// probing stdin for a terminal.
func (c *Console) Run() {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		c.runInteractive()
		return
	}
	c.runPiped(os.Stdin)
}

func (c *Console) runInteractive() {
	p := prompt.New(
		c.input,
		c.completer,
		prompt.OptionPrefix("tracker> "),
		prompt.OptionTitle("tracker-console"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return c.done
		}),
	)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT)
	go func() {
		for range sigs {
			c.cancel()
		}
	}()

	p.Run()
}

func (c *Console) runPiped(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		c.input(scanner.Text())
		if c.done {
			return
		}
	}
}

func (c *Console) cancel() {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}
}

// queryContext returns a cancellable context wired to Ctrl-C.
func (c *Console) queryContext() (context.Context, context.CancelFunc) {
	ctx, cancelFunc := context.WithCancel(context.Background())
	c.cancelMu.Lock()
	c.cancelFunc = cancelFunc
	c.cancelMu.Unlock()
	return ctx, func() {
		cancelFunc()
		c.cancelMu.Lock()
		c.cancelFunc = nil
		c.cancelMu.Unlock()
	}
}

// =============================================================================
// Dispatch
// =============================================================================

var commands = []prompt.Suggest{
	{Text: "use", Description: "use <project> - set the current project"},
	{Text: "log", Description: "log <experiment> <step> name=value... [#tag...] - write scalars"},
	{Text: "query", Description: "query [experiment...] [-n max] [-tags] - read series"},
	{Text: "columns", Description: "columns - show the project's physical table columns"},
	{Text: "names", Description: "names - show the project's scalar name mapping"},
	{Text: "last", Description: "last <experiment> - show last write time"},
	{Text: "export", Description: "export <file.parquet> [experiment...] - export series"},
	{Text: "sql", Description: "sql <statement> - run raw SQL"},
	{Text: "stats", Description: "stats - cache and query statistics"},
	{Text: "help", Description: "show commands"},
	{Text: "exit", Description: "leave the console"},
}

func (c *Console) completer(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
}

func (c *Console) input(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "use":
		err = c.cmdUse(args)
	case "log":
		err = c.cmdLog(args)
	case "query":
		err = c.cmdQuery(args)
	case "columns":
		err = c.cmdColumns(args)
	case "names":
		err = c.cmdNames(args)
	case "last":
		err = c.cmdLast(args)
	case "export":
		err = c.cmdExport(args)
	case "sql":
		err = c.cmdSQL(strings.TrimSpace(strings.TrimPrefix(line, "sql")))
	case "stats":
		err = c.cmdStats(args)
	case "help":
		c.cmdHelp()
	case "exit", "quit":
		c.done = true
	default:
		err = fmt.Errorf("unknown command %q (try help)", cmd)
	}

	if err != nil {
		switch {
		case errors.IsValidation(err):
			fmt.Fprintln(c.out, "Error (invalid input):", err)
		case errors.IsRetriable(err):
			fmt.Fprintln(c.out, "Error (retriable):", err)
		default:
			fmt.Fprintln(c.out, "Error:", err)
		}
	}
}

func (c *Console) requireProject() error {
	if c.project == "" {
		return fmt.Errorf("no project selected (use <project>)")
	}
	return nil
}

// =============================================================================
// Commands
// =============================================================================

func (c *Console) cmdUse(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: use <project>")
	}
	c.project = args[0]
	fmt.Fprintf(c.out, "project: %s\n", c.project)
	return nil
}

// cmdLog parses "log <experiment> <step> name=value... [#tag...]".
func (c *Console) cmdLog(args []string) error {
	if err := c.requireProject(); err != nil {
		return err
	}
	if len(args) < 3 {
		return fmt.Errorf("usage: log <experiment> <step> name=value... [#tag...]")
	}

	experiment := args[0]
	step, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid step %q: %w", args[1], err)
	}

	scalars := make(map[string]float64)
	var tags []string
	for _, arg := range args[2:] {
		if strings.HasPrefix(arg, "#") {
			tags = append(tags, strings.TrimPrefix(arg, "#"))
			continue
		}
		name, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("expected name=value, got %q", arg)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %q: %w", name, err)
		}
		scalars[name] = value
	}

	ctx, cancel := c.queryContext()
	defer cancel()

	result, err := c.svc.LogScalar(ctx, c.project, experiment, step, scalars, tags)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		fmt.Fprintln(c.out, "warning:", w)
	}
	fmt.Fprintf(c.out, "logged %d row(s)\n", result.Rows)
	return nil
}

// cmdQuery parses "query [experiment...] [-n max] [-tags]".
func (c *Console) cmdQuery(args []string) error {
	if err := c.requireProject(); err != nil {
		return err
	}

	p := types.QueryParams{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-n":
			i++
			if i >= len(args) {
				return fmt.Errorf("-n needs a value")
			}
			n, err := strconv.Atoi(args[i])
			if err != nil {
				return fmt.Errorf("invalid -n value %q: %w", args[i], err)
			}
			p.MaxPoints = n
		case "-tags":
			p.ReturnTags = true
		default:
			p.ExperimentIDs = append(p.ExperimentIDs, args[i])
		}
	}

	ctx, cancel := c.queryContext()
	defer cancel()

	series, err := c.svc.GetScalars(ctx, c.project, p)
	if err != nil {
		return err
	}
	c.printSeries(series, p.ReturnTags)
	return nil
}

func (c *Console) printSeries(series []*types.ExperimentSeries, withTags bool) {
	if len(series) == 0 {
		fmt.Fprintln(c.out, "(no data)")
		return
	}
	for _, es := range series {
		fmt.Fprintf(c.out, "experiment %s\n", es.ExperimentID)

		names := make([]string, 0, len(es.Scalars))
		for name := range es.Scalars {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			s := es.Scalars[name]
			fmt.Fprintf(c.out, "  %s (%d points)\n", name, s.Len())
			for i := range s.Steps {
				fmt.Fprintf(c.out, "    step %-8d %g\n", s.Steps[i], s.Values[i])
			}
		}

		if withTags {
			for _, st := range es.Tags {
				fmt.Fprintf(c.out, "  step %-8d scalars=%s tags=%s\n",
					st.Step, strings.Join(st.ScalarNames, ","), strings.Join(st.Tags, ","))
			}
		}
	}
}

func (c *Console) cmdColumns(args []string) error {
	if err := c.requireProject(); err != nil {
		return err
	}

	ctx, cancel := c.queryContext()
	defer cancel()

	tables := c.svc.Tables()
	table, err := tables.TableName(c.project)
	if err != nil {
		return err
	}

	exists, err := tables.Exists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Fprintf(c.out, "table %s does not exist yet\n", table)
		return nil
	}

	current, err := tables.CurrentColumns(ctx, table)
	if err != nil {
		return err
	}
	cols := make([]string, 0, len(current))
	for col := range current {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	fmt.Fprintf(c.out, "table %s (%d columns)\n", table, len(cols))
	for _, col := range cols {
		fmt.Fprintf(c.out, "  %s\n", col)
	}
	return nil
}

func (c *Console) cmdNames(args []string) error {
	if err := c.requireProject(); err != nil {
		return err
	}

	ctx, cancel := c.queryContext()
	defer cancel()

	mapping, err := c.svc.NameMapping(ctx, c.project)
	if err != nil {
		return err
	}
	if len(mapping) == 0 {
		fmt.Fprintln(c.out, "(no mapping yet)")
		return nil
	}

	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(c.out, "  %-30s -> %s\n", name, mapping[name])
	}
	return nil
}

func (c *Console) cmdLast(args []string) error {
	if err := c.requireProject(); err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: last <experiment>")
	}

	ctx, cancel := c.queryContext()
	defer cancel()

	at, ok, err := c.svc.LastLogged(ctx, c.project, args[0])
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "(never logged)")
		return nil
	}
	fmt.Fprintf(c.out, "%s (%s ago)\n", at.Format(time.RFC3339), time.Since(at).Round(time.Second))
	return nil
}

func (c *Console) cmdExport(args []string) error {
	if err := c.requireProject(); err != nil {
		return err
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: export <file.parquet> [experiment...]")
	}

	path := args[0]
	p := types.QueryParams{ExperimentIDs: args[1:]}

	ctx, cancel := c.queryContext()
	defer cancel()

	series, err := c.svc.GetScalars(ctx, c.project, p)
	if err != nil {
		return err
	}

	rows, err := export.WriteSeries(path, series, export.DefaultOptions())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "wrote %d row(s) to %s\n", rows, path)
	return nil
}

func (c *Console) cmdSQL(stmt string) error {
	if stmt == "" {
		return fmt.Errorf("usage: sql <statement>")
	}

	ctx, cancel := c.queryContext()
	defer cancel()

	rows, err := c.store.QueryContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, strings.Join(cols, "\t"))

	values := make([]interface{}, len(cols))
	dest := make([]interface{}, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		parts := make([]string, len(values))
		for i, v := range values {
			if v == nil {
				parts[i] = "NULL"
			} else {
				parts[i] = fmt.Sprintf("%v", v)
			}
		}
		fmt.Fprintln(c.out, strings.Join(parts, "\t"))
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "(%d rows)\n", count)
	return nil
}

func (c *Console) cmdStats(args []string) error {
	if cs, ok := c.svc.CacheStats(); ok {
		fmt.Fprintf(c.out, "cache: hits=%d misses=%d invalidations=%d entries=%d projects=%d\n",
			cs.Hits, cs.Misses, cs.Invalidations, cs.Size, cs.Projects)
	} else {
		fmt.Fprintln(c.out, "cache: disabled")
	}

	qs := c.svc.QueryStats()
	fmt.Fprintf(c.out, "query: executed=%d rows_scanned=%d errors=%d\n",
		qs.QueriesExecuted, qs.RowsScanned, qs.Errors)
	return nil
}

func (c *Console) cmdHelp() {
	for _, cmd := range commands {
		fmt.Fprintf(c.out, "  %-8s %s\n", cmd.Text, cmd.Description)
	}
}
