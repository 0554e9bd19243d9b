package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-colorable"

	"github.com/tsilva/dbvault/internal/catalog"
	"github.com/tsilva/dbvault/internal/config"
	"github.com/tsilva/dbvault/internal/db"
	"github.com/tsilva/dbvault/internal/migrate"
	"github.com/tsilva/dbvault/internal/state"
	"github.com/tsilva/dbvault/internal/store"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const (
	green = "\x1b[32m"
	red   = "\x1b[31m"
	reset = "\x1b[0m"
)

func main() {
	stdout := colorable.NewColorableStdout()
	stderr := colorable.NewColorableStderr()

	if err := run(os.Args[1:], stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "%sError: %v%s\n", red, err, reset)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errors.New("missing command")
	}
	if args[0] == "help" {
		usage(stdout)
		return nil
	}
	if args[0] == "version" {
		fmt.Fprintf(stdout, "dbvault %s (built at %s)\n", version, buildTime)
		return nil
	}

	cfg, err := config.Load(os.Getenv("DBVAULT_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	switch cmd := args[0]; cmd {
	case "backup":
		return runBackup(ctx, cfg, logger, stdout, args[1:])
	case "restore":
		return runRestore(ctx, cfg, logger, stdout, args[1:])
	case "create", "insert", "rows", "get", "drop":
		return runStore(ctx, cfg, logger, stdout, cmd, args[1:])
	default:
		usage(stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `Usage: dbvault <command> [options]

Commands:
  backup  [-file <path>]                copy the live database into a backup file
  restore [-file <path>]                copy a backup back into the live database
  create  -table <name> -cols <defs>    create a table ("name TEXT,age INTEGER")
  insert  -table <name> <col=value>...  insert one row
  rows    -table <name>                 print every row of a table
  get     -table <name> -id <n>         print one row by identity
  drop    -table <name>                 drop a table
  version                               print the version
  help                                  print this help

Configuration comes from the YAML file named by DBVAULT_CONFIG and from
DBVAULT_* environment variables.`)
}

func runBackup(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	file := fs.String("file", "", "backup file path (default: timestamped file in the backup dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dst := *file
	if dst == "" {
		dst = filepath.Join(cfg.BackupDir, time.Now().Format("backup-20060102-150405.db"))
	}
	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create backup dir: %w", err)
		}
	}

	res, err := copyDatabase(ctx, cfg.DatabasePath, dst, migrate.Options{}, logger)
	if err != nil {
		return err
	}

	st, err := state.Load(ctx, cfg.StatePath)
	if err != nil {
		return err
	}
	st.DatabasePath = cfg.DatabasePath
	st.RecordBackup(dst)
	if err := state.Save(cfg.StatePath, st); err != nil {
		return err
	}

	if res.Tables == 0 {
		fmt.Fprintf(stdout, "%sNo tables available in %s; nothing to back up%s\n", green, cfg.DatabasePath, reset)
		return nil
	}
	fmt.Fprintf(stdout, "%sBackup completed: %s (%d tables, %d rows in %s)%s\n",
		green, dst, res.Tables, res.Rows, res.Elapsed.Round(time.Millisecond), reset)
	return nil
}

func runRestore(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	file := fs.String("file", "", "backup file to restore (default: latest recorded backup)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := state.Load(ctx, cfg.StatePath)
	if err != nil {
		return err
	}

	src := *file
	if src == "" {
		src = st.LatestBackup
	}
	if src == "" {
		return errors.New("no backup file given and no previous backup recorded")
	}
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("backup file %s: %w", src, err)
	}

	// restored rows get fresh identities assigned by the live database
	res, err := copyDatabase(ctx, src, cfg.DatabasePath, migrate.Options{StripIdentity: true}, logger)
	if err != nil {
		return err
	}

	st.DatabasePath = cfg.DatabasePath
	if err := state.Save(cfg.StatePath, st); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%sRestore completed: %s -> %s (%d tables, %d rows in %s)%s\n",
		green, src, cfg.DatabasePath, res.Tables, res.Rows, res.Elapsed.Round(time.Millisecond), reset)
	return nil
}

// copyDatabase opens both handles, runs one migration pass and closes the
// handles whatever happens.
func copyDatabase(ctx context.Context, srcPath, dstPath string, opts migrate.Options, logger *slog.Logger) (*migrate.Result, error) {
	src, err := db.New(ctx, srcPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := db.New(ctx, dstPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open destination %s: %w", dstPath, err)
	}
	defer dst.Close()

	return migrate.New(logger).Run(ctx, src, dst, opts)
}

func runStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	table := fs.String("table", "", "table name")
	cols := fs.String("cols", "", `column definitions, e.g. "name TEXT,age INTEGER"`)
	id := fs.Int64("id", 0, "row identity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *table == "" {
		return errors.New("-table is required")
	}

	handle, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	defer handle.Close()

	st := store.New(handle, logger)

	switch cmd {
	case "create":
		defs, err := parseColumns(*cols)
		if err != nil {
			return err
		}
		if err := st.CreateTable(ctx, *table, defs); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%sTable %s created%s\n", green, *table, reset)
		return nil

	case "insert":
		values, err := parseValues(fs.Args())
		if err != nil {
			return err
		}
		rowID, err := st.Insert(ctx, *table, values)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%sInserted row %d into %s%s\n", green, rowID, *table, reset)
		return nil

	case "rows":
		rows, err := st.Rows(ctx, *table)
		if err != nil {
			return err
		}
		for _, row := range rows {
			fmt.Fprintln(stdout, formatRow(row))
		}
		fmt.Fprintf(stdout, "%s%d row(s) in %s%s\n", green, len(rows), *table, reset)
		return nil

	case "get":
		row, err := st.Get(ctx, *table, *id)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("no row with id %d in %s", *id, *table)
		}
		fmt.Fprintln(stdout, formatRow(row))
		return nil

	case "drop":
		if err := st.Drop(ctx, *table); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%sTable %s dropped%s\n", green, *table, reset)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// parseColumns splits "name TEXT,age INTEGER" into column definitions.
func parseColumns(s string) ([]catalog.Column, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("-cols is required")
	}
	var out []catalog.Column
	for _, part := range strings.Split(s, ",") {
		fields := strings.Fields(part)
		if len(fields) != 2 {
			return nil, fmt.Errorf("bad column definition %q, want \"name TYPE\"", strings.TrimSpace(part))
		}
		out = append(out, catalog.Column{Name: fields[0], DeclaredType: fields[1]})
	}
	return out, nil
}

// parseValues turns col=value arguments into a row. Values parse as integer,
// then real, then text; the bare word null is the engine's null.
func parseValues(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, errors.New("insert needs at least one col=value argument")
	}
	values := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("bad argument %q, want col=value", arg)
		}
		values[key] = parseLiteral(raw)
	}
	return values, nil
}

func parseLiteral(raw string) any {
	if raw == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// formatRow renders a row with _id first and the remaining columns sorted.
func formatRow(row map[string]any) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		if k == migrate.IdentityColumn {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if _, ok := row[migrate.IdentityColumn]; ok {
		keys = append([]string{migrate.IdentityColumn}, keys...)
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := row[k]
		if v == nil {
			parts = append(parts, k+"=null")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}
