// Package main is the entrypoint for the wallet-bridge (binary name "bridge" in Docker).
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/morezero/wallet-bridge/internal/config"
	"github.com/morezero/wallet-bridge/internal/server"
	"github.com/morezero/wallet-bridge/pkg/catalog"
	"github.com/morezero/wallet-bridge/pkg/db"
	"github.com/morezero/wallet-bridge/pkg/dispatcher"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `Usage: bridge [command]
       bridge serve              Start the bridge (browser page, COMMS relay, HTTP).
       bridge operations         List the operations the bridge serves (built-ins plus catalog).
       bridge migrate up         Create the call journal schema.
       bridge migrate status     Show call journal schema status.
       bridge ensure-db [name]   Create database if missing (default name: bridge_journal). Uses DATABASE_URL host/user.
       bridge version            Print the bridge version.

Commands:
  serve           (default) Start the wallet bridge.
  operations      Print each operation, its wallet call and result kind.
  migrate up      Run database migrations only.
  migrate status  Show whether the journal table exists and which migrations are available.
  ensure-db [name] Create database (e.g. bridge_journal) on same host as DATABASE_URL.

Environment: COMMS_URL, WEBVIEW_START_URL, SURFACE, BRIDGE_SUBJECT, OPERATIONS_CATALOG_FILE,
DATABASE_URL (journal and migrate), MIGRATION_PATH, BRIDGE_HTTP_ADDR (default :8080). See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("bridge migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("bridge migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(os.Stdout); err != nil {
				log.Fatalf("bridge migrate status: %v", err)
			}
		default:
			log.Fatalf("bridge migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "ensure-db":
		dbName := "bridge_journal"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("bridge ensure-db: %v", err)
		}
		return
	case "operations":
		if err := runOperations(os.Stdout); err != nil {
			log.Fatalf("bridge operations: %v", err)
		}
		return
	case "version", "-v", "--version":
		fmt.Println(version)
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("bridge: %v", err)
	}
}

func runMigrateUp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus(w io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	state, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	fmt.Fprint(w, formatMigrationState(state))
	return nil
}

func formatMigrationState(state *db.MigrationState) string {
	var b strings.Builder
	if state.Applied {
		b.WriteString("call_journal: present\n")
	} else {
		b.WriteString("call_journal: missing (run: bridge migrate up)\n")
	}
	fmt.Fprintf(&b, "migrations available: %d\n", len(state.Files))
	for _, f := range state.Files {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	return b.String()
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	// Replace path with target database name; query (e.g. sslmode) is kept on u.RawQuery.
	u.Path = "/" + dbName
	if err := db.EnsureJournalDatabase(context.Background(), u.String()); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

// operationSet collects the effective operations without a live dispatcher.
type operationSet map[string]dispatcher.Operation

func (s operationSet) Register(op dispatcher.Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	s[op.Name] = op
	return nil
}

func (s operationSet) Operation(name string) (dispatcher.Operation, bool) {
	op, ok := s[name]
	return op, ok
}

func runOperations(w io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var paths []string
	if cfg.CatalogFile != "" {
		paths = append(paths, cfg.CatalogFile)
	}
	cat, _, err := catalog.LoadCatalog(paths...)
	if err != nil {
		return err
	}
	ops, err := effectiveOperations(cat)
	if err != nil {
		return err
	}
	return writeOperations(w, ops)
}

func effectiveOperations(cat *catalog.Catalog) ([]dispatcher.Operation, error) {
	set := operationSet{}
	for _, op := range dispatcher.Builtin() {
		set[op.Name] = op
	}
	if _, err := catalog.Apply(cat, set); err != nil {
		return nil, err
	}
	ops := make([]dispatcher.Operation, 0, len(set))
	for _, op := range set {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops, nil
}

func writeOperations(w io.Writer, ops []dispatcher.Operation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tWALLET CALL\tRESULT\tPARAMS\tDEADLINE")
	for _, op := range ops {
		result := op.Result
		if result == "" {
			result = dispatcher.ResultBody
		}
		deadline := "default"
		if op.NoDeadline {
			deadline = "none"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", op.Name, op.RemoteName(), result, len(op.Params), deadline)
	}
	return tw.Flush()
}
