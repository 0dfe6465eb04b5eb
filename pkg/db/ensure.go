package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const ensureLogPrefix = "db:ensure"

// codeDuplicateDatabase is returned when another bridge created the journal database first.
const codeDuplicateDatabase = "42P04"

// journalNamePattern limits journal database names to identifiers safe to splice into DDL.
var journalNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EnsureJournalDatabase creates the call-journal database named by journalURL when the server
// does not have it yet. The check and the CREATE run over the server's maintenance database.
// Losing a creation race to another bridge instance is not an error.
func EnsureJournalDatabase(ctx context.Context, journalURL string) error {
	u, err := url.Parse(journalURL)
	if err != nil {
		return fmt.Errorf("%s - journal URL is not a URL: %w", ensureLogPrefix, err)
	}
	name, err := journalDatabaseName(u)
	if err != nil {
		return err
	}

	cfg, err := pgx.ParseConfig(maintenanceURL(u))
	if err != nil {
		return fmt.Errorf("%s - journal URL rejected by pgx: %w", ensureLogPrefix, err)
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s - cannot reach maintenance database for %q: %w", ensureLogPrefix, name, err)
	}
	defer conn.Close(context.Background())

	var found bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&found); err != nil {
		return fmt.Errorf("%s - lookup of journal database %q failed: %w", ensureLogPrefix, name, err)
	}
	if found {
		slog.Debug(fmt.Sprintf("%s - journal database %q present", ensureLogPrefix, name))
		return nil
	}

	slog.Info(fmt.Sprintf("%s - creating journal database %q", ensureLogPrefix, name))
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeDuplicateDatabase {
			slog.Info(fmt.Sprintf("%s - journal database %q created concurrently", ensureLogPrefix, name))
			return nil
		}
		return fmt.Errorf("%s - creating journal database %q failed: %w", ensureLogPrefix, name, err)
	}
	return nil
}

// journalDatabaseName returns the database named in u's path.
func journalDatabaseName(u *url.URL) (string, error) {
	name := strings.TrimSpace(strings.Trim(u.Path, "/"))
	switch {
	case name == "":
		return "", fmt.Errorf("%s - journal URL names no database", ensureLogPrefix)
	case !journalNamePattern.MatchString(name):
		return "", fmt.Errorf("%s - journal database name %q must be a plain identifier", ensureLogPrefix, name)
	}
	return name, nil
}

// maintenanceURL points u at the server's postgres database, keeping credentials and query.
func maintenanceURL(u *url.URL) string {
	m := *u
	m.Path = "/postgres"
	m.RawPath = ""
	return m.String()
}
