package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	chstore "solana-fund-dao/internal/storage/clickhouse"
)

const createClickhouseSchemaMigrations = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    String,
		applied_at DateTime64(3, 'UTC') DEFAULT now64(3)
	) ENGINE = ReplacingMergeTree()
	ORDER BY version`

// RunClickhouseMigrations creates the activity database named in the DSN and
// applies embedded SQL files not yet recorded in its schema_migrations table.
// ClickHouse has no DDL transactions: a file is recorded only after every
// statement in it succeeded, so migrations must stay idempotent.
// Returns a connection to the activity database and the files applied.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, []string, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureClickhouseDatabase(ctx, dsn, dbName); err != nil {
		return nil, nil, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse db: %w", err)
	}
	applied, err := applyClickhouse(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, applied, err
	}
	return conn, applied, nil
}

func ensureClickhouseDatabase(ctx context.Context, dsn, dbName string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdent(dbName)); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

func applyClickhouse(ctx context.Context, conn *chstore.Conn) ([]string, error) {
	if err := conn.Exec(ctx, createClickhouseSchemaMigrations); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	done, err := appliedClickhouse(ctx, conn)
	if err != nil {
		return nil, err
	}

	files, err := migrationFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, file := range files {
		if done[file] {
			continue
		}
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+file)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", file, err)
		}
		stmts, err := splitStatements(string(data))
		if err != nil {
			return applied, fmt.Errorf("parse migration %s: %w", file, err)
		}

		// The native protocol takes one statement per Exec.
		for i, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return applied, fmt.Errorf("apply migration %s statement %d: %w", file, i+1, err)
			}
		}
		if err := conn.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, file); err != nil {
			return applied, fmt.Errorf("record migration %s: %w", file, err)
		}
		applied = append(applied, file)
	}
	return applied, nil
}

func appliedClickhouse(ctx context.Context, conn *chstore.Conn) (map[string]bool, error) {
	rows, err := conn.Query(ctx, `SELECT DISTINCT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		done[version] = true
	}
	return done, rows.Err()
}

// splitStatements cuts a migration file into statements at semicolons that
// sit outside single-quoted literals. Line comments are dropped. Quotes are
// escaped by doubling them ('') or with a backslash.
func splitStatements(input string) ([]string, error) {
	var (
		stmts    []string
		cur      strings.Builder
		inString bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			stmts = append(stmts, stmt)
		}
		cur.Reset()
	}

	for i := 0; i < len(input); i++ {
		ch := input[i]
		switch {
		case inString:
			cur.WriteByte(ch)
			switch {
			case ch == '\\' && i+1 < len(input):
				i++
				cur.WriteByte(input[i])
			case ch == '\'' && i+1 < len(input) && input[i+1] == '\'':
				i++
				cur.WriteByte(input[i])
			case ch == '\'':
				inString = false
			}
		case ch == '\'':
			inString = true
			cur.WriteByte(ch)
		case ch == '-' && i+1 < len(input) && input[i+1] == '-':
			for i < len(input) && input[i] != '\n' {
				i++
			}
			cur.WriteByte('\n')
		case ch == ';':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	if inString {
		return nil, fmt.Errorf("unterminated string literal")
	}
	flush()
	return stmts, nil
}

// quoteIdent backquotes a ClickHouse identifier.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
