package sqlite

import (
	"database/sql"
	"strings"

	"github.com/siard-tools/siard2sql/core/errors"
)

// SplitStatements splits a SQL script into individual statements at
// top-level semicolons. Semicolons inside single-quoted strings and
// "--" line comments do not terminate a statement; doubled quotes
// inside strings are handled naturally since each quote toggles state.
func SplitStatements(script string) []string {
	var stmts []string
	var b strings.Builder
	inQuote := false
	inComment := false

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case inComment:
			b.WriteByte(c)
			if c == '\n' {
				inComment = false
			}
		case inQuote:
			b.WriteByte(c)
			if c == '\'' {
				inQuote = false
			}
		case c == '\'':
			b.WriteByte(c)
			inQuote = true
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			b.WriteByte(c)
			inComment = true
		case c == ';':
			if s := strings.TrimSpace(b.String()); s != "" {
				stmts = append(stmts, s)
			}
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}

// ExecScript executes every statement of a SQL script against db inside
// a single transaction. The first failing statement aborts and rolls
// back the whole script.
func ExecScript(db *sql.DB, script string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	for _, stmt := range SplitStatements(script) {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "exec statement %q", truncate(stmt, 60))
		}
	}
	return tx.Commit()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
