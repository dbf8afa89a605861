package warehouse

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect selects warehouse-specific statement forms.
type Dialect string

const (
	Redshift  Dialect = "redshift"
	Postgres  Dialect = "postgres"
	SQLServer Dialect = "sqlserver"
	SQLite    Dialect = "sqlite3"
)

func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case Redshift, Postgres, SQLServer, SQLite:
		return d, nil
	case "":
		return Redshift, nil
	}
	return "", fmt.Errorf("unknown warehouse dialect %q", s)
}

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) Dialect {
	switch driver {
	case "sqlserver":
		return SQLServer
	case "sqlite3":
		return SQLite
	case "postgres":
		return Postgres
	default:
		return Redshift
	}
}

// Truncate returns the statement that empties a table outside any
// surrounding transaction. SQLite has no TRUNCATE.
func (d Dialect) Truncate(table string) string {
	if d == SQLite {
		return "DELETE FROM " + table
	}
	return "TRUNCATE TABLE " + table
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether name is a plain or schema-qualified table
// name. Identifiers are interpolated as-is, so anything else is rejected.
func ValidIdentifier(name string) bool {
	return identifier.MatchString(name)
}

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var secretLiteral = regexp.MustCompile(`(?i)\b(ACCESS_KEY_ID|SECRET_ACCESS_KEY|SESSION_TOKEN)\s+'(?:[^']|'')*'`)

// Redact masks credential literals in a statement before it is logged or
// embedded in an error.
func Redact(statement string) string {
	return secretLiteral.ReplaceAllString(statement, "$1 '***'")
}
