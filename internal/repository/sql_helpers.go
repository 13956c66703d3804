package repository

import (
	"errors"
	"math"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// builderFor picks the placeholder style of the connection's driver.
func builderFor(db *sqlx.DB) sq.StatementBuilderType {
	if db.DriverName() == "postgres" {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// IsUniqueViolation reports whether err came from a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// likePattern escapes LIKE wildcards and wraps term for a substring match.
func likePattern(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(strings.ToLower(term)) + "%"
}

// pageBounds converts limit/offset into squirrel values. SQLite rejects OFFSET
// without LIMIT so an unbounded page with an offset gets a large limit.
func pageBounds(limit, offset int) (uint64, uint64, bool) {
	if limit <= 0 && offset <= 0 {
		return 0, 0, false
	}
	l := uint64(math.MaxInt32)
	if limit > 0 {
		l = uint64(limit)
	}
	o := uint64(0)
	if offset > 0 {
		o = uint64(offset)
	}
	return l, o, true
}
