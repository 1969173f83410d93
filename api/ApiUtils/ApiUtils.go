package ApiUtils

import (
	"context"
	"crypto/rand"
	"database/sql"
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Helper to generate a short, random request ID
func GenerateRequestID(key string) string {
	bytes := make([]byte, 4) // 4 bytes = 8 hex chars
	if _, err := rand.Read(bytes); err != nil {
		// Fallback if crypto/rand fails (very rare)
		return "fallback-req-id"
	}
	return key + "-" + hex.EncodeToString(bytes)
}

// IsTransientDBError reports whether err came from the connection or the
// server being temporarily unable to answer, as opposed to a bad statement.
// Callers may retry these; the stores never do.
func IsTransientDBError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// PostgreSQL (lib/pq)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isTransientPGCode(string(pqErr.Code))
	}

	// PostgreSQL (pgx stdlib)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientPGCode(pgErr.Code)
	}

	// MySQL
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1040, 1053, 1205, 1213, 2006, 2013:
			return true
		}
		return false
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Class 08: connection exception, 57P: operator intervention,
// 40001/40P01: serialization failure / deadlock, 53300: too many connections.
func isTransientPGCode(code string) bool {
	return strings.HasPrefix(code, "08") ||
		strings.HasPrefix(code, "57P") ||
		code == "40001" ||
		code == "40P01" ||
		code == "53300"
}

// ExpandPath expands ~ to the user's home directory and resolves relative paths.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}
