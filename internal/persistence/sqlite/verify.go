package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
)

// IntegrityMode selects the check run against an existing database.
type IntegrityMode string

const (
	IntegrityQuick IntegrityMode = "quick"
	IntegrityFull  IntegrityMode = "full"
	IntegrityOff   IntegrityMode = "off"
)

// ParseIntegrityMode maps a config value to a mode. Empty means quick.
func ParseIntegrityMode(s string) (IntegrityMode, error) {
	switch m := IntegrityMode(strings.ToLower(s)); m {
	case "":
		return IntegrityQuick, nil
	case IntegrityQuick, IntegrityFull, IntegrityOff:
		return m, nil
	default:
		return "", fmt.Errorf("sqlite: unknown integrity mode %q (want quick, full or off)", s)
	}
}

// CorruptError reports a database that failed its integrity check.
type CorruptError struct {
	Path   string
	Issues []string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("sqlite: database %s corrupt: %s", e.Path, strings.Join(e.Issues, "; "))
}

// VerifyIntegrity checks an existing database read-only. A healthy
// database yields nil issues; IntegrityOff skips the check.
func VerifyIntegrity(path string, mode IntegrityMode) ([]string, error) {
	var pragma string
	switch mode {
	case IntegrityOff:
		return nil, nil
	case IntegrityFull:
		pragma = "PRAGMA integrity_check;"
	case IntegrityQuick, "":
		pragma = "PRAGMA quick_check;"
	default:
		return nil, fmt.Errorf("sqlite: unknown integrity mode %q", mode)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", path))
	if err != nil {
		return nil, fmt.Errorf("open database for verification: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(pragma)
	if err != nil {
		return nil, fmt.Errorf("integrity pragma failed: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return nil, fmt.Errorf("scan integrity result row: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("integrity pragma failed: %w", err)
	}

	switch {
	case len(results) == 1 && strings.EqualFold(results[0], "ok"):
		return nil, nil
	case len(results) == 0:
		return []string{"no results returned from integrity check"}, nil
	default:
		return results, nil
	}
}
