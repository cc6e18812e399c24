//go:build !sqlite

package storage

import (
	"fmt"

	logx "tasktable/pkg/logx"
)

// SQLiteAvailable reports whether this binary can open the sqlite journal.
const SQLiteAvailable = false

func openSQLite(cfg Config, _ logx.Logger) (Store, error) {
	return nil, fmt.Errorf("audit journal %q: driver sqlite needs a binary built with -tags sqlite: %w", cfg.Path, ErrDisabled)
}
