package storage

import (
	"context"
	"fmt"
	"strings"

	logx "tasktable/pkg/logx"
)

// Store is the persistence API used by the recorder.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// ReadAudit returns the newest limit entries in append order. limit <= 0 returns all.
	ReadAudit(ctx context.Context, limit int) ([]AuditEntry, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

func tail(in []AuditEntry, limit int) []AuditEntry {
	if limit <= 0 || len(in) <= limit {
		return in
	}
	return in[len(in)-limit:]
}
