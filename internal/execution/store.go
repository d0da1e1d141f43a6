package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	clierr "github.com/novabot/nova/internal/errors"
)

// Store is the sqlite journal of executed plans.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create plan store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create plan lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open plan sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA busy_timeout=5000;",
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS plans (
			plan_id TEXT PRIMARY KEY,
			network TEXT NOT NULL,
			account TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_plans_status_updated ON plans(status, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init plan schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(plan PlanRecord) error {
	if strings.TrimSpace(plan.PlanID) == "" {
		return fmt.Errorf("save plan: missing plan id")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock plan store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock plan store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	createdUnix := parseRFC3339Unix(plan.CreatedAt)
	updatedUnix := parseRFC3339Unix(plan.UpdatedAt)

	_, err = s.db.Exec(`
		INSERT INTO plans (plan_id, network, account, status, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET
			status=excluded.status,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, plan.PlanID, plan.Network, plan.Account, string(plan.Status), createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

func (s *Store) Get(planID string) (PlanRecord, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM plans WHERE plan_id = ?", planID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PlanRecord{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("plan not found: %s", planID))
		}
		return PlanRecord{}, fmt.Errorf("read plan: %w", err)
	}
	var plan PlanRecord
	if err := json.Unmarshal(payload, &plan); err != nil {
		return PlanRecord{}, fmt.Errorf("decode plan payload: %w", err)
	}
	return plan, nil
}

// List returns the most recently updated plans, optionally filtered by
// status and network.
func (s *Store) List(status, network string, limit int) ([]PlanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT payload FROM plans"
	var (
		where []string
		args  []any
	)
	if strings.TrimSpace(status) != "" {
		where = append(where, "status = ?")
		args = append(args, strings.TrimSpace(status))
	}
	if strings.TrimSpace(network) != "" {
		where = append(where, "network = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(network)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	plans := make([]PlanRecord, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan plan row: %w", err)
		}
		var plan PlanRecord
		if err := json.Unmarshal(payload, &plan); err != nil {
			return nil, fmt.Errorf("decode plan row: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plan rows: %w", err)
	}
	return plans, nil
}

func parseRFC3339Unix(v string) int64 {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Now().UTC().Unix()
	}
	return t.UTC().Unix()
}
