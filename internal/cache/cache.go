package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// DefaultTTL bounds how long a cached decimals() answer is trusted.
const DefaultTTL = 7 * 24 * time.Hour

// TokenCache remembers ERC20 decimals per chain so repeat transfers and
// balance reads skip one eth_call. Decimals are immutable for well-behaved
// tokens; the TTL only guards against a redeployed address.
type TokenCache struct {
	db   *sql.DB
	lock *flock.Flock
	ttl  time.Duration
	now  func() time.Time
}

func Open(path, lockPath string, ttl time.Duration) (*TokenCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	queries := []string{
		"PRAGMA busy_timeout=5000;",
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS token_decimals (
			chain_id INTEGER NOT NULL,
			address TEXT NOT NULL,
			decimals INTEGER NOT NULL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (chain_id, address)
		);`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}

	store := &TokenCache{db: db, lock: flock.New(lockPath), ttl: ttl, now: time.Now}
	// Prune expired entries on startup to prevent unbounded growth.
	_ = store.Prune()
	return store, nil
}

func (c *TokenCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Prune deletes entries older than the TTL.
func (c *TokenCache) Prune() error {
	if c == nil || c.db == nil {
		return nil
	}
	cutoff := c.now().UTC().Add(-c.ttl).Unix()
	if _, err := c.db.Exec("DELETE FROM token_decimals WHERE fetched_at < ?", cutoff); err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

// Lookup returns the cached decimals for token on chainID when fresh.
func (c *TokenCache) Lookup(chainID int64, token common.Address) (uint8, bool, error) {
	var decimals int64
	var fetchedUnix int64
	err := c.db.QueryRow(
		"SELECT decimals, fetched_at FROM token_decimals WHERE chain_id = ? AND address = ?",
		chainID, addressKey(token),
	).Scan(&decimals, &fetchedUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("cache read: %w", err)
	}
	age := c.now().UTC().Sub(time.Unix(fetchedUnix, 0).UTC())
	if age > c.ttl || decimals < 0 || decimals > 255 {
		return 0, false, nil
	}
	return uint8(decimals), true, nil
}

func (c *TokenCache) Remember(chainID int64, token common.Address, decimals uint8) error {
	locked, err := c.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = c.lock.Unlock() }()

	_, err = c.db.Exec(`
		INSERT INTO token_decimals (chain_id, address, decimals, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chain_id, address) DO UPDATE SET
			decimals=excluded.decimals,
			fetched_at=excluded.fetched_at
	`, chainID, addressKey(token), int64(decimals), c.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

func addressKey(token common.Address) string {
	return strings.ToLower(token.Hex())
}
