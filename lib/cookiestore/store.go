// Package cookiestore persists the cookies (and the optional scout api
// key) of a dashboard session so logins survive process restarts. it
// has no knowledge of the upstream protocol, it only round-trips
// http.Cookie values through sqlite/libsql.
package cookiestore

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	_ "embed"
)

//go:embed schema.sql
var Schema string

const apiKeySecret = "scout_api_key"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) Store {
	return Store{db: db}
}

// Load returns every persisted cookie. expired cookies are filtered
// out but not deleted, the next Save overwrites the whole set anyway.
func (s Store) Load(ctx context.Context) ([]*http.Cookie, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT name, value, domain, path, expires_at, secure, http_only FROM cookies`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	var cookies []*http.Cookie
	for rows.Next() {
		var c http.Cookie
		var expiresAt int64
		var secure, httpOnly int
		err = rows.Scan(&c.Name, &c.Value, &c.Domain, &c.Path, &expiresAt, &secure, &httpOnly)
		if err != nil {
			return nil, err
		}
		if expiresAt != 0 {
			c.Expires = time.Unix(expiresAt, 0)
			if c.Expires.Before(now) {
				continue
			}
		}
		c.Secure = secure != 0
		c.HttpOnly = httpOnly != 0
		cookies = append(cookies, &c)
	}
	return cookies, rows.Err()
}

// Save replaces all persisted cookies with the given set.
func (s Store) Save(ctx context.Context, cookies []*http.Cookie) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM cookies`)
	if err != nil {
		return err
	}
	for _, c := range cookies {
		var expiresAt int64
		if !c.Expires.IsZero() {
			expiresAt = c.Expires.Unix()
		}
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO cookies (name, value, domain, path, expires_at, secure, http_only)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.Name, c.Value, c.Domain, c.Path, expiresAt,
			boolToInt(c.Secure), boolToInt(c.HttpOnly),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// APIKey returns the persisted scout api key, or "" when none is set.
func (s Store) APIKey(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT value FROM secrets WHERE key = ?`, apiKeySecret,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s Store) SetAPIKey(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO secrets (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		apiKeySecret, key,
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
