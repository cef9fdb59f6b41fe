package sqliteutil

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// OpenDB opens either a local sqlite file or a remote libsql database
// (libsql:// / https:// urls), then ensures the schema exists. an auth
// token may be passed for remote databases.
func OpenDB(schema, path, authToken string) (*sql.DB, error) {
	var db *sql.DB
	var err error

	if strings.HasPrefix(path, "libsql://") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "http://") {
		values := url.Values{}
		if authToken != "" {
			values.Add("authToken", authToken)
		}
		dsn := path
		if len(values) > 0 {
			dsn = path + "?" + values.Encode()
		}
		db, err = sql.Open("libsql", dsn)
	} else {
		db, err = sql.Open("sqlite", path)
	}
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return db, nil
}
