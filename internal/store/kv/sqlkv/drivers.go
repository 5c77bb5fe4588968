package sqlkv

import (
	// Registers the "sqlite3" database/sql driver.
	_ "github.com/mattn/go-sqlite3"
	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"
)
