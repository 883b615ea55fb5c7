// Package sqlite persists watermarks in an embedded SQLite database using the
// pure Go modernc.org/sqlite driver.
package sqlite
