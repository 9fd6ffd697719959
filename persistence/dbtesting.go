package persistence

import (
	"net/url"
	"os"
	"path"
)

// TestDBURL returns the URL of a throwaway sqlite database along with the
// directory holding it, which the caller removes with ResetTestDB when done
func TestDBURL() (*url.URL, string) {
	dir, err := os.MkdirTemp("", "ledger_test")
	if err != nil {
		panic(err)
	}
	url, err := url.Parse("sqlite3://" + path.Join(dir, "test.db"))
	if err != nil {
		panic(err)
	}
	return url, dir
}

// ResetTestDB removes a test database created via TestDBURL
func ResetTestDB(dbPath string) {
	os.RemoveAll(dbPath)
}
