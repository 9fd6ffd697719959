package setup

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/blobvault/blobvault/ledger"
	"github.com/blobvault/blobvault/persistence"
)

const (
	EnvDBURL    = "db_url"
	EnvLogLevel = "log_level"
)

var defaults = make(map[string]string)
var log = logrus.New().WithField("logger", "setup")

func canonKey(key string) string {
	return strings.Replace(strings.Replace(strings.ToLower(key), "-", "_", -1), ".", "_", -1)
}

func SetDefault(key string, value string) {
	defaults[canonKey(key)] = value
}

func GetString(key string) string {
	key = canonKey(key)
	return defaults[key]
}

// InitFromEnv installs defaults, overlays process environment variables and
// configures logging
func InitFromEnv() error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	// Replace forward slashes in case this is windows, URL parser errors
	cwd = strings.Replace(cwd, "\\", "/", -1)
	SetDefault(EnvLogLevel, "debug")
	SetDefault(EnvDBURL, fmt.Sprintf("sqlite3://%s/data/ledger.db", cwd))

	for _, v := range os.Environ() {
		vals := strings.Split(v, "=")
		defaults[canonKey(vals[0])] = strings.Join(vals[1:], "=")
	}

	logLevel, err := logrus.ParseLevel(GetString(EnvLogLevel))
	if err != nil {
		return fmt.Errorf("Invalid log level in %s : %s", EnvLogLevel, GetString(EnvLogLevel))
	}
	logrus.SetLevel(logLevel)

	return nil
}

// NewMetadataStoreFromEnv creates the metadata store selected by db_url.
// The inmem scheme yields a volatile store for tests and local runs.
func NewMetadataStoreFromEnv() (ledger.MetadataStore, error) {
	dbURLString := GetString(EnvDBURL)
	dbURL, err := url.Parse(dbURLString)
	if err != nil {
		return nil, fmt.Errorf("Invalid DB URL in %s : %s", EnvDBURL, dbURLString)
	}

	if dbURL.Scheme == "inmem" {
		log.Info("Using in-memory metadata store")
		return ledger.NewInMemMetadataStore(), nil
	}

	dbConn, err := persistence.CreateDBConnection(dbURL)
	if err != nil {
		return nil, err
	}

	return ledger.NewSQLMetadataStore(dbConn)
}
