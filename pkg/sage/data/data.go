// Package data loads the value trees templates render against, from JSON,
// YAML, TOML or CBOR files or from a SQL query.
package data

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fxamacker/cbor/v2"
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/value"
)

// Format names a serialization.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
	CBOR Format = "cbor"
)

// FormatOf picks a Format from a file extension.
func FormatOf(filename string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return JSON, true
	case ".yaml", ".yml":
		return YAML, true
	case ".toml":
		return TOML, true
	case ".cbor":
		return CBOR, true
	}
	return "", false
}

// Load reads filename and decodes it according to its extension.
func Load(filename string) (value.Value, error) {
	format, ok := FormatOf(filename)
	if !ok {
		return value.MISSING, resourceError(filename, "unsupported file type '"+filepath.Ext(filename)+"'")
	}
	src, err := os.ReadFile(filename)
	if err != nil {
		return value.MISSING, resourceError(filename, err.Error())
	}
	v, err := Decode(src, format)
	if err != nil {
		return value.MISSING, resourceError(filename, err.Error())
	}
	return v, nil
}

// Decode parses src in the given format.
func Decode(src []byte, format Format) (value.Value, error) {
	var x any
	switch format {
	case JSON:
		return value.ParseJSON(string(src))
	case YAML:
		if err := yaml.Unmarshal(src, &x); err != nil {
			return value.MISSING, err
		}
	case TOML:
		var m map[string]any
		if _, err := toml.Decode(string(src), &m); err != nil {
			return value.MISSING, err
		}
		x = m
	case CBOR:
		if err := cbor.Unmarshal(src, &x); err != nil {
			return value.MISSING, err
		}
	default:
		return value.MISSING, serrors.NewSimple(serrors.ClassResource, "unknown data format '"+string(format)+"'")
	}
	return value.FromGo(x), nil
}

func resourceError(filename, reason string) error {
	return serrors.New("RES-0001", map[string]any{"Path": filename, "Reason": reason})
}

// Source describes a SQL data source.
type Source struct {
	Driver string // sqlite, postgres or mysql
	DSN    string
	Query  string
	Args   []any
}

// driverName maps accepted driver spellings to database/sql names.
func driverName(driver string) (string, bool) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return "sqlite", true
	case "postgres", "postgresql", "pg":
		return "postgres", true
	case "mysql", "mariadb":
		return "mysql", true
	}
	return "", false
}

var (
	connections   = make(map[string]*sql.DB)
	connectionsMu sync.RWMutex
)

// open returns a cached connection for driver and dsn.
func open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	key := driver + ":" + dsn
	connectionsMu.RLock()
	db, ok := connections[key]
	connectionsMu.RUnlock()
	if ok {
		return db, nil
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	connectionsMu.Lock()
	defer connectionsMu.Unlock()
	if existing, ok := connections[key]; ok {
		db.Close()
		return existing, nil
	}
	connections[key] = db
	return db, nil
}

// Close closes every cached connection.
func Close() error {
	connectionsMu.Lock()
	defer connectionsMu.Unlock()
	var first error
	for key, db := range connections {
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
		delete(connections, key)
	}
	return first
}

// Query runs src.Query and returns the rows as an array of objects keyed
// by column name.
func Query(ctx context.Context, src Source) (value.Value, error) {
	driver, ok := driverName(src.Driver)
	if !ok {
		return value.MISSING, queryError(src.Driver, "unknown driver")
	}
	db, err := open(ctx, driver, src.DSN)
	if err != nil {
		return value.MISSING, queryError(driver, err.Error())
	}

	rows, err := db.QueryContext(ctx, src.Query, src.Args...)
	if err != nil {
		return value.MISSING, queryError(driver, err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return value.MISSING, queryError(driver, err.Error())
	}

	results := value.NewArray()
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return value.MISSING, queryError(driver, err.Error())
		}

		row := make(map[string]value.Value, len(columns))
		for i, col := range columns {
			row[col] = value.FromGo(values[i])
		}
		results.Elements = append(results.Elements, value.NewObject(row))
	}
	if err := rows.Err(); err != nil {
		return value.MISSING, queryError(driver, err.Error())
	}
	return results, nil
}

func queryError(driver, reason string) error {
	return serrors.New("RES-0002", map[string]any{"Driver": driver, "Reason": reason})
}
