package podds

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	_ "modernc.org/sqlite"
)

// ErrRecordNotFound is returned when a lookup by primary key matches nothing
var ErrRecordNotFound = errors.New("record not found")

// Persistable interface defines methods that persistent objects must implement.
// Columns come from struct tags:
//
//	column:"name"   column name (default lower-cased field name)
//	dbtype:"TEXT"   column type, fields without one are not persisted
//	primary:"true"  part of the (possibly compound) primary key
//	index:"true"    gets its own index
//	encode:"json"   stored as a JSON document
//	encode:"unix"   time.Time stored as unix milliseconds
type Persistable interface {
	GetTableName() string
	GetPrimaryKey() map[string]any
	BeforeSave() error
	AfterSave() error
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a SQLite database accessed through the struct-tag mapping
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens (or creates) the database at path and creates the tables.
// ":memory:" gives a private in-memory database
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite has a single writer, and every ":memory:" connection would
	// otherwise get its own empty database
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Database initialized successfully", path)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables(ctx context.Context) error {
	for _, obj := range []Persistable{&Fixture{}, &TeamSeason{}, &FixturePrediction{}, &LearningRecord{}} {
		if err := s.CreateTable(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

// column is one persisted struct field
type column struct {
	name    string
	dbType  string
	primary bool
	index   bool
	encode  string
	field   int
}

// columnsOf reads the persisted columns from the struct tags
func columnsOf(obj any) []column {
	t := reflect.TypeOf(obj)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("persist") == "false" {
			continue
		}
		dbType := f.Tag.Get("dbtype")
		if dbType == "" {
			continue
		}
		name := f.Tag.Get("column")
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		cols = append(cols, column{
			name:    name,
			dbType:  dbType,
			primary: f.Tag.Get("primary") == "true",
			index:   f.Tag.Get("index") == "true",
			encode:  f.Tag.Get("encode"),
			field:   i,
		})
	}
	return cols
}

// CreateTable creates a table for the given persistable object using struct tags
func (s *Store) CreateTable(ctx context.Context, obj Persistable) error {
	table := obj.GetTableName()
	cols := columnsOf(obj)

	var defs, primaryKeys []string
	for _, c := range cols {
		defs = append(defs, fmt.Sprintf("%s %s", c.name, c.dbType))
		if c.primary {
			primaryKeys = append(primaryKeys, c.name)
		}
	}
	if len(primaryKeys) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(primaryKeys, ", ")))
	}
	createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
	logger.Debug("Creating table with SQL", createSQL)
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	for _, c := range cols {
		if !c.index {
			continue
		}
		query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", table, c.name, table, c.name)
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			logger.Warn("Failed to create index", err)
		}
	}
	return nil
}

// encodeValue converts a field to its stored form
func encodeValue(c column, v reflect.Value) (any, error) {
	switch c.encode {
	case "json":
		data, err := json.Marshal(v.Interface())
		if err != nil {
			return nil, fmt.Errorf("failed to encode column %s: %w", c.name, err)
		}
		return string(data), nil
	case "unix":
		t, ok := v.Interface().(time.Time)
		if !ok {
			return nil, fmt.Errorf("column %s is tagged unix but is not a time.Time", c.name)
		}
		if t.IsZero() {
			return nil, nil
		}
		return t.UnixMilli(), nil
	default:
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return nil, nil
			}
			return v.Elem().Interface(), nil
		}
		return v.Interface(), nil
	}
}

// scanTarget returns where to scan a column and a func that moves the scanned value into the field
func scanTarget(c column, v reflect.Value) (any, func() error) {
	switch c.encode {
	case "json":
		var raw sql.NullString
		return &raw, func() error {
			if !raw.Valid || raw.String == "" {
				return nil
			}
			if err := json.Unmarshal([]byte(raw.String), v.Addr().Interface()); err != nil {
				return fmt.Errorf("failed to decode column %s: %w", c.name, err)
			}
			return nil
		}
	case "unix":
		var raw sql.NullInt64
		return &raw, func() error {
			if raw.Valid {
				v.Set(reflect.ValueOf(time.UnixMilli(raw.Int64).UTC()))
			}
			return nil
		}
	default:
		return v.Addr().Interface(), nil
	}
}

// rowValues extracts the column names and stored values of obj
func rowValues(obj any, cols []column) ([]string, []any, error) {
	v := reflect.Indirect(reflect.ValueOf(obj))
	names := make([]string, 0, len(cols))
	values := make([]any, 0, len(cols))
	for _, c := range cols {
		val, err := encodeValue(c, v.Field(c.field))
		if err != nil {
			return nil, nil, err
		}
		names = append(names, c.name)
		values = append(values, val)
	}
	return names, values, nil
}

// Save upserts the object
func (s *Store) Save(ctx context.Context, obj Persistable) error {
	return s.save(ctx, s.db, obj, true)
}

// Insert adds a new record and fails if the primary key exists
func (s *Store) Insert(ctx context.Context, obj Persistable) error {
	return s.save(ctx, s.db, obj, false)
}

func (s *Store) save(ctx context.Context, ex execer, obj Persistable, upsert bool) error {
	if err := obj.BeforeSave(); err != nil {
		return fmt.Errorf("before save hook failed: %w", err)
	}

	table := obj.GetTableName()
	cols := columnsOf(obj)
	names, values, err := rowValues(obj, cols)
	if err != nil {
		return err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), placeholders)

	if upsert {
		var keys, sets []string
		for _, c := range cols {
			if c.primary {
				keys = append(keys, c.name)
			} else {
				sets = append(sets, fmt.Sprintf("%s = excluded.%s", c.name, c.name))
			}
		}
		if len(keys) > 0 && len(sets) > 0 {
			query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keys, ", "), strings.Join(sets, ", "))
		}
	}

	logger.Debug("Save SQL", query)
	if _, err := ex.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("failed to save into %s: %w", table, err)
	}

	if err := obj.AfterSave(); err != nil {
		return fmt.Errorf("after save hook failed: %w", err)
	}
	return nil
}

// BulkSave upserts multiple objects in one transaction
func (s *Store) BulkSave(ctx context.Context, objects []Persistable) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, obj := range objects {
		if err := s.save(ctx, tx, obj, true); err != nil {
			return fmt.Errorf("failed to save object: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Exists checks if the object's primary key is in the database
func (s *Store) Exists(ctx context.Context, obj Persistable) (bool, error) {
	table := obj.GetTableName()
	where, values := buildWhereClause(obj.GetPrimaryKey())
	var count int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where), values...).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check existence in %s: %w", table, err)
	}
	return count > 0, nil
}

// FindByPrimaryKey fills obj from the row matching its primary key
func (s *Store) FindByPrimaryKey(ctx context.Context, obj Persistable) error {
	table := obj.GetTableName()
	cols := columnsOf(obj)
	where, values := buildWhereClause(obj.GetPrimaryKey())
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", columnList(cols), table, where)
	logger.Debug("FindByPrimaryKey SQL", query)

	dest, finish := scanDestinations(obj, cols)
	if err := s.db.QueryRowContext(ctx, query, values...).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %v: %w", table, obj.GetPrimaryKey(), ErrRecordNotFound)
		}
		return fmt.Errorf("failed to scan row from %s: %w", table, err)
	}
	return finish()
}

// FindWhere returns every row matching the clause, which may carry an ORDER BY
func FindWhere[T any, PT interface {
	*T
	Persistable
}](ctx context.Context, s *Store, whereClause string, args ...any) ([]PT, error) {
	var zero T
	proto := PT(&zero)
	table := proto.GetTableName()
	cols := columnsOf(proto)

	query := fmt.Sprintf("SELECT %s FROM %s", columnList(cols), table)
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	logger.Debug("FindWhere SQL", query)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var results []PT
	for rows.Next() {
		obj := PT(new(T))
		dest, finish := scanDestinations(obj, cols)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", table, err)
		}
		if err := finish(); err != nil {
			return nil, err
		}
		results = append(results, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows from %s: %w", table, err)
	}
	return results, nil
}

func scanDestinations(obj any, cols []column) ([]any, func() error) {
	v := reflect.Indirect(reflect.ValueOf(obj))
	dest := make([]any, 0, len(cols))
	var finishers []func() error
	for _, c := range cols {
		target, finish := scanTarget(c, v.Field(c.field))
		dest = append(dest, target)
		if finish != nil {
			finishers = append(finishers, finish)
		}
	}
	return dest, func() error {
		for _, f := range finishers {
			if err := f(); err != nil {
				return err
			}
		}
		return nil
	}
}

func columnList(cols []column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return strings.Join(names, ", ")
}

// buildWhereClause builds a WHERE clause from a primary key map in column order
func buildWhereClause(primaryKey map[string]any) (string, []any) {
	keys := make([]string, 0, len(primaryKey))
	for k := range primaryKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	conditions := make([]string, len(keys))
	values := make([]any, len(keys))
	for i, k := range keys {
		conditions[i] = fmt.Sprintf("%s = ?", k)
		values[i] = primaryKey[k]
	}
	return strings.Join(conditions, " AND "), values
}
