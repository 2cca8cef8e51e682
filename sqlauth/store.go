// Package sqlauth keeps a row per bot user in an SQL table and exposes the
// lookup as a botdispatch pre-handler.
//
// The first update from a user inserts a row filled with the configured
// defaults; later updates read it back. Handlers find the result under the
// pre-handler's name:
//
//	store, _ := sqlauth.New(db, sqlauth.Options{
//	    Fields: map[string]any{"position": "main_menu", "language": "en"},
//	})
//	r.AddPreHandler("auth", store.PreHandler())
//
//	user, ok := botdispatch.PreHandledAs[*sqlauth.AuthUser](c.PreHandled(), "auth")
//
// Queries use '?' placeholders and double-quoted identifiers, which SQLite
// (modernc.org/sqlite) and MySQL in ANSI mode accept.
package sqlauth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/bjaus/botdispatch"
)

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrUnknownField is returned by Update for a column not declared in Options.Fields.
var ErrUnknownField = errors.New("unknown field")

// Options describes the users table.
type Options struct {
	// Table defaults to "users".
	Table string

	// IDColumn holds the platform user id. Defaults to "id".
	IDColumn string

	// Fields maps every other column to the default stored for new users.
	Fields map[string]any

	Logger *slog.Logger
}

// AuthUser is a user together with its stored row.
type AuthUser struct {
	// IsNew is set when the row was created by this call.
	IsNew bool

	// Fields holds the row, keyed by column, including the id column.
	Fields map[string]any

	User botdispatch.User
}

// Store reads and creates user rows.
type Store struct {
	db       *sql.DB
	table    string
	idColumn string
	columns  []string
	defaults map[string]any
	logger   *slog.Logger

	selectQuery string
	insertQuery string
}

// New validates opts and prepares the queries. It does not touch the
// database; see EnsureSchema.
func New(db *sql.DB, opts Options) (*Store, error) {
	if opts.Table == "" {
		opts.Table = "users"
	}
	if opts.IDColumn == "" {
		opts.IDColumn = "id"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	for _, name := range append([]string{opts.Table, opts.IDColumn}, slices.Collect(maps.Keys(opts.Fields))...) {
		if !identRE.MatchString(name) {
			return nil, fmt.Errorf("sqlauth: invalid identifier %q", name)
		}
	}

	s := &Store{
		db:       db,
		table:    opts.Table,
		idColumn: opts.IDColumn,
		defaults: make(map[string]any, len(opts.Fields)),
		logger:   opts.Logger,
	}
	for name, v := range opts.Fields {
		if name != opts.IDColumn {
			s.defaults[name] = normalize(v)
		}
	}
	s.columns = append([]string{opts.IDColumn}, slices.Sorted(maps.Keys(s.defaults))...)

	quoted := make([]string, len(s.columns))
	for i, c := range s.columns {
		quoted[i] = quote(c)
	}
	s.selectQuery = fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(quoted, ", "), quote(s.table), quote(s.idColumn))
	s.insertQuery = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(s.table), strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(quoted)), ", "))
	return s, nil
}

// EnsureSchema creates the users table if it does not exist. Column types
// follow the Go type of each default.
func (s *Store) EnsureSchema(ctx context.Context) error {
	defs := []string{quote(s.idColumn) + " INTEGER PRIMARY KEY"}
	for _, c := range s.columns[1:] {
		defs = append(defs, quote(c)+" "+sqlType(s.defaults[c]))
	}
	q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(s.table), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("sqlauth: create table %s: %w", s.table, err)
	}
	return nil
}

// Authorize returns the stored row for u, inserting the defaults first if
// the user has none yet.
func (s *Store) Authorize(ctx context.Context, u botdispatch.User) (*AuthUser, error) {
	fields, err := s.lookup(ctx, u.ID)
	if err == nil {
		return &AuthUser{Fields: fields, User: u}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	fields = s.newRow(u.ID)
	args := make([]any, len(s.columns))
	for i, c := range s.columns {
		args[i] = fields[c]
	}
	if _, insertErr := s.db.ExecContext(ctx, s.insertQuery, args...); insertErr != nil {
		// A concurrent update from the same user may have inserted first.
		if existing, err := s.lookup(ctx, u.ID); err == nil {
			return &AuthUser{Fields: existing, User: u}, nil
		}
		return nil, fmt.Errorf("sqlauth: insert user %d: %w", u.ID, insertErr)
	}
	s.logger.DebugContext(ctx, "user registered", "user_id", u.ID)
	return &AuthUser{IsNew: true, Fields: fields, User: u}, nil
}

// Update stores new values for some of a user's fields.
func (s *Store) Update(ctx context.Context, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	names := slices.Sorted(maps.Keys(fields))
	sets := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		if _, ok := s.defaults[name]; !ok {
			return fmt.Errorf("sqlauth: update %q: %w", name, ErrUnknownField)
		}
		sets[i] = quote(name) + " = ?"
		args = append(args, normalize(fields[name]))
	}
	args = append(args, id)

	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", quote(s.table), strings.Join(sets, ", "), quote(s.idColumn))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("sqlauth: update user %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlauth: update user %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// PreHandler exposes Authorize as a pre-handler. Updates without a sender
// opt out.
func (s *Store) PreHandler() botdispatch.PreHandlerFunc {
	return func(ctx context.Context, u botdispatch.Update) (any, error) {
		sender := u.Sender()
		if sender == nil {
			return nil, nil
		}
		return s.Authorize(ctx, *sender)
	}
}

func (s *Store) lookup(ctx context.Context, id int64) (map[string]any, error) {
	values := make([]any, len(s.columns))
	ptrs := make([]any, len(s.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := s.db.QueryRowContext(ctx, s.selectQuery, id).Scan(ptrs...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlauth: select user %d: %w", id, err)
	}

	fields := s.newRow(id)
	for i, c := range s.columns {
		if b, ok := values[i].([]byte); ok {
			values[i] = string(b)
		}
		if values[i] != nil {
			fields[c] = values[i]
		}
	}
	return fields, nil
}

func (s *Store) newRow(id int64) map[string]any {
	fields := maps.Clone(s.defaults)
	fields[s.idColumn] = id
	return fields
}

func quote(ident string) string { return `"` + ident + `"` }

// normalize converts defaults to the types drivers scan back.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case float32:
		return float64(n)
	case bool:
		if n {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func sqlType(v any) string {
	switch v.(type) {
	case int64:
		return "INTEGER"
	case float64:
		return "REAL"
	case string:
		return "TEXT"
	default:
		return "BLOB"
	}
}
