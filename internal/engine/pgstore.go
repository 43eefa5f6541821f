package engine

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/celerix-dev/schemes/internal/config"
	"github.com/celerix-dev/schemes/internal/pkg/logger"
	"github.com/celerix-dev/schemes/pkg/engine"
	"github.com/celerix-dev/schemes/pkg/schema"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// schemeColumns is shared by every SELECT and RETURNING clause.
const schemeColumns = `id, name, description, category, eligibility, benefits,
	status, start_date, end_date, created_at, updated_at`

// PostgresStore keeps schemes in a PostgreSQL table through pgx.
type PostgresStore struct {
	db   DBTX
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore wraps an existing connection or transaction.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db, now: schema.Now}
}

// ConnectPostgres creates the shared pool, verifies it and, when enabled,
// applies the embedded migrations.
func ConnectPostgres(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	poolConfig.HealthCheckPeriod = time.Minute

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET timezone = 'UTC'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Database connection pool created",
		zap.Int32("max_conns", poolConfig.MaxConns),
		zap.Int32("min_conns", poolConfig.MinConns),
	)

	if cfg.AutoMigrate {
		if err := MigratePostgres(cfg); err != nil {
			pool.Close()
			return nil, err
		}
	}

	s := NewPostgresStore(pool)
	s.pool = pool
	return s, nil
}

// MigratePostgres applies the embedded SQL migrations.
func MigratePostgres(cfg config.DatabaseConfig) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Migrations applied",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, in schema.SchemeInput) (*schema.Scheme, error) {
	doc, err := schema.Prepare(nil, in)
	if err != nil {
		return nil, err
	}
	doc.ID = schema.NewID()
	doc.CreatedAt = s.now()
	doc.UpdatedAt = doc.CreatedAt

	query := fmt.Sprintf(`
		INSERT INTO schemes (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING %s`, schemeColumns, schemeColumns)

	row := s.db.QueryRow(ctx, query,
		doc.ID.Hex(), doc.Name, doc.Description, string(doc.Category), doc.Eligibility, doc.Benefits,
		string(doc.Status), doc.StartDate, doc.EndDate, doc.CreatedAt, doc.UpdatedAt,
	)
	created, err := scanScheme(row)
	if err != nil {
		return nil, fmt.Errorf("insert scheme: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*schema.Scheme, error) {
	oid, err := engine.ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, oid.Hex())
}

func (s *PostgresStore) FindMany(ctx context.Context, f schema.Filter) ([]*schema.Scheme, error) {
	where, args := buildListWhere(f, 1)
	query := fmt.Sprintf(`SELECT %s FROM schemes %s ORDER BY created_at DESC, id DESC`,
		schemeColumns, where)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schemes: %w", err)
	}
	defer rows.Close()

	out := []*schema.Scheme{}
	for rows.Next() {
		doc, err := scanScheme(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheme: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schemes: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateByID(ctx context.Context, id string, in schema.SchemeInput) (*schema.Scheme, error) {
	oid, err := engine.ParseID(id)
	if err != nil {
		return nil, err
	}

	current, err := s.findOne(ctx, oid.Hex())
	if err != nil {
		return nil, err
	}
	doc, err := schema.Prepare(current, in)
	if err != nil {
		return nil, err
	}
	doc.UpdatedAt = s.now()

	query := fmt.Sprintf(`
		UPDATE schemes
		SET name = $2, description = $3, category = $4, eligibility = $5, benefits = $6,
			status = $7, start_date = $8, end_date = $9, updated_at = $10
		WHERE id = $1
		RETURNING %s`, schemeColumns)

	row := s.db.QueryRow(ctx, query,
		oid.Hex(), doc.Name, doc.Description, string(doc.Category), doc.Eligibility, doc.Benefits,
		string(doc.Status), doc.StartDate, doc.EndDate, doc.UpdatedAt,
	)
	updated, err := scanScheme(row)
	if err != nil {
		// Deleted between the read and the write.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, engine.ErrNotFound
		}
		return nil, fmt.Errorf("update scheme: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id string) error {
	oid, err := engine.ParseID(id)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM schemes WHERE id = $1`, oid.Hex())
	if err != nil {
		return fmt.Errorf("delete scheme: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool when the store owns one.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) findOne(ctx context.Context, id string) (*schema.Scheme, error) {
	query := fmt.Sprintf(`SELECT %s FROM schemes WHERE id = $1`, schemeColumns)

	doc, err := scanScheme(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, engine.ErrNotFound
		}
		return nil, fmt.Errorf("find scheme: %w", err)
	}
	return doc, nil
}

func scanScheme(row pgx.Row) (*schema.Scheme, error) {
	var (
		doc                  schema.Scheme
		id, category, status string
	)
	if err := row.Scan(
		&id, &doc.Name, &doc.Description, &category, &doc.Eligibility, &doc.Benefits,
		&status, &doc.StartDate, &doc.EndDate, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	oid, err := schema.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("stored id %q: %w", id, err)
	}
	doc.ID = oid
	doc.Category = schema.Category(category)
	doc.Status = schema.Status(status)
	normalize(&doc)
	return &doc, nil
}

// buildListWhere builds the WHERE clause and arguments for a listing.
// startArg is the number of the first $-placeholder.
func buildListWhere(f schema.Filter, startArg int) (whereClause string, args []any) {
	var conditions []string
	argNum := startArg

	if f.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argNum))
		args = append(args, f.Category)
		argNum++
	}

	if f.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, f.Status)
		argNum++
	}

	// strpos keeps the match literal, unlike LIKE patterns.
	if f.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(strpos(lower(name), lower($%d)) > 0 OR strpos(lower(description), lower($%d)) > 0)",
			argNum, argNum,
		))
		args = append(args, f.Search)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}
