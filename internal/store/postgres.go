package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

func (s *PostgresStore) GetDefaultTenant(ctx context.Context) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM tenants WHERE name = 'default' LIMIT 1`,
	).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default tenant: %w", err)
	}
	return &t, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Readings ---

func (s *PostgresStore) AppendReading(ctx context.Context, r *models.Reading) (int64, error) {
	table, err := TableFor(r.SensorClass)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO `+table+` (tenant_id, value, recorded_at, observed_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		r.TenantID, r.Value, r.RecordedAt, r.ObservedAt,
	).Scan(&id)
	if err != nil {
		switch {
		case isDuplicateKeyError(err):
			return 0, ErrDuplicateKey
		case isForeignKeyError(err):
			return 0, ErrUnknownTenant
		}
		return 0, fmt.Errorf("append %s reading: %w", r.SensorClass, err)
	}
	r.ID = id
	return id, nil
}

func (s *PostgresStore) LatestReadings(ctx context.Context, tenantID uuid.UUID, class models.SensorClass, n int) ([]models.Reading, error) {
	table, err := TableFor(class)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, value, recorded_at, observed_at FROM `+table+`
		 WHERE tenant_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT $2`, tenantID, n)
	if err != nil {
		return nil, fmt.Errorf("latest %s readings: %w", class, err)
	}
	return scanReadings(rows, class)
}

func (s *PostgresStore) AllReadings(ctx context.Context, tenantID uuid.UUID, class models.SensorClass) ([]models.Reading, error) {
	table, err := TableFor(class)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, value, recorded_at, observed_at FROM `+table+`
		 WHERE tenant_id = $1 ORDER BY recorded_at ASC, id ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("all %s readings: %w", class, err)
	}
	return scanReadings(rows, class)
}

// PurgeReadings deletes every row of the class table across all tenants in one statement.
func (s *PostgresStore) PurgeReadings(ctx context.Context, class models.SensorClass) (int64, error) {
	table, err := TableFor(class)
	if err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+table)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// UpdateCountValue corrects the value of one committed customer count. Only proximity
// classes are editable; the row must belong to tenantID.
func (s *PostgresStore) UpdateCountValue(ctx context.Context, tenantID uuid.UUID, class models.SensorClass, id int64, value float64) error {
	if !class.IsProximity() {
		return ErrUnknownClass
	}
	table, err := TableFor(class)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+table+` SET value = $3 WHERE id = $1 AND tenant_id = $2`, id, tenantID, value)
	if err != nil {
		return fmt.Errorf("update %s count: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReadings(rows pgx.Rows, class models.SensorClass) ([]models.Reading, error) {
	defer rows.Close()

	readings := make([]models.Reading, 0)
	for rows.Next() {
		r := models.Reading{SensorClass: class}
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Value, &r.RecordedAt, &r.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan %s reading: %w", class, err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s readings: %w", class, err)
	}
	return readings, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isForeignKeyError checks if a pgx error is a foreign key violation.
func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
