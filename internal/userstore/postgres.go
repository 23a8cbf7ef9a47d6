package userstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresPool opens a connection pool: parse, connect, ping once at
// startup so a bad DSN fails fast instead of on the first request.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("userstore: failed to parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("userstore: failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("userstore: failed to ping: %w", err)
	}
	return pool, nil
}

// PostgresStore implements Store atop a pgx pool. Token is sealed at rest
// via sealer; every other field is stored in the clear (mpinId, dtas and
// publicKey are not sensitive per spec.md §3).
type PostgresStore struct {
	pool   *pgxpool.Pool
	sealer *TokenSealer
}

func NewPostgresStore(pool *pgxpool.Pool, sealer *TokenSealer) *PostgresStore {
	return &PostgresStore{pool: pool, sealer: sealer}
}

var _ Store = (*PostgresStore)(nil)

const upsertSQL = `
INSERT INTO mpin_users (user_id, project_id, revoked, pin_length, mpin_id, token_sealed, dtas, public_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (user_id, project_id) DO UPDATE SET
  revoked = EXCLUDED.revoked,
  pin_length = EXCLUDED.pin_length,
  mpin_id = EXCLUDED.mpin_id,
  token_sealed = EXCLUDED.token_sealed,
  dtas = EXCLUDED.dtas,
  public_key = EXCLUDED.public_key
`

func (s *PostgresStore) put(ctx context.Context, rec UserRecord) error {
	sealed, err := s.sealer.Seal(rec.UserID, rec.ProjectID, rec.Token)
	if err != nil {
		return fmt.Errorf("userstore: sealing token: %w", err)
	}
	pubKeyHex := ""
	if len(rec.PublicKey) > 0 {
		pubKeyHex = hex.EncodeToString(rec.PublicKey)
	}
	_, err = s.pool.Exec(ctx, upsertSQL,
		rec.UserID, rec.ProjectID, rec.Revoked, rec.PinLength,
		hex.EncodeToString(rec.MpinID), sealed, rec.Dtas, pubKeyHex,
	)
	return err
}

func (s *PostgresStore) Add(ctx context.Context, rec UserRecord) error    { return s.put(ctx, rec) }
func (s *PostgresStore) Update(ctx context.Context, rec UserRecord) error { return s.put(ctx, rec) }

func (s *PostgresStore) Delete(ctx context.Context, rec UserRecord) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM mpin_users WHERE user_id = $1 AND project_id = $2`, rec.UserID, rec.ProjectID)
	return err
}

const selectSQL = `SELECT user_id, project_id, revoked, pin_length, mpin_id, token_sealed, dtas, public_key FROM mpin_users WHERE user_id = $1 AND project_id = $2`

func (s *PostgresStore) Get(ctx context.Context, userID, projectID string) (UserRecord, error) {
	row := s.pool.QueryRow(ctx, selectSQL, userID, projectID)
	rec, err := s.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) All(ctx context.Context) ([]UserRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, project_id, revoked, pin_length, mpin_id, token_sealed, dtas, public_key FROM mpin_users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserRecord
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scan(row scanner) (UserRecord, error) {
	var rec UserRecord
	var mpinIDHex, pubKeyHex, tokenSealed string
	if err := row.Scan(&rec.UserID, &rec.ProjectID, &rec.Revoked, &rec.PinLength, &mpinIDHex, &tokenSealed, &rec.Dtas, &pubKeyHex); err != nil {
		return UserRecord{}, err
	}
	mpinID, err := hex.DecodeString(mpinIDHex)
	if err != nil {
		return UserRecord{}, fmt.Errorf("userstore: corrupt mpin_id: %w", err)
	}
	rec.MpinID = mpinID
	if pubKeyHex != "" {
		pub, err := hex.DecodeString(pubKeyHex)
		if err != nil {
			return UserRecord{}, fmt.Errorf("userstore: corrupt public_key: %w", err)
		}
		rec.PublicKey = pub
	}
	token, err := s.sealer.Open(rec.UserID, rec.ProjectID, tokenSealed)
	if err != nil {
		return UserRecord{}, err
	}
	rec.Token = token
	return rec, nil
}
