package credential

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresRepository persists account records in the accounts table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo over an open pgx-backed *sql.DB.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectAccount = `
	SELECT id, username, login_id, student_name, password_envelope, session_envelope,
		active, registered_at, last_login, last_check,
		total_checks, total_absences, failed_attempts
	FROM accounts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec         Record
		passwordEnv []byte
		sessionEnv  []byte
		lastLogin   sql.NullTime
		lastCheck   sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.Username, &rec.LoginID, &rec.StudentName, &passwordEnv, &sessionEnv,
		&rec.Active, &rec.RegisteredAt, &lastLogin, &lastCheck,
		&rec.Stats.TotalChecks, &rec.Stats.TotalAbsences, &rec.Stats.FailedAttempts); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(passwordEnv, &rec.Password); err != nil {
		return Record{}, fmt.Errorf("%w: password envelope: %v", ErrDecryption, err)
	}
	if len(sessionEnv) > 0 {
		var env Envelope
		if err := json.Unmarshal(sessionEnv, &env); err != nil {
			return Record{}, fmt.Errorf("%w: session envelope: %v", ErrDecryption, err)
		}
		rec.Session = &env
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		rec.LastLogin = &t
	}
	if lastCheck.Valid {
		t := lastCheck.Time
		rec.LastCheck = &t
	}
	return rec, nil
}

// Get returns one record by account id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, selectAccount+` WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// Put upserts the full record.
func (r *PostgresRepository) Put(ctx context.Context, rec Record) error {
	passwordEnv, err := json.Marshal(rec.Password)
	if err != nil {
		return err
	}
	var sessionEnv any
	if rec.Session != nil {
		b, err := json.Marshal(rec.Session)
		if err != nil {
			return err
		}
		sessionEnv = string(b)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, login_id, student_name, password_envelope, session_envelope,
			active, registered_at, last_login, last_check, total_checks, total_absences, failed_attempts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			login_id = EXCLUDED.login_id,
			student_name = EXCLUDED.student_name,
			password_envelope = EXCLUDED.password_envelope,
			session_envelope = EXCLUDED.session_envelope,
			active = EXCLUDED.active,
			registered_at = EXCLUDED.registered_at,
			last_login = EXCLUDED.last_login,
			last_check = EXCLUDED.last_check,
			total_checks = EXCLUDED.total_checks,
			total_absences = EXCLUDED.total_absences,
			failed_attempts = EXCLUDED.failed_attempts,
			updated_at = NOW()
	`, rec.ID, rec.Username, rec.LoginID, rec.StudentName, string(passwordEnv), sessionEnv,
		rec.Active, rec.RegisteredAt, rec.LastLogin, rec.LastCheck,
		rec.Stats.TotalChecks, rec.Stats.TotalAbsences, rec.Stats.FailedAttempts)
	return err
}

// Delete removes a record.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns records ordered by registration time.
func (r *PostgresRepository) List(ctx context.Context, activeOnly bool) ([]Record, error) {
	query := selectAccount
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY registered_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
