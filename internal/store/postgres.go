package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/records"
	"github.com/tartampluch/smart-village/internal/sms"
)

var (
	_ records.Store    = (*PostgresStore)(nil)
	_ records.AuditLog = (*PostgresStore)(nil)
	_ sms.HistoryStore = (*PostgresStore)(nil)
)

const (
	driverName          = "pgx"
	pgUniqueViolation   = "23505"
	maxOpenConns        = 20
	maxIdleConns        = 10
	connMaxLifetime     = 15 * time.Minute
	connMaxIdleTime     = 5 * time.Minute
	recordColumns       = `id, mandal_name, village_name, ration_card, voter_card, name, num_family_persons, address, phone_number, aadhar, gender, date_of_birth, qualification, caste, sub_caste, occupation, need_employment, arogyasri_card_number, shg_member, schemes_eligible, remarks, birthday_this_week, birthday_this_month, created_at, updated_at`
	selectRecordsSQL    = `SELECT ` + recordColumns + ` FROM family_records`
	orderNewestFirst    = ` ORDER BY id DESC`
	insertRecordSQL     = `INSERT INTO family_records (mandal_name, village_name, ration_card, voter_card, name, num_family_persons, address, phone_number, aadhar, gender, date_of_birth, qualification, caste, sub_caste, occupation, need_employment, arogyasri_card_number, shg_member, schemes_eligible, remarks, birthday_this_week, birthday_this_month, created_at, updated_at) VALUES (:mandal_name, :village_name, :ration_card, :voter_card, :name, :num_family_persons, :address, :phone_number, :aadhar, :gender, :date_of_birth, :qualification, :caste, :sub_caste, :occupation, :need_employment, :arogyasri_card_number, :shg_member, :schemes_eligible, :remarks, :birthday_this_week, :birthday_this_month, :created_at, :updated_at) RETURNING id`
	updateRecordSQL     = `UPDATE family_records SET mandal_name = :mandal_name, village_name = :village_name, ration_card = :ration_card, voter_card = :voter_card, name = :name, num_family_persons = :num_family_persons, address = :address, phone_number = :phone_number, aadhar = :aadhar, gender = :gender, date_of_birth = :date_of_birth, qualification = :qualification, caste = :caste, sub_caste = :sub_caste, occupation = :occupation, need_employment = :need_employment, arogyasri_card_number = :arogyasri_card_number, shg_member = :shg_member, schemes_eligible = :schemes_eligible, remarks = :remarks, birthday_this_week = :birthday_this_week, birthday_this_month = :birthday_this_month, updated_at = :updated_at WHERE id = :id`
	setBirthDataSQL     = `UPDATE family_records SET date_of_birth = $1, birthday_this_week = $2, birthday_this_month = $3 WHERE id = $4`
	insertRunSQL        = `INSERT INTO maintenance_runs (name, offset_days, touched, ran_at) VALUES (:name, :offset_days, :touched, :ran_at)`
	insertBatchSQL      = `INSERT INTO sms_history (id, kind, message, recipients, sent, failed, test_mode, created_at) VALUES (:id, :kind, :message, :recipients, :sent, :failed, :test_mode, :created_at)`
	selectBatchesSQL    = `SELECT id, kind, message, recipients, sent, failed, test_mode, created_at FROM sms_history ORDER BY created_at DESC, id DESC LIMIT $1`
	smsTotalsSQL        = `SELECT COALESCE(SUM(sent), 0), COALESCE(SUM(recipients), 0), COALESCE(SUM(sent) FILTER (WHERE created_at >= $1), 0) FROM sms_history`
	recordStatsSQL      = `SELECT COUNT(*), COUNT(DISTINCT mandal_name), COUNT(DISTINCT village_name), COUNT(*) FILTER (WHERE birthday_this_week), COUNT(*) FILTER (WHERE birthday_this_month) FROM family_records`
	selectRunsSQL       = `SELECT id, name, offset_days, touched, ran_at FROM maintenance_runs`
	naturalKeyCondition = `mandal_name = $1 AND village_name = $2 AND name = $3 AND phone_number = $4`
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS family_records (
		id                    BIGSERIAL PRIMARY KEY,
		mandal_name           TEXT NOT NULL,
		village_name          TEXT NOT NULL,
		ration_card           TEXT NOT NULL DEFAULT '',
		voter_card            TEXT NOT NULL DEFAULT '',
		name                  TEXT NOT NULL,
		num_family_persons    INTEGER NOT NULL DEFAULT 0,
		address               TEXT NOT NULL DEFAULT '',
		phone_number          TEXT NOT NULL,
		aadhar                TEXT NOT NULL DEFAULT '',
		gender                TEXT NOT NULL DEFAULT '',
		date_of_birth         DATE,
		qualification         TEXT NOT NULL DEFAULT '',
		caste                 TEXT NOT NULL DEFAULT '',
		sub_caste             TEXT NOT NULL DEFAULT '',
		occupation            TEXT NOT NULL DEFAULT '',
		need_employment       TEXT NOT NULL DEFAULT '',
		arogyasri_card_number TEXT NOT NULL DEFAULT '',
		shg_member            TEXT NOT NULL DEFAULT '',
		schemes_eligible      TEXT NOT NULL DEFAULT '',
		remarks               TEXT NOT NULL DEFAULT '',
		birthday_this_week    BOOLEAN NOT NULL DEFAULT FALSE,
		birthday_this_month   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS family_records_natural_key
		ON family_records (mandal_name, village_name, name, phone_number)`,
	`CREATE INDEX IF NOT EXISTS family_records_village ON family_records (village_name)`,
	`CREATE TABLE IF NOT EXISTS maintenance_runs (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		offset_days INTEGER NOT NULL DEFAULT 0,
		touched     BIGINT NOT NULL DEFAULT 0,
		ran_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sms_history (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		message    TEXT NOT NULL,
		recipients INTEGER NOT NULL,
		sent       INTEGER NOT NULL,
		failed     INTEGER NOT NULL,
		test_mode  BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// PostgresStore persists records, audit runs and SMS history in PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// OpenPostgres connects through the pgx driver and checks the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New(config.ErrDatabaseURL)
	}
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrDBOpen, err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	return NewPostgresStore(db), nil
}

// NewPostgresStore wraps an open handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// Migrate creates the tables and indexes when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", config.ErrDBMigrate, err)
		}
	}
	slog.Info(config.MsgStoreReady,
		config.LogKeyComponent, config.CompStore,
		config.LogKeyStore, config.StoreModePostgres,
	)
	return nil
}

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

func (s *PostgresStore) Insert(ctx context.Context, r *records.Record) error {
	query, args, err := s.db.BindNamed(insertRecordSQL, r)
	if err != nil {
		return err
	}
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&r.ID); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, r *records.Record) error {
	res, err := s.db.NamedExecContext(ctx, updateRecordSQL, r)
	if err != nil {
		return mapError(err)
	}
	return expectRow(res)
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (records.Record, error) {
	var r records.Record
	if err := s.db.GetContext(ctx, &r, selectRecordsSQL+` WHERE id = $1`, id); err != nil {
		return records.Record{}, mapError(err)
	}
	return r, nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, k records.Key) (records.Record, error) {
	var r records.Record
	err := s.db.GetContext(ctx, &r, selectRecordsSQL+` WHERE `+naturalKeyCondition,
		k.Mandal, k.Village, k.Name, k.Phone)
	if err != nil {
		return records.Record{}, mapError(err)
	}
	return r, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM family_records WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return expectRow(res)
}

func (s *PostgresStore) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM family_records WHERE id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) DeleteVillage(ctx context.Context, village string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM family_records WHERE village_name = $1`, village)
	if err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) List(ctx context.Context, p records.Page) ([]records.Record, error) {
	query := selectRecordsSQL + orderNewestFirst
	var args []any
	if p.Size > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, p.Size, p.Offset())
	}
	return s.selectRecords(ctx, query, args...)
}

func (s *PostgresStore) Find(ctx context.Context, f records.Filter) ([]records.Record, error) {
	var (
		conds []string
		args  []any
	)
	for _, c := range []struct{ column, value string }{
		{"name", f.Name},
		{"mandal_name", f.Mandal},
		{"village_name", f.Village},
		{"phone_number", f.Phone},
		{"gender", f.Gender},
		{"qualification", f.Qualification},
		{"occupation", f.Occupation},
		{"caste", f.Caste},
	} {
		if c.value == "" {
			continue
		}
		args = append(args, "%"+escapeLike(c.value)+"%")
		conds = append(conds, c.column+` ILIKE $`+strconv.Itoa(len(args)))
	}

	query := selectRecordsSQL
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	return s.selectRecords(ctx, query+orderNewestFirst, args...)
}

func (s *PostgresStore) ByMandal(ctx context.Context, mandal string) ([]records.Record, error) {
	return s.selectRecords(ctx, selectRecordsSQL+` WHERE mandal_name = $1`+orderNewestFirst, mandal)
}

func (s *PostgresStore) ByVillage(ctx context.Context, village string) ([]records.Record, error) {
	return s.selectRecords(ctx, selectRecordsSQL+` WHERE village_name = $1`+orderNewestFirst, village)
}

func (s *PostgresStore) WithFlag(ctx context.Context, flag records.Flag) ([]records.Record, error) {
	column := "birthday_this_month"
	if flag == records.FlagThisWeek {
		column = "birthday_this_week"
	}
	return s.selectRecords(ctx, selectRecordsSQL+` WHERE `+column+orderNewestFirst)
}

func (s *PostgresStore) WithBirthDate(ctx context.Context) ([]records.Record, error) {
	return s.selectRecords(ctx, selectRecordsSQL+` WHERE date_of_birth IS NOT NULL`+orderNewestFirst)
}

func (s *PostgresStore) Stats(ctx context.Context) (records.Stats, error) {
	var st records.Stats
	err := s.db.QueryRowxContext(ctx, recordStatsSQL).Scan(
		&st.TotalRecords, &st.TotalMandals, &st.TotalVillages, &st.BirthdaysThisWeek, &st.BirthdaysThisMonth)
	if err != nil {
		return records.Stats{}, mapError(err)
	}
	return st, nil
}

// SetBirthData applies every update in one transaction.
func (s *PostgresStore) SetBirthData(ctx context.Context, updates []records.BirthUpdate) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, mapError(err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, setBirthDataSQL)
	if err != nil {
		return 0, mapError(err)
	}
	defer stmt.Close()

	var touched int64
	for _, u := range updates {
		res, err := stmt.ExecContext(ctx, u.DateOfBirth, u.Flags.ThisWeek, u.Flags.ThisMonth, u.ID)
		if err != nil {
			return 0, mapError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		touched += n
	}
	if err := tx.Commit(); err != nil {
		return 0, mapError(err)
	}
	return touched, nil
}

func (s *PostgresStore) selectRecords(ctx context.Context, query string, args ...any) ([]records.Record, error) {
	out := []records.Record{}
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Maintenance audit
// -----------------------------------------------------------------------------

func (s *PostgresStore) RecordRun(ctx context.Context, run records.MaintenanceRun) error {
	if _, err := s.db.NamedExecContext(ctx, insertRunSQL, run); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *PostgresStore) Runs(ctx context.Context, name string) ([]records.MaintenanceRun, error) {
	query := selectRunsSQL
	var args []any
	if name != "" {
		query += ` WHERE name = $1`
		args = append(args, name)
	}
	out := []records.MaintenanceRun{}
	if err := s.db.SelectContext(ctx, &out, query+` ORDER BY id`, args...); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// SMS history
// -----------------------------------------------------------------------------

func (s *PostgresStore) Append(ctx context.Context, b sms.Batch) error {
	if _, err := s.db.NamedExecContext(ctx, insertBatchSQL, b); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]sms.Batch, error) {
	out := []sms.Batch{}
	if err := s.db.SelectContext(ctx, &out, selectBatchesSQL, limit); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (s *PostgresStore) Totals(ctx context.Context, since time.Time) (sms.Stats, error) {
	var st sms.Stats
	err := s.db.QueryRowxContext(ctx, smsTotalsSQL, since).Scan(&st.TotalMessagesSent, &st.TotalRecipients, &st.SentToday)
	if err != nil {
		return sms.Stats{}, mapError(err)
	}
	return st, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return records.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", records.ErrDuplicate, pgErr.ConstraintName)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", config.ErrDBQuery, err)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return records.ErrNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
