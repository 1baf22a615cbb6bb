package postgresjournal

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/library-circulation-go/journal"
	"github.com/AntonStoeckl/library-circulation-go/journal/postgresjournal/internal/adapters"
)

const (
	DefaultTableName = "circulation_journal"

	logMsgBuildSelectQueryFailed = "failed to build select query"
	logMsgBuildInsertQueryFailed = "failed to build insert query"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgDBExecFailed           = "database execution failed during journal append"
	logMsgCloseRowsFailed        = "failed to close database rows"
	logMsgScanRowFailed          = "failed to scan database row"
	logMsgBuildEntryFailed       = "failed to build journal entry from database row"
	logMsgRowsAffectedFailed     = "failed to get rows affected count"
	logMsgEntriesSkipped         = "entries with already journaled positions were skipped"
	logMsgSQLExecuted            = "executed sql for: "
	logMsgOperation              = "journal operation: "
	logMsgQueryCompleted         = "query completed"
	logMsgEntriesAppended        = "entries appended"
	logAttrError                 = "error"
	logAttrQuery                 = "query"
	logAttrEventType             = "event_type"
	logAttrEntryCount            = "entry_count"
	logAttrRowsAffected          = "rows_affected"
	logAttrDurationMS            = "duration_ms"
	logActionQuery               = "query"
	logActionAppend              = "append"
	colPosition                  = "position"
	colEventType                 = "event_type"
	colOccurredAt                = "occurred_at"
	colPayload                   = "payload"
	colMetadata                  = "metadata"
	dialectPostgres              = "postgres"
	castJsonb                    = "?::jsonb"
	containsJsonb                = "? @> ?::jsonb"
)

var (
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")
	ErrEmptyTableName        = errors.New("table name must not be empty")
	ErrBuildingQueryFailed   = errors.New("building query failed")
	ErrQueryingFailed        = errors.New("querying journal failed")
	ErrAppendingFailed       = errors.New("appending to journal failed")
	ErrScanningDBRowFailed   = errors.New("scanning db row failed")
	ErrBuildingEntryFailed   = errors.New("building journal entry failed")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// IsTransient reports whether err came from executing a statement and may succeed when tried again.
// Errors from building queries or decoding rows are not transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrAppendingFailed) || errors.Is(err, ErrQueryingFailed)
}

// Logger interface for SQL query logging, operational information, warnings and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Journal is a journal.Store backed by a PostgreSQL table.
type Journal struct {
	db        adapters.DBAdapter
	tableName string
	logger    Logger
}

// Option defines a functional option for configuring Journal.
type Option func(*Journal) error

// WithTableName sets the table name. The table must have the shape the embedded migrations create.
func WithTableName(tableName string) Option {
	return func(j *Journal) error {
		if tableName == "" {
			return ErrEmptyTableName
		}

		j.tableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the Journal.
//
// Debug level: SQL statements with execution timing
// Info level: entry counts and durations
// Warn level: skipped duplicates and cleanup failures
// Error level: failures that fail the operation.
func WithLogger(logger Logger) Option {
	return func(j *Journal) error {
		j.logger = logger
		return nil
	}
}

// NewJournalFromPGXPool creates a new Journal using a pgx Pool with optional configuration.
func NewJournalFromPGXPool(db *pgxpool.Pool, options ...Option) (*Journal, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newJournal(adapters.NewPGXAdapter(db), options...)
}

// NewJournalFromSQLDB creates a new Journal using a sql.DB with optional configuration.
func NewJournalFromSQLDB(db *sql.DB, options ...Option) (*Journal, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newJournal(adapters.NewSQLAdapter(db), options...)
}

// NewJournalFromSQLX creates a new Journal using a sqlx.DB with optional configuration.
func NewJournalFromSQLX(db *sqlx.DB, options ...Option) (*Journal, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newJournal(adapters.NewSQLXAdapter(db), options...)
}

func newJournal(db adapters.DBAdapter, options ...Option) (*Journal, error) {
	j := &Journal{
		db:        db,
		tableName: DefaultTableName,
	}

	for _, option := range options {
		if err := option(j); err != nil {
			return nil, err
		}
	}

	return j, nil
}

// Append inserts the entries with one multi-row statement.
// Entries whose position is already journaled are skipped and reported at warn level.
func (j *Journal) Append(ctx context.Context, entries ...journal.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	sqlQuery, buildErr := j.buildInsertQuery(entries)
	if buildErr != nil {
		j.logError(logMsgBuildInsertQueryFailed, logAttrError, buildErr.Error())

		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	start := time.Now()
	rowsAffected, execErr := j.db.Insert(ctx, sqlQuery)
	duration := time.Since(start)
	j.logQueryWithDuration(sqlQuery, logActionAppend, duration)

	switch {
	case errors.Is(execErr, adapters.ErrRowsAffectedUnknown):
		j.logError(logMsgRowsAffectedFailed, logAttrError, execErr.Error())

		return errors.Join(ErrAppendingFailed, execErr)
	case execErr != nil:
		j.logError(logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, sqlQuery)

		return errors.Join(ErrAppendingFailed, execErr)
	}

	if rowsAffected < int64(len(entries)) && j.logger != nil {
		j.logger.Warn(logMsgEntriesSkipped, logAttrEntryCount, len(entries), logAttrRowsAffected, rowsAffected)
	}

	j.logOperation(
		logMsgEntriesAppended,
		logAttrEntryCount, rowsAffected,
		logAttrDurationMS, durationToMilliseconds(duration))

	return nil
}

// Query returns the entries matching the filter ordered by position.
func (j *Journal) Query(ctx context.Context, filter journal.Filter) (journal.Entries, error) {
	sqlQuery, buildErr := j.buildSelectQuery(filter)
	if buildErr != nil {
		j.logError(logMsgBuildSelectQueryFailed, logAttrError, buildErr.Error())

		return nil, errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	start := time.Now()
	rows, queryErr := j.db.Select(ctx, sqlQuery)
	duration := time.Since(start)
	j.logQueryWithDuration(sqlQuery, logActionQuery, duration)

	if queryErr != nil {
		j.logError(logMsgDBQueryFailed, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)

		return nil, errors.Join(ErrQueryingFailed, queryErr)
	}
	defer j.closeRows(rows)

	entries, scanErr := j.processQueryResults(rows)
	if scanErr != nil {
		return nil, scanErr
	}

	j.logOperation(
		logMsgQueryCompleted,
		logAttrEntryCount, len(entries),
		logAttrDurationMS, durationToMilliseconds(duration))

	return entries, nil
}

func (j *Journal) processQueryResults(rows adapters.DBRows) (journal.Entries, error) {
	var (
		position   uint64
		eventType  string
		occurredAt time.Time
		payload    []byte
		metadata   []byte
	)

	entries := make(journal.Entries, 0)
	for rows.Next() {
		if scanErr := rows.Scan(&position, &eventType, &occurredAt, &payload, &metadata); scanErr != nil {
			j.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())

			return nil, errors.Join(ErrScanningDBRowFailed, scanErr)
		}

		entry, buildErr := journal.BuildEntry(position, eventType, occurredAt, payload, metadata)
		if buildErr != nil {
			j.logError(logMsgBuildEntryFailed, logAttrError, buildErr.Error(), logAttrEventType, eventType)

			return nil, errors.Join(ErrBuildingEntryFailed, buildErr)
		}

		entries = append(entries, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		j.logError(logMsgScanRowFailed, logAttrError, rowsErr.Error())

		return nil, errors.Join(ErrScanningDBRowFailed, rowsErr)
	}

	return entries, nil
}

func (j *Journal) buildInsertQuery(entries journal.Entries) (string, error) {
	rows := make([][]any, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []any{
			entry.Position,
			entry.EventType,
			entry.OccurredAt,
			goqu.L(castJsonb, string(entry.PayloadJSON)),
			goqu.L(castJsonb, string(entry.MetadataJSON)),
		})
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(j.tableName).
		Cols(colPosition, colEventType, colOccurredAt, colPayload, colMetadata).
		Vals(rows...).
		OnConflict(goqu.DoNothing())

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()

	return sqlQuery, toSQLErr
}

func (j *Journal) buildSelectQuery(filter journal.Filter) (string, error) {
	whereExpressions, buildErr := whereClause(filter)
	if buildErr != nil {
		return "", buildErr
	}

	selectStmt := goqu.Dialect(dialectPostgres).
		From(j.tableName).
		Select(colPosition, colEventType, colOccurredAt, colPayload, colMetadata).
		Order(goqu.I(colPosition).Asc())

	if len(whereExpressions) > 0 {
		selectStmt = selectStmt.Where(whereExpressions...)
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()

	return sqlQuery, toSQLErr
}

func whereClause(filter journal.Filter) ([]exp.Expression, error) {
	expressions := make([]exp.Expression, 0)

	if eventTypes := filter.EventTypes(); len(eventTypes) > 0 {
		expressions = append(expressions, goqu.C(colEventType).In(eventTypes))
	}

	if predicates := filter.Predicates(); len(predicates) > 0 {
		predicateExpressions := make([]exp.Expression, 0, len(predicates))
		for _, predicate := range predicates {
			containment, err := json.Marshal(map[string]string{predicate.Key(): predicate.Val()})
			if err != nil {
				return nil, err
			}

			predicateExpressions = append(predicateExpressions, goqu.L(containsJsonb, goqu.I(colPayload), string(containment)))
		}

		if filter.AllPredicatesMustMatch() {
			expressions = append(expressions, goqu.And(predicateExpressions...))
		} else {
			expressions = append(expressions, goqu.Or(predicateExpressions...))
		}
	}

	if filter.AfterPosition() > 0 {
		expressions = append(expressions, goqu.C(colPosition).Gt(filter.AfterPosition()))
	}

	if !filter.OccurredFrom().IsZero() {
		expressions = append(expressions, goqu.C(colOccurredAt).Gte(filter.OccurredFrom()))
	}

	if !filter.OccurredUntil().IsZero() {
		expressions = append(expressions, goqu.C(colOccurredAt).Lte(filter.OccurredUntil()))
	}

	return expressions, nil
}

func (j *Journal) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil && j.logger != nil {
		j.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

func (j *Journal) logQueryWithDuration(sqlQuery string, action string, duration time.Duration) {
	if j.logger != nil {
		j.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

func (j *Journal) logOperation(action string, args ...any) {
	if j.logger != nil {
		j.logger.Info(logMsgOperation+action, args...)
	}
}

func (j *Journal) logError(msg string, args ...any) {
	if j.logger != nil {
		j.logger.Error(msg, args...)
	}
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
