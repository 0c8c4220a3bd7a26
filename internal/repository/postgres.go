package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX объединяет pgxpool.Pool и pgx.Tx, чтобы репозитории
// одинаково работали внутри и вне транзакции.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store объединяет репозитории и задает транзакционную границу операций.
type Store interface {
	Requests() RequestRepository
	RFQs() RFQRepository
	Quotations() QuotationRepository
	Suppliers() SupplierRepository
	Directory() DirectoryRepository

	// WithinTx выполняет fn в одной транзакции; при ошибке все изменения откатываются.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// PostgresStore - реализация Store поверх pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   DBTX
}

// NewPostgresStore создает новый экземпляр PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

func (s *PostgresStore) Requests() RequestRepository     { return NewPostgresRequestRepository(s.db) }
func (s *PostgresStore) RFQs() RFQRepository             { return NewPostgresRFQRepository(s.db) }
func (s *PostgresStore) Quotations() QuotationRepository { return NewPostgresQuotationRepository(s.db) }
func (s *PostgresStore) Suppliers() SupplierRepository   { return NewPostgresSupplierRepository(s.db) }
func (s *PostgresStore) Directory() DirectoryRepository  { return NewPostgresDirectoryRepository(s.db) }

// WithinTx открывает транзакцию и передает fn копию стора, привязанную к ней.
// Вложенный вызов выполняется в уже открытой транзакции.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	if _, inTx := s.db.(pgx.Tx); inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{pool: s.pool, db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// isUniqueViolation распознает нарушение уникального ограничения Postgres.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
