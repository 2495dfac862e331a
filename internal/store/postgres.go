package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"

	"github.com/iurnickita/loanmanager/internal/model"
	"github.com/iurnickita/loanmanager/internal/store/config"
)

type pgStore struct {
	database *sql.DB
}

func NewPgStore(ctx context.Context, cfg config.Config) (Store, error) {
	db, err := sql.Open("pgx", cfg.DBDsn)
	if err != nil {
		return nil, err
	}

	// База может подниматься вместе с сервисом
	b := retry.NewFibonacci(1 * time.Second)
	err = retry.Do(ctx, retry.WithMaxRetries(5, b), func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("database unavailable: %w", err)
	}

	if err = bootstrap(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &pgStore{
		database: db,
	}, nil
}

var schema = []string{
	// Клиенты. Номер выдает CBS
	"CREATE TABLE IF NOT EXISTS customer (" +
		" id SERIAL PRIMARY KEY," +
		" customer_number VARCHAR (50) NOT NULL UNIQUE," +
		" first_name VARCHAR (100) NOT NULL," +
		" last_name VARCHAR (100) NOT NULL," +
		" created_at TIMESTAMP NOT NULL," +
		" updated_at TIMESTAMP NOT NULL" +
		" );",

	// Заявки на кредит.
	// Одна строка на заявку, статус и retry_count меняются только через LoanUpdate
	"CREATE TABLE IF NOT EXISTS loan_application (" +
		" id UUID PRIMARY KEY," +
		" customer_number VARCHAR (50) NOT NULL REFERENCES customer (customer_number) ON DELETE CASCADE," +
		" amount NUMERIC (10, 2) NOT NULL CHECK (amount BETWEEN 1.00 AND 1000000.00)," +
		" status VARCHAR (20) NOT NULL," +
		" scoring_token VARCHAR (255)," +
		" retry_count INTEGER NOT NULL DEFAULT 0," +
		" created_at TIMESTAMP NOT NULL," +
		" updated_at TIMESTAMP NOT NULL" +
		" );",

	// Не больше одной активной заявки на клиента
	"CREATE UNIQUE INDEX IF NOT EXISTS loan_application_active_idx" +
		" ON loan_application (customer_number)" +
		" WHERE status IN ('PENDING', 'PROCESSING');",

	// Регистрации в скоринговом движке. Записи не удаляются, актуальна последняя
	"CREATE TABLE IF NOT EXISTS scoring_engine_config (" +
		" id SERIAL PRIMARY KEY," +
		" client_id INTEGER NOT NULL," +
		" url VARCHAR (200) NOT NULL," +
		" name VARCHAR (100) NOT NULL," +
		" username VARCHAR (100) NOT NULL," +
		" password VARCHAR (100) NOT NULL," +
		" token VARCHAR (255) NOT NULL," +
		" created_at TIMESTAMP NOT NULL," +
		" updated_at TIMESTAMP NOT NULL" +
		" );",
}

// bootstrap создает таблицы и индексы, если их нет.
func bootstrap(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (store *pgStore) CustomerPut(ctx context.Context, customer model.Customer) (model.Customer, error) {
	now := time.Now()
	row := store.database.QueryRowContext(ctx,
		"INSERT INTO customer (customer_number, first_name, last_name, created_at, updated_at)"+
			" VALUES ($1, $2, $3, $4, $4)"+
			" ON CONFLICT (customer_number) DO UPDATE"+
			" SET first_name = EXCLUDED.first_name,"+
			"     last_name = EXCLUDED.last_name,"+
			"     updated_at = EXCLUDED.updated_at"+
			" RETURNING id, customer_number, first_name, last_name, created_at, updated_at",
		customer.Number,
		customer.FirstName,
		customer.LastName,
		now)
	return scanCustomer(row)
}

func (store *pgStore) CustomerGet(ctx context.Context, number string) (model.Customer, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT id, customer_number, first_name, last_name, created_at, updated_at"+
			" FROM customer"+
			" WHERE customer_number = $1",
		number)
	return scanCustomer(row)
}

func scanCustomer(row *sql.Row) (model.Customer, error) {
	var customer model.Customer
	err := row.Scan(&customer.ID,
		&customer.Number,
		&customer.FirstName,
		&customer.LastName,
		&customer.CreatedAt,
		&customer.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Customer{}, ErrNoRows
		}
		return model.Customer{}, err
	}
	return customer, nil
}

func (store *pgStore) LoanPost(ctx context.Context, loan model.LoanApplication) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO loan_application (id, customer_number, amount, status, scoring_token, retry_count, created_at, updated_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		loan.ID,
		loan.CustomerNumber,
		loan.Amount,
		string(loan.Status),
		nullString(loan.ScoringToken),
		loan.RetryCount,
		loan.CreatedAt,
		loan.UpdatedAt)
	if err != nil {
		// Проверка: уже есть активная заявка
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrActiveLoanExists
			case "23503":
				// клиент не подписан
				return ErrNoRows
			}
		}
		return err
	}
	return nil
}

const loanColumns = "id, customer_number, amount, status, scoring_token, retry_count, created_at, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanLoan(row scanner) (model.LoanApplication, error) {
	var loan model.LoanApplication
	var token sql.NullString
	err := row.Scan(&loan.ID,
		&loan.CustomerNumber,
		&loan.Amount,
		&loan.Status,
		&token,
		&loan.RetryCount,
		&loan.CreatedAt,
		&loan.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LoanApplication{}, ErrNoRows
		}
		return model.LoanApplication{}, err
	}
	loan.ScoringToken = token.String
	return loan, nil
}

func (store *pgStore) LoanGet(ctx context.Context, id string) (model.LoanApplication, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT "+loanColumns+
			" FROM loan_application"+
			" WHERE id = $1",
		id)
	return scanLoan(row)
}

func (store *pgStore) LoanUpdate(ctx context.Context, id string, update LoanUpdateFunc) (model.LoanApplication, error) {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return model.LoanApplication{}, err
	}
	defer tx.Rollback()

	// Блокировка строки заявки до конца транзакции
	row := tx.QueryRowContext(ctx,
		"SELECT "+loanColumns+
			" FROM loan_application"+
			" WHERE id = $1"+
			" FOR UPDATE",
		id)
	loan, err := scanLoan(row)
	if err != nil {
		return model.LoanApplication{}, err
	}

	before := loan
	err = update(&loan)
	if errors.Is(err, ErrNoChange) {
		return before, nil
	}
	if err != nil {
		return before, err
	}

	// Идентичность, клиент, сумма и токен не меняются
	loan.UpdatedAt = time.Now()
	_, err = tx.ExecContext(ctx,
		"UPDATE loan_application"+
			" SET status = $1,"+
			"     retry_count = $2,"+
			"     updated_at = $3"+
			" WHERE id = $4",
		string(loan.Status),
		loan.RetryCount,
		loan.UpdatedAt,
		id)
	if err != nil {
		return before, err
	}

	if err = tx.Commit(); err != nil {
		return before, err
	}
	return loan, nil
}

func (store *pgStore) LoanGetActive(ctx context.Context, customer string) (model.LoanApplication, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT "+loanColumns+
			" FROM loan_application"+
			" WHERE customer_number = $1"+
			"   AND status IN ($2, $3)"+
			" LIMIT 1",
		customer,
		string(model.LoanStatusPending),
		string(model.LoanStatusProcessing))
	return scanLoan(row)
}

func (store *pgStore) LoanListActive(ctx context.Context) ([]model.LoanApplication, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT "+loanColumns+
			" FROM loan_application"+
			" WHERE status IN ($1, $2)"+
			" ORDER BY created_at",
		string(model.LoanStatusPending),
		string(model.LoanStatusProcessing))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []model.LoanApplication
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return loans, nil
}

func (store *pgStore) ScoringConfigPost(ctx context.Context, cfg model.ScoringEngineConfig) (model.ScoringEngineConfig, error) {
	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO scoring_engine_config (client_id, url, name, username, password, token, created_at, updated_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		cfg.ClientID,
		cfg.URL,
		cfg.Name,
		cfg.Username,
		cfg.Password,
		cfg.Token,
		cfg.CreatedAt,
		cfg.UpdatedAt)
	if err != nil {
		return model.ScoringEngineConfig{}, err
	}
	return cfg, nil
}

func (store *pgStore) ScoringConfigGetLatest(ctx context.Context) (model.ScoringEngineConfig, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT client_id, url, name, username, password, token, created_at, updated_at"+
			" FROM scoring_engine_config"+
			" ORDER BY created_at DESC, id DESC"+
			" LIMIT 1")
	var cfg model.ScoringEngineConfig
	err := row.Scan(&cfg.ClientID,
		&cfg.URL,
		&cfg.Name,
		&cfg.Username,
		&cfg.Password,
		&cfg.Token,
		&cfg.CreatedAt,
		&cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ScoringEngineConfig{}, ErrNoRows
		}
		return model.ScoringEngineConfig{}, err
	}
	return cfg, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
