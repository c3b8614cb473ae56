// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/chatearn-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrAccountNotFound возвращается, если аккаунт не найден.
var (
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateIdentity возвращается при конфликте уникальности
	// username, email или telegram_id.
	ErrDuplicateIdentity = errors.New("identity already registered")
	// ErrReferralCodeTaken возвращается при коллизии реферального кода.
	// Вызывающая сторона генерирует новый код и повторяет попытку,
	// наружу ошибка не выходит.
	ErrReferralCodeTaken = errors.New("referral code already taken")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при serialization failure и deadlock.
// Ошибки контекста и бизнес-ошибки не ретраятся.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// mapUniqueViolation переводит нарушение уникального индекса в доменную ошибку.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	if strings.Contains(pgErr.ConstraintName, "referral_code") {
		return ErrReferralCodeTaken
	}
	return ErrDuplicateIdentity
}

// CreateAccount создаёт аккаунт вместе с приветственным бонусом.
// Вставка аккаунта, транзакция бонуса и обновление общесистемных
// счётчиков выполняются в одной транзакции БД: либо всё, либо ничего.
func (r *PostgresRepository) CreateAccount(ctx context.Context, acc *model.Account, welcomeMilli int64) (*model.Account, error) {
	created := *acc

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO accounts (username, email, password_hash, telegram_id, balance, total_earned, referral_code, referred_by)
			 VALUES ($1, $2, $3, $4, $5, $5, $6, $7)
			 RETURNING id, created_at, last_active_at`,
			acc.Username, acc.Email, acc.PasswordHash, acc.TelegramID,
			welcomeMilli, acc.ReferralCode, acc.ReferredBy,
		).Scan(&created.ID, &created.CreatedAt, &created.LastActiveAt)
		if err != nil {
			if mapped := mapUniqueViolation(err); mapped != nil {
				return mapped
			}
			return fmt.Errorf("insert account: %w", err)
		}

		if welcomeMilli > 0 {
			_, err = tx.Exec(ctx,
				`INSERT INTO transactions (account_id, amount, reason) VALUES ($1, $2, $3)`,
				created.ID, welcomeMilli, string(model.TxReasonSeed),
			)
			if err != nil {
				return fmt.Errorf("insert welcome transaction: %w", err)
			}
		}

		_, err = tx.Exec(ctx,
			`UPDATE system_stats
			 SET total_users = total_users + 1,
			     total_earnings = total_earnings + $1,
			     updated_at = NOW()
			 WHERE id = 1`,
			welcomeMilli,
		)
		if err != nil {
			return fmt.Errorf("update system stats: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	created.Balance = model.FromMilli(welcomeMilli)
	created.TotalEarned = model.FromMilli(welcomeMilli)

	return &created, nil
}

const accountColumns = `id, username, email, password_hash, telegram_id, balance, total_earned,
	referral_code, referred_by, is_premium, premium_expires, created_at, last_active_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a       model.Account
		balance int64
		earned  int64
	)
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.TelegramID,
		&balance, &earned, &a.ReferralCode, &a.ReferredBy,
		&a.IsPremium, &a.PremiumUntil, &a.CreatedAt, &a.LastActiveAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	a.Balance = model.FromMilli(balance)
	a.TotalEarned = model.FromMilli(earned)

	return &a, nil
}

// GetAccountByID возвращает аккаунт по идентификатору.
func (r *PostgresRepository) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetAccountByLogin возвращает аккаунт по имени пользователя или email.
func (r *PostgresRepository) GetAccountByLogin(ctx context.Context, login string) (*model.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1 OR email = $1`, login)
	return scanAccount(row)
}

// GetAccountByTelegramID возвращает аккаунт по Telegram-идентификатору.
func (r *PostgresRepository) GetAccountByTelegramID(ctx context.Context, telegramID int64) (*model.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE telegram_id = $1`, telegramID)
	return scanAccount(row)
}

// Credit атомарно начисляет сумму: баланс аккаунта, запись в леджер и
// общесистемные счётчики обновляются в одной транзакции БД.
// Строка аккаунта блокируется FOR UPDATE, поэтому два параллельных
// начисления на один аккаунт не теряют обновлений.
func (r *PostgresRepository) Credit(ctx context.Context, accountID int64, amountMilli int64, reason model.TxReason) (*model.Transaction, error) {
	result := model.Transaction{
		AccountID: accountID,
		Amount:    model.FromMilli(amountMilli),
		Reason:    reason,
	}

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account for update: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE accounts
			 SET balance = balance + $2,
			     total_earned = total_earned + $2,
			     last_active_at = NOW()
			 WHERE id = $1`,
			accountID, amountMilli,
		)
		if err != nil {
			return fmt.Errorf("update account balance: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO transactions (account_id, amount, reason)
			 VALUES ($1, $2, $3)
			 RETURNING id, created_at`,
			accountID, amountMilli, string(reason),
		).Scan(&result.ID, &result.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		chatInc := 0
		if reason == model.TxReasonChatCredit {
			chatInc = 1
		}

		_, err = tx.Exec(ctx,
			`UPDATE system_stats
			 SET total_earnings = total_earnings + $1,
			     total_chats = total_chats + $2,
			     updated_at = NOW()
			 WHERE id = 1`,
			amountMilli, chatInc,
		)
		if err != nil {
			return fmt.Errorf("update system stats: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// InsertChatEvent сохраняет запись взаимодействия. Запись неизменяема.
func (r *PostgresRepository) InsertChatEvent(ctx context.Context, ev *model.ChatEvent) (*model.ChatEvent, error) {
	earned, ok := model.ToMilli(ev.Earned)
	if !ok {
		return nil, fmt.Errorf("earned amount %s has more than 3 decimal places", ev.Earned)
	}

	saved := *ev
	err := r.pool.QueryRow(ctx,
		`INSERT INTO chat_events (interaction_id, account_id, message, reply, platform, earned)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		ev.InteractionID, ev.AccountID, ev.Message, ev.Reply, string(ev.Platform), earned,
	).Scan(&saved.ID, &saved.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert chat event: %w", err)
	}

	return &saved, nil
}

// GetTotals возвращает общесистемные счётчики из строки system_stats.
func (r *PostgresRepository) GetTotals(ctx context.Context) (*model.SystemTotals, error) {
	var (
		t        model.SystemTotals
		earnings int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT total_users, total_chats, total_earnings, updated_at FROM system_stats WHERE id = 1`,
	).Scan(&t.TotalUsers, &t.TotalChats, &earnings, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("select system stats: %w", err)
	}

	t.TotalEarnings = model.FromMilli(earnings)
	return &t, nil
}

// RecomputeTotals пересчитывает счётчики по базовым таблицам.
// Используется для сверки со строкой system_stats: расхождение означает
// нарушение атомарности начислений.
func (r *PostgresRepository) RecomputeTotals(ctx context.Context) (*model.SystemTotals, error) {
	var (
		t        model.SystemTotals
		earnings int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM accounts),
			(SELECT COUNT(*) FROM chat_events),
			(SELECT COALESCE(SUM(amount), 0) FROM transactions)`,
	).Scan(&t.TotalUsers, &t.TotalChats, &earnings)
	if err != nil {
		return nil, fmt.Errorf("recompute totals: %w", err)
	}

	t.TotalEarnings = model.FromMilli(earnings)
	t.UpdatedAt = time.Now()
	return &t, nil
}

// ListRecentAccounts возвращает последние зарегистрированные аккаунты.
func (r *PostgresRepository) ListRecentAccounts(ctx context.Context, limit int) ([]model.Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return accounts, nil
}

// ListRecentChats возвращает последние взаимодействия.
func (r *PostgresRepository) ListRecentChats(ctx context.Context, limit int) ([]model.ChatEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, interaction_id, account_id, message, reply, platform, earned, created_at
		 FROM chat_events
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select chat events: %w", err)
	}
	defer rows.Close()

	var events []model.ChatEvent
	for rows.Next() {
		var (
			ev       model.ChatEvent
			platform string
			earned   int64
		)
		if err := rows.Scan(&ev.ID, &ev.InteractionID, &ev.AccountID, &ev.Message, &ev.Reply, &platform, &earned, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat event: %w", err)
		}
		ev.Platform = model.Platform(platform)
		ev.Earned = model.FromMilli(earned)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return events, nil
}

// CountChats возвращает число взаимодействий аккаунта.
// Пустая платформа означает все платформы.
func (r *PostgresRepository) CountChats(ctx context.Context, accountID int64, platform model.Platform) (int64, error) {
	var count int64
	var err error
	if platform == "" {
		err = r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM chat_events WHERE account_id = $1`, accountID,
		).Scan(&count)
	} else {
		err = r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM chat_events WHERE account_id = $1 AND platform = $2`,
			accountID, string(platform),
		).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count chat events: %w", err)
	}
	return count, nil
}
