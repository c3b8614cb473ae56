// Package service реализует бизнес-логику платформы chatearn:
// разрешение идентичности, леджер начислений, запись взаимодействий
// и административные выборки.
package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/chatearn-system/internal/model"
	"github.com/mmeshcher/chatearn-system/internal/responder"
)

// ErrInvalidAmount возвращается при неположительной сумме начисления
// или сумме с точностью выше трёх знаков после запятой.
var (
	ErrInvalidAmount = errors.New("amount must be positive with at most 3 decimal places")
	// ErrEmptyMessage возвращается на пустое или пробельное сообщение.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPartialRecord означает, что начисление прошло, но запись
	// взаимодействия не сохранилась. Повторять операцию нельзя —
	// повтор начислит деньги второй раз. Такие случаи уходят на сверку.
	ErrPartialRecord = errors.New("credit applied but interaction not recorded")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateAccount(ctx context.Context, acc *model.Account, welcomeMilli int64) (*model.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)
	GetAccountByLogin(ctx context.Context, login string) (*model.Account, error)
	GetAccountByTelegramID(ctx context.Context, telegramID int64) (*model.Account, error)
	Credit(ctx context.Context, accountID int64, amountMilli int64, reason model.TxReason) (*model.Transaction, error)
	InsertChatEvent(ctx context.Context, ev *model.ChatEvent) (*model.ChatEvent, error)
	GetTotals(ctx context.Context) (*model.SystemTotals, error)
	RecomputeTotals(ctx context.Context) (*model.SystemTotals, error)
	ListRecentAccounts(ctx context.Context, limit int) ([]model.Account, error)
	ListRecentChats(ctx context.Context, limit int) ([]model.ChatEvent, error)
	CountChats(ctx context.Context, accountID int64, platform model.Platform) (int64, error)
}

// Rates задаёт денежные константы платформы.
type Rates struct {
	// WelcomeBonus начисляется один раз при создании аккаунта.
	WelcomeBonus decimal.Decimal
	// ChatRate начисляется за каждое сообщение.
	ChatRate decimal.Decimal
	// ReferralBonus определён, но путь его начисления в системе
	// отсутствует: код только генерируется и показывается пользователю.
	ReferralBonus decimal.Decimal
}

// DefaultRates возвращает ставки по умолчанию.
func DefaultRates() Rates {
	return Rates{
		WelcomeBonus:  decimal.NewFromInt(10),
		ChatRate:      decimal.New(1, -3), // 0.001
		ReferralBonus: decimal.NewFromInt(10),
	}
}

// Service содержит бизнес-логику платформы chatearn.
type Service struct {
	repo      Repository
	responder responder.Generator
	rates     Rates
}

// NewService создаёт сервис с указанным репозиторием и генератором ответов.
func NewService(repo Repository, gen responder.Generator, rates Rates) *Service {
	return &Service{
		repo:      repo,
		responder: gen,
		rates:     rates,
	}
}

// Rates возвращает денежные константы сервиса.
func (s *Service) Rates() Rates {
	return s.rates
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}
