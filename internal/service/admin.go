// admin.go — административные выборки. Только чтение.
package service

import (
	"context"

	"github.com/mmeshcher/chatearn-system/internal/model"
)

const defaultListLimit = 10

// GetTotals возвращает общесистемные счётчики.
func (s *Service) GetTotals(ctx context.Context) (*model.SystemTotals, error) {
	return s.repo.GetTotals(ctx)
}

// RecomputeTotals пересчитывает счётчики по базовым таблицам для сверки
// со строкой system_stats.
func (s *Service) RecomputeTotals(ctx context.Context) (*model.SystemTotals, error) {
	return s.repo.RecomputeTotals(ctx)
}

// ListRecentAccounts возвращает последние n зарегистрированных аккаунтов.
func (s *Service) ListRecentAccounts(ctx context.Context, n int) ([]model.Account, error) {
	if n <= 0 {
		n = defaultListLimit
	}
	return s.repo.ListRecentAccounts(ctx, n)
}

// ListRecentChats возвращает последние n взаимодействий.
func (s *Service) ListRecentChats(ctx context.Context, n int) ([]model.ChatEvent, error) {
	if n <= 0 {
		n = defaultListLimit
	}
	return s.repo.ListRecentChats(ctx, n)
}

// CountChats возвращает число взаимодействий аккаунта на платформе.
// Пустая платформа означает все платформы.
func (s *Service) CountChats(ctx context.Context, accountID int64, platform model.Platform) (int64, error) {
	return s.repo.CountChats(ctx, accountID, platform)
}
