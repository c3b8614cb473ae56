// ledger.go — единственная точка, через которую меняются балансы
// аккаунтов и общесистемные счётчики.
package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/chatearn-system/internal/model"
)

// Credit начисляет сумму на аккаунт: баланс, запись в леджер и
// общесистемные счётчики обновляются атомарно на стороне репозитория.
// Неположительная сумма или сумма с точностью выше трёх знаков даёт
// ErrInvalidAmount без каких-либо изменений.
func (s *Service) Credit(ctx context.Context, accountID int64, amount decimal.Decimal, reason model.TxReason) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	milli, ok := model.ToMilli(amount)
	if !ok || milli <= 0 {
		return nil, ErrInvalidAmount
	}

	return s.repo.Credit(ctx, accountID, milli, reason)
}
