// Package model содержит доменные сущности платформы chatearn.
package model

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Platform описывает канал, через который пришло сообщение.
type Platform string

const (
	PlatformWeb      Platform = "web"
	PlatformTelegram Platform = "telegram"
)

// TxReason описывает причину начисления в леджере.
type TxReason string

const (
	// TxReasonChatCredit — начисление за одно сообщение в чате.
	TxReasonChatCredit TxReason = "chat_credit"
	// TxReasonReferralBonus — бонус за приглашённого пользователя.
	TxReasonReferralBonus TxReason = "referral_bonus"
	// TxReasonSeed — стартовое или административное начисление,
	// включая приветственный бонус при создании аккаунта.
	TxReasonSeed TxReason = "seed"
)

// Account представляет единый аккаунт пользователя, достижимый через
// веб-учётку и/или Telegram-идентификатор.
type Account struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash []byte
	TelegramID   *int64
	Balance      decimal.Decimal
	TotalEarned  decimal.Decimal
	ReferralCode string
	ReferredBy   *string
	IsPremium    bool
	PremiumUntil *time.Time
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Transaction описывает одно начисление в леджере. Записи неизменяемы.
type Transaction struct {
	ID        int64
	AccountID int64
	Amount    decimal.Decimal
	Reason    TxReason
	CreatedAt time.Time
}

// ChatEvent описывает одно взаимодействие: входящее сообщение,
// сгенерированный ответ и начисленную за него сумму.
type ChatEvent struct {
	ID            int64
	InteractionID uuid.UUID
	AccountID     int64
	Message       string
	Reply         string
	Platform      Platform
	Earned        decimal.Decimal
	CreatedAt     time.Time
}

// SystemTotals содержит общесистемные счётчики. Инвариант: они равны
// COUNT(accounts), COUNT(chat_events) и SUM(transactions.amount).
type SystemTotals struct {
	TotalUsers    int64           `json:"total_users"`
	TotalChats    int64           `json:"total_chats"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Денежные суммы хранятся в БД как BIGINT в тысячных долях (ставка за
// сообщение — 0.001), в доменном слое — как decimal.Decimal.

// ToMilli переводит сумму в тысячные доли. Второй результат false,
// если сумма имеет больше трёх знаков после запятой или не помещается
// в int64 тысячных долей.
func ToMilli(d decimal.Decimal) (int64, bool) {
	shifted := d.Shift(3)
	if !shifted.IsInteger() {
		return 0, false
	}
	if shifted.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, false
	}
	return shifted.IntPart(), true
}

// FromMilli переводит тысячные доли обратно в decimal.
func FromMilli(m int64) decimal.Decimal {
	return decimal.NewFromInt(m).Shift(-3)
}
