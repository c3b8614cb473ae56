// identity.go разрешает входящего актора (веб-учётка или
// Telegram-идентификатор) в единый аккаунт с балансом.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/chatearn-system/internal/model"
	"github.com/mmeshcher/chatearn-system/internal/refcode"
	"github.com/mmeshcher/chatearn-system/internal/repository"
)

// Сколько раз генерируем реферальный код заново при коллизии.
const maxReferralAttempts = 5

// RegisterWeb регистрирует нового пользователя через веб.
// Аккаунт создаётся с приветственным бонусом; при конфликте имени или
// email возвращается repository.ErrDuplicateIdentity без каких-либо
// изменений в данных.
func (s *Service) RegisterWeb(ctx context.Context, username, email, password string) (*model.Account, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acc := &model.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}

	return s.createWithReferralCode(ctx, acc)
}

// AuthenticateWeb проверяет логин (имя пользователя или email) и пароль.
func (s *Service) AuthenticateWeb(ctx context.Context, login, password string) (*model.Account, error) {
	acc, err := s.repo.GetAccountByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// у Telegram-аккаунтов пароля нет — входить по паролю они не могут
	if len(acc.PasswordHash) == 0 {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return acc, nil
}

// ResolveTelegram возвращает аккаунт для Telegram-идентификатора,
// создавая его при первом контакте. Операция идемпотентна: гонку двух
// параллельных первых контактов решает уникальный индекс на telegram_id,
// проигравший перечитывает строку победителя. Второй результат true,
// если аккаунт был создан этим вызовом.
func (s *Service) ResolveTelegram(ctx context.Context, telegramID int64, username, firstName string) (*model.Account, bool, error) {
	acc, err := s.repo.GetAccountByTelegramID(ctx, telegramID)
	if err == nil {
		return acc, false, nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, false, err
	}

	displayName := firstName
	if displayName == "" {
		displayName = username
	}
	if displayName == "" {
		displayName = fmt.Sprintf("User%d", telegramID)
	}

	emailLocal := username
	if emailLocal == "" {
		emailLocal = fmt.Sprintf("%d", telegramID)
	}

	candidate := &model.Account{
		Username:   displayName,
		Email:      fmt.Sprintf("%s@telegram.user", emailLocal),
		TelegramID: &telegramID,
	}

	created, err := s.createWithReferralCode(ctx, candidate)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, repository.ErrDuplicateIdentity) {
		return nil, false, err
	}

	// либо нас опередил параллельный первый контакт,
	// либо имя/email заняты веб-пользователем
	if acc, readErr := s.repo.GetAccountByTelegramID(ctx, telegramID); readErr == nil {
		return acc, false, nil
	}

	fallback := &model.Account{
		Username:   fmt.Sprintf("user_%d", telegramID),
		Email:      fmt.Sprintf("user_%d@telegram.user", telegramID),
		TelegramID: &telegramID,
	}

	created, err = s.createWithReferralCode(ctx, fallback)
	if err == nil {
		return created, true, nil
	}
	if errors.Is(err, repository.ErrDuplicateIdentity) {
		if acc, readErr := s.repo.GetAccountByTelegramID(ctx, telegramID); readErr == nil {
			return acc, false, nil
		}
	}

	return nil, false, err
}

// GetAccount возвращает аккаунт по идентификатору.
func (s *Service) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	return s.repo.GetAccountByID(ctx, id)
}

// createWithReferralCode создаёт аккаунт, перегенерируя реферальный код
// при коллизии. Коллизия кода — внутреннее событие и наружу не выходит.
func (s *Service) createWithReferralCode(ctx context.Context, acc *model.Account) (*model.Account, error) {
	welcome, ok := model.ToMilli(s.rates.WelcomeBonus)
	if !ok || welcome < 0 {
		return nil, ErrInvalidAmount
	}

	var lastErr error
	for attempt := 0; attempt < maxReferralAttempts; attempt++ {
		acc.ReferralCode = refcode.Generate()

		created, err := s.repo.CreateAccount(ctx, acc, welcome)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, repository.ErrReferralCodeTaken) {
			lastErr = err
			continue
		}
		if errors.Is(err, repository.ErrDuplicateIdentity) {
			// вставка могла зафиксироваться при потерянном подтверждении,
			// и повтор внутри репозитория вернул конфликт уникальности.
			// Совпадение только что сгенерированного реферального кода
			// отличает нашу же запись от чужой.
			if existing, readErr := s.repo.GetAccountByLogin(ctx, acc.Username); readErr == nil &&
				existing.ReferralCode == acc.ReferralCode {
				return existing, nil
			}
			return nil, err
		}
		return nil, err
	}

	return nil, fmt.Errorf("generate referral code: %w", lastErr)
}
