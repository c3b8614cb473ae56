// Package handler содержит HTTP-обработчики API сервиса chatearn.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/chatearn-system/internal/middleware"
	"github.com/mmeshcher/chatearn-system/internal/model"
	"github.com/mmeshcher/chatearn-system/internal/repository"
	"github.com/mmeshcher/chatearn-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterWeb(ctx context.Context, username, email, password string) (*model.Account, error)
	AuthenticateWeb(ctx context.Context, login, password string) (*model.Account, error)
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	RecordInteraction(ctx context.Context, accountID int64, message string, platform model.Platform) (*model.ChatEvent, error)
	Credit(ctx context.Context, accountID int64, amount decimal.Decimal, reason model.TxReason) (*model.Transaction, error)
	GetTotals(ctx context.Context) (*model.SystemTotals, error)
	RecomputeTotals(ctx context.Context) (*model.SystemTotals, error)
	ListRecentAccounts(ctx context.Context, n int) ([]model.Account, error)
	ListRecentChats(ctx context.Context, n int) ([]model.ChatEvent, error)
	CountChats(ctx context.Context, accountID int64, platform model.Platform) (int64, error)
}

// Handler реализует HTTP-обработчики API сервиса chatearn.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	adminAccountID int64
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// adminAccountID — аккаунт, которому открыты маршруты /api/admin.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, adminAccountID int64) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		adminAccountID: adminAccountID,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID           int64           `json:"id"`
	Username     string          `json:"username"`
	Email        string          `json:"email"`
	Balance      decimal.Decimal `json:"balance"`
	TotalEarned  decimal.Decimal `json:"total_earned"`
	ReferralCode string          `json:"referral_code"`
	IsPremium    bool            `json:"is_premium"`
	CreatedAt    string          `json:"created_at"`
}

func toAccountResponse(acc *model.Account) accountResponse {
	return accountResponse{
		ID:           acc.ID,
		Username:     acc.Username,
		Email:        acc.Email,
		Balance:      acc.Balance,
		TotalEarned:  acc.TotalEarned,
		ReferralCode: acc.ReferralCode,
		IsPremium:    acc.IsPremium,
		CreatedAt:    acc.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// Register обрабатывает регистрацию нового пользователя через веб.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	acc, err := h.service.RegisterWeb(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateIdentity):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case errors.Is(err, service.ErrInvalidCredentials):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		default:
			h.logger.Error("register user error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.authMiddleware.SetAuthCookie(w, acc.ID)
	h.writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	acc, err := h.service.AuthenticateWeb(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, acc.ID)
	h.writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply         string          `json:"reply"`
	Earned        decimal.Decimal `json:"earned"`
	InteractionID string          `json:"interaction_id"`
	// Recorded false означает: начисление прошло, но запись
	// взаимодействия не сохранилась. Повторять запрос нельзя —
	// повтор начислит деньги второй раз.
	Recorded bool `json:"recorded"`
}

// Chat принимает сообщение от текущего пользователя, начисляет ставку
// за сообщение и возвращает сгенерированный ответ.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ev, err := h.service.RecordInteraction(r.Context(), accountID, req.Message, model.PlatformWeb)
	if err != nil {
		// деньги уже начислены, потерялась только запись — ответ и сумма
		// отдаются клиенту с пометкой, что повторять запрос нельзя
		if errors.Is(err, service.ErrPartialRecord) && ev != nil {
			h.logger.Warn("chat event not recorded", zap.Error(err), zap.Int64("accountID", accountID))
			h.writeJSON(w, http.StatusOK, chatResponse{
				Reply:         ev.Reply,
				Earned:        ev.Earned,
				InteractionID: ev.InteractionID.String(),
				Recorded:      false,
			})
			return
		}

		switch {
		case errors.Is(err, service.ErrEmptyMessage):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		case errors.Is(err, repository.ErrAccountNotFound):
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		default:
			h.logger.Error("chat error", zap.Error(err), zap.Int64("accountID", accountID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, chatResponse{
		Reply:         ev.Reply,
		Earned:        ev.Earned,
		InteractionID: ev.InteractionID.String(),
		Recorded:      true,
	})
}

type profileResponse struct {
	accountResponse
	TotalChats int64 `json:"total_chats"`
}

// Profile возвращает аккаунт текущего пользователя со счётчиком взаимодействий.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	acc, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("get profile error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	chats, err := h.service.CountChats(r.Context(), accountID, "")
	if err != nil {
		h.logger.Error("count chats error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, profileResponse{
		accountResponse: toAccountResponse(acc),
		TotalChats:      chats,
	})
}

// requireAdmin пропускает только аккаунт, указанный в конфигурации
// как административный.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := middleware.GetAccountIDFromContext(r.Context())
		if !ok || h.adminAccountID == 0 || accountID != h.adminAccountID {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statsResponse struct {
	Totals     *model.SystemTotals `json:"totals"`
	Recomputed *model.SystemTotals `json:"recomputed"`
	Consistent bool                `json:"consistent"`
}

// AdminStats возвращает общесистемные счётчики вместе с контрольным
// пересчётом по базовым таблицам.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	totals, err := h.service.GetTotals(r.Context())
	if err != nil {
		h.logger.Error("get totals error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	recomputed, err := h.service.RecomputeTotals(r.Context())
	if err != nil {
		h.logger.Error("recompute totals error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	consistent := totals.TotalUsers == recomputed.TotalUsers &&
		totals.TotalChats == recomputed.TotalChats &&
		totals.TotalEarnings.Equal(recomputed.TotalEarnings)

	if !consistent {
		h.logger.Warn("system totals drift detected",
			zap.Int64("cachedUsers", totals.TotalUsers),
			zap.Int64("recomputedUsers", recomputed.TotalUsers),
			zap.Int64("cachedChats", totals.TotalChats),
			zap.Int64("recomputedChats", recomputed.TotalChats),
			zap.String("cachedEarnings", totals.TotalEarnings.String()),
			zap.String("recomputedEarnings", recomputed.TotalEarnings.String()),
		)
	}

	h.writeJSON(w, http.StatusOK, statsResponse{
		Totals:     totals,
		Recomputed: recomputed,
		Consistent: consistent,
	})
}

// AdminUsers возвращает последние зарегистрированные аккаунты.
func (h *Handler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListRecentAccounts(r.Context(), listLimit(r))
	if err != nil {
		h.logger.Error("list accounts error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]accountResponse, 0, len(accounts))
	for i := range accounts {
		resp = append(resp, toAccountResponse(&accounts[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type chatEventResponse struct {
	InteractionID string          `json:"interaction_id"`
	AccountID     int64           `json:"account_id"`
	Message       string          `json:"message"`
	Reply         string          `json:"reply"`
	Platform      model.Platform  `json:"platform"`
	Earned        decimal.Decimal `json:"earned"`
	CreatedAt     string          `json:"created_at"`
}

// AdminChats возвращает последние записанные взаимодействия.
func (h *Handler) AdminChats(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListRecentChats(r.Context(), listLimit(r))
	if err != nil {
		h.logger.Error("list chats error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]chatEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, chatEventResponse{
			InteractionID: ev.InteractionID.String(),
			AccountID:     ev.AccountID,
			Message:       ev.Message,
			Reply:         ev.Reply,
			Platform:      ev.Platform,
			Earned:        ev.Earned,
			CreatedAt:     ev.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type seedCreditRequest struct {
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type seedCreditResponse struct {
	TransactionID int64           `json:"transaction_id"`
	AccountID     int64           `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        model.TxReason  `json:"reason"`
}

// AdminCredit начисляет произвольную положительную сумму на аккаунт
// с причиной seed.
func (h *Handler) AdminCredit(w http.ResponseWriter, r *http.Request) {
	var req seedCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	tx, err := h.service.Credit(r.Context(), req.AccountID, req.Amount, model.TxReasonSeed)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		case errors.Is(err, repository.ErrAccountNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("seed credit error", zap.Error(err), zap.Int64("accountID", req.AccountID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, seedCreditResponse{
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		Amount:        tx.Amount,
		Reason:        tx.Reason,
	})
}

const maxListLimit = 1000

// listLimit читает query-параметр limit; 0 означает лимит по умолчанию.
func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
