package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/chatearn-system/internal/model"
	"github.com/mmeshcher/chatearn-system/internal/service"
)

// Service определяет операции ядра, используемые webhook-обработчиком.
type Service interface {
	ResolveTelegram(ctx context.Context, telegramID int64, username, firstName string) (*model.Account, bool, error)
	RecordInteraction(ctx context.Context, accountID int64, message string, platform model.Platform) (*model.ChatEvent, error)
	CountChats(ctx context.Context, accountID int64, platform model.Platform) (int64, error)
	Rates() service.Rates
}

// Webhook обрабатывает обновления Telegram, доставленные по HTTP.
type Webhook struct {
	service Service
	sender  Sender
	logger  *zap.Logger
	appName string
}

// NewWebhook создаёт webhook-обработчик.
func NewWebhook(s Service, sender Sender, logger *zap.Logger, appName string) *Webhook {
	return &Webhook{
		service: s,
		sender:  sender,
		logger:  logger,
		appName: appName,
	}
}

// ServeHTTP принимает одно обновление. После успешного декодирования
// ответ всегда 200: Telegram повторяет доставку при любом другом статусе,
// а повторная доставка сообщения означала бы повторное начисление.
func (wh *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	wh.handleUpdate(r.Context(), &update)
	w.WriteHeader(http.StatusOK)
}

func (wh *Webhook) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}

	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	// аккаунт разрешается на каждое сообщение, первый контакт создаёт его
	acc, created, err := wh.service.ResolveTelegram(ctx, msg.From.ID, msg.From.UserName, msg.From.FirstName)
	if err != nil {
		wh.logger.Error("resolve telegram account error", zap.Error(err), zap.Int64("telegramID", msg.From.ID))
		wh.reply(chatID, "Sorry, something went wrong. Please try again!")
		return
	}
	if created {
		wh.logger.Info("telegram account created",
			zap.Int64("telegramID", msg.From.ID),
			zap.Int64("accountID", acc.ID),
		)
	}

	switch {
	case strings.HasPrefix(text, "/start"):
		wh.reply(chatID, wh.startText(acc))
	case strings.HasPrefix(text, "/help"):
		wh.reply(chatID, wh.helpText())
	case strings.HasPrefix(text, "/balance"):
		wh.reply(chatID, wh.balanceText(ctx, acc))
	case strings.HasPrefix(text, "/stats"):
		wh.reply(chatID, wh.statsText(ctx, acc))
	default:
		wh.handleChat(ctx, chatID, acc, text)
	}
}

func (wh *Webhook) handleChat(ctx context.Context, chatID int64, acc *model.Account, text string) {
	ev, err := wh.service.RecordInteraction(ctx, acc.ID, text, model.PlatformTelegram)
	if err != nil {
		if errors.Is(err, service.ErrPartialRecord) {
			// начисление прошло, потерялась только запись — отвечаем как обычно
			wh.logger.Warn("chat event not recorded", zap.Error(err), zap.Int64("accountID", acc.ID))
		} else {
			wh.logger.Error("record interaction error", zap.Error(err), zap.Int64("accountID", acc.ID))
			wh.reply(chatID, "Sorry, something went wrong. Please try again!")
			return
		}
	}

	reply := fmt.Sprintf("%s\n\n💰 +₹%s earned!", wh.replyText(ev), wh.service.Rates().ChatRate)
	wh.reply(chatID, reply)
}

func (wh *Webhook) replyText(ev *model.ChatEvent) string {
	if ev != nil {
		return ev.Reply
	}
	return "Thanks for your message!"
}

func (wh *Webhook) reply(chatID int64, text string) {
	if err := wh.sender.Send(chatID, text); err != nil {
		wh.logger.Error("send telegram message error", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

func (wh *Webhook) startText(acc *model.Account) string {
	rates := wh.service.Rates()
	return fmt.Sprintf(`🎉 Welcome to %s!

🤖 I'm your AI assistant ready to help with anything!
💰 Earn ₹%s for each message
🎁 Welcome bonus: ₹%s (already added!)

💼 Your Account:
• Balance: ₹%s
• Total Earned: ₹%s
• Referral Code: %s

Commands:
/help - Show all commands
/balance - Check your balance
/stats - View your statistics

Start chatting to earn money! 💸`,
		wh.appName,
		rates.ChatRate,
		rates.WelcomeBonus,
		acc.Balance.StringFixed(3),
		acc.TotalEarned.StringFixed(3),
		acc.ReferralCode,
	)
}

func (wh *Webhook) helpText() string {
	rates := wh.service.Rates()
	return fmt.Sprintf(`🤖 %s Commands:

/start - Start the bot and get welcome bonus
/help - Show this help message
/balance - Check your current balance
/stats - View your statistics

💰 Earning System:
• ₹%s per message sent
• ₹%s per successful referral
• Instant balance updates

Just send me any message to start earning! 💸`,
		wh.appName,
		rates.ChatRate,
		rates.ReferralBonus,
	)
}

func (wh *Webhook) balanceText(ctx context.Context, acc *model.Account) string {
	rates := wh.service.Rates()

	chats, err := wh.service.CountChats(ctx, acc.ID, model.PlatformTelegram)
	if err != nil {
		wh.logger.Error("count chats error", zap.Error(err), zap.Int64("accountID", acc.ID))
		return "Error checking balance. Please try again!"
	}

	return fmt.Sprintf(`💰 Your Wallet

Current Balance: ₹%s
Total Earned: ₹%s
Telegram Chats: %d

Referral Info:
Your Code: %s
Share this code to earn ₹%s per referral!

Keep chatting to earn more! 🚀`,
		acc.Balance.StringFixed(3),
		acc.TotalEarned.StringFixed(3),
		chats,
		acc.ReferralCode,
		rates.ReferralBonus,
	)
}

func (wh *Webhook) statsText(ctx context.Context, acc *model.Account) string {
	total, err := wh.service.CountChats(ctx, acc.ID, "")
	if err != nil {
		wh.logger.Error("count chats error", zap.Error(err), zap.Int64("accountID", acc.ID))
		return "Error getting statistics. Please try again!"
	}
	telegramChats, err := wh.service.CountChats(ctx, acc.ID, model.PlatformTelegram)
	if err != nil {
		wh.logger.Error("count chats error", zap.Error(err), zap.Int64("accountID", acc.ID))
		return "Error getting statistics. Please try again!"
	}
	webChats := total - telegramChats

	status := "Free User"
	if acc.IsPremium {
		status = "Premium"
	}

	return fmt.Sprintf(`📊 Your Statistics

Account Info:
• Username: %s
• Member Since: %s
• Status: %s

Chat Statistics:
• Total Messages: %d
• Telegram Messages: %d
• Web Messages: %d

Financial Stats:
• Current Balance: ₹%s
• Total Earned: ₹%s

Referral Code: %s`,
		acc.Username,
		acc.CreatedAt.Format("2006-01-02"),
		status,
		total,
		telegramChats,
		webChats,
		acc.Balance.StringFixed(3),
		acc.TotalEarned.StringFixed(3),
		acc.ReferralCode,
	)
}
