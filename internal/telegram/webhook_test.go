package telegram

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/chatearn-system/internal/model"
	"github.com/mmeshcher/chatearn-system/internal/service"
)

type stubService struct {
	account    *model.Account
	resolveErr error

	recorded    []string
	recordEvent *model.ChatEvent
	recordErr   error

	chatCount int64
}

func (s *stubService) ResolveTelegram(ctx context.Context, telegramID int64, username, firstName string) (*model.Account, bool, error) {
	return s.account, false, s.resolveErr
}

func (s *stubService) RecordInteraction(ctx context.Context, accountID int64, message string, platform model.Platform) (*model.ChatEvent, error) {
	s.recorded = append(s.recorded, message)
	return s.recordEvent, s.recordErr
}

func (s *stubService) CountChats(ctx context.Context, accountID int64, platform model.Platform) (int64, error) {
	return s.chatCount, nil
}

func (s *stubService) Rates() service.Rates {
	return service.DefaultRates()
}

type recordingSender struct {
	sent []string
}

func (r *recordingSender) Send(chatID int64, text string) error {
	r.sent = append(r.sent, text)
	return nil
}

func testWebhookAccount() *model.Account {
	tgID := int64(555)
	return &model.Account{
		ID:           42,
		Username:     "tguser",
		Email:        "tguser@telegram.user",
		TelegramID:   &tgID,
		Balance:      decimal.NewFromInt(10),
		TotalEarned:  decimal.NewFromInt(10),
		ReferralCode: "ABCD2345",
		CreatedAt:    time.Now().UTC(),
	}
}

func newTestWebhook(t *testing.T, svc Service, sender Sender) *Webhook {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	return NewWebhook(svc, sender, logger, "Chatearn")
}

func postUpdate(t *testing.T, wh *Webhook, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook/token", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	wh.ServeHTTP(rec, req)
	return rec
}

func updateJSON(text string) string {
	return `{"update_id":1,"message":{"message_id":10,"from":{"id":555,"username":"tguser","first_name":"TG"},"chat":{"id":555},"text":"` + text + `"}}`
}

func TestWebhook_StartCommand(t *testing.T) {
	svc := &stubService{account: testWebhookAccount()}
	sender := &recordingSender{}
	wh := newTestWebhook(t, svc, sender)

	rec := postUpdate(t, wh, updateJSON("/start"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(svc.recorded) != 0 {
		t.Fatalf("command must not be recorded as interaction")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0], "ABCD2345") {
		t.Fatalf("welcome message missing referral code: %q", sender.sent[0])
	}
}

func TestWebhook_BalanceCommand(t *testing.T) {
	svc := &stubService{account: testWebhookAccount(), chatCount: 3}
	sender := &recordingSender{}
	wh := newTestWebhook(t, svc, sender)

	postUpdate(t, wh, updateJSON("/balance"))

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0], "10.000") {
		t.Fatalf("balance message missing amount: %q", sender.sent[0])
	}
	if !strings.Contains(sender.sent[0], "Telegram Chats: 3") {
		t.Fatalf("balance message missing chat count: %q", sender.sent[0])
	}
}

func TestWebhook_RegularMessage(t *testing.T) {
	svc := &stubService{
		account: testWebhookAccount(),
		recordEvent: &model.ChatEvent{
			InteractionID: uuid.New(),
			AccountID:     42,
			Message:       "hello",
			Reply:         "Hello! Welcome to Chatearn!",
			Platform:      model.PlatformTelegram,
			Earned:        decimal.RequireFromString("0.001"),
		},
	}
	sender := &recordingSender{}
	wh := newTestWebhook(t, svc, sender)

	rec := postUpdate(t, wh, updateJSON("hello"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(svc.recorded) != 1 || svc.recorded[0] != "hello" {
		t.Fatalf("recorded messages = %v, want [hello]", svc.recorded)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0], "Hello! Welcome to Chatearn!") {
		t.Fatalf("reply missing generated text: %q", sender.sent[0])
	}
	if !strings.Contains(sender.sent[0], "earned") {
		t.Fatalf("reply missing earned note: %q", sender.sent[0])
	}
}

func TestWebhook_PartialRecordStillReplies(t *testing.T) {
	svc := &stubService{
		account:   testWebhookAccount(),
		recordErr: service.ErrPartialRecord,
	}
	sender := &recordingSender{}
	wh := newTestWebhook(t, svc, sender)

	rec := postUpdate(t, wh, updateJSON("hello"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0], "earned") {
		t.Fatalf("reply missing earned note: %q", sender.sent[0])
	}
}

func TestWebhook_IgnoresNonMessageUpdate(t *testing.T) {
	svc := &stubService{account: testWebhookAccount()}
	sender := &recordingSender{}
	wh := newTestWebhook(t, svc, sender)

	rec := postUpdate(t, wh, `{"update_id":2}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("nothing should be sent for non-message update")
	}
}

func TestWebhook_MalformedBody(t *testing.T) {
	svc := &stubService{account: testWebhookAccount()}
	sender := &recordingSender{}
	wh := newTestWebhook(t, svc, sender)

	rec := postUpdate(t, wh, `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestWebhookPath_ContainsToken(t *testing.T) {
	path := WebhookPath("123:abc")
	if path != "/telegram/webhook/123:abc" {
		t.Fatalf("path = %q", path)
	}
}
