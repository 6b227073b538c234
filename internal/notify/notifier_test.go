package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, accountID int64, text string) error {
	args := m.Called(ctx, accountID, text)
	return args.Error(0)
}

func TestBestEffortSwallowsErrors(t *testing.T) {
	m := &mockNotifier{}
	m.On("Notify", mock.Anything, int64(1), "✅ BTC TP hit").Return(errors.New("chat not found"))
	m.On("Notify", mock.Anything, int64(2), "hello 2").Return(nil)

	b := NewBestEffort(m)
	b.Send(context.Background(), 1, "✅ BTC TP hit")
	b.Sendf(context.Background(), 2, "hello %d", 2)

	m.AssertExpectations(t)
}

func TestBestEffortNil(t *testing.T) {
	var b *BestEffort
	assert.NotPanics(t, func() { b.Send(context.Background(), 1, "x") })
}

func TestStdout(t *testing.T) {
	assert.NoError(t, NewStdout().Notify(context.Background(), 1, "x"))
}

type fakeTelegram struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"nado","username":"nado_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		_ = r.ParseForm()
		f.mu.Lock()
		f.sent = append(f.sent, r.Form.Get("chat_id")+":"+r.Form.Get("text"))
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func TestTelegramRoutesToAccountChat(t *testing.T) {
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	bot, err := tgbot.NewBotAPIWithClient("token", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	chats := map[int64]int64{7: 700}
	tg := NewTelegram(bot, func(id int64) int64 { return chats[id] }, 100)

	require.NoError(t, tg.Notify(context.Background(), 7, "Strategy loop started on testnet."))
	require.NoError(t, tg.Notify(context.Background(), 8, "fallback"))

	assert.Equal(t, []string{"700:Strategy loop started on testnet.", "100:fallback"}, fake.sent)
}

func TestTelegramNoChat(t *testing.T) {
	tg := NewTelegram(nil, nil, 0)
	assert.Error(t, tg.Notify(context.Background(), 7, "x"))
}
