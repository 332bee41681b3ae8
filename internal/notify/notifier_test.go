package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func (t *recordingTransport) Send(_ context.Context, ch domain.ChannelConfig, msg Message) error {
	if t.fail[ch.ID] {
		return errors.New("unreachable")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, ch.ID+":"+msg.Text)
	return nil
}

func TestNotifyPerChannelIsolation(t *testing.T) {
	tr := &recordingTransport{fail: map[string]bool{"c2": true}}
	n := NewNotifier(nil)
	n.Register(domain.ChannelWebhook, tr)

	channels := []domain.ChannelConfig{
		{ID: "c1", Type: domain.ChannelWebhook, Target: "http://a", Enabled: true},
		{ID: "c2", Type: domain.ChannelWebhook, Target: "http://b", Enabled: true},
		{ID: "c3", Type: domain.ChannelWebhook, Target: "http://c", Enabled: false},
		{ID: "c4", Type: domain.ChannelLog, Enabled: true},
		{ID: "c5", Type: "sms", Enabled: true},
	}
	results := n.Notify(context.Background(), channels, Message{AgentID: "a1", Text: "done"})

	require.Len(t, results, len(channels))
	want := []domain.StepStatus{domain.StepSuccess, domain.StepError, domain.StepSkipped, domain.StepSuccess, domain.StepError}
	for i, r := range results {
		assert.Equal(t, channels[i].ID, r.ChannelID)
		assert.Equal(t, want[i], r.Status, r.ChannelID)
	}
	assert.Equal(t, []string{"c1:done"}, tr.sent)
}

func TestNotifyIncompleteChannelFailsAlone(t *testing.T) {
	tr := &recordingTransport{}
	n := NewNotifier(nil)
	n.Register(domain.ChannelWebhook, tr)

	channels := []domain.ChannelConfig{
		{ID: "log", Type: domain.ChannelLog, Enabled: true},
		{ID: "bad", Type: domain.ChannelWebhook, Enabled: true},
		{ID: "ok", Type: domain.ChannelWebhook, Target: "http://a", Enabled: true},
		{ID: "ok", Type: domain.ChannelWebhook, Target: "http://b", Enabled: true},
	}
	results := n.Notify(context.Background(), channels, Message{Text: "hi"})

	require.Len(t, results, 4)
	assert.Equal(t, domain.StepSuccess, results[0].Status)
	assert.Equal(t, domain.StepError, results[1].Status)
	assert.Contains(t, results[1].Error, "target is required")
	assert.Equal(t, domain.StepSuccess, results[2].Status)
	assert.Equal(t, domain.StepError, results[3].Status)
	assert.Contains(t, results[3].Error, "duplicate channel id")
	assert.Equal(t, []string{"ok:hi"}, tr.sent)
}

func TestWebhookTransportRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "hello", msg.Text)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	tr := NewWebhookTransport(server.Client())
	err := tr.Send(context.Background(), domain.ChannelConfig{ID: "w", Target: server.URL}, Message{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTelegramTransportSendsToChat(t *testing.T) {
	var chatID, text string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/bottoken/getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"bot"}}`))
		case "/bottoken/sendMessage":
			require.NoError(t, r.ParseForm())
			chatID = r.FormValue("chat_id")
			text = r.FormValue("text")
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	tr, err := NewTelegramTransportWithEndpoint("token", server.URL+"/bot%s/%s", server.Client())
	require.NoError(t, err)

	err = tr.Send(context.Background(),
		domain.ChannelConfig{ID: "tg", Type: domain.ChannelTelegram, Target: "42"},
		Message{AgentName: "Triage", Text: "new bug"})
	require.NoError(t, err)
	assert.Equal(t, "42", chatID)
	assert.Equal(t, "Triage:\nnew bug", text)

	err = tr.Send(context.Background(), domain.ChannelConfig{ID: "tg", Target: "@chan"}, Message{Text: "x"})
	assert.Error(t, err)
}

func TestSplitMessage(t *testing.T) {
	long := make([]byte, maxTelegramMessage+10)
	for i := range long {
		long[i] = 'a'
	}
	parts := splitMessage(string(long))
	require.Len(t, parts, 2)
	assert.Len(t, parts[1], 10)
}

func TestSplitMessageKeepsRunes(t *testing.T) {
	text := strings.Repeat("я", maxTelegramMessage) // 2 байта на символ
	parts := splitMessage(text)
	require.Len(t, parts, 2)
	for _, p := range parts {
		assert.True(t, utf8.ValidString(p))
		assert.LessOrEqual(t, len(p), maxTelegramMessage)
	}
	assert.Equal(t, text, strings.Join(parts, ""))
}
