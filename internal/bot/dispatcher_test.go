package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/faq"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/session"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/whatsapp"
)

// fakeGateway records sends and returns configurable outcomes.
type fakeGateway struct {
	mu        sync.Mutex
	sent      []Outbound
	marked    []string
	failSends bool
}

func (g *fakeGateway) Send(_ context.Context, to, body, _ string) whatsapp.Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSends {
		return whatsapp.Outcome{Success: false, Attempts: 1, LastError: &whatsapp.APIError{StatusCode: http.StatusUnauthorized}}
	}
	g.sent = append(g.sent, Outbound{UserID: to, Text: body})
	return whatsapp.Outcome{Success: true, Attempts: 1}
}

func (g *fakeGateway) MarkRead(_ context.Context, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.marked = append(g.marked, messageID)
	return nil
}

func (g *fakeGateway) sends() []Outbound {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Outbound, len(g.sent))
	copy(out, g.sent)
	return out
}

type dispatcherEnv struct {
	dispatcher *Dispatcher
	gateway    *fakeGateway
	provider   *fakeProvider
	now        time.Time
}

func newDispatcherEnv(t *testing.T) *dispatcherEnv {
	t.Helper()

	store, err := faq.NewStore(writeTestCorpus(t))
	require.NoError(t, err)

	env := &dispatcherEnv{
		gateway:  &fakeGateway{},
		provider: &fakeProvider{answer: "llm answer"},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	matcher := faq.NewMatcher(store, 0.35, 3)
	sessions := session.NewRegistry(time.Hour, 0)
	composer := NewComposer(env.provider, 4096)
	dedup := NewDedupCache(500, 10*time.Minute)
	env.dispatcher = NewDispatcher(matcher, sessions, composer, env.gateway, dedup)
	env.dispatcher.nowFunc = func() time.Time { return env.now }
	dedup.nowFunc = env.dispatcher.nowFunc
	return env
}

func writeCorpusFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "faq.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeTestCorpus(t *testing.T) string {
	t.Helper()
	return writeCorpusFile(t, `{
	  "faq": [
	    {"id": 1, "question": "Как оформить заказ?", "answer": "Свяжитесь с менеджером! 📞", "keywords": ["заказ", "оформить"]},
	    {"id": 2, "question": "Какие способы оплаты доступны?", "answer": "Карты и наличные. 💳", "keywords": ["оплата", "карта", "платить"]}
	  ]
	}`)
}

func textEvent(now time.Time, msgs ...whatsapp.Message) *whatsapp.WebhookPayload {
	for i := range msgs {
		if msgs[i].Timestamp == "" {
			msgs[i].Timestamp = strconv.FormatInt(now.Unix(), 10)
		}
	}
	return &whatsapp.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []whatsapp.Entry{{
			ID: "entry-1",
			Changes: []whatsapp.Change{{
				Field: "messages",
				Value: whatsapp.Value{
					MessagingProduct: "whatsapp",
					Messages:         msgs,
				},
			}},
		}},
	}
}

func textMsg(id, from, body string) whatsapp.Message {
	return whatsapp.Message{
		From: from,
		ID:   id,
		Type: "text",
		Text: &whatsapp.TextMessage{Body: body},
	}
}

func TestHandleEvent_ConfidentFAQReply(t *testing.T) {
	env := newDispatcherEnv(t)

	outcomes := env.dispatcher.HandleEvent(context.Background(),
		textEvent(env.now, textMsg("wamid.1", "79001234567", "Как оформить заказ?")))

	require.Len(t, outcomes, 1)
	require.Equal(t, StatusReplied, outcomes[0].Status)
	require.Equal(t, SourceFAQ, outcomes[0].Source)

	sends := env.gateway.sends()
	require.Len(t, sends, 1)
	require.Equal(t, "79001234567", sends[0].UserID)
	require.Equal(t, "Свяжитесь с менеджером! 📞", sends[0].Text)
	require.Zero(t, env.provider.calls)
	require.Equal(t, []string{"wamid.1"}, env.gateway.marked)
}

func TestHandleEvent_NoMatchUsesLLMWithCandidates(t *testing.T) {
	env := newDispatcherEnv(t)

	outcomes := env.dispatcher.HandleEvent(context.Background(),
		textEvent(env.now, textMsg("wamid.2", "79001234567", "есть вопрос про оплата и ещё кое-что непонятное")))

	require.Len(t, outcomes, 1)
	require.Equal(t, StatusReplied, outcomes[0].Status)
	require.Equal(t, SourceLLM, outcomes[0].Source)
	require.Equal(t, 1, env.provider.calls)
	require.Contains(t, env.provider.lastPrompt, "Какие способы оплаты доступны?")
}

func TestHandleEvent_LLMTimeoutFallsBack(t *testing.T) {
	env := newDispatcherEnv(t)
	env.provider.err = errors.New("llm: completion timed out after 20s: context deadline exceeded")

	outcomes := env.dispatcher.HandleEvent(context.Background(),
		textEvent(env.now, textMsg("wamid.3", "79001234567", "what's the weather")))

	require.Len(t, outcomes, 1)
	require.Equal(t, StatusReplied, outcomes[0].Status)
	require.Equal(t, SourceFallback, outcomes[0].Source)
	require.Contains(t, env.gateway.sends()[0].Text, "не нашел точной информации")
}

func TestHandleEvent_DuplicateMessageSentOnce(t *testing.T) {
	env := newDispatcherEnv(t)

	event := textEvent(env.now, textMsg("wamid.dup", "79001234567", "Как оформить заказ?"))
	first := env.dispatcher.HandleEvent(context.Background(), event)
	second := env.dispatcher.HandleEvent(context.Background(), event)

	require.Equal(t, StatusReplied, first[0].Status)
	require.Equal(t, StatusDuplicate, second[0].Status)
	require.Len(t, env.gateway.sends(), 1, "duplicate delivery must produce exactly one outbound send")
}

func TestHandleEvent_RedeliveryAfterFailedDeliveryIsAnswered(t *testing.T) {
	env := newDispatcherEnv(t)
	env.gateway.failSends = true

	event := textEvent(env.now, textMsg("wamid.retry", "79001234567", "Как оформить заказ?"))
	outcomes := env.dispatcher.HandleEvent(context.Background(), event)
	require.Equal(t, StatusDeliveryFailed, outcomes[0].Status)
	require.Empty(t, env.gateway.sends())

	// the provider redelivers the same id after a failed attempt; it
	// must get a fresh pipeline run, not a duplicate ack
	env.gateway.mu.Lock()
	env.gateway.failSends = false
	env.gateway.mu.Unlock()

	outcomes = env.dispatcher.HandleEvent(context.Background(),
		textEvent(env.now, textMsg("wamid.retry", "79001234567", "Как оформить заказ?")))
	require.Equal(t, StatusReplied, outcomes[0].Status)
	require.Len(t, env.gateway.sends(), 1)
}

func TestHandleEvent_BatchIsolation(t *testing.T) {
	env := newDispatcherEnv(t)
	env.gateway.failSends = true

	// first message fails at delivery; the sibling must still process
	outcomes := env.dispatcher.HandleEvent(context.Background(),
		textEvent(env.now,
			textMsg("wamid.a", "79001111111", "Как оформить заказ?"),
			textMsg("wamid.b", "79002222222", "оплата")))

	require.Len(t, outcomes, 2)
	require.Equal(t, StatusDeliveryFailed, outcomes[0].Status)
	require.Error(t, outcomes[0].Err)
	require.Equal(t, StatusDeliveryFailed, outcomes[1].Status, "sibling still ran its own pipeline")
}

func TestHandleEvent_NonTextSkipped(t *testing.T) {
	env := newDispatcherEnv(t)

	payload := textEvent(env.now, whatsapp.Message{
		From: "79001234567",
		ID:   "wamid.img",
		Type: "image",
	})
	outcomes := env.dispatcher.HandleEvent(context.Background(), payload)
	require.Empty(t, outcomes)
	require.Empty(t, env.gateway.sends())
}

func TestHandleEvent_StaleMessageSkipped(t *testing.T) {
	env := newDispatcherEnv(t)

	old := env.now.Add(-48 * time.Hour)
	msg := textMsg("wamid.old", "79001234567", "Как оформить заказ?")
	msg.Timestamp = strconv.FormatInt(old.Unix(), 10)

	outcomes := env.dispatcher.HandleEvent(context.Background(), textEvent(env.now, msg))
	require.Len(t, outcomes, 1)
	require.Equal(t, StatusSkipped, outcomes[0].Status)
	require.Empty(t, env.gateway.sends())
}

func TestHandleEvent_EmptyEnvelope(t *testing.T) {
	env := newDispatcherEnv(t)

	require.Empty(t, env.dispatcher.HandleEvent(context.Background(), &whatsapp.WebhookPayload{}))

	// status-only envelope (delivery receipts) carries no messages
	payload := &whatsapp.WebhookPayload{
		Entry: []whatsapp.Entry{{
			Changes: []whatsapp.Change{{
				Value: whatsapp.Value{
					Statuses: []whatsapp.Status{{ID: "wamid.1", Status: "delivered"}},
				},
			}},
		}},
	}
	require.Empty(t, env.dispatcher.HandleEvent(context.Background(), payload))
}

func TestHandleEvent_RateLimitedUserDropped(t *testing.T) {
	store, err := faq.NewStore(writeTestCorpus(t))
	require.NoError(t, err)

	gateway := &fakeGateway{}
	sessions := session.NewRegistry(time.Hour, 2)
	d := NewDispatcher(
		faq.NewMatcher(store, 0.35, 3),
		sessions,
		NewComposer(&fakeProvider{answer: "ok"}, 4096),
		gateway,
		NewDedupCache(500, 10*time.Minute),
	)

	for i := 1; i <= 3; i++ {
		outcomes := d.HandleEvent(context.Background(),
			textEvent(time.Now(), textMsg(fmt.Sprintf("wamid.%d", i), "79001234567", "Как оформить заказ?")))
		if i <= 2 {
			require.Equal(t, StatusReplied, outcomes[0].Status)
		} else {
			require.Equal(t, StatusRateLimited, outcomes[0].Status)
		}
	}
	require.Len(t, gateway.sends(), 2)
}

func TestHandleEvent_SessionTurnsAccumulate(t *testing.T) {
	env := newDispatcherEnv(t)

	for i := 0; i < 3; i++ {
		env.dispatcher.HandleEvent(context.Background(),
			textEvent(env.now, textMsg(fmt.Sprintf("wamid.t%d", i), "79001234567", "Как оформить заказ?")))
	}

	stats := env.dispatcher.Stats()
	sessStats := stats["sessions"].(map[string]interface{})
	require.Equal(t, 1, sessStats["active_sessions"])
	require.Equal(t, 3, sessStats["total_turns"])
}
