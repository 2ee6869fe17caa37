package bot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/faq"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/llm"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/session"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/utils"
)

// Source tags where an outbound reply came from.
type Source int

const (
	SourceFAQ Source = iota
	SourceLLM
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceFAQ:
		return "faq"
	case SourceLLM:
		return "llm"
	case SourceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Outbound is a composed reply ready for delivery.
type Outbound struct {
	UserID string
	Text   string
	Source Source
}

const systemPrompt = `Ты - помощник службы поддержки клиентов. Твоя задача:

1. Отвечать на русском языке дружелюбно и профессионально
2. Использовать предоставленную информацию из базы FAQ для ответов
3. Если точного ответа нет в FAQ, сказать об этом и предложить связаться с поддержкой
4. Быть кратким, но информативным
5. Использовать эмодзи для дружелюбности, но умеренно

Правила:
- Не выдумывай информацию, которой нет в FAQ
- Если вопрос не связан с FAQ, вежливо перенаправь к поддержке
- Отвечай максимум в 3-4 предложениях`

const fallbackText = `К сожалению, я не нашел точной информации по вашему вопросу в нашей базе знаний 😔

Пожалуйста, обратитесь к нашему менеджеру для получения подробной консультации. Мы обязательно поможем!

📞 Менеджер ответит в рабочее время
💬 Или опишите вопрос подробнее`

const greetingText = `Привет! 👋 Я бот-помощник нашей компании.

Я могу помочь с:
• Информацией о товарах и услугах
• Условиями заказа и доставки
• Способами оплаты
• Гарантийными вопросами

Просто задайте ваш вопрос, и я постараюсь помочь! 😊`

// greetingWords recognize a bare salutation without involving the LLM.
var greetingWords = map[string]bool{
	"привет": true, "здравствуйте": true, "здравствуй": true,
	"добрый": true, "доброе": true, "салам": true,
	"hi": true, "hello": true, "hey": true,
}

// Composer decides between a direct FAQ answer, an LLM completion seeded
// with FAQ context and the static fallback.
type Composer struct {
	provider  llm.Provider
	maxLength int
}

// NewComposer creates a composer. maxLength caps outbound text; 0
// disables the cap.
func NewComposer(provider llm.Provider, maxLength int) *Composer {
	return &Composer{provider: provider, maxLength: maxLength}
}

// Compose builds the reply for one inbound message. A confident match
// returns the FAQ answer verbatim (repeats allowed; the user may be
// re-asking) and records the entry id on the session. Anything else goes
// to the LLM with the top candidates as grounding, degrading to the
// static fallback when the LLM fails or times out.
func (c *Composer) Compose(ctx context.Context, userID, userText string, match faq.Result, sess *session.Session) Outbound {
	if match.Confident && match.Entry != nil {
		sess.RecordMatch(match.Entry.ID)
		return c.outbound(userID, match.Entry.Answer, SourceFAQ)
	}

	if isGreeting(userText) && sess.MarkGreeted() {
		return c.outbound(userID, greetingText, SourceFallback)
	}

	answer, err := c.provider.Complete(ctx, systemPrompt, buildUserPrompt(userText, match.Candidates))
	if err != nil {
		utils.Zlog.Warn("LLM fallback failed, using static reply",
			zap.String("user_id", userID),
			zap.Error(err))
		return c.outbound(userID, fallbackText, SourceFallback)
	}

	return c.outbound(userID, answer, SourceLLM)
}

func (c *Composer) outbound(userID, text string, source Source) Outbound {
	return Outbound{
		UserID: userID,
		Text:   utils.TruncateMessage(text, c.maxLength),
		Source: source,
	}
}

// buildUserPrompt formats the candidate FAQ entries as grounding context
// ahead of the client's question.
func buildUserPrompt(userText string, candidates []faq.Candidate) string {
	var b strings.Builder
	b.WriteString("База знаний FAQ:\n")
	if len(candidates) == 0 {
		b.WriteString("FAQ база пуста.")
	} else {
		for i, cand := range candidates {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", cand.Entry.Question, cand.Entry.Answer)
		}
	}
	fmt.Fprintf(&b, "\nВопрос клиента: %q\n\nОтветь на вопрос клиента, используя информацию из базы FAQ выше.", userText)
	return b.String()
}

func isGreeting(text string) bool {
	tokens := utils.Tokenize(text)
	if len(tokens) == 0 || len(tokens) > 3 {
		return false
	}
	for _, tok := range tokens {
		if greetingWords[tok] {
			return true
		}
	}
	return false
}
