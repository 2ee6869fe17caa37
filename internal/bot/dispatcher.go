package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/faq"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/session"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/utils"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/whatsapp"
)

// maxMessageAge bounds how old a redelivered message can be and still
// get an answer.
const maxMessageAge = 24 * time.Hour

// Gateway is the outbound side of the dispatcher. Implemented by
// whatsapp.Client.
type Gateway interface {
	Send(ctx context.Context, to, body, replyToMsgID string) whatsapp.Outcome
	MarkRead(ctx context.Context, messageID string) error
}

// InboundMessage is one extracted provider message. Created per webhook
// event and discarded after processing.
type InboundMessage struct {
	UserID      string
	MessageID   string
	Text        string
	ContactName string
	ReceivedAt  time.Time
}

// MessageStatus classifies what happened to one message of a batch.
type MessageStatus int

const (
	StatusReplied MessageStatus = iota
	StatusDuplicate
	StatusSkipped
	StatusRateLimited
	StatusDeliveryFailed
)

func (s MessageStatus) String() string {
	switch s {
	case StatusReplied:
		return "replied"
	case StatusDuplicate:
		return "duplicate"
	case StatusSkipped:
		return "skipped"
	case StatusRateLimited:
		return "rate_limited"
	case StatusDeliveryFailed:
		return "delivery_failed"
	default:
		return "unknown"
	}
}

// MessageOutcome reports the result for one message of a batch.
type MessageOutcome struct {
	MessageID string
	Status    MessageStatus
	Source    Source
	Err       error
}

// Dispatcher drives the full inbound pipeline: dedup, session touch,
// FAQ matching, composition and delivery. Failures on one message never
// abort siblings in the same batch.
type Dispatcher struct {
	matcher  *faq.Matcher
	sessions *session.Registry
	composer *Composer
	gateway  Gateway
	dedup    *DedupCache

	nowFunc func() time.Time
}

// NewDispatcher wires the pipeline together.
func NewDispatcher(matcher *faq.Matcher, sessions *session.Registry, composer *Composer, gateway Gateway, dedup *DedupCache) *Dispatcher {
	return &Dispatcher{
		matcher:  matcher,
		sessions: sessions,
		composer: composer,
		gateway:  gateway,
		dedup:    dedup,
		nowFunc:  time.Now,
	}
}

// ExtractMessages flattens a webhook envelope into the text messages it
// carries. Non-text messages and status updates are dropped here.
func ExtractMessages(payload *whatsapp.WebhookPayload, now time.Time) []InboundMessage {
	var out []InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			for _, msg := range value.Messages {
				if msg.Type != "text" || msg.Text == nil || msg.Text.Body == "" {
					utils.Zlog.Debug("Skipping non-text message",
						zap.String("message_id", msg.ID),
						zap.String("type", msg.Type))
					continue
				}
				receivedAt := now
				if ts, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil && ts > 0 {
					receivedAt = time.Unix(ts, 0)
				}
				out = append(out, InboundMessage{
					UserID:      msg.From,
					MessageID:   msg.ID,
					Text:        msg.Text.Body,
					ContactName: value.ContactName(msg.From),
					ReceivedAt:  receivedAt,
				})
			}
		}
	}
	return out
}

// HandleEvent processes every message of one webhook event independently
// and returns the per-message outcomes. It never returns an error: the
// webhook was already acknowledged and partial failures are a logging
// concern, not the provider's.
func (d *Dispatcher) HandleEvent(ctx context.Context, payload *whatsapp.WebhookPayload) []MessageOutcome {
	messages := ExtractMessages(payload, d.nowFunc())
	if len(messages) == 0 {
		return nil
	}

	outcomes := make([]MessageOutcome, 0, len(messages))
	for _, msg := range messages {
		outcomes = append(outcomes, d.processMessage(ctx, msg))
	}
	return outcomes
}

// processMessage runs one message through the pipeline. Panics are
// confined here so a poisoned message cannot take down its siblings.
func (d *Dispatcher) processMessage(ctx context.Context, msg InboundMessage) (outcome MessageOutcome) {
	outcome = MessageOutcome{MessageID: msg.MessageID}

	defer func() {
		if r := recover(); r != nil {
			utils.Zlog.Error("Panic while processing message",
				zap.String("message_id", msg.MessageID),
				zap.Any("panic", r))
			d.dedup.Forget(msg.MessageID)
			outcome.Status = StatusSkipped
			outcome.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	// The id is recorded before processing so a racing redelivery of
	// the same message cannot be answered twice. When this attempt
	// fails outright (panic, delivery exhausted) the id is forgotten
	// again and the provider's redelivery retries the whole pipeline.
	// Deliberate drops (stale, rate limited, non-text) keep the id.
	if d.dedup.Seen(msg.MessageID) {
		utils.Zlog.Info("Duplicate message acknowledged without reprocessing",
			zap.String("message_id", msg.MessageID),
			zap.String("user_id", msg.UserID))
		outcome.Status = StatusDuplicate
		return outcome
	}

	if age := d.nowFunc().Sub(msg.ReceivedAt); age > maxMessageAge {
		utils.Zlog.Warn("Skipping stale message",
			zap.String("message_id", msg.MessageID),
			zap.Duration("age", age))
		outcome.Status = StatusSkipped
		return outcome
	}

	utils.Zlog.Info("Processing message",
		zap.String("message_id", msg.MessageID),
		zap.String("user_id", msg.UserID),
		zap.String("text", utils.FormatForLogging(msg.Text, 100)))

	if err := d.gateway.MarkRead(ctx, msg.MessageID); err != nil {
		utils.Zlog.Debug("Failed to mark message as read",
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
	}

	sess := d.sessions.Touch(msg.UserID)
	if !sess.Allow() {
		utils.Zlog.Warn("User over rate limit, dropping message",
			zap.String("user_id", msg.UserID),
			zap.String("message_id", msg.MessageID))
		outcome.Status = StatusRateLimited
		return outcome
	}

	match := d.matcher.Match(msg.Text)
	reply := d.composer.Compose(ctx, msg.UserID, msg.Text, match, sess)
	outcome.Source = reply.Source

	delivery := d.gateway.Send(ctx, reply.UserID, reply.Text, msg.MessageID)
	if !delivery.Success {
		// Retries are exhausted; forget the id so the provider's
		// redelivery gets another full attempt.
		d.dedup.Forget(msg.MessageID)
		outcome.Status = StatusDeliveryFailed
		outcome.Err = delivery.LastError
		utils.Zlog.Error("Reply delivery failed",
			zap.String("message_id", msg.MessageID),
			zap.String("user_id", msg.UserID),
			zap.Int("attempts", delivery.Attempts),
			zap.Error(delivery.LastError))
		return outcome
	}

	utils.Zlog.Info("Reply delivered",
		zap.String("message_id", msg.MessageID),
		zap.String("user_id", msg.UserID),
		zap.String("source", reply.Source.String()),
		zap.Int("attempts", delivery.Attempts))

	outcome.Status = StatusReplied
	return outcome
}

// Stats summarizes dispatcher state for the health endpoints.
func (d *Dispatcher) Stats() map[string]interface{} {
	return map[string]interface{}{
		"sessions":   d.sessions.Stats(),
		"dedup_size": d.dedup.Len(),
	}
}
