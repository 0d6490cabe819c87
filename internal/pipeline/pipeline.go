package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/deskwing/deskwing/internal/conversation"
	"github.com/deskwing/deskwing/internal/customer"
	dbpkg "github.com/deskwing/deskwing/internal/db"
	"github.com/deskwing/deskwing/internal/escalation"
	"github.com/deskwing/deskwing/internal/events"
	"github.com/deskwing/deskwing/internal/formatter"
	"github.com/deskwing/deskwing/internal/knowledge"
	"github.com/deskwing/deskwing/internal/message"
	"github.com/deskwing/deskwing/internal/responder"
	"github.com/deskwing/deskwing/internal/ticket"
)

// maxSearchesPerMessage bounds knowledge lookups for one envelope.
const maxSearchesPerMessage = 2

type customerResolver interface {
	ResolveOrCreate(ctx context.Context, input customer.ResolveInput) (customer.Customer, error)
}

type conversationManager interface {
	GetOrOpen(ctx context.Context, customerID, channel string) (conversation.Conversation, error)
	GetByID(ctx context.Context, id string) (conversation.Conversation, error)
	RecordTurn(ctx context.Context, conversationID string, sentimentSample float64) (conversation.Conversation, error)
	RecordGap(ctx context.Context, conversationID string) (int, error)
	ResetGap(ctx context.Context, conversationID string) error
	Close(ctx context.Context, conversationID, status, escalationReason string) (conversation.Conversation, error)
}

type messageStore interface {
	Append(ctx context.Context, input message.AppendInput) (message.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]message.Message, error)
}

type ticketStore interface {
	EnsureForConversation(ctx context.Context, input ticket.CreateInput) (ticket.Ticket, error)
	SetStatus(ctx context.Context, ticketID, status, notes string) error
}

type knowledgeSearcher interface {
	Search(query string, maxResults int) []knowledge.Match
}

type replyGenerator interface {
	Generate(ctx context.Context, req responder.Request) (string, error)
}

type eventPublisher interface {
	PublishEscalation(ctx context.Context, esc events.Escalation) error
	PublishDeadLetter(ctx context.Context, key string, dl events.DeadLetter) error
}

type metricsRecorder interface {
	RecordMessage(channel string, latency time.Duration, sentiment float64, escalated bool)
	RecordError(channel string)
}

type sentimentScorer func(text string) float64

// Options carry the retry and fallback tuning. Zero values take defaults.
type Options struct {
	RetryAttempts          int
	RetryBackoff           time.Duration
	ResponderRetryAttempts int
	KnowledgeMaxResults    int
}

// Pipeline processes envelopes in the fixed order the support flow
// requires. It owns all retry and fallback policy: the services it calls
// never retry internally.
type Pipeline struct {
	customers customerResolver
	convs     conversationManager
	messages  messageStore
	tickets   ticketStore
	kb        knowledgeSearcher
	policy    *escalation.Policy
	respond   replyGenerator
	format    *formatter.Formatter
	publisher eventPublisher
	metrics   metricsRecorder
	score     sentimentScorer

	validate *validator.Validate
	locks    *keyedLocks
	opts     Options
	logger   *slog.Logger
}

// New wires a Pipeline. All dependencies are required except metrics,
// which may be nil.
func New(
	log *slog.Logger,
	customers customerResolver,
	convs conversationManager,
	messages messageStore,
	tickets ticketStore,
	kb knowledgeSearcher,
	policy *escalation.Policy,
	respond replyGenerator,
	format *formatter.Formatter,
	publisher eventPublisher,
	metrics metricsRecorder,
	score sentimentScorer,
	opts Options,
) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	if opts.ResponderRetryAttempts <= 0 {
		opts.ResponderRetryAttempts = 3
	}
	if opts.KnowledgeMaxResults <= 0 {
		opts.KnowledgeMaxResults = knowledge.DefaultMaxResults
	}
	return &Pipeline{
		customers: customers,
		convs:     convs,
		messages:  messages,
		tickets:   tickets,
		kb:        kb,
		policy:    policy,
		respond:   respond,
		format:    format,
		publisher: publisher,
		metrics:   metrics,
		score:     score,
		validate:  validator.New(),
		locks:     newKeyedLocks(),
		opts:      opts,
		logger:    log.With(slog.String("service", "pipeline")),
	}
}

// Process runs one envelope through the pipeline. It always returns a
// Result; the error return carries the internal cause for failed results
// and is nil for replies and escalations.
func (p *Pipeline) Process(ctx context.Context, env Envelope) (Result, error) {
	started := time.Now()

	if err := p.validate.Struct(env); err != nil {
		verr := &ValidationError{Err: err}
		p.logger.Warn("envelope rejected", slog.Any("error", err))
		p.deadLetter(ctx, env, "validation_error", verr)
		if p.metrics != nil {
			p.metrics.RecordError(env.Channel)
		}
		return Result{
			Action:       ActionFailed,
			Channel:      env.Channel,
			RenderedText: p.format.Fallback(env.Channel),
		}, verr
	}

	// Serialize per conversation: the turn counter and running sentiment
	// average are only meaningful under sequential application. Envelopes
	// without a conversation hint serialize on the sender instead, which
	// covers the window lookup racing against itself.
	key := env.ConversationID
	if key == "" {
		key = env.Channel + ":" + env.SenderIdentifier
	}
	release := p.locks.Acquire(key)
	defer release()

	res, err := p.run(ctx, env, started)
	if err != nil && res.Action == ActionFailed {
		p.deadLetter(ctx, env, "pipeline_failed", err)
		if p.metrics != nil {
			p.metrics.RecordError(env.Channel)
		}
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, env Envelope, started time.Time) (Result, error) {
	cust, err := p.resolveCustomer(ctx, env)
	if err != nil {
		return p.failed(env, ""), fmt.Errorf("resolve customer: %w", err)
	}

	conv, err := p.attachConversation(ctx, env, cust)
	if err != nil {
		return p.failed(env, ""), fmt.Errorf("attach conversation: %w", err)
	}

	if err := p.retry(ctx, func() error {
		_, err := p.messages.Append(ctx, message.AppendInput{
			ConversationID:   conv.ID,
			Channel:          env.Channel,
			Direction:        message.DirectionInbound,
			Role:             message.RoleCustomer,
			Content:          env.Text,
			ChannelMessageID: env.ChannelMessageID,
			DeliveryStatus:   message.DeliveryDelivered,
		})
		return err
	}); err != nil {
		return p.failed(env, conv.ID), fmt.Errorf("store inbound message: %w", err)
	}

	var tkt ticket.Ticket
	if err := p.retry(ctx, func() error {
		var err error
		tkt, err = p.tickets.EnsureForConversation(ctx, ticket.CreateInput{
			ConversationID: conv.ID,
			CustomerID:     cust.ID,
			SourceChannel:  env.Channel,
			Category:       deriveCategory(env.Text),
			Priority:       derivePriority(env.Text),
		})
		return err
	}); err != nil {
		return p.failed(env, conv.ID), fmt.Errorf("ensure ticket: %w", err)
	}

	sentimentScore := p.score(env.Text)
	if err := p.retry(ctx, func() error {
		var err error
		conv, err = p.convs.RecordTurn(ctx, conv.ID, sentimentScore)
		return err
	}); err != nil {
		return p.failed(env, conv.ID), fmt.Errorf("record turn: %w", err)
	}

	matches := p.searchKnowledge(ctx, env, &conv)

	decision := p.policy.Decide(env.Text, &conv)
	if decision.Escalate {
		return p.escalate(ctx, env, cust, conv, tkt, decision, sentimentScore, started)
	}

	return p.reply(ctx, env, cust, conv, tkt, matches, sentimentScore, started)
}

func (p *Pipeline) resolveCustomer(ctx context.Context, env Envelope) (customer.Customer, error) {
	input := customer.ResolveInput{
		Identifier:  deriveIdentifier(env.Channel, env.SenderIdentifier),
		DisplayName: env.SenderName,
	}
	var cust customer.Customer
	err := p.retry(ctx, func() error {
		var err error
		cust, err = p.customers.ResolveOrCreate(ctx, input)
		return err
	})
	return cust, err
}

// attachConversation honors the envelope's conversation hint when it still
// points at an active conversation; a terminal or unknown hint falls back
// to the window lookup, matching the rule that a message after closure
// starts a fresh conversation.
func (p *Pipeline) attachConversation(ctx context.Context, env Envelope, cust customer.Customer) (conversation.Conversation, error) {
	if env.ConversationID != "" {
		var conv conversation.Conversation
		err := p.retry(ctx, func() error {
			var err error
			conv, err = p.convs.GetByID(ctx, env.ConversationID)
			return err
		})
		if err == nil && !conv.Terminal() && conv.CustomerID == cust.ID {
			return conv, nil
		}
		if err != nil && errors.Is(err, dbpkg.ErrStorageUnavailable) {
			return conversation.Conversation{}, err
		}
	}

	var conv conversation.Conversation
	err := p.retry(ctx, func() error {
		var err error
		conv, err = p.convs.GetOrOpen(ctx, cust.ID, env.Channel)
		return err
	})
	return conv, err
}

// searchKnowledge runs up to two lookups for a product question and keeps
// the conversation's consecutive-empty-search counter current. Immediate
// escalation keywords skip the search entirely; the policy will route the
// message to a human anyway.
func (p *Pipeline) searchKnowledge(ctx context.Context, env Envelope, conv *conversation.Conversation) []knowledge.Match {
	if escalation.ImmediateTrigger(env.Text) {
		return nil
	}

	queries := []string{env.Text}
	if prior := p.priorInboundText(ctx, conv.ID, env.Text); prior != "" {
		queries = append(queries, env.Text+" "+prior)
	}
	if len(queries) > maxSearchesPerMessage {
		queries = queries[:maxSearchesPerMessage]
	}

	var matches []knowledge.Match
	for _, q := range queries {
		matches = p.kb.Search(q, p.opts.KnowledgeMaxResults)
		if len(matches) > 0 {
			if err := p.convs.ResetGap(ctx, conv.ID); err != nil {
				p.logger.Warn("gap reset failed", slog.Any("error", err))
			} else {
				conv.GapCount = 0
			}
			return matches
		}
		gap, err := p.convs.RecordGap(ctx, conv.ID)
		if err != nil {
			p.logger.Warn("gap record failed", slog.Any("error", err))
			continue
		}
		conv.GapCount = gap
	}
	return matches
}

// priorInboundText returns the most recent earlier customer message, used
// as extra context for the second search attempt.
func (p *Pipeline) priorInboundText(ctx context.Context, conversationID, currentText string) string {
	history, err := p.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return ""
	}
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Direction == message.DirectionInbound && m.Content != currentText {
			return m.Content
		}
	}
	return ""
}

func (p *Pipeline) escalate(
	ctx context.Context,
	env Envelope,
	cust customer.Customer,
	conv conversation.Conversation,
	tkt ticket.Ticket,
	decision escalation.Decision,
	sentimentScore float64,
	started time.Time,
) (Result, error) {
	if err := p.retry(ctx, func() error {
		_, err := p.convs.Close(ctx, conv.ID, conversation.StatusEscalated, decision.Reason)
		return err
	}); err != nil && !errors.Is(err, conversation.ErrConversationClosed) {
		return p.failed(env, conv.ID), fmt.Errorf("close conversation: %w", err)
	}

	if err := p.tickets.SetStatus(ctx, tkt.ID, ticket.StatusEscalated, "escalated: "+decision.Reason); err != nil {
		p.logger.Warn("ticket status update failed",
			slog.String("ticket_id", tkt.ID),
			slog.Any("error", err))
	}

	transcriptRef := "conversations/" + conv.ID + "/messages"
	esc := events.Escalation{
		ConversationID: conv.ID,
		TicketID:       tkt.ID,
		CustomerID:     cust.ID,
		Reason:         decision.Reason,
		Channel:        env.Channel,
		TranscriptRef:  transcriptRef,
		EscalatedAt:    time.Now().UTC(),
	}
	if err := p.publisher.PublishEscalation(ctx, esc); err != nil {
		p.logger.Error("escalation publish failed",
			slog.String("conversation_id", conv.ID),
			slog.Any("error", err))
	}

	if p.metrics != nil {
		p.metrics.RecordMessage(env.Channel, time.Since(started), sentimentScore, true)
	}
	p.logger.Info("conversation escalated",
		slog.String("conversation_id", conv.ID),
		slog.String("reason", decision.Reason))

	return Result{
		Action:         ActionEscalate,
		Channel:        env.Channel,
		CustomerID:     cust.ID,
		ConversationID: conv.ID,
		TicketID:       tkt.ID,
		ReasonCode:     decision.Reason,
		TranscriptRef:  transcriptRef,
	}, nil
}

func (p *Pipeline) reply(
	ctx context.Context,
	env Envelope,
	cust customer.Customer,
	conv conversation.Conversation,
	tkt ticket.Ticket,
	matches []knowledge.Match,
	sentimentScore float64,
	started time.Time,
) (Result, error) {
	draft := p.generateReply(ctx, env, cust, conv, matches)
	rendered := p.format.Format(draft, env.Channel)

	if err := p.retry(ctx, func() error {
		_, err := p.messages.Append(ctx, message.AppendInput{
			ConversationID: conv.ID,
			Channel:        env.Channel,
			Direction:      message.DirectionOutbound,
			Role:           message.RoleAgent,
			Content:        rendered,
			DeliveryStatus: message.DeliveryPending,
		})
		return err
	}); err != nil {
		return p.failed(env, conv.ID), fmt.Errorf("store outbound message: %w", err)
	}

	if p.metrics != nil {
		p.metrics.RecordMessage(env.Channel, time.Since(started), sentimentScore, false)
	}

	return Result{
		Action:         ActionReply,
		Channel:        env.Channel,
		CustomerID:     cust.ID,
		ConversationID: conv.ID,
		TicketID:       tkt.ID,
		RenderedText:   rendered,
	}, nil
}

// generateReply asks the responder gateway, retrying timeouts, and falls
// back to the deterministic template so the customer never sees a raw
// error.
func (p *Pipeline) generateReply(ctx context.Context, env Envelope, cust customer.Customer, conv conversation.Conversation, matches []knowledge.Match) string {
	req := responder.Request{
		ConversationID: conv.ID,
		Channel:        env.Channel,
		CustomerName:   cust.DisplayName,
		Text:           env.Text,
		Matches:        matches,
	}
	var draft string
	err := p.retryOn(ctx, p.opts.ResponderRetryAttempts, responder.ErrDownstreamTimeout, func() error {
		var err error
		draft, err = p.respond.Generate(ctx, req)
		return err
	})
	if err != nil {
		p.logger.Warn("responder unavailable, using template reply",
			slog.String("conversation_id", conv.ID),
			slog.Any("error", err))
		return responder.TemplateReply(matches)
	}
	return draft
}

func (p *Pipeline) failed(env Envelope, conversationID string) Result {
	return Result{
		Action:         ActionFailed,
		Channel:        env.Channel,
		ConversationID: conversationID,
		RenderedText:   p.format.Fallback(env.Channel),
	}
}

func (p *Pipeline) deadLetter(ctx context.Context, env Envelope, reason string, cause error) {
	raw, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("dead letter marshal failed", slog.Any("error", err))
		return
	}
	dl := events.DeadLetter{
		Reason:      reason,
		RawEnvelope: raw,
		FailedAt:    time.Now().UTC(),
	}
	if cause != nil {
		dl.Error = cause.Error()
	}
	key := env.Channel + ":" + env.SenderIdentifier
	if err := p.publisher.PublishDeadLetter(ctx, key, dl); err != nil {
		p.logger.Error("dead letter publish failed", slog.Any("error", err))
	}
}

// retry runs fn, repeating on storage unavailability with a linear backoff
// up to the configured attempt count. Any other error returns immediately.
func (p *Pipeline) retry(ctx context.Context, fn func() error) error {
	return p.retryOn(ctx, p.opts.RetryAttempts, dbpkg.ErrStorageUnavailable, fn)
}

func (p *Pipeline) retryOn(ctx context.Context, attempts int, retryable error, fn func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, retryable) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.opts.RetryBackoff * time.Duration(attempt)):
		}
	}
	return err
}

// deriveIdentifier maps the channel's sender identifier onto an identity
// identifier type. Anything with an @ is an email regardless of channel,
// which is what makes cross-channel continuity work when a chat profile
// reports the customer's email.
func deriveIdentifier(channel, value string) customer.Identifier {
	trimmed := strings.TrimSpace(value)
	switch {
	case strings.Contains(trimmed, "@"):
		return customer.Identifier{Type: customer.IdentifierEmail, Value: trimmed}
	case channel == formatter.ChannelChat:
		return customer.Identifier{Type: customer.IdentifierChatHandle, Value: trimmed}
	case isDigits(trimmed):
		return customer.Identifier{Type: customer.IdentifierPhone, Value: trimmed}
	default:
		return customer.Identifier{Type: customer.IdentifierChatHandle, Value: trimmed}
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '+' && r != '-' && r != ' ' {
			return false
		}
	}
	return true
}

func deriveCategory(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "refund", "chargeback", "invoice", "billing", "payment", "pricing", "price", "cost", "quote", "subscription"):
		return ticket.CategoryBilling
	case containsAny(lower, "lawyer", "legal", "attorney", "sue", "gdpr"):
		return ticket.CategoryLegal
	case containsAny(lower, "bug", "error", "crash", "broken", "not working", "cannot", "can't", "fail"):
		return ticket.CategoryTechnical
	default:
		return ticket.CategoryGeneral
	}
}

// derivePriority mirrors deriveCategory: billing and legal keywords carry
// high priority, not just explicit urgency words.
func derivePriority(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "urgent", "immediately", "asap", "right now",
		"lawyer", "legal", "attorney", "sue", "gdpr",
		"refund", "chargeback", "billing", "invoice", "payment"):
		return ticket.PriorityHigh
	case containsAny(lower, "cancel", "broken", "crash", "pricing", "price", "cost", "quote", "subscription"):
		return ticket.PriorityMedium
	default:
		return ticket.PriorityLow
	}
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
