// Package escalation decides whether a conversation must be handed off to
// a human and with which reason code.
package escalation

import (
	"strings"

	"github.com/deskwing/deskwing/internal/conversation"
)

// Reason codes form a closed set. Downstream handoff routing switches on
// these values, so new codes require coordinated changes.
const (
	ReasonPricingInquiry      = "pricing_inquiry"
	ReasonRefundRequest       = "refund_request"
	ReasonLegalIssue          = "legal_issue"
	ReasonCancellationRequest = "cancellation_request"
	ReasonNegativeSentiment   = "negative_sentiment"
	ReasonKnowledgeGap        = "knowledge_gap"
	ReasonCustomerRequested   = "customer_requested"
)

// Decision is the outcome of evaluating one inbound message.
type Decision struct {
	Escalate bool   `json:"escalate"`
	Reason   string `json:"reason,omitempty"`
}

// immediateTriggers maps keyword sets to their reason code. Any single hit
// escalates regardless of sentiment.
var immediateTriggers = []struct {
	reason   string
	keywords []string
}{
	{ReasonPricingInquiry, []string{"pricing", "price", "cost", "quote"}},
	{ReasonRefundRequest, []string{"refund", "chargeback", "dispute"}},
	{ReasonLegalIssue, []string{"lawyer", "legal", "sue", "attorney"}},
}

var humanRequestPhrases = []string{
	"speak to a human",
	"talk to a human",
	"speak to an agent",
	"talk to an agent",
	"speak to a person",
	"real person",
	"human agent",
	"representative",
	"speak to someone",
}

// humanRequestWords are standalone triggers matched on word boundaries, so
// "urgent" never hits "agent".
var humanRequestWords = []string{"agent"}

// Policy holds the tunable thresholds. Construct once at startup and share.
type Policy struct {
	SentimentThreshold    float64
	MinTurnsForSentiment  int
	KnowledgeGapThreshold int
}

// NewPolicy applies the standard defaults for any unset threshold.
func NewPolicy(sentimentThreshold float64, minTurns, gapThreshold int) *Policy {
	if sentimentThreshold == 0 {
		sentimentThreshold = -0.3
	}
	if minTurns <= 0 {
		minTurns = 2
	}
	if gapThreshold <= 0 {
		gapThreshold = 2
	}
	return &Policy{
		SentimentThreshold:    sentimentThreshold,
		MinTurnsForSentiment:  minTurns,
		KnowledgeGapThreshold: gapThreshold,
	}
}

// Decide evaluates the rules in a fixed order and returns on the first
// match. The ordering matters: keyword triggers outrank sentiment, and
// sentiment never fires on a conversation with too few turns.
func (p *Policy) Decide(messageText string, conv *conversation.Conversation) Decision {
	text := strings.ToLower(messageText)

	if reason, ok := matchImmediate(text); ok {
		return Decision{Escalate: true, Reason: reason}
	}

	for _, phrase := range humanRequestPhrases {
		if strings.Contains(text, phrase) {
			return Decision{Escalate: true, Reason: ReasonCustomerRequested}
		}
	}
	if hasAny(tokenSet(text), humanRequestWords...) {
		return Decision{Escalate: true, Reason: ReasonCustomerRequested}
	}

	if conv != nil {
		// TurnCount includes the turn under evaluation; the sentiment rule
		// counts only prior turns so a first angry message never escalates
		// on tone alone.
		if conv.TurnCount-1 >= p.MinTurnsForSentiment && conv.SentimentAvg < p.SentimentThreshold {
			return Decision{Escalate: true, Reason: ReasonNegativeSentiment}
		}
		if conv.GapCount >= p.KnowledgeGapThreshold {
			return Decision{Escalate: true, Reason: ReasonKnowledgeGap}
		}
	}

	return Decision{}
}

// ImmediateTrigger reports whether the text alone forces escalation. The
// pipeline uses this as its product-question heuristic: a message carrying
// an immediate trigger skips the knowledge search entirely.
func ImmediateTrigger(text string) bool {
	_, ok := matchImmediate(strings.ToLower(text))
	return ok
}

func matchImmediate(lowerText string) (string, bool) {
	words := tokenSet(lowerText)
	for _, trigger := range immediateTriggers {
		for _, kw := range trigger.keywords {
			if _, ok := words[kw]; ok {
				return trigger.reason, true
			}
		}
	}
	// cancel + subscription must co-occur: "cancel" alone is too noisy
	// ("cancel that request") to force a handoff.
	if hasAny(words, "cancel", "cancellation", "cancelling", "canceling") &&
		hasAny(words, "subscription", "plan", "account") {
		return ReasonCancellationRequest, true
	}
	return "", false
}

func hasAny(words map[string]struct{}, candidates ...string) bool {
	for _, c := range candidates {
		if _, ok := words[c]; ok {
			return true
		}
	}
	return false
}

func tokenSet(lowerText string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, f := range strings.FieldsFunc(lowerText, func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	}) {
		words[f] = struct{}{}
	}
	return words
}
