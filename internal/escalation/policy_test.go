package escalation

import (
	"testing"

	"github.com/deskwing/deskwing/internal/conversation"
)

func defaultPolicy() *Policy {
	return NewPolicy(-0.3, 2, 2)
}

func TestDecideImmediateKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"pricing", "What is the pricing for the enterprise tier?", ReasonPricingInquiry},
		{"cost", "how much does this cost", ReasonPricingInquiry},
		{"quote", "Can you send me a quote?", ReasonPricingInquiry},
		{"refund", "I want a refund", ReasonRefundRequest},
		{"chargeback", "I will file a chargeback with my bank", ReasonRefundRequest},
		{"refund shouting", "This is TERRIBLE! REFUND NOW!", ReasonRefundRequest},
		{"lawyer", "my lawyer will be in touch", ReasonLegalIssue},
		{"sue", "I will sue you", ReasonLegalIssue},
		{"cancel subscription", "please cancel my subscription", ReasonCancellationRequest},
		{"cancel plan", "I'd like to cancel this plan", ReasonCancellationRequest},
	}
	p := defaultPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// keyword triggers fire even on a fresh, positive conversation
			conv := &conversation.Conversation{SentimentAvg: 0.9, TurnCount: 0}
			got := p.Decide(tt.text, conv)
			if !got.Escalate {
				t.Fatalf("Decide(%q) did not escalate", tt.text)
			}
			if got.Reason != tt.reason {
				t.Errorf("Decide(%q) reason = %q, want %q", tt.text, got.Reason, tt.reason)
			}
		})
	}
}

func TestDecideCancelAloneDoesNotEscalate(t *testing.T) {
	t.Parallel()

	got := defaultPolicy().Decide("please cancel that request", nil)
	if got.Escalate {
		t.Errorf("bare cancel should not escalate, got reason %q", got.Reason)
	}
}

func TestDecideHumanRequest(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"I want to speak to a human",
		"let me talk to an agent please",
		"can I get a representative",
		"I need an agent",
		"can I talk to your agent please",
	} {
		got := defaultPolicy().Decide(text, nil)
		if !got.Escalate || got.Reason != ReasonCustomerRequested {
			t.Errorf("Decide(%q) = %+v, want customer_requested", text, got)
		}
	}
}

func TestDecideUrgentIsNotAgent(t *testing.T) {
	t.Parallel()

	got := defaultPolicy().Decide("this is urgent, the export is stuck", nil)
	if got.Escalate {
		t.Errorf("urgent alone should not escalate, got %+v", got)
	}
}

func TestDecideSustainedNegativeSentiment(t *testing.T) {
	t.Parallel()

	p := defaultPolicy()

	conv := &conversation.Conversation{SentimentAvg: -0.8, TurnCount: 3}
	got := p.Decide("nothing works anymore", conv)
	if !got.Escalate || got.Reason != ReasonNegativeSentiment {
		t.Errorf("sustained negative: got %+v", got)
	}
}

func TestDecideSingleNegativeTurnDoesNotEscalate(t *testing.T) {
	t.Parallel()

	for _, turns := range []int{1, 2} {
		conv := &conversation.Conversation{SentimentAvg: -1.0, TurnCount: turns}
		got := defaultPolicy().Decide("this is horrible", conv)
		if got.Escalate {
			t.Errorf("turn count %d must not escalate on sentiment, got %+v", turns, got)
		}
	}
}

func TestDecideKnowledgeGap(t *testing.T) {
	t.Parallel()

	conv := &conversation.Conversation{SentimentAvg: 0.1, TurnCount: 4, GapCount: 2}
	got := defaultPolicy().Decide("how do I frobnicate the widget", conv)
	if !got.Escalate || got.Reason != ReasonKnowledgeGap {
		t.Errorf("two empty searches should escalate: got %+v", got)
	}

	conv.GapCount = 1
	got = defaultPolicy().Decide("how do I frobnicate the widget", conv)
	if got.Escalate {
		t.Errorf("single empty search must not escalate, got %+v", got)
	}
}

func TestDecideKeywordOutranksEverything(t *testing.T) {
	t.Parallel()

	// pricing should win even when sentiment and gap rules also apply
	conv := &conversation.Conversation{SentimentAvg: -0.9, TurnCount: 5, GapCount: 3}
	got := defaultPolicy().Decide("what does the premium pricing look like", conv)
	if got.Reason != ReasonPricingInquiry {
		t.Errorf("expected pricing_inquiry to win, got %+v", got)
	}
}

func TestDecideNilConversation(t *testing.T) {
	t.Parallel()

	got := defaultPolicy().Decide("how do I add team members?", nil)
	if got.Escalate {
		t.Errorf("neutral question should not escalate: %+v", got)
	}
}

func TestImmediateTrigger(t *testing.T) {
	t.Parallel()

	if !ImmediateTrigger("REFUND NOW") {
		t.Error("refund should be an immediate trigger")
	}
	if ImmediateTrigger("how do I add team members?") {
		t.Error("product question should not be an immediate trigger")
	}
}
