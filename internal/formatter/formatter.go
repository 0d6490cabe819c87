// Package formatter renders a reply for delivery on a specific channel.
package formatter

import (
	"strings"
	"unicode/utf8"
)

// Channel names accepted by Format. Unknown channels fall back to the web
// form treatment.
const (
	ChannelEmail   = "email"
	ChannelChat    = "chat"
	ChannelWebForm = "web_form"
)

const (
	emailSalutation = "Hello,"
	emailSignature  = "Best regards,\nThe Support Team"

	continuationNotice = "\n\n(continued in a follow-up message)"
	chatEllipsis       = "..."
)

// fallbackApologies cover empty or malformed input per channel. Format
// never returns an empty string.
var fallbackApologies = map[string]string{
	ChannelEmail:   "Hello,\n\nWe're sorry, something went wrong while preparing our reply. A support agent will follow up with you shortly.\n\nBest regards,\nThe Support Team",
	ChannelChat:    "sorry, something went wrong on our side. an agent will follow up shortly.",
	ChannelWebForm: "We're sorry, something went wrong while preparing our reply. A support agent will follow up with you shortly.",
}

// formalOpeners are replaced with a casual greeting on chat.
var formalOpeners = []string{
	"Dear Customer,",
	"Dear Customer",
	"Dear Sir or Madam,",
	"Dear Sir or Madam",
	"To Whom It May Concern,",
	"To Whom It May Concern",
}

// Formatter applies per-channel budgets. Zero values take the defaults.
type Formatter struct {
	ChatCharBudget    int
	EmailWordBudget   int
	WebFormWordBudget int
}

// New builds a Formatter, applying defaults for unset budgets.
func New(chatChars, emailWords, webFormWords int) *Formatter {
	if chatChars <= 0 {
		chatChars = 300
	}
	if emailWords <= 0 {
		emailWords = 500
	}
	if webFormWords <= 0 {
		webFormWords = 300
	}
	return &Formatter{
		ChatCharBudget:    chatChars,
		EmailWordBudget:   emailWords,
		WebFormWordBudget: webFormWords,
	}
}

// Format renders reply for the given channel. It is total: any input,
// including the empty string, yields a usable customer-facing message.
func (f *Formatter) Format(reply, channel string) string {
	body := strings.TrimSpace(reply)
	if body == "" {
		return f.Fallback(channel)
	}

	switch channel {
	case ChannelEmail:
		return f.formatEmail(body)
	case ChannelChat:
		return f.formatChat(body)
	default:
		return f.formatWebForm(body)
	}
}

// Fallback returns the channel's apology template.
func (f *Formatter) Fallback(channel string) string {
	if msg, ok := fallbackApologies[channel]; ok {
		return msg
	}
	return fallbackApologies[ChannelWebForm]
}

func (f *Formatter) formatEmail(body string) string {
	body = truncateWords(body, f.EmailWordBudget)
	if strings.HasPrefix(body, emailSalutation) || hasFormalOpener(body) {
		return body + "\n\n" + emailSignature
	}
	return emailSalutation + "\n\n" + body + "\n\n" + emailSignature
}

func (f *Formatter) formatChat(body string) string {
	for _, opener := range formalOpeners {
		if strings.HasPrefix(body, opener) {
			body = "hi there! " + strings.TrimSpace(strings.TrimPrefix(body, opener))
			break
		}
	}
	body = strings.Join(strings.Fields(body), " ")
	if len(body) <= f.ChatCharBudget {
		return body
	}

	// Budgets smaller than the ellipsis floor at the ellipsis alone.
	limit := f.ChatCharBudget - len(chatEllipsis)
	if limit < 0 {
		limit = 0
	}
	// Never split a multibyte rune at the cut point.
	for limit > 0 && !utf8.RuneStart(body[limit]) {
		limit--
	}
	cut := body[:limit]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + chatEllipsis
}

func (f *Formatter) formatWebForm(body string) string {
	return truncateWords(body, f.WebFormWordBudget)
}

func hasFormalOpener(body string) bool {
	for _, opener := range formalOpeners {
		if strings.HasPrefix(body, opener) {
			return true
		}
	}
	return false
}

// truncateWords cuts text to at most budget words, preferring the last
// sentence boundary inside the budget, and appends a continuation notice
// when anything was dropped.
func truncateWords(text string, budget int) string {
	words := strings.Fields(text)
	if len(words) <= budget {
		return text
	}

	cut := strings.Join(words[:budget], " ")
	if idx := lastSentenceEnd(cut); idx > 0 {
		cut = cut[:idx+1]
	}
	return cut + continuationNotice
}

func lastSentenceEnd(text string) int {
	for i := len(text) - 1; i >= 0; i-- {
		switch text[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}
