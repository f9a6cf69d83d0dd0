// Package prompt builds the ordered message list sent to the
// completion provider.
package prompt

import (
	"github.com/higherself-ai/higherself/internal/llm/provider"
)

// DefaultPersona is the system instruction prepended to every
// conversation.
const DefaultPersona = "You are a helpful assistant named Higher Self. " +
	"You provide insightful, thoughtful responses to help users with " +
	"their questions and concerns."

// firstMessageHint is appended to the persona on the opening exchange.
const firstMessageHint = " This is the start of a new conversation."

// Composer assembles provider input from a persona, prior history,
// and the new user message. Compose is pure: identical inputs yield
// identical output.
type Composer struct {
	persona string

	// tokenBudget caps the estimated token count of the composed
	// history. Zero disables clipping.
	tokenBudget int
}

// Option configures a Composer.
type Option func(*Composer)

// WithPersona overrides the default system persona.
func WithPersona(persona string) Option {
	return func(c *Composer) {
		if persona != "" {
			c.persona = persona
		}
	}
}

// WithTokenBudget enables history clipping at the given estimated
// token count.
func WithTokenBudget(budget int) Option {
	return func(c *Composer) {
		c.tokenBudget = budget
	}
}

// NewComposer creates a Composer with the default persona.
func NewComposer(opts ...Option) *Composer {
	c := &Composer{persona: DefaultPersona}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose returns the ordered provider messages: exactly one system
// entry, the history verbatim, and the new user message last. When a
// token budget is set, the oldest history entries are dropped first;
// the system entry and the new user message are always kept.
func (c *Composer) Compose(userMessage string, history []provider.Message) []provider.Message {
	persona := c.persona
	if len(history) == 0 {
		persona += firstMessageHint
	}

	if c.tokenBudget > 0 {
		history = clipHistory(history, c.tokenBudget, persona, userMessage)
	}

	messages := make([]provider.Message, 0, len(history)+2)
	messages = append(messages, provider.Message{Role: "system", Content: persona})
	messages = append(messages, history...)
	messages = append(messages, provider.Message{Role: "user", Content: userMessage})
	return messages
}

// clipHistory drops the oldest history entries until the estimated
// total fits the budget. Relative order is preserved and the newest
// user message is never dropped.
func clipHistory(history []provider.Message, budget int, persona, userMessage string) []provider.Message {
	fixed := EstimateTokensSimple(persona) + EstimateTokensSimple(userMessage)

	total := fixed
	for _, m := range history {
		total += EstimateTokensSimple(m.Content)
	}

	start := 0
	for start < len(history) && total > budget {
		total -= EstimateTokensSimple(history[start].Content)
		start++
	}
	return history[start:]
}
