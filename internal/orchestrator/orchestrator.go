// Package orchestrator coordinates a single user-initiated send:
// append the user message, call the completion client, append the
// result or an apology, and surface classified failures out of band.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/higherself-ai/higherself/internal/llm/provider"
	"github.com/higherself-ai/higherself/pkg/session"
)

// Sentinel errors for rejected sends.
var (
	// ErrEmptyMessage is returned when the content is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSendInFlight is returned when a send is already running for
	// the session. The session log is left untouched.
	ErrSendInFlight = errors.New("send already in flight for session")
)

// apologyMessage is the transcript-visible text written in place of an
// assistant reply when the completion fails. Raw provider errors are
// never shown.
const apologyMessage = "Sorry, there was an error processing your request. Please try again."

// Completer is the completion client contract consumed by the
// orchestrator.
type Completer interface {
	Complete(ctx context.Context, messages []provider.Message) (string, error)
}

// Composer builds provider input from the new message and prior history.
type Composer interface {
	Compose(userMessage string, history []provider.Message) []provider.Message
}

// Notification carries a user-facing error message alongside its
// internal code, for transient display (toast-equivalent).
type Notification struct {
	Code    string
	Message string
}

// Notifier receives transient notifications.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notification) { f(n) }

// Orchestrator serializes sends per session. At most one send is
// outstanding per session at a time.
type Orchestrator struct {
	store    *session.Store
	composer Composer
	client   Completer
	notifier Notifier

	mu   sync.Mutex
	busy map[string]bool
}

// New creates an orchestrator. A nil notifier drops notifications.
func New(store *session.Store, composer Composer, client Completer, notifier Notifier) *Orchestrator {
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}
	return &Orchestrator{
		store:    store,
		composer: composer,
		client:   client,
		notifier: notifier,
		busy:     make(map[string]bool),
	}
}

// IsBusy reports whether a send is in flight for the session.
func (o *Orchestrator) IsBusy(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy[sessionID]
}

// Send runs one user-initiated send against the current session.
// Empty content and concurrent sends on the same session are rejected
// without touching the session log. The busy flag is always released
// exactly once, on every return path.
func (o *Orchestrator) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	current := o.store.Current()
	if current == nil {
		created, err := o.store.Create(ctx)
		if err != nil {
			return err
		}
		current = created
	}
	sessionID := current.ID

	o.mu.Lock()
	if o.busy[sessionID] {
		o.mu.Unlock()
		return ErrSendInFlight
	}
	o.busy[sessionID] = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.busy, sessionID)
		o.mu.Unlock()
	}()

	// Re-read under the busy flag so the history reflects every send
	// that finished before this one was admitted.
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return err
	}

	// History is the log prior to the message being sent.
	history := make([]provider.Message, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		history = append(history, provider.Message{Role: string(m.Role), Content: m.Content})
	}

	userMsg := session.NewMessage(session.RoleUser, content)
	if err := o.store.AppendMessage(ctx, sessionID, userMsg); err != nil {
		return err
	}

	messages := o.composer.Compose(content, history)

	text, err := o.client.Complete(ctx, messages)
	if err != nil {
		// The apology goes into the transcript; the classified error
		// goes to the notification channel. A failed apology append
		// (e.g. session deleted mid-send) must not mask the send error.
		apology := session.NewMessage(session.RoleAssistant, apologyMessage)
		if appendErr := o.store.AppendMessage(ctx, sessionID, apology); appendErr != nil {
			log.Printf("append apology message: %v", appendErr)
		}

		pe := provider.AsProviderError("provider", err)
		o.notifier.Notify(Notification{
			Code:    pe.Code,
			Message: userFacingMessage(pe.Code),
		})
		return pe
	}

	assistantMsg := session.NewMessage(session.RoleAssistant, text)
	if err := o.store.AppendMessage(ctx, sessionID, assistantMsg); err != nil {
		return err
	}

	return nil
}

// userFacingMessage maps an internal error code to the text shown in
// transient notifications. Distinct from the code itself and free of
// provider payloads.
func userFacingMessage(code string) string {
	switch code {
	case provider.ErrorCodeRateLimit:
		return "The assistant is experiencing high demand right now. Please try again in a moment."
	case provider.ErrorCodeAuthentication:
		return "The assistant is not configured correctly. Please contact the administrator."
	case provider.ErrorCodeServerError, provider.ErrorCodeMalformedResponse:
		return "The assistant is having technical difficulties. Please try again later."
	case provider.ErrorCodeTimeout:
		return "The assistant took too long to respond. Please try again."
	default:
		return "Something went wrong while contacting the assistant. Please try again."
	}
}
