package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/higherself-ai/higherself/internal/orchestrator"
	"github.com/higherself-ai/higherself/pkg/session"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat in the terminal",
		Long: "Opens a line-edited chat against the configured provider. " +
			"Conversations persist as sessions in the configured storage backend.",
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(ctx) }()

	completer, err := buildCompleter(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	notifier := orchestrator.NotifierFunc(func(n orchestrator.Notification) {
		fmt.Fprintf(out, "[!] %s\n", n.Message)
	})

	orch := orchestrator.New(store, buildComposer(cfg), completer, notifier)

	line := liner.NewLiner()
	defer func() { _ = line.Close() }()
	line.SetCtrlCAborts(true)

	current := store.Current()
	fmt.Fprintf(out, "Session: %s\nType a message, /help for commands, /quit to exit.\n", current.Title)

	state := session.Idle()
	for {
		input, err := line.Prompt(promptFor(state))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)

		if state.Kind != session.InteractionIdle {
			state = resolveInteraction(ctx, out, store, state, input)
			continue
		}

		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			var quit bool
			state, quit = runChatCommand(ctx, out, store, input)
			if quit {
				return nil
			}
			continue
		}

		if err := orch.Send(ctx, input); err != nil {
			if errors.Is(err, orchestrator.ErrSendInFlight) {
				fmt.Fprintln(out, "[!] Still waiting for the previous reply.")
			}
			// Provider failures already produced an apology in the
			// transcript and a notification above.
		}

		if sess := store.Current(); sess != nil && len(sess.Messages) > 0 {
			last := sess.Messages[len(sess.Messages)-1]
			if last.Role == session.RoleAssistant {
				fmt.Fprintf(out, "\n%s\n\n", last.Content)
			}
		}
	}
}

// promptFor varies the prompt with the interaction state so the user
// can tell a pending confirmation from normal input.
func promptFor(state session.InteractionState) string {
	switch state.Kind {
	case session.InteractionConfirmingDelete:
		return "delete? (y/N) "
	case session.InteractionEditing:
		return "title: "
	case session.InteractionMultiSelecting:
		return "select: "
	default:
		return "> "
	}
}

// resolveInteraction consumes one line of input for a non-idle state
// and returns the next state.
func resolveInteraction(ctx context.Context, out io.Writer, store *session.Store, state session.InteractionState, input string) session.InteractionState {
	switch state.Kind {
	case session.InteractionConfirmingDelete:
		if input == "y" || input == "yes" {
			if err := store.Delete(ctx, state.SessionID); err != nil {
				fmt.Fprintf(out, "[!] %v\n", err)
			} else {
				fmt.Fprintf(out, "Deleted. Now on: %s\n", store.Current().Title)
			}
		} else {
			fmt.Fprintln(out, "Kept.")
		}

	case session.InteractionEditing:
		if input == "" {
			fmt.Fprintln(out, "Unchanged.")
		} else if err := store.Rename(ctx, state.SessionID, input); err != nil {
			fmt.Fprintf(out, "[!] %v\n", err)
		}

	case session.InteractionMultiSelecting:
		ids := selectionIDs(out, store, input)
		if len(ids) == 0 {
			fmt.Fprintln(out, "Nothing selected.")
			break
		}
		if err := exportSessions(out, store, session.MultiSelecting(ids...)); err != nil {
			fmt.Fprintf(out, "[!] %v\n", err)
		}
	}

	return session.Idle()
}

// selectionIDs resolves space-separated /list indices to session IDs.
func selectionIDs(out io.Writer, store *session.Store, input string) []string {
	sessions := store.List()

	var ids []string
	for _, field := range strings.Fields(input) {
		var n int
		if _, err := fmt.Sscanf(field, "%d", &n); err != nil || n < 1 || n > len(sessions) {
			fmt.Fprintf(out, "[!] No such session: %s\n", field)
			continue
		}
		ids = append(ids, sessions[n-1].ID)
	}
	return ids
}

// exportSessions writes the selected sessions to a dated JSON file.
func exportSessions(out io.Writer, store *session.Store, state session.InteractionState) error {
	ids := make([]string, 0, len(state.Selected))
	for id := range state.Selected {
		ids = append(ids, id)
	}

	data, err := store.Export(ids)
	if err != nil {
		return err
	}

	name := session.ExportFilename("higherself-sessions", time.Now())
	if err := os.WriteFile(name, data, 0600); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	fmt.Fprintf(out, "Exported %d session(s) to %s\n", len(ids), name)
	return nil
}

// runChatCommand handles slash commands. Returns the next interaction
// state and whether to quit.
func runChatCommand(ctx context.Context, out io.Writer, store *session.Store, input string) (session.InteractionState, bool) {
	fields := strings.Fields(input)
	cmd, rest := fields[0], strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	switch cmd {
	case "/quit", "/exit":
		return session.Idle(), true

	case "/help":
		fmt.Fprintln(out, `Commands:
  /new                 start a new session
  /list                list sessions
  /select <n>          switch to session n from /list
  /rename [title]      rename the current session (no title: prompt)
  /delete              delete the current session (asks to confirm)
  /export              pick sessions from /list and export them
  /tag <tag>           tag the current session
  /untag <tag>         remove a tag
  /pin                 toggle pin on the current session
  /quit                exit`)

	case "/new":
		if _, err := store.Create(ctx); err != nil {
			fmt.Fprintf(out, "[!] %v\n", err)
		} else {
			fmt.Fprintln(out, "Started a new session.")
		}

	case "/list":
		for i, sess := range store.List() {
			marker := " "
			if sess.ID == store.CurrentID() {
				marker = "*"
			}
			pin := ""
			if sess.IsPinned {
				pin = " [pinned]"
			}
			fmt.Fprintf(out, "%s %2d. %s (%d messages)%s\n", marker, i+1, sess.Title, len(sess.Messages), pin)
		}

	case "/select":
		var n int
		if _, err := fmt.Sscanf(rest, "%d", &n); err != nil || n < 1 {
			fmt.Fprintln(out, "[!] Usage: /select <n>")
			break
		}
		sessions := store.List()
		if n > len(sessions) {
			fmt.Fprintln(out, "[!] No such session.")
			break
		}
		if err := store.Select(ctx, sessions[n-1].ID); err != nil {
			fmt.Fprintf(out, "[!] %v\n", err)
			break
		}
		fmt.Fprintf(out, "Switched to: %s\n", sessions[n-1].Title)

	case "/rename":
		if rest == "" {
			return session.Editing(store.CurrentID()), false
		}
		if err := store.Rename(ctx, store.CurrentID(), rest); err != nil {
			fmt.Fprintf(out, "[!] %v\n", err)
		}

	case "/delete":
		return session.ConfirmingDelete(store.CurrentID()), false

	case "/export":
		fmt.Fprintln(out, "Enter session numbers from /list, separated by spaces.")
		return session.MultiSelecting(), false

	case "/tag":
		if err := store.AddTag(ctx, store.CurrentID(), rest); err != nil {
			fmt.Fprintf(out, "[!] %v\n", err)
		}

	case "/untag":
		if err := store.RemoveTag(ctx, store.CurrentID(), rest); err != nil {
			fmt.Fprintf(out, "[!] %v\n", err)
		}

	case "/pin":
		if err := store.TogglePin(ctx, store.CurrentID()); err != nil {
			fmt.Fprintf(out, "[!] %v\n", err)
		}

	default:
		fmt.Fprintf(out, "[!] Unknown command %s (try /help)\n", cmd)
	}
	return session.Idle(), false
}
