package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/assistant"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/rpc"
)

const (
	welcomeQuery  = "Please welcome me, and show me some available products and category."
	confirmPrompt = "Are you sure about that? Type 'y' to continue; otherwise, explain your requested changes."
)

var (
	chatRemote  string
	chatSession string
	chatUser    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive shopping session",
	Long: `Start an interactive shopping session.

The assistant greets you and lists some products. Type questions at the
prompt, or 'exit' to leave. Cart changes ask for confirmation first: type
'y' to continue, or explain what you want changed instead.

Pass --session to continue an earlier conversation.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatRemote, "remote", "", "gRPC address of a running server (default: run in-process)")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "Session id to resume (default: new session)")
	chatCmd.Flags().StringVar(&chatUser, "user", "", "User id for cart operations (default: derived from the session)")
}

// turnEngine is what the REPL needs from a local or remote assistant.
type turnEngine interface {
	Advance(ctx context.Context, sessionID, identity, text string) (*assistant.Result, error)
	Resume(ctx context.Context, sessionID string, confirmed bool, explanation string) (*assistant.Result, error)
	Snapshot(ctx context.Context, sessionID string) (*domain.Checkpoint, error)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sessionID := chatSession
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	userID := chatUser
	if userID == "" {
		userID = "cli-" + sessionID
		if len(sessionID) > 8 {
			userID = "cli-" + sessionID[:8]
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Please wait for initialization...")

	var engine turnEngine
	if chatRemote != "" {
		client, err := rpc.NewClient(rpc.ClientConfig{Address: chatRemote}, nil)
		if err != nil {
			return err
		}
		defer client.Close()
		engine = client
	} else {
		a, err := openLocal(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		engine = a.Engine
	}

	printStatus(out, "●", "Session "+sessionID, color.FgCyan)
	return repl(ctx, engine, os.Stdin, out, sessionID, userID)
}

// repl runs the interactive loop until the input ends or the user types exit.
func repl(ctx context.Context, engine turnEngine, in io.Reader, out io.Writer, sessionID, userID string) error {
	scanner := bufio.NewScanner(in)
	readLine := func(prompt string) (string, bool) {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	cp, err := engine.Snapshot(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(cp.Messages) == 0 {
		res, err := engine.Advance(ctx, sessionID, userID, welcomeQuery)
		if err != nil {
			return err
		}
		if err := confirmLoop(ctx, engine, res, readLine, out, sessionID); err != nil {
			return err
		}
	} else {
		printStatus(out, "↺", fmt.Sprintf("Resumed conversation with %d messages", len(cp.Messages)), color.FgYellow)
		if last, ok := cp.LastAssistant(); ok && last.Text() != "" {
			printReply(out, last.Text())
		}
		if cp.IsSuspended() {
			res := &assistant.Result{SessionID: cp.SessionID, State: cp.State, Pending: cp.Pending}
			if err := confirmLoop(ctx, engine, res, readLine, out, sessionID); err != nil {
				return err
			}
		}
	}

	fmt.Fprintln(out, "\nType your question below (or type 'exit' to end):")
	for {
		question, ok := readLine("\nYou: ")
		if !ok || strings.EqualFold(question, "exit") {
			fmt.Fprintln(out, "Ending session. Thank you for using the shopping assistant!")
			return nil
		}
		if question == "" {
			continue
		}

		res, err := engine.Advance(ctx, sessionID, userID, question)
		if err != nil {
			if recoverable(err) {
				printStatus(out, "✗", err.Error(), color.FgRed)
				continue
			}
			return err
		}
		if err := confirmLoop(ctx, engine, res, readLine, out, sessionID); err != nil {
			return err
		}
	}
}

// confirmLoop prints the turn's reply and keeps asking for confirmation while
// the session is suspended.
// A recoverable Resume failure leaves the call pending, so the same
// invocation is offered again.
func confirmLoop(ctx context.Context, engine turnEngine, res *assistant.Result, readLine func(string) (string, bool), out io.Writer, sessionID string) error {
	printed := false
	for {
		if !printed && res.Reply != nil && res.Reply.Text() != "" {
			printReply(out, res.Reply.Text())
		}
		printed = true
		if res.State != domain.StateSuspended || res.Pending == nil {
			return nil
		}

		printStatus(out, "?", fmt.Sprintf("%s %s", res.Pending.Name, formatArgs(res.Pending.Args)), color.FgYellow)
		answer, ok := readLine("\n" + confirmPrompt + "\n")
		if !ok {
			answer = "y"
		}

		var (
			next *assistant.Result
			err  error
		)
		if strings.EqualFold(answer, "y") {
			next, err = engine.Resume(ctx, sessionID, true, "")
		} else {
			next, err = engine.Resume(ctx, sessionID, false, answer)
		}
		if err != nil {
			if ok && recoverable(err) {
				printStatus(out, "✗", err.Error(), color.FgRed)
				continue
			}
			return err
		}
		res, printed = next, false
	}
}

func printReply(out io.Writer, text string) {
	fmt.Fprintf(out, "\n%s\n%s\n", color.New(color.FgGreen, color.Bold).Sprint("Assistant:"), text)
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "()"
	}
	parts := make([]string, 0, len(args))
	for _, k := range slices.Sorted(maps.Keys(args)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// recoverable errors end the turn but not the session.
func recoverable(err error) bool {
	return errors.Is(err, assistant.ErrDecisionUnproductive) ||
		errors.Is(err, assistant.ErrTooManyToolRounds) ||
		errdefs.IsUnavailable(err) ||
		errdefs.IsInvalidArgument(err) ||
		errors.Is(err, context.DeadlineExceeded)
}
