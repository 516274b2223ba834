package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rolobot-ai/rolobot/pkg/rolobot/assistant"
)

// newChatCmd creates the `rolobot chat` command.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant",
		Long: `Send one message to the assistant, or start an interactive session
when no message is given.

Examples:
  rolobot chat "met Anna at the fintech meetup, she does ML at Stripe"
  rolobot chat "who do I know in venture capital?"
  rolobot chat  # interactive mode`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().Int64P("user", "u", 1, "acting user id")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)
	userID, _ := cmd.Flags().GetInt64("user")

	svc, err := buildService(cfg, logger, consoleSender{})
	if err != nil {
		return err
	}
	defer svc.db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) > 0 {
		return processMessage(ctx, svc, userID, args[0])
	}

	fmt.Println("Interactive mode. Type a message, or 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := processMessage(ctx, svc, userID, line); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

// processMessage runs one turn and renders the outcome. Confirmation tokens
// are rendered as "confirm <token>" / "cancel <token>" commands, which are
// intercepted here before reaching the model — the CLI stand-in for inline
// buttons.
func processMessage(ctx context.Context, svc *service, userID int64, text string) error {
	var (
		out assistant.Outcome
		err error
	)
	switch {
	case strings.HasPrefix(text, "confirm "):
		out, err = svc.orchestrator.Confirm(ctx, userID, strings.TrimSpace(strings.TrimPrefix(text, "confirm ")))
	case strings.HasPrefix(text, "cancel "):
		out, err = svc.orchestrator.Cancel(ctx, userID, strings.TrimSpace(strings.TrimPrefix(text, "cancel ")))
	default:
		out, err = svc.orchestrator.Run(ctx, userID, text)
	}
	if err != nil {
		return err
	}
	renderOutcome(out)
	return nil
}

// renderOutcome prints one outcome variant to stdout.
func renderOutcome(out assistant.Outcome) {
	switch out.Kind {
	case assistant.OutcomeSearchResults:
		if out.Text != "" {
			fmt.Println(out.Text)
		}
		for i, r := range out.Results {
			line := fmt.Sprintf("%d. %s", i+1, r.Name)
			if r.Summary != "" {
				line += " — " + r.Summary
			}
			if r.OrgName != "" {
				line += " [" + r.OrgName + "]"
			}
			fmt.Println(line)
		}

	case assistant.OutcomeDraftPending:
		fmt.Printf("Save this contact?\n  %s\n  %s\n", out.Draft.Name, out.Draft.Summary)
		fmt.Printf("Reply 'confirm %s' or 'cancel %s' (or just say yes/no).\n", out.RequestID, out.RequestID)

	case assistant.OutcomeDeletePending:
		fmt.Printf("Delete %s?\n", out.Contact.Name)
		fmt.Printf("Reply 'confirm %s' or 'cancel %s' (or just say yes/no).\n", out.RequestID, out.RequestID)

	case assistant.OutcomeUpdatePending:
		fmt.Printf("Update %s?\n  Before: %s\n  After:  %s\n", out.Contact.Name, out.OldSummary, out.NewSummary)
		fmt.Printf("Reply 'confirm %s' or 'cancel %s' (or just say yes/no).\n", out.RequestID, out.RequestID)

	case assistant.OutcomeRecordSaved, assistant.OutcomeConfirmed, assistant.OutcomeCancelled:
		fmt.Println(out.Text)

	default:
		fmt.Println(out.Text)
	}
}

// consoleSender delivers recall nudges to stdout. Messaging transports live
// outside this binary; anything implementing recall.Sender can replace this.
type consoleSender struct{}

func (consoleSender) SendRecall(_ context.Context, userID int64, text string) error {
	fmt.Printf("[recall for user %d] %s\n", userID, text)
	return nil
}
