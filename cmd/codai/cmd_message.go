package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/router"
)

// newMessageCmd creates the "codai message" subcommand.
func newMessageCmd(flags *globalFlags) *cobra.Command {
	var (
		agentID        string
		conversationID string
		timeout        time.Duration
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "message <text>",
		Short: "Send a request and wait for the reply",
		Long:  "Routes the text to an agent (the default agent unless --agent is set),\nwaits for the task to finish and prints the reply.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, _, closeApp, err := openApp(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp()

			h, err := app.SubmitMessage(ctx, strings.Join(args, " "), func(o *router.MessageOptions) {
				o.AgentID = agentID
				o.ConversationID = conversationID
			})
			if err != nil {
				return err
			}

			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			task, err := h.Wait(waitCtx)
			if err != nil {
				return fmt.Errorf("wait for task %s: %w", h.ID, err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(task)
			}

			if task.Status != core.TaskCompleted {
				return fmt.Errorf("task %s %s: %s", task.ID, task.Status, task.Error)
			}

			fmt.Fprintln(out, router.Reply(task))
			return nil
		},
	}

	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "target agent id")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "maximum time to wait for the reply")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the finished task as JSON")

	return cmd
}
