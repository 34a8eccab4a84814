package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"switchboard-sdk/pkg/types"
)

func sendCmd(c *cli) *cobra.Command {
	var (
		sessionID  string
		msgType    string
		msgContext string
		toUser     string
		content    string
		text       string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Join a session, send one message and leave",
		Example: `  switchboard-client send -u alice -r student --session S1 --type instructor_inbox --text "I'm stuck"
  switchboard-client send -u t1 -r instructor --session S1 --type request --to alice --context code --content '{"text":"show me"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := types.ParseMessageType(msgType)
			if err != nil {
				return err
			}
			body := map[string]any{}
			if content != "" {
				if err := json.Unmarshal([]byte(content), &body); err != nil {
					return fmt.Errorf("--content must be a JSON object: %w", err)
				}
			}
			if text != "" {
				body["text"] = text
			}

			cl, err := c.newClient()
			if err != nil {
				return err
			}
			if err := cl.Connect(cmd.Context(), sessionID); err != nil {
				return err
			}
			defer cl.Disconnect()

			if err := cl.SendMessage(cmd.Context(), t, msgContext, body, toUser); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s message to session %s\n", t, sessionID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&sessionID, "session", "", "session ID")
	f.StringVarP(&msgType, "type", "t", "", "message type")
	f.StringVarP(&msgContext, "context", "c", types.DefaultContext, "message context")
	f.StringVar(&toUser, "to", "", "recipient for direct messages")
	f.StringVar(&content, "content", "", "content as a JSON object")
	f.StringVar(&text, "text", "", "shorthand for a text field in the content")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
