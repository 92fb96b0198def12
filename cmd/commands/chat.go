package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// NewChatCommand returns the chat subcommand.
func NewChatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Talk to Tally through the gateway",
		ArgsUsage: "[message]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway",
				Usage: "Gateway base URL",
				Value: "http://127.0.0.1:18520",
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "User id sent as X-User-ID (ignored when --token is set)",
				Value:   "local",
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "Bearer token for authenticated gateways",
			},
			&cli.StringFlag{
				Name:  "conversation",
				Usage: "Conversation id to resume (empty = new conversation)",
			},
		},
		Action: runChat,
	}
}

type chatReply struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
	Status         string `json:"status"`
	Error          string `json:"error"`
}

func runChat(ctx context.Context, cmd *cli.Command) error {
	conversationID := cmd.String("conversation")

	// Single message mode
	if msg := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " ")); msg != "" {
		reply, err := sendChat(ctx, cmd, conversationID, msg)
		if err != nil {
			return err
		}
		fmt.Println(reply.Reply)
		return nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("usage: tally chat <message>")
	}

	// Interactive loop
	fmt.Println("Talking to Tally. Empty line or Ctrl-D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}

		reply, err := sendChat(ctx, cmd, conversationID, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		conversationID = reply.ConversationID
		fmt.Println(reply.Reply)
	}
}

func sendChat(ctx context.Context, cmd *cli.Command, conversationID, content string) (*chatReply, error) {
	body, err := json.Marshal(map[string]string{
		"conversation_id": conversationID,
		"content":         content,
	})
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cmd.String("gateway")+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := cmd.String("token"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Set("X-User-ID", cmd.String("user"))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach gateway: %w", err)
	}
	defer resp.Body.Close()

	var reply chatReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if reply.Error != "" {
			return nil, fmt.Errorf("gateway: %s", reply.Error)
		}
		return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return &reply, nil
}
