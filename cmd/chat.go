package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"psti_chatbot/internal/core"
)

var chatUser string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the bot in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := loadConfig()
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx := context.Background()
		a, err := buildApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		user := chatUser
		if user == "" {
			user = "cli-" + uuid.NewString()[:8]
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Chatbot Lab PSTI (user %s). Ketik \"exit\" untuk keluar.\n", user)
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			switch line {
			case "":
				continue
			case "exit", "quit", "keluar":
				return nil
			case "/reset":
				if err := a.processor.Sessions().Reset(ctx, user); err != nil {
					return err
				}
				fmt.Fprintln(out, "(sesi direset)")
				continue
			}

			reply, err := a.processor.Handle(ctx, core.Request{UserID: user, Message: line})
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, reply.Text)
			fmt.Fprintf(out, "  [%s", reply.Provenance)
			if reply.Rule != "" {
				fmt.Fprintf(out, " rule=%s", reply.Rule)
			}
			if reply.Intent != "" {
				fmt.Fprintf(out, " intent=%s %.1f%% %s", reply.Intent, reply.Confidence*100, reply.Tier)
			}
			fmt.Fprintln(out, "]")
		}
		return scanner.Err()
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "", "session id (random by default)")
}
