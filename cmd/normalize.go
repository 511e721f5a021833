package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"psti_chatbot/internal/nlp"
)

var normalizeRaw bool

var normalizeCmd = &cobra.Command{
	Use:   "normalize [text...]",
	Short: "Show what the normalizer does to a message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := loadConfig()
		if err != nil {
			return err
		}
		defer closer.Close()

		opts := cfg.Normalizer.Options()
		if normalizeRaw {
			opts = nlp.RuleOptions()
		}
		stats := nlp.NewNormalizer(opts).Stats(strings.Join(args, " "))
		if len(stats.SlangWords) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "slang: %s\n", strings.Join(stats.SlangWords, ", "))
		}
		return printJSON(cmd, stats)
	},
}

func init() {
	normalizeCmd.Flags().BoolVar(&normalizeRaw, "rules", false, "use the knowledge-rule profile instead of the model profile")
}
