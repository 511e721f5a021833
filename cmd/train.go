package cmd

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"psti_chatbot/internal/classifier"
	"psti_chatbot/internal/logger"
	"psti_chatbot/internal/response"
)

var (
	trainEpochs int
	trainRate   float64
	evalSamples string
	evalSetBest bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the intent classifier from the intents file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := loadConfig()
		if err != nil {
			return err
		}
		defer closer.Close()

		catalog, err := response.LoadCatalog(cfg.Data.Intents)
		if err != nil {
			return err
		}
		tc := classifier.DefaultTrainConfig()
		tc.Normalizer = cfg.Normalizer.Options()
		if trainEpochs > 0 {
			tc.Epochs = trainEpochs
		}
		if trainRate > 0 {
			tc.LearningRate = trainRate
		}

		bundle, report, err := classifier.Train(patternSamples(catalog), catalog.Labels(), tc)
		if err != nil {
			return fmt.Errorf("training failed: %w", err)
		}
		if err := bundle.Save(cfg.Model.Dir); err != nil {
			return err
		}
		logger.Info().Str("dir", cfg.Model.Dir).Str("stamp", bundle.Stamp).Int("samples", report.Samples).
			Int("vocab", report.VocabSize).Float64("accuracy", report.Accuracy).Float64("loss", report.Loss).
			Msg("model saved")
		return printJSON(cmd, report)
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score the trained model and suggest a confidence threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := loadConfig()
		if err != nil {
			return err
		}
		defer closer.Close()

		clf, err := classifier.Load(cfg.Model.Dir)
		if err != nil {
			return err
		}

		var samples []classifier.Sample
		if evalSamples != "" {
			data, err := os.ReadFile(evalSamples)
			if err != nil {
				return fmt.Errorf("failed to read samples: %w", err)
			}
			if err := sonic.Unmarshal(data, &samples); err != nil {
				return fmt.Errorf("failed to parse samples %s: %w", evalSamples, err)
			}
		} else {
			catalog, err := response.LoadCatalog(cfg.Data.Intents)
			if err != nil {
				return err
			}
			samples = patternSamples(catalog)
		}

		report, err := classifier.Evaluate(clf, samples)
		if err != nil {
			return err
		}
		if best, ok := report.BestThreshold(); ok {
			logger.Info().Float64("threshold", best.Threshold).Float64("accuracy", best.Accuracy).
				Float64("coverage", best.Coverage).Float64("score", best.Score).Msg("suggested high-confidence threshold")
		}
		if evalSetBest {
			best, _ := report.BestThreshold()
			return printJSON(cmd, best)
		}
		return printJSON(cmd, report)
	},
}

func init() {
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", 0, "training epochs (default from trainer)")
	trainCmd.Flags().Float64Var(&trainRate, "learning-rate", 0, "learning rate (default from trainer)")
	evaluateCmd.Flags().StringVar(&evalSamples, "samples", "", "JSON file of {text,label} samples (default: intent patterns)")
	evaluateCmd.Flags().BoolVar(&evalSetBest, "best-only", false, "print only the suggested threshold point")
}

// patternSamples turns every intent pattern into a labelled sample.
func patternSamples(c *response.Catalog) []classifier.Sample {
	var out []classifier.Sample
	for _, in := range c.Intents() {
		for _, p := range in.Patterns {
			out = append(out, classifier.Sample{Text: p, Label: in.Tag})
		}
	}
	return out
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
