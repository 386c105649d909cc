package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/embedding"
)

var thresholdCmd = &cobra.Command{
	Use:   "threshold <samples.json|samples.yaml>",
	Short: "Propose a per-identity match threshold",
	Long: `Propose a match threshold for one identity from several samples of it.

The proposal is the mean of the pairwise similarities plus two standard
deviations, never below the configured threshold and never above 0.95.`,
	Args: cobra.ExactArgs(1),
	RunE: runThreshold,
}

func init() {
	rootCmd.AddCommand(thresholdCmd)
}

func runThreshold(cmd *cobra.Command, args []string) error {
	entries, err := readVectorFile(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(context.Background(), cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	samples := make([]embedding.Embedding, len(entries))
	for i, e := range entries {
		samples[i] = e.embedding()
	}

	fmt.Printf("Samples:    %d\n", len(samples))
	fmt.Printf("Configured: %.4f\n", a.comparator.Threshold())
	fmt.Printf("Proposed:   %.4f\n", a.comparator.DynamicThreshold(samples))
	return nil
}
