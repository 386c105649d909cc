package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/gallery"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity> <image|vector.json>",
	Short: "Enroll one identity from an image or a vector file",
	Long: `Enroll or replace one identity in the gallery.

A JSON or YAML file is read as a precomputed embedding ({"values": [...],
"quality": 0.9}). Any other file is sent to the embedding server and the
primary face is enrolled together with a thumbnail.

Examples:
  face-gallery enroll alice alice.jpg
  face-gallery enroll alice alice.json --remarks "badge 17"`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("remarks", "", "Free-form remarks stored with the record")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	identity, path := args[0], args[1]
	ctx := context.Background()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var opts []gallery.EnrollOption
	if remarks := mustGetString(cmd, "remarks"); remarks != "" {
		opts = append(opts, gallery.WithRemarks(remarks))
	}

	var id int64
	if isVectorFile(path) {
		entries, err := readVectorFile(path)
		if err != nil {
			return err
		}
		if len(entries) != 1 {
			return fmt.Errorf("%s holds %d vectors, use import for more than one", path, len(entries))
		}
		entry := entries[0]
		entry.Identity = identity
		id, err = a.gallery.Enroll(ctx, entry.embedding(), opts...)
		if err != nil {
			return fmt.Errorf("failed to enroll %s: %w", identity, err)
		}
	} else {
		rec, err := a.requireRecognizer()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		id, err = rec.Enroll(ctx, identity, data, opts...)
		if err != nil {
			return fmt.Errorf("failed to enroll %s: %w", identity, err)
		}
	}

	remaining, err := a.gallery.RemainingCapacity(ctx)
	if err != nil {
		return fmt.Errorf("failed to count gallery: %w", err)
	}
	fmt.Printf("Enrolled %s (id %d), remaining capacity: %d\n", identity, id, remaining)
	return nil
}
