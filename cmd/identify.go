package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/matcher"
	"github.com/kozaktomas/face-gallery/internal/recognition"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image|vector.json> [frame...]",
	Short: "Match a face against the gallery",
	Long: `Match the primary face of an image, or a precomputed embedding, against
the enabled gallery records and print the best candidates.

Several images are treated as consecutive frames of one camera. With --track
the primary face keeps its tracking id while it stays in place between frames.

Examples:
  face-gallery identify visitor.jpg
  face-gallery identify query.json --top 10
  face-gallery identify frames/*.jpg --track`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().Int("top", 5, "Number of candidates to show")
	identifyCmd.Flags().Bool("track", false, "Assign tracking ids across frames")
	identifyCmd.Flags().Float64("track-iou", recognition.DefaultTrackingIoU, "Minimum overlap that continues a track")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	top := mustGetInt(cmd, "top")
	if top <= 0 {
		return errors.New("--top must be positive")
	}
	ctx := context.Background()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 && isVectorFile(args[0]) {
		entries, err := readVectorFile(args[0])
		if err != nil {
			return err
		}
		if len(entries) != 1 {
			return fmt.Errorf("%s holds %d vectors, expected one query", args[0], len(entries))
		}
		candidates, err := a.gallery.Candidates(ctx)
		if err != nil {
			return fmt.Errorf("failed to load gallery: %w", err)
		}
		results, err := a.comparator.TopMatches(entries[0].embedding(), candidates, top)
		if err != nil {
			return fmt.Errorf("failed to match: %w", err)
		}
		printResults(results, a.comparator.Threshold())
		return nil
	}

	opts := []recognition.Option{recognition.WithTopK(top)}
	if mustGetBool(cmd, "track") {
		iou := mustGetFloat64(cmd, "track-iou")
		if iou <= 0 || iou > 1 {
			return errors.New("--track-iou must be in (0, 1]")
		}
		opts = append(opts, recognition.WithTracker(recognition.NewTracker(iou)))
	}
	rec, err := a.requireRecognizer(opts...)
	if err != nil {
		return err
	}

	for _, path := range args {
		if len(args) > 1 {
			fmt.Printf("== %s\n", filepath.Base(path))
		}
		id, err := identifyImage(ctx, rec, path)
		if errors.Is(err, recognition.ErrNoFaceDetected) && len(args) > 1 {
			fmt.Println("No face detected.")
			continue
		}
		if err != nil {
			return err
		}
		fmt.Printf("Faces: %d, primary at (%.0f,%.0f)-(%.0f,%.0f), confidence %.2f", id.Faces,
			id.Detection.Region.X1, id.Detection.Region.Y1, id.Detection.Region.X2, id.Detection.Region.Y2,
			id.Detection.Confidence)
		if id.Detection.TrackingID > 0 {
			fmt.Printf(", track %d", id.Detection.TrackingID)
		}
		fmt.Println()
		printResults(id.Top, a.comparator.Threshold())
	}
	return nil
}

func identifyImage(ctx context.Context, rec *recognition.Recognizer, path string) (recognition.Identification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return recognition.Identification{}, fmt.Errorf("failed to read image: %w", err)
	}
	id, err := rec.Identify(ctx, data)
	if err != nil {
		return recognition.Identification{}, fmt.Errorf("failed to identify %s: %w", filepath.Base(path), err)
	}
	return id, nil
}

func printResults(results []matcher.Result, threshold float64) {
	if len(results) == 0 {
		fmt.Println("Gallery is empty.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tSIMILARITY\tRAW\tWEIGHT\tMATCH")
	fmt.Fprintln(w, "--------\t----------\t---\t------\t-----")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.3f\t%v\n", r.Identity, r.Similarity, r.RawSimilarity, r.QualityWeight, r.IsMatch)
	}
	w.Flush()

	if best := results[0]; best.IsMatch {
		fmt.Printf("\nMatched: %s (threshold %.2f)\n", best.Identity, threshold)
	} else {
		fmt.Printf("\nNo match above threshold %.2f\n", threshold)
	}
}
