package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/recognition"
)

var importCmd = &cobra.Command{
	Use:   "import <file.yaml|file.json|image-dir>",
	Short: "Enroll many identities at once",
	Long: `Enroll many identities at once.

A JSON or YAML file holds a list of {identity, values, quality, remarks}
entries. They are enrolled in batches; each batch is all-or-nothing and is
rejected when it would exceed the gallery capacity.

A directory is scanned for images. Every image is enrolled under its file
name without extension, so alice.jpg becomes "alice". Images require
EMBEDDING_URL.

Examples:
  # Import precomputed embeddings in batches of 200
  face-gallery import staff.yaml --batch-size 200

  # Evict the oldest records first so that the import fits
  face-gallery import staff.json --make-room

  # Enroll a directory of portraits with 3 concurrent workers
  face-gallery import ./portraits --concurrency 3`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Int("batch-size", 100, "Number of vectors per batch")
	importCmd.Flags().Int("concurrency", 4, "Number of parallel workers for images")
	importCmd.Flags().Bool("make-room", false, "Evict the oldest records so that the import fits")
}

func newImportBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("faces"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx := context.Background()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if info.IsDir() {
		return importImages(ctx, cmd, a, path)
	}
	return importVectors(ctx, cmd, a, path)
}

// makeRoom evicts the oldest records so that n more identities fit.
func makeRoom(ctx context.Context, a *app, n int) error {
	target := max(0, a.gallery.Capacity()-n)
	evicted, err := a.gallery.EvictOldest(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to evict: %w", err)
	}
	if evicted > 0 {
		fmt.Printf("Evicted %d oldest records\n", evicted)
	}
	return nil
}

func importVectors(ctx context.Context, cmd *cobra.Command, a *app, path string) error {
	batchSize := mustGetInt(cmd, "batch-size")
	if batchSize <= 0 {
		return errors.New("--batch-size must be positive")
	}

	entries, err := readVectorFile(path)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Nothing to import.")
		return nil
	}
	fmt.Printf("Vectors to import: %d\n", len(entries))

	if mustGetBool(cmd, "make-room") {
		if err := makeRoom(ctx, a, len(entries)); err != nil {
			return err
		}
	}

	bar := newImportBar(len(entries), "Enrolling")
	enrolled := 0
	for start := 0; start < len(entries); start += batchSize {
		end := min(start+batchSize, len(entries))
		chunk := entries[start:end:end]
		items := make([]gallery.Enrollment, len(chunk))
		for i, e := range chunk {
			items[i] = gallery.Enrollment{Embedding: e.embedding(), Remarks: e.Remarks}
		}
		if _, err := a.gallery.EnrollBatch(ctx, items); err != nil {
			_ = bar.Finish()
			fmt.Println()
			return fmt.Errorf("batch starting at %s failed after %d enrolled: %w", chunk[0].Identity, enrolled, err)
		}
		enrolled += len(chunk)
		_ = bar.Add(len(chunk))
	}
	fmt.Printf("\nEnrolled %d identities\n", enrolled)
	return nil
}

// imageIdentity derives the identity from an image file name.
func imageIdentity(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

func importImages(ctx context.Context, cmd *cobra.Command, a *app, dir string) error {
	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency <= 0 {
		return errors.New("--concurrency must be positive")
	}
	rec, err := a.requireRecognizer()
	if err != nil {
		return err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var images []string
	for _, e := range dirEntries {
		if !e.IsDir() && isImageFile(e.Name()) {
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	if len(images) == 0 {
		fmt.Println("No images found.")
		return nil
	}
	fmt.Printf("Images to import: %d\n", len(images))

	if mustGetBool(cmd, "make-room") {
		if err := makeRoom(ctx, a, len(images)); err != nil {
			return err
		}
	}

	bar := newImportBar(len(images), "Enrolling faces")
	var (
		successCount int
		failures     []string
		mu           sync.Mutex
		wg           sync.WaitGroup
	)
	sem := make(chan struct{}, concurrency)

	for _, path := range images {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			err := enrollImage(ctx, rec, path)

			mu.Lock()
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			} else {
				successCount++
			}
			mu.Unlock()
			_ = bar.Add(1)
		}(path)
	}
	wg.Wait()

	fmt.Printf("\nEnrolled: %d, failed: %d\n", successCount, len(failures))
	for _, f := range failures {
		fmt.Printf("  %s\n", f)
	}
	return nil
}

func enrollImage(ctx context.Context, rec *recognition.Recognizer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = rec.Enroll(ctx, imageIdentity(path), data)
	return err
}
