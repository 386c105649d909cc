package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/gallery"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect and manage enrolled identities",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled identities, newest first",
	Args:  cobra.NoArgs,
	RunE:  runGalleryList,
}

var gallerySearchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Search identities and remarks, including disabled records",
	Long: `Search identities and remarks. Matching ignores case, diacritics and
dashes, so "jiri novak" finds "Jiří Novák".`,
	Args: cobra.ExactArgs(1),
	RunE: runGallerySearch,
}

var galleryDeleteCmd = &cobra.Command{
	Use:   "delete <identity>",
	Short: "Delete an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryDelete,
}

var galleryEnableCmd = &cobra.Command{
	Use:   "enable <identity>",
	Short: "Enable an identity for matching",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGallerySetEnabled(cmd, args[0], true)
	},
}

var galleryDisableCmd = &cobra.Command{
	Use:   "disable <identity>",
	Short: "Exclude an identity from matching without deleting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGallerySetEnabled(cmd, args[0], false)
	},
}

var galleryEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Delete the oldest enabled identities",
	Long: `Delete the oldest enabled identities, by enrollment time, until at most
--target remain.`,
	Args: cobra.NoArgs,
	RunE: runGalleryEvict,
}

var galleryCapacityCmd = &cobra.Command{
	Use:   "capacity",
	Short: "Show gallery capacity and usage",
	Args:  cobra.NoArgs,
	RunE:  runGalleryCapacity,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd, gallerySearchCmd, galleryDeleteCmd,
		galleryEnableCmd, galleryDisableCmd, galleryEvictCmd, galleryCapacityCmd)

	galleryEvictCmd.Flags().Int("target", -1, "Number of enabled identities to keep")
}

func printRecords(recs []gallery.Record) {
	if len(recs) == 0 {
		fmt.Println("No identities found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tIDENTITY\tENABLED\tQUALITY\tVERSION\tCREATED\tREMARKS")
	fmt.Fprintln(w, "--\t--------\t-------\t-------\t-------\t-------\t-------")
	for _, rec := range recs {
		quality := "-"
		if rec.Quality != nil {
			quality = fmt.Sprintf("%.2f", *rec.Quality)
		}
		fmt.Fprintf(w, "%d\t%s\t%v\t%s\t%d\t%s\t%s\n", rec.ID, rec.Identity, rec.Enabled, quality,
			rec.Version, rec.CreatedAt.Local().Format("2006-01-02 15:04:05"), rec.Remarks)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d identities\n", len(recs))
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	recs, err := a.gallery.ListEnabled(ctx)
	if err != nil {
		return err
	}
	printRecords(recs)
	return nil
}

func runGallerySearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	recs, err := a.gallery.Search(ctx, args[0])
	if err != nil {
		return err
	}
	printRecords(recs)
	return nil
}

func runGalleryDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	deleted, err := a.gallery.Delete(ctx, args[0])
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %q", gallery.ErrIdentityNotFound, args[0])
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runGallerySetEnabled(cmd *cobra.Command, identity string, enabled bool) error {
	ctx := context.Background()
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.gallery.SetEnabled(ctx, identity, enabled); err != nil {
		return err
	}
	if enabled {
		fmt.Printf("Enabled %s\n", identity)
	} else {
		fmt.Printf("Disabled %s\n", identity)
	}
	return nil
}

func runGalleryEvict(cmd *cobra.Command, args []string) error {
	target := mustGetInt(cmd, "target")
	if target < 0 {
		return errors.New("--target is required and must not be negative")
	}

	ctx := context.Background()
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.gallery.EvictOldest(ctx, target)
	if err != nil {
		return err
	}
	fmt.Printf("Evicted %d identities\n", n)
	return nil
}

func runGalleryCapacity(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	enabled, err := a.gallery.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Capacity:  %d\n", a.gallery.Capacity())
	fmt.Printf("Enabled:   %d\n", enabled)
	fmt.Printf("Remaining: %d\n", max(0, a.gallery.Capacity()-enabled))
	return nil
}
