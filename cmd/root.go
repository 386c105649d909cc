package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-gallery",
	Short: "Enroll faces and match them against a local gallery",
	Long: `Face Gallery keeps a capacity-bounded gallery of face embeddings and
matches query embeddings or images against it.

Embeddings can be enrolled directly from vector files, or computed from
images by an InsightFace-style embedding server (EMBEDDING_URL). The gallery
is stored in memory, in an embedded Badger database, in PostgreSQL with
pgvector, or in MariaDB (STORAGE_BACKEND).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (overrides DEBUG_LOGGING)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
