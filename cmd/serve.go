package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the Face Gallery HTTP API.
The API exposes enrollment, gallery management, matching and verification.
Image recognition endpoints are available when EMBEDDING_URL is set.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	webCfg := a.cfg.Web
	if port := mustGetInt(cmd, "port"); port > 0 {
		webCfg.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		webCfg.Host = host
	}

	rec := a.recognizer()
	server := web.NewServer(webCfg, web.Deps{
		Gallery:    a.gallery,
		Comparator: a.comparator,
		Recognizer: rec,
		Logger:     a.log,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Gallery: %s backend, capacity %d, dimension %d, %s threshold %.2f\n",
		a.cfg.Storage.Backend, a.matcher.Capacity(), a.matcher.Dimension(),
		a.matcher.Metric(), a.matcher.MatchThreshold())
	if rec == nil {
		fmt.Println("Image recognition disabled (EMBEDDING_URL not set)")
	}
	fmt.Printf("Starting Face Gallery API on http://%s:%d\n", webCfg.Host, webCfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
