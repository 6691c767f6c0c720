package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/sitechat-backend/internal/app"
)

var serveWithWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, app.Options{HTTP: true})
		if err != nil {
			return err
		}
		defer a.Close()

		a.StartBackground(ctx, serveWithWorker || a.Cfg.EmbeddedWorker)
		return a.Serve(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "also run the job worker and retrain scheduler (WORKER_EMBEDDED)")
}
