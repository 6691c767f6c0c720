package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/sitechat-backend/internal/app"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job worker and retrain scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		a.StartBackground(ctx, true)
		a.Log.Info("worker running", "concurrency", a.Cfg.Worker.Concurrency)
		<-ctx.Done()
		a.Log.Info("worker shutting down")
		return nil
	},
}
