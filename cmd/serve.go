package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zstream/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve chunks over HTTP",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		retrieval, err := a.newRetrieval(ctx)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		ready := api.ReadinessFunc(func() (string, string) {
			registered := len(a.placer.ListServers())
			if registered < cfg.FragmentsNeeded {
				return "fail", fmt.Sprintf("%d servers registered, %d needed", registered, cfg.FragmentsNeeded)
			}
			return "ok", ""
		})

		addr := cfg.ListenAddr
		if cmd.Flags().Changed("listen-addr") {
			addr, _ = cmd.Flags().GetString("listen-addr")
		}

		server := api.NewServer(addr, api.NewHandler(retrieval, a.chunks, ready))
		if err := server.Run(ctx); err != nil {
			log.WithError(err).Error("HTTP server failed")
		}

		if err := retrieval.SaveQuality(context.WithoutCancel(ctx), &a.quality, cfg.QualityArea); err != nil {
			log.WithError(err).Warn("Failed to save server quality")
			return
		}
		log.WithFields(log.Fields{
			"area":  cfg.QualityArea,
			"round": retrieval.Round(),
		}).Info("Saved server quality")
	},
}

func init() {
	serveCmd.Flags().String("listen-addr", "", "HTTP listen address")
	rootCmd.AddCommand(serveCmd)
}
