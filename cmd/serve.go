package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/manuid/internal/bootstrap"
	"github.com/sells-group/manuid/internal/directory"
	"github.com/sells-group/manuid/internal/enrich"
	"github.com/sells-group/manuid/internal/ingest"
	"github.com/sells-group/manuid/internal/scrape"
	"github.com/sells-group/manuid/internal/server"
)

var serveSkipSeed bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vendor directory API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if !serveSkipSeed {
			if err := bootstrap.Seed(ctx, st); err != nil {
				return err
			}
		}

		fetcher := scrape.NewFetcher(cfg.Scrape)
		pipeline := ingest.New(st, fetcher, enrich.New(cfg.Enrichment))
		srv := server.New(*cfg, directory.New(st), pipeline)

		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveSkipSeed, "skip-seed", false, "skip bootstrap seeding at startup")
	rootCmd.AddCommand(serveCmd)
}
