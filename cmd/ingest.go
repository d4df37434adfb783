package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/manuid/internal/enrich"
	"github.com/sells-group/manuid/internal/ingest"
	"github.com/sells-group/manuid/internal/model"
	"github.com/sells-group/manuid/internal/scrape"
)

var (
	ingestDryRun      bool
	ingestProductType string
	ingestRole        string
	ingestSourceName  string
	ingestConcurrency int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest URL...",
	Short: "Ingest vendor listings from one or more URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestRole != "" && !model.ValidLinkRole(ingestRole) {
			return fmt.Errorf("invalid role %q", ingestRole)
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		fetcher := scrape.NewFetcher(cfg.Scrape)
		pipeline := ingest.New(st, fetcher, enrich.New(cfg.Enrichment))

		base := ingest.Request{
			ProductType: ingestProductType,
			Role:        model.LinkRole(ingestRole),
			SourceName:  ingestSourceName,
			DryRun:      ingestDryRun,
		}

		reports, errs := pipeline.RunBatch(cmd.Context(), args, base, ingestConcurrency)

		failed := 0
		for i, rawURL := range args {
			if errs[i] != nil {
				failed++
				zap.L().Error("ingestion failed", zap.String("url", rawURL), zap.Error(errs[i]))
				continue
			}
			fmt.Println(reports[i].Message)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d URL(s) failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "fetch and parse without writing")
	ingestCmd.Flags().StringVar(&ingestProductType, "product-type", "", "product type the listings belong to (required)")
	ingestCmd.Flags().StringVar(&ingestRole, "role", string(model.LinkRoleAuthorizedDistributor), "link role for parsed vendors")
	ingestCmd.Flags().StringVar(&ingestSourceName, "source-name", "", "source name recorded in the catalog (defaults to the host)")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 3, "concurrent URL fetches")
	_ = ingestCmd.MarkFlagRequired("product-type")
	rootCmd.AddCommand(ingestCmd)
}
