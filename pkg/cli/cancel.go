package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/cli/config"
	"github.com/m-mizutani/herald/pkg/domain/types"
	"github.com/m-mizutani/herald/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdCancel() *cli.Command {
	var (
		ledgerCfg config.Ledger
		engineCfg config.Engine
		fileCfg   config.File

		eventID string
		reason  string
	)

	var flags []cli.Flag
	flags = append(flags, ledgerCfg.Flags()...)
	flags = append(flags, engineCfg.Flags()...)
	flags = append(flags, fileCfg.Flags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "event-id",
			Usage:       "Event identity of the run to cancel (see GET /runs/{eventID})",
			Destination: &eventID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "reason",
			Usage:       "Reason recorded with the cancellation",
			Value:       "cancelled by operator",
			Destination: &reason,
		},
	)

	return &cli.Command{
		Name:  "cancel",
		Usage: "Cancel a CodePipeline run started by herald",
		Flags: flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			return ctx, fileCfg.Apply(c, nil)
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			// Local runs live in the serve process and end with it
			if engineCfg.Backend != "codepipeline" && engineCfg.Backend != "" {
				return goerr.New("cancel supports the codepipeline engine only", goerr.V("engine", engineCfg.Backend))
			}
			if ledgerCfg.Backend == "memory" || ledgerCfg.Backend == "" {
				return goerr.New("cancel needs a shared ledger (sqlite, firestore)")
			}

			ledger, closeLedger, err := ledgerCfg.Build(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closeLedger() }()

			engine, err := engineCfg.CodePipeline(ctx)
			if err != nil {
				return err
			}

			_, err = usecase.NewCanceller(ledger, engine).Cancel(ctx, types.EventID(eventID), reason)
			return err
		},
	}
}
