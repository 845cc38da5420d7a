package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/cli/config"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdSetup() *cli.Command {
	var (
		projectCfg config.Project
		secretCfg  config.Secret
		engineCfg  config.Engine
		fileCfg    config.File

		webhookURL     string
		verifyPipeline bool
		dryRun         bool
	)

	var flags []cli.Flag
	flags = append(flags, projectCfg.Flags()...)
	flags = append(flags, secretCfg.Flags()...)
	flags = append(flags, engineCfg.Flags()...)
	flags = append(flags, fileCfg.Flags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "webhook-url",
			Usage:       "Public URL of /hooks/github/release; registration is skipped when empty",
			Destination: &webhookURL,
			Sources:     cli.EnvVars("HERALD_WEBHOOK_URL"),
		},
		&cli.BoolFlag{
			Name:        "verify-pipeline",
			Usage:       "Check that the CodePipeline pipeline has the entry action in its first stage",
			Destination: &verifyPipeline,
			Sources:     cli.EnvVars("HERALD_VERIFY_PIPELINE"),
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Validate only, do not register the webhook",
			Destination: &dryRun,
		},
	)

	return &cli.Command{
		Name:  "setup",
		Usage: "Validate the pipeline and register the release webhook with GitHub",
		Flags: flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			return ctx, fileCfg.Apply(c, nil)
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			pipeline, entry, err := projectCfg.Pipeline(secretCfg.AccessTokenName())
			if err != nil {
				return err
			}

			req := &usecase.SetupRequest{
				Pipeline:   pipeline,
				Entry:      entry,
				WebhookURL: webhookURL,
				DryRun:     dryRun,
			}

			var (
				registrar interfaces.WebhookRegistrar
				verifier  interfaces.EntryVerifier
			)

			if verifyPipeline {
				cp, err := engineCfg.CodePipeline(ctx)
				if err != nil {
					return err
				}
				verifier = cp
			}

			if webhookURL != "" {
				store, err := secretCfg.Store(ctx)
				if err != nil {
					return err
				}
				secrets, err := usecase.NewSecretResolver(store).
					Activate(ctx, secretCfg.AccessTokenName(), secretCfg.SigningKeyName())
				if err != nil {
					return goerr.Wrap(err, "failed to activate secrets")
				}
				req.SigningKey = secrets.SigningKey

				gh, err := engineCfg.GitHubClient(secrets.AccessToken)
				if err != nil {
					return err
				}
				registrar = gh
			}

			report, err := usecase.NewSetup(registrar, verifier).Run(ctx, req)
			if err != nil {
				return err
			}

			printSetupReport(os.Stdout, report, model.BuildProjectName(projectCfg.Name))
			return nil
		},
	}
}

func printSetupReport(w io.Writer, r *usecase.SetupReport, buildProject string) {
	title := color.New(color.FgGreen, color.Bold)
	key := color.New(color.FgCyan).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()

	_, _ = title.Fprintln(w, "herald setup complete")
	fmt.Fprintf(w, "  %s %s\n", key("pipeline:"), r.PipelineID)
	fmt.Fprintf(w, "  %s %s\n", key("build project:"), buildProject)
	fmt.Fprintf(w, "  %s %s\n", key("entry action:"), r.Entry.String())
	fmt.Fprintf(w, "  %s %s/%s@%s\n", key("source:"), r.Source.Owner, r.Source.Repo, r.Source.Branch)
	fmt.Fprintf(w, "  %s %s\n", key("access token secret:"), r.Source.CredentialRef)

	if r.Verified {
		fmt.Fprintf(w, "  %s verified\n", key("engine:"))
	}

	switch {
	case r.WebhookURL == "":
		fmt.Fprintf(w, "  %s %s\n", key("webhook:"), warn("not registered (no --webhook-url)"))
	case r.Webhook == nil:
		fmt.Fprintf(w, "  %s %s %s\n", key("webhook:"), r.WebhookURL, warn("(dry run)"))
	default:
		action := "updated"
		if r.Webhook.Created {
			action = "created"
		}
		fmt.Fprintf(w, "  %s %s (id %d, %s)\n", key("webhook:"), r.Webhook.URL, r.Webhook.ID, action)
	}

	switch {
	case r.WebhookURL == "":
	case r.SignedHooks:
		fmt.Fprintf(w, "  %s %s\n", key("signature:"), "required")
	default:
		fmt.Fprintf(w, "  %s %s\n", key("signature:"), warn("not verified (no signing secret)"))
	}
}
