package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/infra/monitoring"
)

// RootCmd builds the docqa command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "Answer questions from your documents",
		Long: `docqa ingests documents into a Postgres chunk store and answers
questions from the stored chunks with an LLM.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupGlobalConfig(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if svc := monitoringFromContext(cmd.Context()); svc != nil {
				return svc.Shutdown(cmd.Context())
			}
			return nil
		},
	}
	addGlobalFlags(root)
	root.AddCommand(
		IngestCmd(),
		AskCmd(),
		ChatCmd(),
		SchemaCmd(),
		ExtractCmd(),
	)
	return root
}

func addGlobalFlags(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("env-file", ".env", "Path to an environment file")
	flags.String("output", outputAuto, "Output format (auto, json, text)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", false, "Emit logs as JSON")
	flags.Bool("log-source", false, "Include source locations in logs")
	flags.String("metrics-file", "", "Write a Prometheus metrics snapshot to this file on exit")
	flags.String("db-conn", "", "Postgres connection string")
	flags.String("table", "", "Chunk table name")
	flags.Int("chunk-size", 0, "Chunk window size in tokens")
	flags.Int("chunk-overlap", 0, "Chunk window overlap in tokens")
	flags.String("embedding-model", "", "Embedding model id")
	flags.Int("embedding-dim", 0, "Embedding dimension")
	flags.String("generation-model", "", "Primary generation model id")
	flags.Int("top-k", 0, "Number of chunks to retrieve")
	flags.Float64("semantic-weight", 0, "Weight of vector similarity in hybrid ranking")
	flags.Float64("lexical-weight", 0, "Weight of full text rank in hybrid ranking")
	flags.String("text-search", "", "Postgres text search configuration")
	flags.Int("max-context-chars", 0, "Character budget for the prompt context")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := RootCmd()
	executed, err := root.ExecuteContextC(ctx)
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", core.RedactError(err))
		// post-run hooks are skipped on failure
		if executed != nil {
			if svc := monitoringFromContext(executed.Context()); svc != nil {
				_ = svc.Shutdown(context.WithoutCancel(ctx))
			}
		}
		return 1
	}
	return 0
}

type monitoringKey struct{}

func contextWithMonitoring(ctx context.Context, svc *monitoring.Service) context.Context {
	return context.WithValue(ctx, monitoringKey{}, svc)
}

func monitoringFromContext(ctx context.Context) *monitoring.Service {
	if ctx == nil {
		return nil
	}
	svc, _ := ctx.Value(monitoringKey{}).(*monitoring.Service)
	return svc
}
