package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clickconstruction/pipetooling/internal/bom"
	"github.com/clickconstruction/pipetooling/internal/commands"
	"github.com/clickconstruction/pipetooling/internal/config"
	"github.com/clickconstruction/pipetooling/internal/logging"
	"github.com/clickconstruction/pipetooling/internal/store"
	"github.com/clickconstruction/pipetooling/internal/store/sqlite"
)

var (
	isProd     bool
	sqlitePath string
	quantity   float64
	maxDepth   int
	outDir     string
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "control-panel",
	Short:         "Operator tasks for the pipetooling database",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintln(os.Stderr, "no .env file found, relying on environment")
		}
		l, err := logging.New(config.GetEnv("LOG_LEVEL", "info"), "console")
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "run-migrations-up",
	Short: "Apply the schema to the dev (default) or prod database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return commands.RunMigrationsUp(cmd.Context(), isProd, logger)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset-db-dev",
	Short: "Drop every table in the dev database and re-apply the schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return commands.ResetDBDev(cmd.Context(), logger)
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview [template-id]",
	Short: "Print the consolidated parts list for a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, closeFn, err := openReader(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()
		return commands.PreviewTemplate(cmd.Context(), cmd.OutOrStdout(), src, args[0], quantity, maxDepth)
	},
}

var poCmd = &cobra.Command{
	Use:   "po [purchase-order-id]",
	Short: "Print a purchase order's line items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, closeFn, err := openReader(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()
		return commands.PrintPurchaseOrder(cmd.Context(), cmd.OutOrStdout(), src, args[0])
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [purchase-order-id]",
	Short: "Write a purchase order to an xlsx file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, closeFn, err := openReader(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()
		path, err := commands.ExportPurchaseOrder(cmd.Context(), src, args[0], outDir)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

type reader interface {
	commands.TemplateReader
	commands.OrderReader
}

// openReader uses the sqlite file when --sqlite is set, otherwise Postgres.
func openReader(ctx context.Context) (reader, func(), error) {
	if sqlitePath != "" {
		s, err := sqlite.Open(ctx, sqlitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	dbURL, err := commands.DBURL(isProd)
	if err != nil {
		return nil, nil, err
	}
	s, err := store.New(ctx, dbURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&isProd, "prod", "p", false, "use PROD_SUPABASE_URL instead of DEV_SUPABASE_URL")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "read from a local sqlite file instead of Postgres")
	previewCmd.Flags().Float64VarP(&quantity, "quantity", "q", 1, "template multiplier")
	previewCmd.Flags().IntVar(&maxDepth, "max-depth", bom.DefaultMaxDepth, "template nesting limit")
	exportCmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory")

	rootCmd.AddCommand(migrateCmd, resetCmd, previewCmd, poCmd, exportCmd)
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[0], err)
		os.Exit(1)
	}
}
