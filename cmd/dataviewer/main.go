// dataviewer serves the statistical warehouse query API and runs the same
// queries from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chendingplano/dataviewer/api/ApiUtils"
	"github.com/chendingplano/dataviewer/api/dataviewer"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string

	dataEntities []string
	dataYears    string
)

// createLogger sets up file logging and the level from config. Commands
// other than serve log to stderr, so stdout carries only their JSON, and only
// log warnings unless --verbose is given.
func createLogger(config *dataviewer.Config, serving bool) *loggerutil.JimoLogger {
	if !serving {
		ApiUtils.SetConsoleOutput(os.Stderr)
	}
	if err := ApiUtils.InitFileLogging(config.Log, "DVW_CLI_031"); err != nil {
		fmt.Fprintf(os.Stderr, "file logging disabled: %v\n", err)
	}

	level := config.Log.Level
	if !serving {
		level = "warn"
	}
	if verbose {
		level = "debug"
	}
	loggerutil.SetLevel(level)
	return loggerutil.CreateLogger(config.Log.Format)
}

// openService loads the config and initializes the service. The caller
// must Close it.
func openService(ctx context.Context, serving bool) (*dataviewer.Service, error) {
	config, err := dataviewer.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := createLogger(config, serving)

	service := dataviewer.NewService(config, logger)
	if err := service.Initialize(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result (DVW_CLI_063): %w", err)
	}
	fmt.Println(string(out))
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "dataviewer",
	Short: "Statistical warehouse query service",
	Long: `dataviewer answers read-only queries over a statistical warehouse of
categories, subcategories, variables, entities and yearly values.

Environment variables:
  DATAVIEWER_CONFIG         Path to TOML configuration file
  DATAVIEWER_<SECTION>_<KEY> Overrides a config value, e.g. DATAVIEWER_SERVER_PORT
  DB_PASSWORD               Database password
  PG_PASSWORD               Database password for pg (if DB_PASSWORD is unset)
  MYSQL_PASSWORD            Database password for mysql (if DB_PASSWORD is unset)
  LOG_FILE_DIR              Directory of the rotating app.log
`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		service, err := openService(ctx, true)
		if err != nil {
			return err
		}
		defer service.Close()
		defer ApiUtils.CloseFileLogging()

		return service.RunServer(ctx)
	},
}

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Print the metadata document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		service, err := openService(ctx, false)
		if err != nil {
			return err
		}
		defer service.Close()

		doc, err := service.Engine().MetadataSnapshot(ctx)
		if err != nil {
			return err
		}
		return printJSON(doc)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the warehouse for integrity faults",
	Long: `Builds the metadata document and lists every integrity fault found:
variables whose dataset, subcategory or category is missing or
inconsistent, value rows referencing unknown entities and subcategories
without variables. Exits non-zero when a fault is found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		service, err := openService(ctx, false)
		if err != nil {
			return err
		}
		defer service.Close()

		faults, err := service.Engine().Check(ctx)
		if err != nil {
			return err
		}
		if len(faults) == 0 {
			fmt.Println("No integrity faults found")
			return nil
		}

		fmt.Printf("Integrity faults (%d):\n", len(faults))
		fmt.Println()
		fmt.Printf("%-22s %-12s %-12s %s\n", "KIND", "VARIABLE", "ENTITY", "DETAIL")
		fmt.Printf("%-22s %-12s %-12s %s\n", "----", "--------", "------", "------")
		for _, f := range faults {
			entity := "-"
			if f.EntityID != 0 {
				entity = fmt.Sprint(f.EntityID)
			}
			variable := "-"
			if f.VariableID != 0 {
				variable = fmt.Sprint(f.VariableID)
			}
			fmt.Printf("%-22s %-12s %-12s %s\n", f.Kind, variable, entity, f.Detail)
		}
		fmt.Println()
		return fmt.Errorf("%d integrity faults found (DVW_CLI_163)", len(faults))
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a query against the warehouse",
}

var queryVariableCmd = &cobra.Command{
	Use:   "variable <variable_id>",
	Short: "Print the name and unit of a variable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		service, err := openService(ctx, false)
		if err != nil {
			return err
		}
		defer service.Close()

		variable, ok, err := service.Engine().VariableOf(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return printJSON(struct{}{})
		}
		return printJSON(variable)
	},
}

var queryYearsCmd = &cobra.Command{
	Use:   "years <variable_id>",
	Short: "List the years with data for a variable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		service, err := openService(ctx, false)
		if err != nil {
			return err
		}
		defer service.Close()

		years, err := service.Engine().YearsOf(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(years)
	},
}

var queryEntitiesCmd = &cobra.Command{
	Use:   "entities <variable_id>",
	Short: "List the entities with data for a variable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		service, err := openService(ctx, false)
		if err != nil {
			return err
		}
		defer service.Close()

		entities, err := service.Engine().EntitiesOf(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(entities)
	},
}

var queryDataCmd = &cobra.Command{
	Use:   "data <variable_id> --entities 1,2 --years '[1990,2000]'",
	Short: "Print the values of a variable for some entities and years",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		service, err := openService(ctx, false)
		if err != nil {
			return err
		}
		defer service.Close()

		rows, err := service.Engine().DataOf(ctx, args[0], dataEntities, dataYears)
		if err != nil {
			return err
		}
		return printJSON(rows)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $DATAVIEWER_CONFIG)")

	queryDataCmd.Flags().StringArrayVarP(&dataEntities, "entities", "e", nil, "Entity ids, repeated or comma separated")
	queryDataCmd.Flags().StringVarP(&dataYears, "years", "y", "", "Years as a JSON array")

	queryCmd.AddCommand(queryVariableCmd)
	queryCmd.AddCommand(queryYearsCmd)
	queryCmd.AddCommand(queryEntitiesCmd)
	queryCmd.AddCommand(queryDataCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(metadataCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
