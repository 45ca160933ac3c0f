package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zstream/internal/config"
	"github.com/zzenonn/zstream/internal/logging"
	"github.com/zzenonn/zstream/internal/repository/db"
	"github.com/zzenonn/zstream/internal/repository/migrate"
)

var (
	cfg        *config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "zstream",
	Short: "Erasure-coded chunk storage with adaptive server selection",
	Long: "zstream stores chunks as erasure-coded fragments spread over a pool of servers " +
		"and retrieves them from the servers it has learned to be fastest or most reliable.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("policy", "", "selection policy: latency or deadline")

	cobra.OnInitialize(initConfig)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the metadata and quality tables",
	Run: func(cmd *cobra.Command, args []string) {
		dynamoDb, err := db.NewDatabase(cfg.AwsConfig)
		if err != nil {
			fmt.Printf("Failed to connect to the database: %v\n", err)
			return
		}

		if err := migrate.Up(cmd.Context(), dynamoDb.Client, migrate.All(cfg.ChunkTable, cfg.QualityTable)...); err != nil {
			fmt.Printf("Failed to migrate the database: %v\n", err)
			return
		}

		fmt.Println("Database initialized and migrated successfully")
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Drop the metadata and quality tables",
	Run: func(cmd *cobra.Command, args []string) {
		dynamoDb, err := db.NewDatabase(cfg.AwsConfig)
		if err != nil {
			fmt.Printf("Failed to connect to the database: %v\n", err)
			return
		}

		if err := migrate.Down(cmd.Context(), dynamoDb.Client, migrate.All(cfg.ChunkTable, cfg.QualityTable)...); err != nil {
			fmt.Printf("Failed to roll back migrations: %v\n", err)
			return
		}

		fmt.Println("Database migrations rolled back successfully")
	},
}

func initConfig() {
	var err error
	cfg, err = config.LoadConfig(configPath, rootCmd)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logging.InitLogger(cfg)
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(downCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
