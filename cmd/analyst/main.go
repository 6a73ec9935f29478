package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	var cfgPath string
	root := &cobra.Command{
		Use:           "analyst",
		Short:         "Plan, run and combine data analysis agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.yaml)")
	root.AddCommand(serveCMD(&cfgPath), migrateCMD(&cfgPath), runCMD(&cfgPath), agentsCMD(&cfgPath))

	if err := root.Execute(); err != nil {
		log.Printf("analyst: %v", err)
		os.Exit(1)
	}
}
