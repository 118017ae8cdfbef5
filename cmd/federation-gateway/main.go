package main

import (
	"fmt"

	"github.com/n9te9/federation-router/server"
	"github.com/spf13/cobra"
)

const version = "v0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of the federation router",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("federation-router " + version)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compose the configured supergraph and report errors without serving",
	Run: func(cmd *cobra.Command, args []string) {
		server.Validate()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the federation router server",
	Run: func(cmd *cobra.Command, args []string) {
		server.Run()
	},
}

func main() {
	rootCmd := &cobra.Command{Use: "federation-router"}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
