package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/sMX/cmd/file"
	"github.com/ValentinKolb/sMX/cmd/mx"
	"github.com/ValentinKolb/sMX/cmd/serve"
	"github.com/ValentinKolb/sMX/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "smx",
		Short: "sparse integer matrix engine",
		Long: fmt.Sprintf(`sMX (v%s)

A sparse two-dimensional integer matrix written in Go. Matrices live in
memory or in a backing file with a bounded row cache and can be served
to remote clients over http, tcp or unix sockets.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sMX",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sMX v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(mx.MatrixCommands)
	RootCmd.AddCommand(file.FileCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (binary, json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix, http)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
