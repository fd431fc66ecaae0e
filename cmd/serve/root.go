package serve

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/sMX/cmd/util"
	"github.com/ValentinKolb/sMX/rpc/common"
	"github.com/ValentinKolb/sMX/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the sMX server",
		Long: `Start the sMX server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is SMX_<flag> (e.g. SMX_TIMEOUT=15).

On SIGINT or SIGTERM the server stops accepting requests and closes all matrices, modified rows are written to their backing files before the process exits.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "matrix"
	ServeCmd.PersistentFlags().StringSlice(key, []string{"1=mem"}, cmdUtil.WrapString("Matrices to serve. Format: ID=PATH[,cache=ROWS][,codec=none|zstd|lz4] or ID=mem for a memory only matrix. Repeat the flag for multiple matrices"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the server will listen (e.g. localhost:8080, /tmp/smx.sock, ...)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Read and write timeout of a connection in seconds (0 = none, idle connections are closed after the timeout)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Number of requests handled in parallel per connection (tcp and unix)"))

	key = "buffer-size"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Size of the pooled request buffers in KB (0 = transport default)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval in seconds (only for tcp)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The linger time in seconds (only for tcp, 0 = system default)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// parse matrices
	serveCmdConfig.Matrices = []common.MatrixConfig{}
	seen := make(map[uint64]bool)
	for _, def := range viper.GetStringSlice("matrix") {
		m, err := common.ParseMatrixConfig(def)
		if err != nil {
			return err
		}
		if seen[m.ID] {
			return fmt.Errorf("matrix id %d is used twice", m.ID)
		}
		seen[m.ID] = true
		serveCmdConfig.Matrices = append(serveCmdConfig.Matrices, m)
	}
	if len(serveCmdConfig.Matrices) == 0 {
		return fmt.Errorf("at least one matrix must be served")
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:        viper.GetString("endpoint"),
		TimeoutSecond:   viper.GetInt64("timeout"),
		WorkersPerConn:  viper.GetInt("workers-per-conn"),
		BufferSize:      viper.GetInt("buffer-size") * 1024,
		TCPNoDelay:      viper.GetBool("tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("tcp-linger"),
	}

	return nil
}

// run starts the sMX server and closes it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	go func() {
		sig, ok := <-signals
		if !ok {
			return
		}
		server.Logger.Infof("received %s", sig)
		if err := serv.Close(); err != nil {
			server.Logger.Errorf("shutdown: %v", err)
		}
	}()

	if err := serv.Serve(); err != nil {
		return err
	}
	// Serve returns once the transport is closed, Close also waits for the matrices
	return serv.Close()
}
