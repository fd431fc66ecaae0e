package mx

import (
	"github.com/ValentinKolb/sMX/cmd/util"
	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/ValentinKolb/sMX/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcMatrix matrix.IMatrix

	// MatrixCommands represents the mx command group
	MatrixCommands = &cobra.Command{
		Use:                "mx",
		Short:              "Perform operations on a served matrix",
		PersistentPreRunE:  setupMatrixClient,
		PersistentPostRunE: closeMatrixClient,
	}
)

func init() {
	// Add common RPC flags to the mx command
	util.SetupRPCClientFlags(MatrixCommands)

	MatrixCommands.PersistentFlags().Uint64("matrix", 1, util.WrapString("ID of the matrix to connect to"))

	// Add subcommands
	MatrixCommands.AddCommand(getCmd)
	MatrixCommands.AddCommand(setCmd)
	MatrixCommands.AddCommand(incrCmd)
	MatrixCommands.AddCommand(decrCmd)
	MatrixCommands.AddCommand(rowLenCmd)
	MatrixCommands.AddCommand(rowCmd)
	MatrixCommands.AddCommand(cacheCmd)
	MatrixCommands.AddCommand(flushCmd)
	MatrixCommands.AddCommand(compactCmd)
	MatrixCommands.AddCommand(infoCmd)
	MatrixCommands.AddCommand(perfTestCmd)
}

// setupMatrixClient initializes the RPC matrix client
func setupMatrixClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLogging(); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	rpcMatrix, err = client.NewRPCMatrix(
		util.GetMatrixID(),
		*util.GetClientConfig(),
		t,
		s,
	)

	return err
}

// closeMatrixClient flushes the matrix and closes the connection
func closeMatrixClient(_ *cobra.Command, _ []string) error {
	if rpcMatrix == nil {
		return nil
	}
	return rpcMatrix.Close()
}
