package file

import (
	"github.com/ValentinKolb/sMX/cmd/util"
	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/ValentinKolb/sMX/lib/matrix/engine"
	"github.com/ValentinKolb/sMX/lib/matrix/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// FileCommands represents the file command group
	FileCommands = &cobra.Command{
		Use:   "file",
		Short: "Work with backing files directly",
		Long: util.WrapString(`Opens a backing file without a server. A file can only be opened by one process at a time, stop the server that hosts the file first.`),
		PersistentPreRunE: setupFileCommands,
	}
)

func init() {
	FileCommands.PersistentFlags().Int("cache", engine.DefaultCacheSize, util.WrapString("Number of rows kept in memory"))
	FileCommands.PersistentFlags().String("codec", "none", util.WrapString("Compression of rows written to the file (none, zstd, lz4)"))

	// Add subcommands
	FileCommands.AddCommand(infoCmd)
	FileCommands.AddCommand(compactCmd)
	FileCommands.AddCommand(importCmd)
	FileCommands.AddCommand(dumpCmd)
	FileCommands.AddCommand(benchCmd)
}

func setupFileCommands(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	return util.InitLogging()
}

// openMatrix opens the file backed matrix at path with the configured cache size and codec
func openMatrix(path string) (matrix.IMatrix, error) {
	codec, err := storage.ParseCodec(viper.GetString("codec"))
	if err != nil {
		return nil, err
	}
	return engine.Open(&engine.Options{
		Path:      path,
		CacheSize: viper.GetInt("cache"),
		Codec:     codec,
	})
}
