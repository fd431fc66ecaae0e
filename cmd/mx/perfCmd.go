package mx

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ValentinKolb/sMX/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for sMX servers",
		Long: util.WrapString(fmt.Sprintf(`Runs the tests %s against the matrix.
The tests write to the rows [row-offset, row-offset+rows), use a scratch matrix or a free row range.`, strings.Join(util.PerfTestNames(), ", "))),
		RunE: runPerf,
	}
)

func init() {
	util.SetupPerfFlags(perfTestCmd)
}

func runPerf(cmd *cobra.Command, _ []string) error {
	opts := util.GetPerfOptions()

	fmt.Println("Performance testing tool for sMX servers")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d, Ops: %d, Rows: %d, Cols: %d\n", opts.Threads, opts.Ops, opts.Rows, opts.Cols)
	fmt.Println()

	fmt.Println("starting tests...")
	results, err := util.RunPerf(context.Background(), rpcMatrix, opts, os.Stdout)
	if err != nil {
		return err
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		config := util.GetClientConfig()
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := util.WritePerfCSV(csvPath, results, map[string]string{
			"Endpoints":              strings.Join(config.Transport.Endpoints, ";"),
			"TimeoutSec":             strconv.Itoa(config.TimeoutSecond),
			"ConnectionsPerEndpoint": strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			"MatrixID":               strconv.FormatUint(util.GetMatrixID(), 10),
			"Serializer":             viper.GetString("serializer"),
			"Transport":              viper.GetString("transport"),
			"Threads":                strconv.Itoa(opts.Threads),
		}); err != nil {
			return fmt.Errorf("failed to export results to CSV: %w", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}
