package mx

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/sMX/cmd/util"
	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [row] [col]",
		Short: "Reads the value of a cell",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, col, err := parseCell(args)
			if err != nil {
				return err
			}
			value, err := rpcMatrix.Get(row, col)
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [row] [col] [value]",
		Short: "Sets the value of a cell, 0 removes the cell",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, col, value, err := parseCellValue(args)
			if err != nil {
				return err
			}
			if err := rpcMatrix.Set(row, col, value); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	incrCmd = &cobra.Command{
		Use:   "incr [row] [col] [delta]",
		Short: "Adds delta to a cell",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, col, delta, err := parseCellValue(args)
			if err != nil {
				return err
			}
			if err := rpcMatrix.Incr(row, col, delta); err != nil {
				return err
			}
			fmt.Println("incr successfully")
			return nil
		},
	}
	decrCmd = &cobra.Command{
		Use:   "decr [row] [col] [delta]",
		Short: "Subtracts delta from a cell",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, col, delta, err := parseCellValue(args)
			if err != nil {
				return err
			}
			if err := rpcMatrix.Decr(row, col, delta); err != nil {
				return err
			}
			fmt.Println("decr successfully")
			return nil
		},
	}
	rowLenCmd = &cobra.Command{
		Use:   "rowlen [row]",
		Short: "Prints the number of non-zero cells of a row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("row must be a number: %w", err)
			}
			n, err := rpcMatrix.RowLength(row)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	rowCmd = &cobra.Command{
		Use:   "row [row]",
		Short: "Prints the non-zero cells of a row as col=value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("row must be a number: %w", err)
			}
			limit, _ := cmd.Flags().GetInt("limit")

			var entries []matrix.Entry
			if limit >= 0 {
				entries, err = rpcMatrix.RowN(row, limit)
			} else {
				entries, err = rpcMatrix.Row(row)
			}
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%d=%d\n", e.Col, e.Value)
			}
			return nil
		},
	}
	cacheCmd = &cobra.Command{
		Use:   "cache [rows]",
		Short: "Sets the number of rows the server keeps in memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("rows must be a number: %w", err)
			}
			if err := rpcMatrix.SetCacheSize(n); err != nil {
				return err
			}
			fmt.Println("cache size set successfully")
			return nil
		},
	}
	flushCmd = &cobra.Command{
		Use:   "flush",
		Short: "Writes all modified rows to the backing file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcMatrix.Flush(); err != nil {
				return err
			}
			fmt.Println("flush successfully")
			return nil
		},
	}
	compactCmd = &cobra.Command{
		Use:   "compact",
		Short: "Reclaims the space of superseded rows in the backing file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcMatrix.Compact(); err != nil {
				return err
			}
			fmt.Println("compact successfully")
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints information about the matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := rpcMatrix.Info()
			if err != nil {
				return err
			}
			metrics, _ := cmd.Flags().GetBool("metrics")
			fmt.Print(util.FormatInfo(info, metrics))
			return nil
		},
	}
)

func init() {
	rowCmd.Flags().Int("limit", -1, util.WrapString("Maximum number of cells to print (-1 = all)"))
	infoCmd.Flags().Bool("metrics", false, util.WrapString("Also print the metrics in prometheus text format"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func parseCell(args []string) (int, int, error) {
	row, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("row must be a number: %w", err)
	}
	col, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("col must be a number: %w", err)
	}
	return row, col, nil
}

func parseCellValue(args []string) (int, int, int64, error) {
	row, col, err := parseCell(args)
	if err != nil {
		return 0, 0, 0, err
	}
	value, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("value must be a number: %w", err)
	}
	return row, col, value, nil
}
