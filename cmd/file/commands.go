package file

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ValentinKolb/sMX/cmd/util"
	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/ValentinKolb/sMX/lib/matrix/storage"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	infoCmd = &cobra.Command{
		Use:   "info [path]",
		Short: "Prints information about a backing file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMatrix(args[0])
			if err != nil {
				return err
			}
			defer m.Close()

			info, err := m.Info()
			if err != nil {
				return err
			}
			fmt.Print(util.FormatInfo(info, false))
			return nil
		},
	}
	compactCmd = &cobra.Command{
		Use:   "compact [path]",
		Short: "Rewrites a backing file without superseded rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMatrix(args[0])
			if err != nil {
				return err
			}

			before, err := m.Info()
			if err != nil {
				return errors.Join(err, m.Close())
			}
			if err := m.Compact(); err != nil {
				return errors.Join(err, m.Close())
			}
			after, err := m.Info()
			if err != nil {
				return errors.Join(err, m.Close())
			}
			if err := m.Close(); err != nil {
				return err
			}

			fmt.Printf("compacted %s: %s -> %s\n", args[0],
				humanize.IBytes(uint64(before.File.TotalBytes)),
				humanize.IBytes(uint64(after.File.TotalBytes)))
			return nil
		},
	}
	importCmd = &cobra.Command{
		Use:   "import [path] [csv]",
		Short: "Imports cells from a CSV file with the columns row,col,value (- reads stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := io.Reader(os.Stdin)
			if args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			m, err := openMatrix(args[0])
			if err != nil {
				return err
			}

			add, _ := cmd.Flags().GetBool("add")
			n, err := importCSV(m, in, add)
			// Close writes all imported rows, the import is only complete if it succeeds
			if err := errors.Join(err, m.Close()); err != nil {
				return fmt.Errorf("import stopped after %d cells: %w", n, err)
			}

			fmt.Fprintf(os.Stderr, "imported %s cells\n", humanize.Comma(int64(n)))
			return nil
		},
	}
	dumpCmd = &cobra.Command{
		Use:   "dump [path] [csv]",
		Short: "Writes all cells as CSV with the columns row,col,value (- or no argument writes to stdout)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}
			// dump never modifies the matrix file, not even to remove a torn record
			file, err := storage.Open(args[0], &storage.Options{ReadOnly: true})
			if err != nil {
				return err
			}
			defer file.Close()

			out := io.Writer(os.Stdout)
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Create(args[1])
				if err != nil {
					return err
				}
				defer func() {
					if closeErr := f.Close(); err == nil {
						err = closeErr
					}
				}()
				out = f
			}

			n, err := dumpCSV(file, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "dumped %s cells\n", humanize.Comma(int64(n)))
			return nil
		},
	}
	benchCmd = &cobra.Command{
		Use:   "bench [path]",
		Short: "Runs the perf tool against a local file backed matrix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMatrix(args[0])
			if err != nil {
				return err
			}

			opts := util.GetPerfOptions()
			fmt.Printf("Threads: %d, Ops: %d, Rows: %d, Cols: %d, Cache: %d, Codec: %s\n\n",
				opts.Threads, opts.Ops, opts.Rows, opts.Cols, viper.GetInt("cache"), viper.GetString("codec"))

			results, err := util.RunPerf(context.Background(), m, opts, os.Stdout)
			if err := errors.Join(err, m.Close()); err != nil {
				return err
			}

			if csvPath := viper.GetString("csv"); csvPath != "" {
				return util.WritePerfCSV(csvPath, results, map[string]string{
					"Target":  "file",
					"Cache":   strconv.Itoa(viper.GetInt("cache")),
					"Codec":   viper.GetString("codec"),
					"Threads": strconv.Itoa(opts.Threads),
				})
			}
			return nil
		},
	}
)

func init() {
	importCmd.Flags().Bool("add", false, util.WrapString("Add the values to the cells instead of replacing them"))
	util.SetupPerfFlags(benchCmd)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// importCSV sets (or adds, if add is set) the cells read from r. Lines
// starting with # are ignored. It returns the number of imported cells.
func importCSV(m matrix.IMatrix, r io.Reader, add bool) (int, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = 3
	reader.ReuseRecord = true

	n := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		line, _ := reader.FieldPos(0)
		row, err := strconv.Atoi(record[0])
		if err != nil {
			return n, fmt.Errorf("line %d: invalid row: %w", line, err)
		}
		col, err := strconv.Atoi(record[1])
		if err != nil {
			return n, fmt.Errorf("line %d: invalid col: %w", line, err)
		}
		value, err := strconv.ParseInt(record[2], 10, 64)
		if err != nil {
			return n, fmt.Errorf("line %d: invalid value: %w", line, err)
		}

		if add {
			err = m.Incr(row, col, value)
		} else {
			err = m.Set(row, col, value)
		}
		if err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
}

// dumpCSV writes every stored cell of file as row,col,value in ascending row
// and column order. It returns the number of written cells.
func dumpCSV(file *storage.File, w io.Writer) (int, error) {
	writer := csv.NewWriter(w)

	n := 0
	for _, row := range file.Rows() {
		entries, err := file.LoadRow(row)
		if err != nil {
			return n, err
		}
		rowStr := strconv.FormatUint(uint64(row), 10)
		for _, e := range entries {
			if err := writer.Write([]string{rowStr, strconv.FormatUint(uint64(e.Col), 10), strconv.FormatInt(e.Value, 10)}); err != nil {
				return n, err
			}
			n++
		}
	}

	writer.Flush()
	return n, writer.Error()
}
