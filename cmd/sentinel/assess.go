package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/songzhibin97/sentinel/server"
	"github.com/songzhibin97/sentinel/types"
)

var assessCmd = &cobra.Command{
	Use:   "assess [transaction...]",
	Short: "Assess transactions from arguments or a file",
	Long: `Evaluates each transaction (30 comma-separated values) and prints one JSON
result per line, in input order. Use --file - to read from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		workers, _ := cmd.Flags().GetInt("workers")

		inputs := args
		if file != "" {
			lines, err := readTransactions(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			inputs = append(inputs, lines...)
		}
		if len(inputs) == 0 {
			return fmt.Errorf("no transactions given")
		}

		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		results, err := assessAll(cmd.Context(), a.engine, inputs, workers)
		if err != nil {
			return err
		}
		return writeResults(cmd.OutOrStdout(), results)
	},
}

func init() {
	rootCmd.AddCommand(assessCmd)
	assessCmd.Flags().StringP("file", "f", "", "File with one transaction per line (- for stdin)")
	assessCmd.Flags().IntP("workers", "w", runtime.NumCPU(), "Number of concurrent evaluations")
}

// invoker evaluates a single transaction.
type invoker interface {
	Invoke(ctx context.Context, raw string) types.WorkflowState
}

// assessAll evaluates inputs concurrently. Results keep input order.
func assessAll(ctx context.Context, engine invoker, inputs []string, workers int) ([]types.WorkflowState, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]types.WorkflowState, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, raw := range inputs {
		i, raw := i, raw
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = engine.Invoke(gctx, raw)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func readTransactions(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open transactions file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return lines, nil
}

func writeResults(w io.Writer, results []types.WorkflowState) error {
	enc := json.NewEncoder(w)
	for _, state := range results {
		if err := enc.Encode(server.AssessResponse{Recommendation: state.Justification, Details: state}); err != nil {
			return err
		}
	}
	return nil
}
