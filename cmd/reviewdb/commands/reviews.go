package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/reviewdb"
)

var (
	insertTitle   string
	insertBody    string
	insertProduct string
	insertRating  uint8

	searchK int
)

var insertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Insert one review",
	Long: `Insert one review and print its ordinal.

Example:
  reviewdb insert --title "Great" --body "Battery lasts two days" --product P001 --rating 5`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec := reviewdb.Record{
			Title:     insertTitle,
			Body:      insertBody,
			ProductID: insertProduct,
			Rating:    insertRating,
		}
		return withDB(cmd, func(ctx context.Context, db *reviewdb.DB) error {
			ord, err := db.Insert(ctx, rec)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"ordinal": ord})
		})
	},
}

// bulkRequest is the payload accepted by the bulk command.
type bulkRequest struct {
	Reviews []reviewdb.Record `json:"reviews"`
}

var bulkCmd = &cobra.Command{
	Use:   "bulk <file>",
	Short: "Insert reviews from a JSON file",
	Long: `Insert every review of a JSON file of the form {"reviews": [...]}.
Use "-" to read from stdin.

All reviews are validated and embedded before any is written. If a write
fails, the reviews before it stay written and their ordinals are printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := readBulk(cmd, args[0])
		if err != nil {
			return err
		}
		return withDB(cmd, func(ctx context.Context, db *reviewdb.DB) error {
			ords, err := db.InsertMany(ctx, req.Reviews)
			if ords == nil {
				ords = []reviewdb.Ordinal{}
			}
			if perr := printJSON(cmd, map[string]any{"ordinals": ords, "written": len(ords)}); perr != nil {
				return errors.Join(err, perr)
			}
			return err
		})
	},
}

func readBulk(cmd *cobra.Command, path string) (*bulkRequest, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var req bulkRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &req, nil
}

// hitJSON is one search match as printed by the search command.
type hitJSON struct {
	Ordinal  reviewdb.Ordinal `json:"ordinal"`
	Distance float32          `json:"distance"`
	reviewdb.Record
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the reviews most similar to a query",
	Long: `Embed the query and print the k nearest reviews, closest first.

Matches whose stored line is malformed are listed under "skipped" instead
of failing the search.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(ctx context.Context, db *reviewdb.DB) error {
			res, err := db.Search(ctx, args[0], searchK)
			if err != nil {
				return err
			}
			hits := make([]hitJSON, 0, len(res.Hits))
			for _, h := range res.Hits {
				hits = append(hits, hitJSON{Ordinal: h.Ordinal, Distance: h.Distance, Record: h.Record})
			}
			skipped := res.Skipped
			if skipped == nil {
				skipped = []reviewdb.Ordinal{}
			}
			return printJSON(cmd, map[string]any{"results": hits, "skipped": skipped})
		})
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored reviews",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(ctx context.Context, db *reviewdb.DB) error {
			return printJSON(cmd, map[string]any{
				"count":     db.Count(),
				"dimension": db.Dimension(),
				"metric":    db.Metric().String(),
			})
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that every stored vector matches its review",
	Long: `Re-encode every stored review and compare the result with the stored
vector. Exits non-zero when any pair is malformed or mismatched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(ctx context.Context, db *reviewdb.DB) error {
			report, err := db.Check(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, map[string]any{
				"count":      report.Count,
				"checked":    report.Checked,
				"malformed":  report.Malformed.ToArray(),
				"mismatched": report.Mismatched.ToArray(),
				"ok":         report.OK(),
			}); err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("check failed: %d malformed, %d mismatched",
					report.Malformed.GetCardinality(), report.Mismatched.GetCardinality())
			}
			return nil
		})
	},
}

func init() {
	insertCmd.Flags().StringVar(&insertTitle, "title", "", "review title")
	insertCmd.Flags().StringVar(&insertBody, "body", "", "review body")
	insertCmd.Flags().StringVar(&insertProduct, "product", "", "product id")
	insertCmd.Flags().Uint8Var(&insertRating, "rating", 0, "rating from 1 to 5")

	searchCmd.Flags().IntVarP(&searchK, "top-k", "k", 0, "number of results (0 uses default_k)")
}
