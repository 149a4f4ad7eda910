package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/gridedit/internal/logging"
	"github.com/JonMunkholm/gridedit/internal/table"
	"github.com/JonMunkholm/gridedit/internal/validation"
)

var version = "dev"

// errInvalidRows makes the process exit 1 without an extra error line;
// the report has already been printed.
var errInvalidRows = errors.New("invalid rows")

type validateOptions struct {
	schema   string
	locale   string
	format   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rowcheck",
		Short:         "Validate table rows against a schema document",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newValidateCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate --schema FILE [rows.json]",
		Short: "Validate rows and report field errors",
		Long: `Validate a JSON array of rows against a YAML or JSON schema document.

Rows marked "deleted": true are skipped. The exit status is 1 when any
remaining row fails validation.

Examples:
  # Validate a file
  rowcheck validate --schema people.yaml people.json

  # Read rows from stdin, German messages, JSON report
  cat people.json | rowcheck validate -s people.yaml --locale de -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "-"
			if len(args) == 1 {
				input = args[0]
			}
			return runValidate(cmd, opts, input)
		},
	}
	cmd.Flags().StringVarP(&opts.schema, "schema", "s", "", "schema document (YAML or JSON)")
	cmd.Flags().StringVarP(&opts.locale, "locale", "l", "en", "message language (BCP 47 tag)")
	cmd.Flags().StringVarP(&opts.format, "output", "o", "text", "report format: text or json")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level for diagnostics on stderr")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

// rowReport is one invalid row in the JSON report.
type rowReport struct {
	Index  int               `json:"index"`
	Errors validation.Result `json:"errors"`
}

func runValidate(cmd *cobra.Command, opts *validateOptions, input string) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("--output must be text or json, got %q", opts.format)
	}
	logger := logging.New(cmd.ErrOrStderr(), opts.logLevel, "text")

	schemaDoc, err := os.ReadFile(opts.schema)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	schema, err := validation.DecodeSchema(schemaDoc, validation.NewRegistry())
	if err != nil {
		return err
	}

	rowsDoc, err := readInput(cmd.InOrStdin(), input)
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	var rows []any
	if err := json.Unmarshal(rowsDoc, &rows); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}

	loc := validation.NewCatalog().LocalizerFor(opts.locale)
	t := table.New(table.Options{
		Schema: schema,
		Engine: validation.NewEngine(loc, logger),
		Logger: logger,
	})
	defer t.Close()
	if err := t.SetData(rows); err != nil {
		return err
	}

	invalid := t.ValidateAll()
	indices := make([]int, 0, len(invalid))
	for i := range invalid {
		indices = append(indices, i)
	}
	slices.Sort(indices)

	logger.Debug("validated rows", "rows", t.Len(), "invalid", len(indices), "locale", loc.Tag())

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		report := make([]rowReport, 0, len(indices))
		for _, i := range indices {
			report = append(report, rowReport{Index: i, Errors: invalid[i]})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printText(out, t.Len(), indices, invalid)
	}

	if len(indices) > 0 {
		return errInvalidRows
	}
	return nil
}

func printText(w io.Writer, total int, indices []int, invalid map[int]validation.Result) {
	for _, i := range indices {
		res := invalid[i]
		fields := make([]string, 0, len(res))
		for f := range res {
			fields = append(fields, f)
		}
		slices.Sort(fields)
		for _, f := range fields {
			for _, d := range res[f] {
				fmt.Fprintf(w, "row %d: %s: %s\n", i, f, d.Message)
			}
		}
	}
	fmt.Fprintf(w, "%d of %d rows invalid\n", len(indices), total)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
