package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/diapredict/diapredict/internal/bootstrap"
	"github.com/diapredict/diapredict/internal/domain"
	"github.com/diapredict/diapredict/internal/validation"
)

// errPredictionFailed has already been reported to stderr
var errPredictionFailed = errors.New("prediction failed")

// flag name -> request field
var fieldFlags = []struct {
	flag  string
	field string
}{
	{"age", validation.FieldAge},
	{"blood-group", validation.FieldBloodGroup},
	{"gender", validation.FieldGender},
	{"weight", validation.FieldWeight},
	{"height", validation.FieldHeight},
}

func newRootCmd() *cobra.Command {
	var configFile string
	values := make(map[string]*string, len(fieldFlags))

	cmd := &cobra.Command{
		Use:   "predict --age N --blood-group G --gender G --weight KG --height CM",
		Short: "Estimate diabetes risk for one patient",
		Long: "Runs a single prediction through the configured AI provider and prints " +
			"the result as JSON. Exits with status 1 on any failure.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       bootstrap.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := make(map[string]interface{}, len(fieldFlags))
			for _, f := range fieldFlags {
				if cmd.Flags().Changed(f.flag) {
					raw[f.field] = *values[f.flag]
				}
			}

			app, err := bootstrap.New(cmd.Context(), configFile)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				return errPredictionFailed
			}
			defer app.Close(context.Background())

			return run(cmd.Context(), app.Predictor, raw, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	for _, f := range fieldFlags {
		values[f.flag] = cmd.Flags().String(f.flag, "", validation.DescribeField(f.field))
	}
	cmd.Flags().StringVar(&configFile, "config", "", "config file (default: ./config.yaml, ./config/config.yaml, /etc/diapredict/config.yaml)")

	return cmd
}

// run predicts and writes the JSON result to out. Failures are written
// to errOut as the same body the HTTP API returns, with validation
// messages listed per field.
func run(ctx context.Context, predictor domain.Predictor, raw map[string]interface{}, out, errOut io.Writer) error {
	result, err := predictor.Predict(ctx, raw)
	if err != nil {
		reportError(errOut, err)
		return errPredictionFailed
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

func reportError(w io.Writer, err error) {
	var inputErr *domain.InputValidationError
	if errors.As(err, &inputErr) {
		fmt.Fprintln(w, domain.MsgInvalidInput+":")
		for _, field := range inputErr.Fields.Fields() {
			for _, msg := range inputErr.Fields[field] {
				fmt.Fprintf(w, "  %s: %s\n", field, msg)
			}
		}
		return
	}

	body := domain.NewErrorResponse(err)
	fmt.Fprintf(w, "%s: %v\n", body.Error, body.Details)
}
