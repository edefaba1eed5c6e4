package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-costing/internal/costing"
)

// Exit codes returned by ReportCommand.
const (
	ExitOK       = 0
	ExitError    = 1
	ExitInvalid  = 2
	ExitWarnings = 10
)

// ReportGenerator produces consumption reports.
type ReportGenerator interface {
	GenerateConsumptionReport(ctx context.Context, req costing.ReportRequest) (costing.Report, error)
}

// ReportOptions defines available flags for the report command.
type ReportOptions struct {
	TenantID   int64
	Start      string
	End        string
	Query      string
	ProductIDs []int64
	CategoryID int64
	JSONOutput bool
	// Strict turns any report warning into a non-zero exit.
	Strict bool
	Stdout io.Writer
	Stderr io.Writer
}

// ConsumptionCLI prints consumption reports for operators.
type ConsumptionCLI struct {
	generator ReportGenerator
}

// NewConsumptionCLI constructs the helper.
func NewConsumptionCLI(generator ReportGenerator) (*ConsumptionCLI, error) {
	if generator == nil {
		return nil, errors.New("consumption cli: generator is required")
	}
	return &ConsumptionCLI{generator: generator}, nil
}

// ReportCommand generates a report and prints it as text or JSON.
func (c *ConsumptionCLI) ReportCommand(ctx context.Context, opts ReportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.TenantID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "report: --tenant is required and must be positive")
		return ExitInvalid
	}
	req := costing.ReportRequest{
		TenantID:   opts.TenantID,
		Start:      strings.TrimSpace(opts.Start),
		End:        strings.TrimSpace(opts.End),
		NameFilter: strings.TrimSpace(opts.Query),
		ProductIDs: opts.ProductIDs,
	}
	if opts.CategoryID > 0 {
		id := opts.CategoryID
		req.SalesCategoryID = &id
	}

	report, err := c.generator.GenerateConsumptionReport(ctx, req)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "report: %v\n", err)
		var ve *costing.ValidationError
		if errors.As(err, &ve) {
			return ExitInvalid
		}
		return ExitError
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "report: encode json: %v\n", err)
			return ExitError
		}
	} else {
		renderReportHuman(opts.Stdout, report)
	}
	if opts.Strict && len(report.Warnings) > 0 {
		return ExitWarnings
	}
	return ExitOK
}

func renderReportHuman(out io.Writer, report costing.Report) {
	_, _ = fmt.Fprintf(out, "Consumption for tenant %d, %s to %s (%s)\n", report.TenantID, report.Start, report.End, report.Timezone)
	_, _ = fmt.Fprintf(out, "Sold line items: %d\n\n", report.SoldLineItems)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, cat := range report.Categories {
		_, _ = fmt.Fprintf(tw, "%s\t\t\t%s\n", cat.Name, cat.SubtotalCost.StringFixed(2))
		for _, item := range cat.Items {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", item.IngredientName, item.ConsumedAmount.String(), item.UnitLabel, item.TotalCost.StringFixed(2))
		}
	}
	_, _ = fmt.Fprintf(tw, "TOTAL\t\t\t%s\n", report.GrandTotalCost.StringFixed(2))
	if report.FilteredTotalCost != nil {
		_, _ = fmt.Fprintf(tw, "FILTERED\t\t\t%s\n", report.FilteredTotalCost.StringFixed(2))
	}
	_ = tw.Flush()

	if len(report.Warnings) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\n%d warning(s):\n", len(report.Warnings))
	for _, w := range report.Warnings {
		_, _ = fmt.Fprintf(out, " - [%s/%s] %s\n", w.Kind, w.Code, w.Message)
	}
}
