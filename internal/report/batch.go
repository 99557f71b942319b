package report

import (
	"fmt"
	"io"
	"time"

	payoutApp "github.com/cassiomorais/payouts/internal/application/payout"
	"github.com/xuri/excelize/v2"
)

const (
	ResultsSheet = "Results"
	SummarySheet = "Summary"
)

var resultHeaders = []string{"Payout ID", "Seller", "Order", "Status", "Provider Ref", "Failure Reason", "Attempts", "In Progress"}

// BatchReport renders a batch run as an XLSX workbook.
func BatchReport(s *payoutApp.BatchSummary) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(ResultsSheet)
	if err != nil {
		return nil, fmt.Errorf("create results sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	for i, h := range resultHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(ResultsSheet, cell, h); err != nil {
			return nil, err
		}
	}

	for i, r := range s.Results {
		row := i + 2
		values := []any{
			r.PayoutID.String(), r.SellerID, r.OrderID, string(r.Status),
			r.ProviderRef, r.FailureReason, r.Attempts, r.InProgress,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(ResultsSheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	summary := [][2]any{
		{"Cutoff", s.Cutoff.UTC().Format(time.RFC3339)},
		{"Started", s.StartedAt.UTC().Format(time.RFC3339)},
		{"Finished", s.FinishedAt.UTC().Format(time.RFC3339)},
		{"Selected", s.Selected},
		{"Processed", s.Processed},
		{"Succeeded", s.Succeeded},
		{"Failed", s.Failed},
		{"Skipped", s.Skipped},
		{"Cancelled", s.Cancelled},
	}
	for i, kv := range summary {
		if err := f.SetCellValue(SummarySheet, fmt.Sprintf("A%d", i+1), kv[0]); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(SummarySheet, fmt.Sprintf("B%d", i+1), kv[1]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// WriteBatchReport streams the workbook to w.
func WriteBatchReport(w io.Writer, s *payoutApp.BatchSummary) error {
	f, err := BatchReport(s)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write batch report: %w", err)
	}
	return nil
}

// SaveBatchReport writes the workbook to path.
func SaveBatchReport(path string, s *payoutApp.BatchSummary) error {
	f, err := BatchReport(s)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save batch report: %w", err)
	}
	return nil
}

// FileName is the default report name for a batch finished at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("payout_batch_%s.xlsx", t.UTC().Format("20060102_150405"))
}
