package report

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	payoutApp "github.com/cassiomorais/payouts/internal/application/payout"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleSummary() *payoutApp.BatchSummary {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &payoutApp.BatchSummary{
		Cutoff:     cutoff,
		StartedAt:  cutoff.Add(time.Hour),
		FinishedAt: cutoff.Add(time.Hour + time.Minute),
		Selected:   2,
		Processed:  2,
		Succeeded:  1,
		Failed:     1,
		Results: []*payoutApp.Result{
			{PayoutID: uuid.New(), SellerID: "S1", OrderID: "ORD-1", Status: payout.StatusPaid, ProviderRef: "ref-1", Attempts: 1},
			{PayoutID: uuid.New(), SellerID: "S2", OrderID: "ORD-1", Status: payout.StatusFailed, FailureReason: "invalid IBAN", Attempts: 1},
		},
	}
}

func TestWriteBatchReport(t *testing.T) {
	s := sampleSummary()
	var buf bytes.Buffer
	require.NoError(t, WriteBatchReport(&buf, s))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ResultsSheet, SummarySheet}, f.GetSheetList())

	rows, err := f.GetRows(ResultsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Payout ID", rows[0][0])
	assert.Equal(t, s.Results[0].PayoutID.String(), rows[1][0])
	assert.Equal(t, "paid", rows[1][3])
	assert.Equal(t, "ref-1", rows[1][4])
	assert.Equal(t, "invalid IBAN", rows[2][5])

	cutoff, err := f.GetCellValue(SummarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T00:00:00Z", cutoff)
	failed, err := f.GetCellValue(SummarySheet, "B7")
	require.NoError(t, err)
	assert.Equal(t, "1", failed)
}

func TestSaveBatchReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)))
	assert.Equal(t, "payout_batch_20260301_123000.xlsx", filepath.Base(path))

	require.NoError(t, SaveBatchReport(path, &payoutApp.BatchSummary{}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(ResultsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
