package utils

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradePilot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []domain.ExecutionResult {
	at := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	sig := domain.TradingSignal{ID: "sig-1", Symbol: "AAPL", Side: domain.Buy, EntryPrice: 190.5, StrategyName: "ma_rsi", GeneratedAt: at}
	return []domain.ExecutionResult{
		{Signal: sig, Status: domain.StatusExecuted, RiskCheckPassed: true, PositionSize: 5, OrderID: "PAPER-000001", QualityScore: 0.62, AllowedFraction: 0.1, StopLoss: 180.975, CreatedAt: at, CompletedAt: at.Add(time.Second)},
		{Signal: sig, Status: domain.StatusRejected, RejectionReason: "quality below minimum", QualityScore: 0.2, CreatedAt: at},
	}
}

func TestWriteResultsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResultsCSV(&buf, sampleResults()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, resultsHeader, records[0])

	assert.Equal(t, []string{
		"2024-06-03T14:00:00Z", "2024-06-03T14:00:01Z", "sig-1", "ma_rsi", "AAPL", "BUY", "EXECUTED",
		"true", "5", "190.5", "180.975", "0.62", "0.1", "PAPER-000001", "",
	}, records[1])
	assert.Equal(t, "", records[2][1], "zero completion time is left blank")
	assert.Equal(t, "quality below minimum", records[2][14])
}

func TestWriteResultsToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, WriteResultsToCSV(sampleResults(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "PAPER-000001")

	assert.Error(t, WriteResultsToCSV(nil, filepath.Join(t.TempDir(), "missing", "x.csv")))
}
