package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluate_PerfectAgreement(t *testing.T) {
	samples := []Sample{
		{ID: "1", GroundTruth: "trojan", PredictedLabel: "trojan"},
		{ID: "2", GroundTruth: "trojan", PredictedLabel: "trojan"},
		{ID: "3", GroundTruth: "adware", PredictedLabel: "adware"},
	}

	res := Evaluate(samples)

	require.Equal(t, 100.0, res.Precision)
	require.Equal(t, 100.0, res.Recall)
	require.Equal(t, 100.0, res.FMeasure)
	require.Equal(t, 0, res.Skipped)
	require.GreaterOrEqual(t, res.ARI, 0.99, "expected ~1.0 ARI for perfect agreement")
}

func TestEvaluate_SkipsUnlabeled(t *testing.T) {
	samples := []Sample{
		{ID: "1", GroundTruth: "trojan", PredictedLabel: "trojan"},
		{ID: "2", GroundTruth: "trojan", PredictedLabel: ""},
	}

	res := Evaluate(samples)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 100.0, res.Precision, "only the labeled sample should count")
}

func TestEvaluate_AllSkipped(t *testing.T) {
	samples := []Sample{
		{ID: "1", GroundTruth: "trojan", PredictedLabel: ""},
	}

	res := Evaluate(samples)
	require.Equal(t, 1, res.Skipped)
	require.Zero(t, res.Precision)
	require.Zero(t, res.Recall)
	require.Zero(t, res.FMeasure)
}

func TestEvaluate_MergedClustersLowerPrecision(t *testing.T) {
	// Ground truth has two distinct families; predicted merges them into one
	// label, so precision should drop below 100 while recall stays at 100.
	samples := []Sample{
		{ID: "1", GroundTruth: "trojan", PredictedLabel: "malware"},
		{ID: "2", GroundTruth: "trojan", PredictedLabel: "malware"},
		{ID: "3", GroundTruth: "adware", PredictedLabel: "malware"},
		{ID: "4", GroundTruth: "adware", PredictedLabel: "malware"},
	}

	res := Evaluate(samples)
	require.Less(t, res.Precision, 100.0)
	require.Equal(t, 100.0, res.Recall)
}

func TestEvaluate_SplitClustersLowerRecall(t *testing.T) {
	// Ground truth has one family; predicted splits it into two labels, so
	// recall should drop below 100 while precision stays at 100.
	samples := []Sample{
		{ID: "1", GroundTruth: "trojan", PredictedLabel: "trojan_a"},
		{ID: "2", GroundTruth: "trojan", PredictedLabel: "trojan_a"},
		{ID: "3", GroundTruth: "trojan", PredictedLabel: "trojan_b"},
		{ID: "4", GroundTruth: "trojan", PredictedLabel: "trojan_b"},
	}

	res := Evaluate(samples)
	require.Equal(t, 100.0, res.Precision)
	require.Less(t, res.Recall, 100.0)
}
