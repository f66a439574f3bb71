package ingest

import (
	"context"
	"testing"

	"github.com/sumav/sumav/internal/graph"
)

func TestNone_FetchProducesNothing(t *testing.T) {
	var got []*graph.Detection
	err := None{}.Fetch(context.Background(), "", func(d *graph.Detection) error {
		got = append(got, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no detections from the none source, got %d", len(got))
	}
}

func TestVT_FetchTokenizesRecords(t *testing.T) {
	src := VT{Records: []VTRecord{
		{MD5: "m1", SHA256: "s1", Detections: map[string]string{"eng1": "Win32/Nabucur"}, GroundTruth: "nabucur"},
	}}

	var got []*graph.Detection
	err := src.Fetch(context.Background(), "", func(d *graph.Detection) error {
		got = append(got, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(got))
	}
	if got[0].MD5 != "m1" || got[0].GroundTruth != "nabucur" {
		t.Errorf("unexpected detection: %+v", got[0])
	}
	if len(got[0].Tokens) == 0 {
		t.Errorf("expected tokens to be populated from the verdict string")
	}
}
