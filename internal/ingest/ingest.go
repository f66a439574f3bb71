// Package ingest is a narrow adaptor layer turning an external source
// (a VirusTotal file-feed archive, or nothing at all for local testing)
// into Detection rows. spec.md treats ingestion adaptors as an external
// collaborator through a narrow interface, so this package is deliberately
// thin: it is not part of the core token-graph algorithms.
package ingest

import (
	"context"

	"github.com/sumav/sumav/internal/graph"
	"github.com/sumav/sumav/internal/tokenizer"
)

// Source produces Detection rows to append to the Detection Store.
type Source interface {
	// Name identifies the source. No code in this repository writes it to
	// the ingestion_log table.
	Name() string

	// Fetch streams detections from path (a file or directory, source
	// dependent) to the given sink. The sink's error, if any, stops
	// iteration and is returned.
	Fetch(ctx context.Context, path string, sink func(*graph.Detection) error) error
}

// None is a no-op source: `sumav build none` builds from whatever is
// already in the Detection Store, useful for local development and tests.
type None struct{}

func (None) Name() string { return "none" }

func (None) Fetch(ctx context.Context, path string, sink func(*graph.Detection) error) error {
	return nil
}

// VTRecord is one minimal VirusTotal-style file-feed record: a content hash
// plus per-engine verdict strings. Real VT feed parsing (JSON/CSV framing,
// pagination, API auth) lives outside this package's narrow contract.
type VTRecord struct {
	MD5            string
	SHA256         string
	SubmissionDate int64
	Detections     map[string]string
	GroundTruth    string
}

// VT adapts a sequence of VTRecord values (already parsed from a feed
// archive by an out-of-scope collaborator) into tokenized Detection rows.
type VT struct {
	Records []VTRecord
}

func (VT) Name() string { return "vt" }

func (v VT) Fetch(ctx context.Context, path string, sink func(*graph.Detection) error) error {
	for _, r := range v.Records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		verdicts := make([]string, 0, len(r.Detections))
		for _, v := range r.Detections {
			verdicts = append(verdicts, v)
		}

		d := &graph.Detection{
			MD5:            r.MD5,
			SHA256:         r.SHA256,
			SubmissionDate: r.SubmissionDate,
			Detections:     r.Detections,
			Tokens:         tokenizer.Tokens(verdicts),
			UniqueTokens:   tokenizer.UniqueTokens(verdicts),
			GroundTruth:    r.GroundTruth,
		}
		if err := sink(d); err != nil {
			return err
		}
	}
	return nil
}
