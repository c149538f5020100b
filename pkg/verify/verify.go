// Package verify implements C7: confirming a batch's codes landed in the
// vector store, then marking the corresponding source rows is_embedded.
package verify

import (
	"context"

	"github.com/charmbracelet/log"
)

// VectorStore is the subset of pkg/vectorstore.Store this package needs.
type VectorStore interface {
	HasPoint(ctx context.Context, code string) (bool, error)
}

// SourceTable is the subset of pkg/sourcetable.Store this package needs.
type SourceTable interface {
	LookupIDsByCode(ctx context.Context, codes []string) (map[string]int64, error)
	MarkEmbedded(ctx context.Context, ids []int64) error
}

// Verifier ties the vector store and source table together for C7.
type Verifier struct {
	vectors VectorStore
	source  SourceTable
	logger  *log.Logger
}

func New(vectors VectorStore, source SourceTable, logger *log.Logger) *Verifier {
	return &Verifier{vectors: vectors, source: source, logger: logger}
}

// VerifyBatch checks each code independently; a transport error for one
// code yields false for that code without aborting the rest of the batch.
func (v *Verifier) VerifyBatch(ctx context.Context, codes []string) map[string]bool {
	result := make(map[string]bool, len(codes))
	for _, code := range codes {
		ok, err := v.vectors.HasPoint(ctx, code)
		if err != nil {
			v.logger.Warn("verifying code against vector store", "code", code, "error", err)
			result[code] = false
			continue
		}
		result[code] = ok
	}
	return result
}

// MarkEmbedded resolves source-row IDs for codes that verified true and
// bulk-marks them is_embedded. Codes with no source-row mapping are logged
// and skipped.
func (v *Verifier) MarkEmbedded(ctx context.Context, codes []string) error {
	idsByCode, err := v.source.LookupIDsByCode(ctx, codes)
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(codes))
	for _, code := range codes {
		id, ok := idsByCode[code]
		if !ok {
			v.logger.Warn("code has no source-row mapping, skipping mark_embedded", "code", code)
			continue
		}
		ids = append(ids, id)
	}

	return v.source.MarkEmbedded(ctx, ids)
}
