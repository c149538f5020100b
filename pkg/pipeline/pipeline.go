// Package pipeline defines the media-pipeline collaborator contract the
// per-batch driver (C6) invokes per item. The actual decode/scene-frame
// selection/dedup/CLIP-embedding work is out of scope (spec.md §1); this
// package only carries the interface and a stub implementation so the
// driver can be exercised without the real pipeline.
package pipeline

import "context"

// Frame is one extracted frame's payload, ready for object-store upload.
type Frame struct {
	Number int     // 1-based
	Second float64 // two-decimal precision
	PNG    []byte
}

// Result is what one item's pipeline invocation produces on success.
type Result struct {
	Frames []Frame
}

// MediaPipeline is the external collaborator contract: given a local
// video file, produce extracted frames and request their embeddings be
// upserted to the vector store. The real implementation lives outside
// this control plane; a caller supplies its own MediaPipeline.
type MediaPipeline interface {
	// Process decodes localVideoPath, selects and deduplicates scene
	// frames, and returns them. It does not itself talk to the object
	// store or vector store — the driver owns those side effects so it
	// can sequence them per spec.md §4.6 step 3.
	Process(ctx context.Context, platform, code, localVideoPath string) (Result, error)

	// UpsertEmbeddings requests that frames be embedded and written to
	// the vector store with deterministic UUIDv5 IDs derived from
	// (code, frame_number) — the read-only contract from spec.md §6.
	UpsertEmbeddings(ctx context.Context, platform, code string, frames []Frame) error
}

// Stub is a MediaPipeline that performs no real extraction; it is useful
// for wiring and testing the driver without the real CV pipeline
// available.
type Stub struct {
	// FramesPerItem is how many synthetic frames Process returns.
	FramesPerItem int
	// FailCodes, when non-empty, names codes whose Process call returns
	// an error, for exercising the driver's per-item failure path.
	FailCodes map[string]bool
}

func (s *Stub) Process(ctx context.Context, platform, code, localVideoPath string) (Result, error) {
	if s.FailCodes[code] {
		return Result{}, errStub("stub pipeline configured to fail for code " + code)
	}

	n := s.FramesPerItem
	if n <= 0 {
		n = 1
	}
	frames := make([]Frame, n)
	for i := 0; i < n; i++ {
		frames[i] = Frame{Number: i + 1, Second: float64(i) * 1.5, PNG: []byte("stub-frame")}
	}
	return Result{Frames: frames}, nil
}

func (s *Stub) UpsertEmbeddings(ctx context.Context, platform, code string, frames []Frame) error {
	return nil
}

type errStub string

func (e errStub) Error() string { return string(e) }
