package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexcolls/oriane-sub000/pkg/pipeline"
)

type fakeVideoSource struct {
	local map[string]string
	// downloadFail names codes whose Download call returns ErrVideoNotFound.
	downloadFail map[string]bool
	downloads    []string
}

func (f *fakeVideoSource) LocalPath(platform, code string) (string, bool) {
	p, ok := f.local[code]
	return p, ok
}

func (f *fakeVideoSource) Download(ctx context.Context, platform, code string) (string, error) {
	f.downloads = append(f.downloads, code)
	if f.downloadFail[code] {
		return "", ErrVideoNotFound
	}
	return "/tmp/" + code + ".mp4", nil
}

type fakeFrameSink struct {
	uploaded []string
	failCode string
}

func (f *fakeFrameSink) UploadFrame(ctx context.Context, platform, code string, frameNumber int, frameSecond float64, data []byte) error {
	if code == f.failCode {
		return errUpload("upload failed for " + code)
	}
	f.uploaded = append(f.uploaded, code)
	return nil
}

type errUpload string

func (e errUpload) Error() string { return string(e) }

type fakeErrorSink struct {
	recorded map[string]string
}

func (f *fakeErrorSink) InsertError(ctx context.Context, code, errText string) error {
	if f.recorded == nil {
		f.recorded = map[string]string{}
	}
	f.recorded[code] = errText
	return nil
}

func beaconLines(t *testing.T, buf *bytes.Buffer) []int {
	t.Helper()
	var out []int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var payload struct {
			ItemDone int `json:"item_done"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &payload))
		out = append(out, payload.ItemDone)
	}
	return out
}

func TestRunBatch_AllItemsSucceedEmitsBeaconsAndReturnsTrue(t *testing.T) {
	videos := &fakeVideoSource{local: map[string]string{"A": "/local/a.mp4", "B": "/local/b.mp4"}}
	frames := &fakeFrameSink{}
	errs := &fakeErrorSink{}
	d := New(videos, frames, &pipeline.Stub{FramesPerItem: 2}, errs, Config{})

	var stdout, stderr bytes.Buffer
	d.stdout = &stdout
	d.stderr = &stderr

	ok := d.RunBatch(context.Background(), []Item{{Platform: "instagram", Code: "A"}, {Platform: "instagram", Code: "B"}})

	assert.True(t, ok)
	assert.Equal(t, []int{1, 2}, beaconLines(t, &stdout))
	assert.Empty(t, stderr.String())
	assert.ElementsMatch(t, []string{"A", "A", "B", "B"}, frames.uploaded)
	assert.Empty(t, errs.recorded)
}

// TestRunBatch_OneItemFailsContinuesAndRecordsError covers spec.md §4.6
// step 5: a failing item doesn't abort the batch, and RunBatch reports
// overall failure.
func TestRunBatch_OneItemFailsContinuesAndRecordsError(t *testing.T) {
	videos := &fakeVideoSource{local: map[string]string{"A": "/local/a.mp4", "B": "/local/b.mp4", "C": "/local/c.mp4"}}
	frames := &fakeFrameSink{}
	errs := &fakeErrorSink{}
	pl := &pipeline.Stub{FailCodes: map[string]bool{"B": true}}
	d := New(videos, frames, pl, errs, Config{})

	var stdout, stderr bytes.Buffer
	d.stdout = &stdout
	d.stderr = &stderr

	ok := d.RunBatch(context.Background(), []Item{
		{Platform: "instagram", Code: "A"},
		{Platform: "instagram", Code: "B"},
		{Platform: "instagram", Code: "C"},
	})

	assert.False(t, ok)
	assert.Equal(t, []int{1, 2}, beaconLines(t, &stdout))
	assert.Contains(t, errs.recorded, "B")
	assert.Contains(t, stderr.String(), "instagram/B")
}

func TestRunBatch_DownloadsWhenNoLocalPath(t *testing.T) {
	videos := &fakeVideoSource{local: map[string]string{}}
	frames := &fakeFrameSink{}
	d := New(videos, frames, &pipeline.Stub{}, &fakeErrorSink{}, Config{})

	var stdout, stderr bytes.Buffer
	d.stdout = &stdout
	d.stderr = &stderr

	ok := d.RunBatch(context.Background(), []Item{{Platform: "instagram", Code: "A"}})

	assert.True(t, ok)
	assert.Equal(t, []string{"A"}, videos.downloads)
}

func TestRunBatch_MissingRemoteVideoFailsItem(t *testing.T) {
	videos := &fakeVideoSource{local: map[string]string{}, downloadFail: map[string]bool{"A": true}}
	frames := &fakeFrameSink{}
	errs := &fakeErrorSink{}
	d := New(videos, frames, &pipeline.Stub{}, errs, Config{})

	var stdout, stderr bytes.Buffer
	d.stdout = &stdout
	d.stderr = &stderr

	ok := d.RunBatch(context.Background(), []Item{{Platform: "instagram", Code: "A"}})

	assert.False(t, ok)
	assert.Empty(t, beaconLines(t, &stdout))
	assert.Contains(t, errs.recorded["A"], ErrVideoNotFound.Error())
}

// TestRunBatch_FrameUploadFailureFailsItem checks that
// a frame-upload error surfaces as the item's failure even though the
// embedding-upsert goroutine ran concurrently.
func TestRunBatch_FrameUploadFailureFailsItem(t *testing.T) {
	videos := &fakeVideoSource{local: map[string]string{"A": "/local/a.mp4"}}
	frames := &fakeFrameSink{failCode: "A"}
	errs := &fakeErrorSink{}
	d := New(videos, frames, &pipeline.Stub{FramesPerItem: 3}, errs, Config{})

	var stdout, stderr bytes.Buffer
	d.stdout = &stdout
	d.stderr = &stderr

	ok := d.RunBatch(context.Background(), []Item{{Platform: "instagram", Code: "A"}})

	assert.False(t, ok)
	assert.Contains(t, errs.recorded["A"], "upload failed")
}

func TestRunBatch_EmptyBatchSucceeds(t *testing.T) {
	d := New(&fakeVideoSource{}, &fakeFrameSink{}, &pipeline.Stub{}, &fakeErrorSink{}, Config{})
	var stdout, stderr bytes.Buffer
	d.stdout = &stdout
	d.stderr = &stderr

	ok := d.RunBatch(context.Background(), nil)
	assert.True(t, ok)
	assert.Empty(t, stdout.String())
}
