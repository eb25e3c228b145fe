package acquire

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/violation-cli/internal/model"
)

type fakeFetcher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	fail     map[string]bool
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	if f.fail[rawURL] {
		return nil, eris.New("fetcher: status 404")
	}
	return []byte("%PDF-1.4 " + rawURL), nil
}

type fakeArtifacts struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (f *fakeArtifacts) PutArtifact(_ context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[key] = data
	return "/artifacts/" + key + ".pdf", nil
}

func completeRecords(n int) []model.Violation {
	out := make([]model.Violation, n)
	for i := range out {
		summons := fmt.Sprintf("80000000%02d", i)
		out[i] = structuredRecord(summons, "NO PARKING", "https://example.test/img/"+summons)
	}
	return out
}

func TestAcquire_ArtifactsCappedAndBounded(t *testing.T) {
	src := &fakeSource{fn: func(context.Context, string, string) ([]model.Violation, error) {
		return completeRecords(6), nil
	}}
	f := &fakeFetcher{}
	a := &fakeArtifacts{}

	o := New(src, Config{MaxArtifacts: 4, ArtifactConcurrency: 2}, WithArtifacts(f, a))
	res, err := o.Acquire(context.Background(), "ABC1234", "NY")

	require.NoError(t, err)
	assert.Equal(t, int32(4), f.calls.Load())
	assert.LessOrEqual(t, f.peak.Load(), int32(2))
	require.Len(t, res.Artifacts, 4)
	assert.InDelta(t, 1.0, model.ArtifactSuccessRate(res.Artifacts), 0.001)
	assert.Empty(t, res.Warnings)

	withPath := 0
	for _, v := range res.Violations {
		if v.LocalArtifactPath != "" {
			withPath++
			assert.Equal(t, "/artifacts/"+v.IdentityKey+".pdf", v.LocalArtifactPath)
		}
	}
	assert.Equal(t, 4, withPath)
	for _, out := range res.Artifacts {
		assert.True(t, out.Success)
		assert.Positive(t, out.Size)
	}
}

func TestAcquire_ArtifactFailuresAreRecorded(t *testing.T) {
	records := completeRecords(3)
	src := &fakeSource{fn: func(context.Context, string, string) ([]model.Violation, error) {
		return records, nil
	}}
	failURL := records[1].ArtifactURL
	f := &fakeFetcher{fail: map[string]bool{failURL: true}}

	res, err := New(src, Config{MaxArtifacts: 10}, WithArtifacts(f, &fakeArtifacts{})).
		Acquire(context.Background(), "ABC1234", "NY")

	require.NoError(t, err)
	require.Len(t, res.Artifacts, 3)
	assert.InDelta(t, 2.0/3.0, model.ArtifactSuccessRate(res.Artifacts), 0.001)
	require.Len(t, res.Warnings, 1)
	assert.True(t, strings.HasPrefix(res.Warnings[0], "1 of 3"))

	for _, out := range res.Artifacts {
		if out.URL == failURL {
			assert.False(t, out.Success)
			assert.Contains(t, out.Error, "404")
		}
	}
	failed := findViolation(t, res.Violations, records[1].IdentityKey)
	assert.Empty(t, failed.LocalArtifactPath)
}

func TestAcquire_ArtifactsDisabled(t *testing.T) {
	src := &fakeSource{fn: func(context.Context, string, string) ([]model.Violation, error) {
		return completeRecords(2), nil
	}}
	f := &fakeFetcher{}

	res, err := New(src, Config{MaxArtifacts: 0}, WithArtifacts(f, &fakeArtifacts{})).
		Acquire(context.Background(), "ABC1234", "NY")

	require.NoError(t, err)
	assert.Empty(t, res.Artifacts)
	assert.Equal(t, int32(0), f.calls.Load())
}
