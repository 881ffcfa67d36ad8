package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orpheus-ai/orpheus/pkg/abc"
	"github.com/orpheus-ai/orpheus/pkg/models"
)

const tune = "X:1\nT:Morning Reel\nM:4/4\nL:1/8\nK:D\nDFAd fdAF | GBdg fdAF |"

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

type fakeEnhancer struct {
	result models.EnhancementResult
	err    error
	reqs   []models.EnhancementRequest
}

func (f *fakeEnhancer) Enhance(_ context.Context, req models.EnhancementRequest) (models.EnhancementResult, error) {
	f.reqs = append(f.reqs, req)
	return f.result, f.err
}

type fakeBudget struct{ limit float64 }

func (f *fakeBudget) SetSessionLimit(limit float64) { f.limit = limit }

type fakeEndpoint struct {
	keepAlive time.Duration
	shutdowns int
}

func (f *fakeEndpoint) SetKeepAlive(d time.Duration) { f.keepAlive = d }

func (f *fakeEndpoint) Shutdown(context.Context) error {
	f.shutdowns++
	return nil
}

type failingRenderer struct {
	inner Renderer
	fail  string
}

func (r failingRenderer) Render(ctx context.Context, content, dir, base string) (models.OutputBundle, error) {
	if filepath.Base(dir) == r.fail {
		return models.OutputBundle{}, errors.New("converter crashed")
	}
	return r.inner.Render(ctx, content, dir, base)
}

func enhancedResult() models.EnhancementResult {
	return models.Enhanced("X:1\nT:Morning Reel (arr.)\nM:4/4\nL:1/8\nK:D\n\"D\"DFAd \"A\"fdAF |", 15*time.Second, 0.05)
}

func newPipeline(r Renderer, e Enhancer, opts ...Option) *Pipeline {
	base := []Option{WithClock(func() time.Time { return fixedNow })}
	if e != nil {
		base = append(base, WithEnhancer(e))
	}
	return New(r, append(base, opts...)...)
}

func readReport(t *testing.T, res ProcessResult) string {
	t.Helper()
	require.NotEmpty(t, res.ReportFile)
	data, err := os.ReadFile(res.ReportFile)
	require.NoError(t, err)
	return string(data)
}

func TestProcessOriginalOnly(t *testing.T) {
	out := t.TempDir()
	p := newPipeline(abc.NewRenderer(), nil)

	res, err := p.Process(context.Background(), Item{Content: tune}, Options{OutputDir: out})
	require.NoError(t, err)

	assert.Equal(t, "morning_reel", res.Name)
	require.NotNil(t, res.Original)
	assert.FileExists(t, filepath.Join(out, "original", "morning_reel.abc"))
	assert.FileExists(t, filepath.Join(out, "original", "morning_reel.mid"))
	assert.Nil(t, res.Enhancement)
	assert.False(t, res.Failed())

	report := readReport(t, res)
	assert.Equal(t, filepath.Join(out, "generation_report.md"), res.ReportFile)
	assert.Contains(t, report, "[morning_reel.abc](original/morning_reel.abc)")
	assert.Contains(t, report, "Enhancement not requested.")
}

func TestProcessEnhanced(t *testing.T) {
	out := t.TempDir()
	enh := &fakeEnhancer{result: enhancedResult()}
	p := newPipeline(abc.NewRenderer(), enh, WithEstimatedCost(0.25))

	res, err := p.Process(context.Background(), Item{Content: tune, Name: "reel"}, Options{
		OutputDir:    out,
		Enhance:      true,
		CustomPrompt: "add a bass line",
	})
	require.NoError(t, err)

	require.Len(t, enh.reqs, 1)
	assert.Equal(t, models.EnhancementRequest{
		Content: tune, CreationName: "reel", CustomPrompt: "add a bass line", EstimatedCost: 0.25,
	}, enh.reqs[0])

	require.NotNil(t, res.Enhanced)
	assert.Equal(t, filepath.Join(out, "enhanced", "reel_enhanced.abc"), res.Enhanced.ContentFile)
	assert.FileExists(t, filepath.Join(out, "enhanced", "reel_enhanced.mid"))
	assert.InDelta(t, 0.05, res.Spend(), 1e-12)

	report := readReport(t, res)
	assert.Contains(t, report, "## Enhanced Version")
	assert.Contains(t, report, "- **Processing Time**: 15.0s")
	assert.Contains(t, report, "- **Cost**: $0.050")
	assert.Contains(t, report, "(enhanced/reel_enhanced.abc)")
}

func TestProcessDeclineIsRecordedVerbatim(t *testing.T) {
	out := t.TempDir()
	enh := &fakeEnhancer{result: models.Declined(models.DeclineRemoteError, "endpoint: boot timed out after 10m0s")}
	p := newPipeline(abc.NewRenderer(), enh)

	res, err := p.Process(context.Background(), Item{Content: tune, Name: "reel"}, Options{OutputDir: out, Enhance: true})
	require.NoError(t, err)

	assert.NotNil(t, res.Original)
	assert.Nil(t, res.Enhanced)
	require.NotNil(t, res.Enhancement)
	assert.Equal(t, models.DeclineRemoteError, res.Enhancement.Reason)
	assert.False(t, res.Failed())
	assert.NoDirExists(t, filepath.Join(out, "enhanced"))

	report := readReport(t, res)
	assert.Contains(t, report, "**Enhancement declined**: error: endpoint: boot timed out after 10m0s")
}

func TestScenarioOriginalFailsEnhancedSucceeds(t *testing.T) {
	out := t.TempDir()
	enh := &fakeEnhancer{result: enhancedResult()}
	r := failingRenderer{inner: abc.NewRenderer(), fail: "original"}
	p := newPipeline(r, enh)

	res, err := p.Process(context.Background(), Item{Content: tune, Name: "reel"}, Options{OutputDir: out, Enhance: true})
	require.NoError(t, err)

	assert.Nil(t, res.Original)
	assert.Equal(t, "converter crashed", res.OriginalError)
	require.NotNil(t, res.Enhanced)
	assert.False(t, res.Failed(), "an enhanced bundle keeps the run successful")

	report := readReport(t, res)
	assert.Contains(t, report, "**Original rendering failed**: converter crashed")
	assert.Contains(t, report, "## Enhanced Version")
	assert.Contains(t, report, "reel_enhanced.abc")
}

func TestInvalidOriginalStillEnhances(t *testing.T) {
	out := t.TempDir()
	enh := &fakeEnhancer{result: enhancedResult()}
	p := newPipeline(abc.NewRenderer(), enh)

	res, err := p.Process(context.Background(), Item{Content: "T:Sketch\nDFA dfa|", Name: "sketch"}, Options{OutputDir: out, Enhance: true})
	require.NoError(t, err)
	assert.Contains(t, res.OriginalError, "missing X:")
	require.NotNil(t, res.Enhanced)
	assert.False(t, res.Failed())
}

func TestProcessFailsWhenNothingRendered(t *testing.T) {
	out := t.TempDir()
	enh := &fakeEnhancer{result: models.Declined(models.DeclineBudgetExceeded, "")}
	r := failingRenderer{inner: abc.NewRenderer(), fail: "original"}
	p := newPipeline(r, enh)

	res, err := p.Process(context.Background(), Item{Content: tune, Name: "reel"}, Options{OutputDir: out, Enhance: true})
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.FileExists(t, res.ReportFile)
}

func TestProcessEnhancedRenderFailureKeepsOriginal(t *testing.T) {
	out := t.TempDir()
	enh := &fakeEnhancer{result: enhancedResult()}
	r := failingRenderer{inner: abc.NewRenderer(), fail: "enhanced"}
	p := newPipeline(r, enh)

	res, err := p.Process(context.Background(), Item{Content: tune, Name: "reel"}, Options{OutputDir: out, Enhance: true})
	require.NoError(t, err)
	assert.NotNil(t, res.Original)
	assert.Nil(t, res.Enhanced)
	assert.Equal(t, "converter crashed", res.EnhancedError)
	assert.Contains(t, readReport(t, res), "**Enhanced rendering failed**: converter crashed")
}

func TestProcessEmptyContent(t *testing.T) {
	p := newPipeline(abc.NewRenderer(), nil)
	_, err := p.Process(context.Background(), Item{Content: "\n "}, Options{OutputDir: t.TempDir()})
	assert.ErrorIs(t, err, abc.ErrNoContent)
}

func TestProcessFatalEnhancerError(t *testing.T) {
	out := t.TempDir()
	enh := &fakeEnhancer{
		result: models.Declined(models.DeclineRemoteError, "spend not recorded"),
		err:    errors.New("record spend: disk full"),
	}
	p := newPipeline(abc.NewRenderer(), enh)

	res, err := p.Process(context.Background(), Item{Content: tune, Name: "reel"}, Options{OutputDir: out, Enhance: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.FileExists(t, res.ReportFile, "report is still written")
}

func TestProcessAppliesOverrides(t *testing.T) {
	b := &fakeBudget{limit: 1}
	e := &fakeEndpoint{}
	p := newPipeline(abc.NewRenderer(), &fakeEnhancer{result: enhancedResult()}, WithBudget(b), WithEndpoint(e))

	_, err := p.Process(context.Background(), Item{Content: tune}, Options{OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 1.0, b.limit, "zero override leaves the limit alone")
	assert.Zero(t, e.keepAlive)

	_, err = p.Process(context.Background(), Item{Content: tune}, Options{
		OutputDir:     t.TempDir(),
		SessionBudget: 2.5,
		KeepAlive:     10 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, 2.5, b.limit)
	assert.Equal(t, 10*time.Minute, e.keepAlive)
	assert.Zero(t, e.shutdowns, "single runs leave the endpoint to the keep-alive decision")
}

func TestFormatReportCachedAndScore(t *testing.T) {
	res := ProcessResult{
		Name:      "reel",
		OutputDir: "/out/reel",
		Original: &models.OutputBundle{
			ContentFile: "/out/reel/original/reel.abc",
			ScoreFile:   "/out/reel/original/reel.svg",
		},
		EnhanceRequested: true,
	}
	cached := models.Enhanced("X:1\nK:D\nD|", 0, 0)
	cached.Cached = true
	res.Enhancement = &cached
	res.Enhanced = &models.OutputBundle{ContentFile: "/out/reel/enhanced/reel_enhanced.abc"}

	report := FormatReport(res, fixedNow)
	assert.True(t, strings.HasPrefix(report, "# Music Generation Report: reel\n"))
	assert.Contains(t, report, "Generated: 2026-03-14T15:09:26Z")
	assert.Contains(t, report, "![Original Score](original/reel.svg)")
	assert.Contains(t, report, "- **Source**: cache")
	assert.Contains(t, report, "- **Cost**: $0.000")
}
