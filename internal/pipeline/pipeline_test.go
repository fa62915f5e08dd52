package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/prepbufr-etl/internal/domain"
	"github.com/couchcryptid/prepbufr-etl/internal/observability"
	"github.com/couchcryptid/prepbufr-etl/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	obs       []domain.Observation
	err       error
	committed bool
}

func (m *mockExtractor) Extract(_ context.Context) ([]domain.Observation, error) {
	return m.obs, m.err
}

func (m *mockExtractor) Commit(_ context.Context) error {
	m.committed = true
	return nil
}

type mockTransformer struct {
	err error
}

func (m *mockTransformer) Transform(_ context.Context, seg domain.Segment) (domain.ReportBatch, []error, error) {
	return domain.ReportBatch{}, nil, m.err
}

type mockLoader struct {
	loaded   []domain.ReportBatch
	calls    int
	failures int // number of leading calls that fail
	err      error
}

func (m *mockLoader) LoadBatch(_ context.Context, batch domain.ReportBatch) error {
	m.calls++
	if m.err != nil && m.calls <= m.failures {
		return m.err
	}
	m.loaded = append(m.loaded, batch)
	return nil
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func newTestPipeline(t *testing.T, ext pipeline.Extractor, ldr pipeline.BatchLoader, metrics *observability.Metrics, combined bool) *pipeline.Pipeline {
	t.Helper()
	b, err := domain.NewBucketer(6, domain.AlignCycle)
	require.NoError(t, err)
	return pipeline.New(ext, pipeline.NewTransformer(nil), ldr, slog.Default(), metrics, pipeline.Options{
		Bucketer:    b,
		Combined:    combined,
		LoadBackoff: time.Millisecond,
	})
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

// balloonTrack returns n complete observations for one platform starting at
// start and spaced step apart.
func balloonTrack(platform string, start time.Time, step time.Duration, n int) []domain.Observation {
	obs := make([]domain.Observation, 0, n)
	for i := range n {
		ts := start.Add(time.Duration(i) * step)
		obs = append(obs, domain.Observation{
			ID:          platform + "-" + ts.Format("150405"),
			Timestamp:   ts.Unix(),
			PlatformID:  platform,
			Latitude:    40 + float64(i)*0.01,
			Longitude:   -105 + float64(i)*0.02,
			Altitude:    domain.Some(1000 + float64(i)*400),
			Pressure:    domain.Some(900 - float64(i)*20),
			Temperature: domain.Some(10 - float64(i)),
			Humidity:    domain.Some(50),
			SpeedU:      domain.Some(5),
			SpeedV:      domain.Some(-2),
		})
	}
	return obs
}

var trackStart = time.Date(2024, time.April, 26, 1, 0, 0, 0, time.UTC)

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	ext := &mockExtractor{obs: balloonTrack("W-1", trackStart, 41*time.Minute, 20)}
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := newTestPipeline(t, ext, ldr, metrics, false)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	want := []string{"W-1_2024042600", "W-1_2024042606", "W-1_2024042612"}
	if diff := cmp.Diff(want, stats.Batches); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, ldr.loaded, 3)
	assert.Len(t, ldr.loaded[0].Reports, 3)
	assert.Len(t, ldr.loaded[1].Reports, 9)
	assert.Len(t, ldr.loaded[2].Reports, 8)

	assert.Equal(t, 20, stats.Observations)
	assert.Equal(t, 3, stats.Segments)
	assert.Equal(t, 20, stats.Reports)
	assert.Equal(t, 40, stats.SubRecords)
	assert.Zero(t, stats.Warnings)
	assert.NotEmpty(t, stats.RunID)

	for _, batch := range ldr.loaded {
		assert.Equal(t, stats.RunID, batch.RunID)
		assert.Equal(t, "W-1", batch.Group)
		for _, r := range batch.Reports {
			assert.LessOrEqual(t, math.Abs(r.Header.HoursOffset), 3.0, batch.Name)
			assert.Equal(t, "W-1     ", r.Header.PlatformID)
		}
	}

	assert.True(t, ext.committed)
	require.NoError(t, p.CheckReadiness(context.Background()))
	last, ok := p.LastRun()
	require.True(t, ok)
	assert.Equal(t, stats.RunID, last.RunID)
	assert.InDelta(t, 20, counterValue(t, metrics.ObservationsConsumed), 0)
	assert.InDelta(t, 20, counterValue(t, metrics.ReportsProduced), 0)
}

func TestPipeline_Run_PerPlatformStreams(t *testing.T) {
	obs := append(
		balloonTrack("W-1", trackStart, time.Hour, 3),
		balloonTrack("W-2", trackStart.Add(30*time.Minute), time.Hour, 3)...,
	)
	ldr := &mockLoader{}
	p := newTestPipeline(t, &mockExtractor{obs: obs}, ldr, newTestMetrics(), false)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	want := []string{"W-1_2024042600", "W-1_2024042606", "W-2_2024042600", "W-2_2024042606"}
	if diff := cmp.Diff(want, stats.Batches); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}
	for _, batch := range ldr.loaded {
		for _, r := range batch.Reports {
			assert.Equal(t, domain.PadPlatformID(batch.Group), r.Header.PlatformID)
		}
	}
}

func TestPipeline_Run_Combined(t *testing.T) {
	obs := append(
		balloonTrack("W-1", trackStart, time.Hour, 3),
		balloonTrack("W-2", trackStart.Add(30*time.Minute), time.Hour, 3)...,
	)
	ldr := &mockLoader{}
	p := newTestPipeline(t, &mockExtractor{obs: obs}, ldr, newTestMetrics(), true)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"2024042600", "2024042606"}, stats.Batches); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, ldr.loaded, 2)
	assert.Len(t, ldr.loaded[0].Reports, 4)
	assert.Len(t, ldr.loaded[1].Reports, 2)

	// Reports stay in time order across platforms.
	first := ldr.loaded[0].Reports
	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i].Header.HoursOffset, first[i-1].Header.HoursOffset)
	}
	assert.Equal(t, "W-2     ", first[1].Header.PlatformID)
}

func TestPipeline_Run_EmptyInput(t *testing.T) {
	ext := &mockExtractor{}
	ldr := &mockLoader{}
	p := newTestPipeline(t, ext, ldr, newTestMetrics(), false)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Reports)
	assert.Empty(t, stats.Batches)
	assert.Zero(t, ldr.calls)
	assert.True(t, ext.committed)
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ExtractError(t *testing.T) {
	ext := &mockExtractor{err: errors.New("upstream down")}
	ldr := &mockLoader{}
	p := newTestPipeline(t, ext, ldr, newTestMetrics(), false)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: upstream down")
	assert.Zero(t, ldr.calls)
	assert.False(t, ext.committed)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_TransformError(t *testing.T) {
	ext := &mockExtractor{obs: balloonTrack("W-1", trackStart, time.Hour, 2)}
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	b, err := domain.NewBucketer(6, domain.AlignCycle)
	require.NoError(t, err)
	p := pipeline.New(ext, &mockTransformer{err: errors.New("bad segment")}, ldr, slog.Default(), metrics,
		pipeline.Options{Bucketer: b})

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assemble W-1_2024042600")
	assert.Empty(t, ldr.loaded)
	assert.False(t, ext.committed)
	assert.InDelta(t, 1, counterValue(t, metrics.TransformErrors), 0)
}

func TestPipeline_Run_LoadRetrySucceeds(t *testing.T) {
	ext := &mockExtractor{obs: balloonTrack("W-1", trackStart, time.Hour, 2)}
	ldr := &mockLoader{failures: 2, err: errors.New("disk full")}
	p := newTestPipeline(t, ext, ldr, newTestMetrics(), false)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, ldr.calls)
	assert.Len(t, ldr.loaded, 1)
	assert.Equal(t, []string{"W-1_2024042600"}, stats.Batches)
	assert.True(t, ext.committed)
}

func TestPipeline_Run_LoadFailureAbortsRun(t *testing.T) {
	ext := &mockExtractor{obs: balloonTrack("W-1", trackStart, time.Hour, 2)}
	ldr := &mockLoader{failures: 100, err: errors.New("disk full")}
	p := newTestPipeline(t, ext, ldr, newTestMetrics(), false)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, ldr.err)
	assert.Contains(t, err.Error(), "load W-1_2024042600")
	assert.Equal(t, 3, ldr.calls)
	assert.False(t, ext.committed)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_PressureIndeterminateIsWarning(t *testing.T) {
	obs := balloonTrack("W-1", trackStart, time.Hour, 3)
	obs[1].Pressure = domain.None()
	obs[1].Altitude = domain.None()
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := newTestPipeline(t, &mockExtractor{obs: obs}, ldr, metrics, false)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Warnings)
	assert.Equal(t, 3, stats.Reports)
	assert.InDelta(t, 1, counterValue(t, metrics.PressureIndeterminate), 0)

	r := ldr.loaded[0].Reports[1]
	assert.Equal(t, domain.QualityRejected, r.Kinematic.Pressure.Quality)
	assert.False(t, r.Kinematic.WindU.Error.Valid())
	assert.False(t, r.Thermo.Temperature.Error.Valid())
}

func TestPipeline_CheckReadiness_BeforeRun(t *testing.T) {
	p := newTestPipeline(t, &mockExtractor{}, &mockLoader{}, newTestMetrics(), false)
	assert.Error(t, p.CheckReadiness(context.Background()))
	_, ok := p.LastRun()
	assert.False(t, ok)
}

func TestMultiLoader(t *testing.T) {
	a, b := &mockLoader{}, &mockLoader{}
	batch := domain.ReportBatch{Name: "W-1_2024042600"}

	require.NoError(t, pipeline.MultiLoader{a, b}.LoadBatch(context.Background(), batch))
	assert.Len(t, a.loaded, 1)
	assert.Len(t, b.loaded, 1)

	failing := &mockLoader{failures: 1, err: errors.New("boom")}
	c := &mockLoader{}
	err := pipeline.MultiLoader{failing, c}.LoadBatch(context.Background(), batch)
	require.ErrorIs(t, err, failing.err)
	assert.Zero(t, c.calls)
}
