// Package pipeline runs a complete trend analysis: load, aggregate, test,
// write tables, render maps and hand the report to the configured sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchcryptid/rainfall-trend-etl/internal/aggregate"
	"github.com/couchcryptid/rainfall-trend-etl/internal/config"
	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
	"github.com/couchcryptid/rainfall-trend-etl/internal/loader"
	"github.com/couchcryptid/rainfall-trend-etl/internal/observability"
	"github.com/couchcryptid/rainfall-trend-etl/internal/render"
	"github.com/couchcryptid/rainfall-trend-etl/internal/report"
	"github.com/couchcryptid/rainfall-trend-etl/internal/spatial"
	"github.com/couchcryptid/rainfall-trend-etl/internal/trend"
)

// MetricsFile is the Prometheus text snapshot written with every run.
const MetricsFile = "metrics.prom"

// ErrNoResults is returned when no station produced a trend result.
var ErrNoResults = errors.New("no trend results produced")

var (
	errNoCoordinates   = errors.New("no coordinates")
	errOutsideBoundary = errors.New("outside the boundary")
)

// Sink receives the finished report of a run.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, report *domain.Report) error
}

// Options are the inputs and settings of a run.
type Options struct {
	StationMetaPath  string
	DailyPath        string
	BoundaryPath     string // empty skips the interpolated map
	OutputDir        string
	RenderTimeSeries bool
	Analysis         config.Analysis
}

// OptionsFromConfig takes the run options from the service configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		StationMetaPath:  cfg.StationMetaPath,
		DailyPath:        cfg.DailyPath,
		BoundaryPath:     cfg.BoundaryPath,
		OutputDir:        cfg.OutputDir,
		RenderTimeSeries: cfg.RenderTimeSeries,
		Analysis:         cfg.Analysis,
	}
}

// Pipeline orchestrates one batch run.
type Pipeline struct {
	opts     Options
	loader   *loader.Loader
	locator  *Locator
	tables   *report.Writer
	renderer *render.Renderer
	sinks    []Sink
	gatherer prometheus.Gatherer
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates a Pipeline. geocoder may be nil. When gatherer is non-nil its
// metrics are written to the output directory after every run.
func New(opts Options, geocoder domain.Geocoder, sinks []Sink, gatherer prometheus.Gatherer, metrics *observability.Metrics, logger *slog.Logger) *Pipeline {
	a := opts.Analysis
	return &Pipeline{
		opts:    opts,
		loader:  loader.New(logger),
		locator: NewLocator(geocoder, a.Country, logger),
		tables:  report.NewWriter(opts.OutputDir, logger),
		renderer: render.NewRenderer(opts.OutputDir, render.Options{
			IDW:        spatial.IDWOptions{Power: a.IDWPower, Radius: a.SearchRadius, Resolution: a.GridResolution},
			Seasons:    a.Seasons,
			TimeSeries: opts.RenderTimeSeries,
		}, metrics, logger),
		sinks:    sinks,
		gatherer: gatherer,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run executes the analysis once. Station problems become exclusions and map
// or sink failures are logged; the run fails only when the inputs cannot be
// read, no result is produced or a table cannot be written. The report is
// returned whenever tables were written, even alongside ErrNoResults.
func (p *Pipeline) Run(ctx context.Context) (*domain.Report, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	logger.Info("run started", "analysis", p.opts.Analysis.Summary())

	var loaded *loader.Result
	err := p.stage("load", func() error {
		var err error
		loaded, err = p.loader.LoadStations(p.opts.StationMetaPath, p.opts.DailyPath)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}

	rep := &domain.Report{Exclusions: loaded.Exclusions}
	p.countExclusions(loaded.Exclusions)

	_ = p.stage("locate", func() error {
		rep.Stations = p.locator.Locate(ctx, loaded.Stations)
		return nil
	})
	p.metrics.StationsLoaded.Set(float64(len(rep.Stations)))

	_ = p.stage("aggregate", func() error {
		p.aggregate(rep)
		return nil
	})
	_ = p.stage("trend", func() error {
		p.analyze(rep, logger)
		return nil
	})
	boundary := p.boundary(logger)
	p.excludeUnmapped(rep, boundary, logger)

	rep.Run = domain.Run{
		ID:          runID,
		GeneratedAt: domain.Now(),
		Stations:    len(rep.Stations),
		Results:     len(rep.Results),
		Excluded:    len(rep.Exclusions),
		Analysis:    p.opts.Analysis.Summary(),
	}

	if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	err = p.stage("tables", func() error {
		written, err := p.tables.Write(rep)
		rep.Artifacts = append(rep.Artifacts, written...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("write tables: %w", err)
	}
	if len(rep.Results) == 0 {
		p.writeMetrics(rep, logger)
		return rep, ErrNoResults
	}

	_ = p.stage("maps", func() error {
		written, err := p.renderer.Render(rep, boundary)
		rep.Artifacts = append(rep.Artifacts, written...)
		if err != nil {
			logger.Warn("some images were not rendered", "error", err)
		}
		return nil
	})

	p.metrics.LastRunTimestamp.Set(float64(rep.Run.GeneratedAt.Unix()))
	p.writeMetrics(rep, logger)
	p.deliver(ctx, rep, logger)

	logger.Info("run finished",
		"stations", rep.Run.Stations,
		"results", rep.Run.Results,
		"excluded", rep.Run.Excluded,
		"artifacts", len(rep.Artifacts),
	)
	return rep, nil
}

func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

func (p *Pipeline) aggregate(rep *domain.Report) {
	a := p.opts.Analysis
	opts := aggregate.Options{
		Policy:     a.MissingPolicy,
		StartYear:  a.StartYear,
		EndYear:    a.EndYear,
		SeasonYear: a.SeasonYear,
	}
	for _, st := range rep.Stations {
		agg := aggregate.All(st, a.Seasons, opts)
		rep.Monthly = append(rep.Monthly, agg.Monthly)
		rep.Annual = append(rep.Annual, agg.Annual)
		rep.Seasonal = append(rep.Seasonal, agg.Seasonal...)
	}
}

// analyze runs the trend engine on every annual and seasonal series. Results
// are ordered annual first, then season by season, stations in load order.
func (p *Pipeline) analyze(rep *domain.Report, logger *slog.Logger) {
	a := p.opts.Analysis
	opts := trend.Options{Alpha: a.SignificanceLevel, MinPeriods: a.MinPeriods}

	stations := make(map[string]domain.Station, len(rep.Stations))
	for _, st := range rep.Stations {
		stations[st.ID] = st
	}
	seasonIndex := make(map[string]int, len(a.Seasons))
	for i, s := range a.Seasons {
		seasonIndex[s.Name] = i
	}

	byLevel := make([][]domain.TrendResult, 1+len(a.Seasons))
	run := func(series domain.Series, slot int) {
		res, err := trend.Analyze(stations[series.StationID], series, opts)
		if err != nil {
			ex := domain.NewExclusion(series.StationID, series.Level.String(), domain.StageTrend, err)
			rep.Exclusions = append(rep.Exclusions, ex)
			p.countExclusions([]domain.Exclusion{ex})
			logger.Warn("trend not computed", "station", series.StationID, "level", series.Level.String(), "error", err)
			return
		}
		p.metrics.TrendResults.WithLabelValues(res.Level.String(), res.Trend()).Inc()
		byLevel[slot] = append(byLevel[slot], res)
	}

	for _, s := range rep.Annual {
		run(s, 0)
	}
	for _, s := range rep.Seasonal {
		run(s, 1+seasonIndex[s.Level.Season])
	}
	for _, results := range byLevel {
		rep.Results = append(rep.Results, results...)
	}
}

// excludeUnmapped records stations whose results cannot be placed on a map:
// those without coordinates and, when a boundary is loaded, those outside it.
func (p *Pipeline) excludeUnmapped(rep *domain.Report, boundary *spatial.Boundary, logger *slog.Logger) {
	for _, st := range rep.Stations {
		var cause error
		switch {
		case st.Geo.IsZero():
			cause = fmt.Errorf("%w (%s)", errNoCoordinates, st.GeoSource)
		case boundary != nil && !boundary.Contains(orb.Point{st.Geo.Lon, st.Geo.Lat}):
			cause = fmt.Errorf("%w at %.4f°N %.4f°E", errOutsideBoundary, st.Geo.Lat, st.Geo.Lon)
		default:
			continue
		}
		ex := domain.NewExclusion(st.ID, "", domain.StageMap, &domain.DataError{Station: st.ID, Err: cause})
		rep.Exclusions = append(rep.Exclusions, ex)
		p.countExclusions([]domain.Exclusion{ex})
		logger.Warn("station left off maps", "station", st.ID, "geo_source", st.GeoSource, "reason", cause)
	}
}

func (p *Pipeline) countExclusions(exclusions []domain.Exclusion) {
	for _, ex := range exclusions {
		p.metrics.StationsExcluded.WithLabelValues(ex.Stage, ex.Kind).Inc()
	}
}

// boundary loads the country outline. A missing or broken boundary only
// costs the interpolated map.
func (p *Pipeline) boundary(logger *slog.Logger) *spatial.Boundary {
	if p.opts.BoundaryPath == "" {
		return nil
	}
	b, err := spatial.LoadBoundary(p.opts.BoundaryPath)
	if err != nil {
		logger.Warn("boundary unavailable", "path", p.opts.BoundaryPath, "error", err)
		p.metrics.RenderErrors.WithLabelValues(render.ArtifactIDW).Inc()
		return nil
	}
	return b
}

func (p *Pipeline) writeMetrics(rep *domain.Report, logger *slog.Logger) {
	if p.gatherer == nil {
		return
	}
	path := filepath.Join(p.opts.OutputDir, MetricsFile)
	if err := prometheus.WriteToTextfile(path, p.gatherer); err != nil {
		logger.Warn("metrics snapshot not written", "path", path, "error", err)
		return
	}
	rep.Artifacts = append(rep.Artifacts, MetricsFile)
}

// deliver hands the report to every sink. A failing sink does not stop the others.
func (p *Pipeline) deliver(ctx context.Context, rep *domain.Report, logger *slog.Logger) {
	for _, s := range p.sinks {
		err := p.stage("sink_"+s.Name(), func() error {
			return s.Deliver(ctx, rep)
		})
		if err != nil {
			p.metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			logger.Error("sink failed", "sink", s.Name(), "error", err)
		}
	}
}
