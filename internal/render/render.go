// Package render draws trend maps and station charts as PNG images.
package render

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/couchcryptid/rainfall-trend-etl/internal/aggregate"
	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
	"github.com/couchcryptid/rainfall-trend-etl/internal/observability"
	"github.com/couchcryptid/rainfall-trend-etl/internal/spatial"
)

// Artifact kinds, used as metric labels.
const (
	ArtifactPoint      = "point"
	ArtifactIDW        = "idw"
	ArtifactTimeSeries = "timeseries"
)

// Rolling mean of the monthly chart.
const (
	rollingWindow     = 12
	rollingMinPeriods = 6
)

// Options selects what a Renderer draws.
type Options struct {
	IDW        spatial.IDWOptions
	Seasons    []domain.Season
	TimeSeries bool
}

// Renderer writes every image of a run into one directory. A failed image is
// logged and counted; it never stops the others.
type Renderer struct {
	dir     string
	opts    Options
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRenderer creates a Renderer writing into dir.
func NewRenderer(dir string, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Renderer {
	return &Renderer{dir: dir, opts: opts, metrics: metrics, logger: logger}
}

// Render draws the annual and seasonal point maps, the interpolated annual
// map when a boundary is given, and the station charts. It returns the file
// names written and the failures.
func (r *Renderer) Render(report *domain.Report, boundary *spatial.Boundary) ([]string, error) {
	var (
		written []string
		errs    []error
	)
	emit := func(name, kind string, draw func(io.Writer) error) {
		if err := r.write(name, draw); err != nil {
			r.metrics.RenderErrors.WithLabelValues(kind).Inc()
			r.logger.Warn("render failed", "file", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		r.metrics.MapsRendered.Inc()
		written = append(written, name)
	}

	annual := report.ResultsAt(domain.Annual)
	emit("Rainfall_Trend_Map_Annual.png", ArtifactPoint, func(w io.Writer) error {
		return PointMap(w, annual, boundary, MapOptions{Title: "Annual rainfall trend (Sen's slope)"})
	})

	seasonal := make([][]domain.TrendResult, len(r.opts.Seasons))
	for i, s := range r.opts.Seasons {
		seasonal[i] = report.ResultsAt(domain.SeasonLevel(s.Name))
	}
	vmax := SymmetricMax(seasonal...)
	for i, s := range r.opts.Seasons {
		results := seasonal[i]
		emit("Rainfall_Trend_Map_"+FileSafe(s.Name)+".png", ArtifactPoint, func(w io.Writer) error {
			return PointMap(w, results, boundary, MapOptions{
				Title:    s.Name + " rainfall trend (Sen's slope)",
				Subtitle: s.MonthRange(),
				VMax:     vmax,
			})
		})
	}

	if boundary != nil {
		emit("Rainfall_Trend_IDW_Masked.png", ArtifactIDW, func(w io.Writer) error {
			grid, err := spatial.TrendSurface(annual, boundary, r.opts.IDW)
			if err != nil {
				return err
			}
			return IDWMap(w, grid, boundary, annual, MapOptions{
				Title:    "Interpolated annual rainfall trend (IDW)",
				Subtitle: fmt.Sprintf("power %.1f, radius %.0f km", r.opts.IDW.Power, r.opts.IDW.Radius/1000),
			})
		})
	} else {
		r.logger.Info("no boundary, skipping interpolated map")
	}

	if r.opts.TimeSeries {
		r.renderCharts(report, annual, emit)
	}
	return written, errors.Join(errs...)
}

func (r *Renderer) renderCharts(report *domain.Report, annual []domain.TrendResult, emit func(string, string, func(io.Writer) error)) {
	annualSeries := make(map[string]domain.Series, len(report.Annual))
	for _, s := range report.Annual {
		annualSeries[s.StationID] = s
	}
	monthlySeries := make(map[string]domain.Series, len(report.Monthly))
	for _, s := range report.Monthly {
		monthlySeries[s.StationID] = s
	}

	for _, res := range annual {
		series, ok := annualSeries[res.StationID]
		if !ok {
			continue
		}
		emit(FileSafe(res.StationName)+"_annual_timeseries.png", ArtifactTimeSeries, func(w io.Writer) error {
			return AnnualChart(w, series, res)
		})
	}
	for _, st := range report.Stations {
		monthly, ok := monthlySeries[st.ID]
		if !ok || monthly.Len() == 0 {
			continue
		}
		rolling := aggregate.RollingMean(monthly, rollingWindow, rollingMinPeriods)
		emit(FileSafe(st.DisplayName())+"_monthly_timeseries.png", ArtifactTimeSeries, func(w io.Writer) error {
			return MonthlyChart(w, monthly, rolling, st.DisplayName())
		})
	}
}

// write renders into a file, removing it again if drawing fails.
func (r *Renderer) write(name string, draw func(io.Writer) error) error {
	path := filepath.Join(r.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := draw(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileSafe turns a station or season name into a file name component.
func FileSafe(name string) string {
	s := unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	return strings.Trim(s, "_")
}
