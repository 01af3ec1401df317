// Package metrics computes availability and response-time rollups from raw
// uptime records and latency samples.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/sla"
	"github.com/pulseboard/pulseboard/internal/telemetry"
	"github.com/rs/zerolog"
)

var (
	// ErrServiceNotFound is returned when the requested service does not exist.
	ErrServiceNotFound = errors.New("service not found")
	// ErrInvalidRange is returned for malformed or empty date ranges.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrInvalidTarget is returned when an SLA target is outside [0,100].
	ErrInvalidTarget = errors.New("invalid SLA target")
)

// Store defines the sample persistence operations the aggregator needs.
type Store interface {
	ServiceExists(ctx context.Context, serviceID string) (bool, error)
	GetUptimeRecords(ctx context.Context, serviceID string, start, end time.Time) ([]*models.UptimeRecord, error)
	GetResponseTimeSamples(ctx context.Context, serviceID string, start, end time.Time) ([]*models.ResponseTimeSample, error)
}

// RollupCache memoizes computed reports. Implementations must be safe for
// concurrent use; a nil cache disables memoization without changing results.
type RollupCache interface {
	GetAvailability(ctx context.Context, key CacheKey) (*models.AvailabilityReport, bool)
	SetAvailability(ctx context.Context, key CacheKey, report *models.AvailabilityReport)
	GetResponseTimes(ctx context.Context, key CacheKey) (*models.ResponseTimeReport, bool)
	SetResponseTimes(ctx context.Context, key CacheKey, report *models.ResponseTimeReport)
	Invalidate(ctx context.Context, serviceID string, day time.Time) int
}

// CacheKey identifies one rollup computation.
type CacheKey struct {
	ServiceID   string
	Start       time.Time
	End         time.Time
	SLATarget   float64
	Granularity string
}

// Config holds aggregation defaults and policy knobs.
type Config struct {
	// DefaultRangeDays is the range used when a query specifies neither
	// days nor explicit dates.
	DefaultRangeDays int
	// DefaultSLATarget is the availability target applied when the query
	// omits one.
	DefaultSLATarget float64
	// DefaultResponseTimeTargetMs is the latency target applied when the
	// query omits one.
	DefaultResponseTimeTargetMs float64
	// ErrorStatusThreshold is the lowest HTTP status counted as an error
	// for error_rate_percentage. Only 5xx are SLA-relevant by default.
	ErrorStatusThreshold int
}

// DefaultConfig returns the standard aggregation configuration.
func DefaultConfig() Config {
	return Config{
		DefaultRangeDays:            90,
		DefaultSLATarget:            99.9,
		DefaultResponseTimeTargetMs: 200,
		ErrorStatusThreshold:        500,
	}
}

// Aggregator turns raw samples into daily/monthly/quarterly rollups with
// percentile, MTTR/MTBF and SLA-compliance statistics.
type Aggregator struct {
	store  Store
	cache  RollupCache
	cfg    Config
	logger zerolog.Logger
}

// NewAggregator creates an Aggregator. cache may be nil.
func NewAggregator(store Store, cache RollupCache, cfg Config, logger zerolog.Logger) *Aggregator {
	if cfg.DefaultRangeDays <= 0 {
		cfg.DefaultRangeDays = 90
	}
	if cfg.DefaultSLATarget == 0 {
		cfg.DefaultSLATarget = 99.9
	}
	if cfg.DefaultResponseTimeTargetMs == 0 {
		cfg.DefaultResponseTimeTargetMs = 200
	}
	if cfg.ErrorStatusThreshold == 0 {
		cfg.ErrorStatusThreshold = 500
	}
	return &Aggregator{
		store:  store,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With().Str("component", "metrics_aggregator").Logger(),
	}
}

// Config returns the aggregator's effective configuration.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// AvailabilityQuery parameterizes an availability rollup. A nil SLATarget
// applies the configured default; an explicit 0 is a valid target.
type AvailabilityQuery struct {
	Start     time.Time
	End       time.Time
	SLATarget *float64
	Quarterly bool
}

// ComputeAvailability computes the availability rollup for a service over a
// date range. Absent data is a normal zero-valued result, never an error.
func (a *Aggregator) ComputeAvailability(ctx context.Context, serviceID string, q AvailabilityQuery) (*models.AvailabilityReport, error) {
	if serviceID == "" {
		return nil, fmt.Errorf("%w: empty service id", ErrServiceNotFound)
	}
	if err := validateRange(q.Start, q.End); err != nil {
		return nil, err
	}
	target := a.cfg.DefaultSLATarget
	if q.SLATarget != nil {
		target = *q.SLATarget
	}
	if target < 0 || target > 100 {
		return nil, fmt.Errorf("%w: %.2f", ErrInvalidTarget, target)
	}

	exists, err := a.store.ServiceExists(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("check service %s: %w", serviceID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
	}

	key := CacheKey{
		ServiceID:   serviceID,
		Start:       truncateDay(q.Start),
		End:         truncateDay(q.End),
		SLATarget:   target,
		Granularity: granularity(q.Quarterly),
	}
	if a.cache != nil {
		if report, ok := a.cache.GetAvailability(ctx, key); ok {
			telemetry.CacheHits.Inc()
			return report, nil
		}
		telemetry.CacheMisses.Inc()
	}

	records, err := a.store.GetUptimeRecords(ctx, serviceID, key.Start, key.End)
	if err != nil {
		return nil, fmt.Errorf("get uptime records for %s: %w", serviceID, err)
	}

	report := a.buildAvailabilityReport(serviceID, key.Start, key.End, target, q.Quarterly, records)

	if a.cache != nil {
		a.cache.SetAvailability(ctx, key, report)
	}

	a.logger.Debug().
		Str("service_id", serviceID).
		Str("range_start", report.RangeStart).
		Str("range_end", report.RangeEnd).
		Int("records", len(records)).
		Msg("computed availability rollup")

	return report, nil
}

func (a *Aggregator) buildAvailabilityReport(serviceID string, start, end time.Time, target float64, quarterly bool, records []*models.UptimeRecord) *models.AvailabilityReport {
	report := &models.AvailabilityReport{
		ServiceID:      serviceID,
		RangeStart:     start.Format(models.DateFormat),
		RangeEnd:       end.Format(models.DateFormat),
		DailyBreakdown: []models.DailyBreakdownEntry{},
		MonthlySummary: []models.MonthlySummary{},
		SLA: models.SLACompliance{
			TargetAvailabilityPercentage: target,
			IsCompliant:                  false,
		},
	}
	if len(records) == 0 {
		return report
	}

	sorted := make([]*models.UptimeRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	observed := make([]*models.UptimeRecord, 0, len(sorted))
	for _, r := range sorted {
		report.TotalDowntimeMinutes += r.DowntimeMinutes
		report.TotalIncidents += r.IncidentCount
		if r.Status.IsObserved() {
			observed = append(observed, r)
		}
	}

	report.Uptime24h = windowAverage(observed, end, 1)
	report.Uptime7d = windowAverage(observed, end, 7)
	report.Uptime30d = windowAverage(observed, end, 30)
	report.OverallAvailabilityPercentage = meanUptime(observed)
	report.MTTRMinutes = computeMTTR(observed)
	report.MTBFHours = computeMTBF(observed)

	// Daily breakdown, newest first.
	for i := len(sorted) - 1; i >= 0; i-- {
		r := sorted[i]
		report.DailyBreakdown = append(report.DailyBreakdown, models.DailyBreakdownEntry{
			Date:             r.Date.Format(models.DateFormat),
			Status:           r.Status,
			UptimePercentage: r.UptimePercentage,
			DowntimeMinutes:  r.DowntimeMinutes,
			IncidentCount:    r.IncidentCount,
		})
	}

	report.MonthlySummary = buildMonthlySummaries(sorted, target)
	if quarterly {
		report.QuarterlySummary = buildQuarterlySummaries(report.MonthlySummary)
	}

	report.SLA = sla.EvaluateAvailability(observedEntries(observed), report.OverallAvailabilityPercentage, target)
	return report
}

// windowAverage averages uptime_percentage over the last n days of the range,
// clipped to available data. A window with zero records yields 0.
func windowAverage(observed []*models.UptimeRecord, end time.Time, days int) float64 {
	winStart := truncateDay(end).AddDate(0, 0, -(days - 1))
	var sum float64
	var count int
	for _, r := range observed {
		if !r.Date.Before(winStart) {
			sum += r.UptimePercentage
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func meanUptime(records []*models.UptimeRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += r.UptimePercentage
	}
	return sum / float64(len(records))
}

// computeMTTR averages the duration from the start of each non-operational
// episode to the first subsequent operational record, in minutes. Only
// completed recovery intervals count.
func computeMTTR(observed []*models.UptimeRecord) float64 {
	var total float64
	var recoveries int
	var episodeStart *time.Time
	for _, r := range observed {
		if r.Status != models.StatusOperational {
			if episodeStart == nil {
				d := r.Date
				episodeStart = &d
			}
			continue
		}
		if episodeStart != nil {
			total += r.Date.Sub(*episodeStart).Minutes()
			recoveries++
			episodeStart = nil
		}
	}
	if recoveries == 0 {
		return 0
	}
	return total / float64(recoveries)
}

// computeMTBF averages the gap between the start timestamps of consecutive
// non-operational episodes, in hours. Fewer than two episodes yields 0.
func computeMTBF(observed []*models.UptimeRecord) float64 {
	var starts []time.Time
	inEpisode := false
	for _, r := range observed {
		if r.Status != models.StatusOperational {
			if !inEpisode {
				starts = append(starts, r.Date)
				inEpisode = true
			}
		} else {
			inEpisode = false
		}
	}
	if len(starts) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(starts); i++ {
		total += starts[i].Sub(starts[i-1]).Hours()
	}
	return total / float64(len(starts)-1)
}

func buildMonthlySummaries(sorted []*models.UptimeRecord, target float64) []models.MonthlySummary {
	type monthAcc struct {
		summary models.MonthlySummary
		sum     float64
		days    int
	}
	byMonth := make(map[string]*monthAcc)
	var order []string
	for _, r := range sorted {
		month := r.Date.Format(models.MonthFormat)
		acc, ok := byMonth[month]
		if !ok {
			acc = &monthAcc{summary: models.MonthlySummary{Month: month}}
			byMonth[month] = acc
			order = append(order, month)
		}
		acc.summary.TotalDowntimeMinutes += r.DowntimeMinutes
		acc.summary.IncidentCount += r.IncidentCount
		switch r.Status {
		case models.StatusOperational:
			acc.summary.OperationalDays++
		case models.StatusPartialOutage:
			acc.summary.PartialOutageDays++
		case models.StatusMajorOutage:
			acc.summary.MajorOutageDays++
		default:
			// no_data/empty days carry no measurement and stay out of
			// both the day counters and the percentage denominator.
			continue
		}
		acc.sum += r.UptimePercentage
		acc.days++
		if r.UptimePercentage < target {
			acc.summary.SLABreachDays++
		}
	}

	summaries := make([]models.MonthlySummary, 0, len(order))
	for _, month := range order {
		acc := byMonth[month]
		acc.summary.DaysInMonth = acc.summary.OperationalDays + acc.summary.PartialOutageDays + acc.summary.MajorOutageDays
		if acc.days > 0 {
			acc.summary.AvailabilityPercentage = acc.sum / float64(acc.days)
		}
		summaries = append(summaries, acc.summary)
	}
	return summaries
}

func buildQuarterlySummaries(monthly []models.MonthlySummary) []models.QuarterlySummary {
	type quarterAcc struct {
		summary models.QuarterlySummary
		sum     float64
		months  int
	}
	byQuarter := make(map[string]*quarterAcc)
	var order []string
	for _, m := range monthly {
		t, err := time.Parse(models.MonthFormat, m.Month)
		if err != nil {
			continue
		}
		quarter := fmt.Sprintf("%d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
		acc, ok := byQuarter[quarter]
		if !ok {
			acc = &quarterAcc{summary: models.QuarterlySummary{Quarter: quarter}}
			byQuarter[quarter] = acc
			order = append(order, quarter)
		}
		acc.summary.TotalDowntimeMinutes += m.TotalDowntimeMinutes
		acc.summary.IncidentCount += m.IncidentCount
		acc.summary.SLABreachDays += m.SLABreachDays
		if m.DaysInMonth > 0 {
			acc.sum += m.AvailabilityPercentage
			acc.months++
		}
	}

	summaries := make([]models.QuarterlySummary, 0, len(order))
	for _, quarter := range order {
		acc := byQuarter[quarter]
		if acc.months > 0 {
			acc.summary.AvailabilityPercentage = acc.sum / float64(acc.months)
		}
		summaries = append(summaries, acc.summary)
	}
	return summaries
}

func observedEntries(observed []*models.UptimeRecord) []models.DailyBreakdownEntry {
	entries := make([]models.DailyBreakdownEntry, 0, len(observed))
	for _, r := range observed {
		entries = append(entries, models.DailyBreakdownEntry{
			Date:             r.Date.Format(models.DateFormat),
			Status:           r.Status,
			UptimePercentage: r.UptimePercentage,
			DowntimeMinutes:  r.DowntimeMinutes,
			IncidentCount:    r.IncidentCount,
		})
	}
	return entries
}

func validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: missing start or end date", ErrInvalidRange)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidRange,
			end.Format(models.DateFormat), start.Format(models.DateFormat))
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func granularity(quarterly bool) string {
	if quarterly {
		return "quarterly"
	}
	return "monthly"
}
