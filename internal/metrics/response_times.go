package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/sla"
	"github.com/pulseboard/pulseboard/internal/telemetry"
)

// ResponseTimeQuery parameterizes a response-time rollup. Endpoint and
// Method, when set, restrict the sample set and the endpoint breakdown.
// A nil TargetMs applies the configured default; an explicit 0 is a valid
// target.
type ResponseTimeQuery struct {
	Start    time.Time
	End      time.Time
	Endpoint string
	Method   string
	TargetMs *float64
}

// ComputeResponseTimes computes the response-time rollup for a service over
// a date range. Zero matching samples produce an all-zero report.
func (a *Aggregator) ComputeResponseTimes(ctx context.Context, serviceID string, q ResponseTimeQuery) (*models.ResponseTimeReport, error) {
	if serviceID == "" {
		return nil, fmt.Errorf("%w: empty service id", ErrServiceNotFound)
	}
	if err := validateRange(q.Start, q.End); err != nil {
		return nil, err
	}
	targetMs := a.cfg.DefaultResponseTimeTargetMs
	if q.TargetMs != nil {
		targetMs = *q.TargetMs
	}
	if targetMs < 0 {
		return nil, fmt.Errorf("%w: negative response time target", ErrInvalidTarget)
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
		SLATarget:   targetMs,
		Granularity: "response:" + q.Endpoint + ":" + q.Method,
	}
	if a.cache != nil {
		if report, ok := a.cache.GetResponseTimes(ctx, key); ok {
			telemetry.CacheHits.Inc()
			return report, nil
		}
		telemetry.CacheMisses.Inc()
	}

	samples, err := a.store.GetResponseTimeSamples(ctx, serviceID, key.Start, key.End.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("get response time samples for %s: %w", serviceID, err)
	}

	report := a.buildResponseTimeReport(serviceID, key.Start, key.End, q, targetMs, samples)

	if a.cache != nil {
		a.cache.SetResponseTimes(ctx, key, report)
	}

	a.logger.Debug().
		Str("service_id", serviceID).
		Int("samples", len(samples)).
		Int("matched", report.Metrics.TotalRequests).
		Msg("computed response time rollup")

	return report, nil
}

func (a *Aggregator) buildResponseTimeReport(serviceID string, start, end time.Time, q ResponseTimeQuery, targetMs float64, samples []*models.ResponseTimeSample) *models.ResponseTimeReport {
	matched := make([]*models.ResponseTimeSample, 0, len(samples))
	for _, s := range samples {
		if q.Endpoint != "" && s.Endpoint != q.Endpoint {
			continue
		}
		if q.Method != "" && s.Method != q.Method {
			continue
		}
		matched = append(matched, s)
	}

	report := &models.ResponseTimeReport{
		ServiceID:         serviceID,
		RangeStart:        start.Format(models.DateFormat),
		RangeEnd:          end.Format(models.DateFormat),
		Metrics:           a.computeMetrics(matched),
		HourlyBreakdown:   buildHourlyBreakdown(matched),
		EndpointBreakdown: a.buildEndpointBreakdown(matched),
	}
	report.SLA = sla.EvaluateResponseTimes(responseTimes(matched), targetMs)
	return report
}

// computeMetrics produces the percentile ladder for a sample set. With zero
// samples every field is 0; this is contract, not approximation.
func (a *Aggregator) computeMetrics(samples []*models.ResponseTimeSample) models.ResponseTimeMetrics {
	if len(samples) == 0 {
		return models.ResponseTimeMetrics{}
	}

	values := make([]float64, len(samples))
	var sum float64
	var errorCount int
	for i, s := range samples {
		values[i] = s.ResponseTimeMs
		sum += s.ResponseTimeMs
		if s.StatusCode >= a.cfg.ErrorStatusThreshold {
			errorCount++
		}
	}
	sort.Float64s(values)

	n := len(values)
	return models.ResponseTimeMetrics{
		Average:             sum / float64(n),
		Median:              percentile(values, 50),
		P95:                 percentile(values, 95),
		P99:                 percentile(values, 99),
		Min:                 values[0],
		Max:                 values[n-1],
		TotalRequests:       n,
		ErrorRatePercentage: float64(errorCount) / float64(n) * 100,
	}
}

// percentile returns the p-th percentile of ascending-sorted values using
// the nearest-rank method: the value at index ceil(p/100*n)-1, clamped.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func buildHourlyBreakdown(samples []*models.ResponseTimeSample) []models.HourlyBucket {
	type hourAcc struct {
		sum   float64
		count int
	}
	byHour := make(map[time.Time]*hourAcc)
	for _, s := range samples {
		hour := s.Timestamp.UTC().Truncate(time.Hour)
		acc, ok := byHour[hour]
		if !ok {
			acc = &hourAcc{}
			byHour[hour] = acc
		}
		acc.sum += s.ResponseTimeMs
		acc.count++
	}

	buckets := make([]models.HourlyBucket, 0, len(byHour))
	for hour, acc := range byHour {
		buckets = append(buckets, models.HourlyBucket{
			Hour:         hour,
			AverageMs:    acc.sum / float64(acc.count),
			RequestCount: acc.count,
		})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Hour.Before(buckets[j].Hour) })
	return buckets
}

func (a *Aggregator) buildEndpointBreakdown(samples []*models.ResponseTimeSample) []models.EndpointStats {
	type endpointKey struct {
		endpoint string
		method   string
	}
	type endpointAcc struct {
		sum    float64
		count  int
		errors int
	}
	byEndpoint := make(map[endpointKey]*endpointAcc)
	for _, s := range samples {
		k := endpointKey{endpoint: s.Endpoint, method: s.Method}
		acc, ok := byEndpoint[k]
		if !ok {
			acc = &endpointAcc{}
			byEndpoint[k] = acc
		}
		acc.sum += s.ResponseTimeMs
		acc.count++
		if s.StatusCode >= a.cfg.ErrorStatusThreshold {
			acc.errors++
		}
	}

	stats := make([]models.EndpointStats, 0, len(byEndpoint))
	for k, acc := range byEndpoint {
		stats = append(stats, models.EndpointStats{
			Endpoint:            k.endpoint,
			Method:              k.method,
			AverageMs:           acc.sum / float64(acc.count),
			RequestCount:        acc.count,
			ErrorRatePercentage: float64(acc.errors) / float64(acc.count) * 100,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Endpoint != stats[j].Endpoint {
			return stats[i].Endpoint < stats[j].Endpoint
		}
		return stats[i].Method < stats[j].Method
	})
	return stats
}

func responseTimes(samples []*models.ResponseTimeSample) []float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.ResponseTimeMs
	}
	return values
}
