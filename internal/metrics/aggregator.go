package metrics

import (
	"context"
	"log/slog"
	"math"
	"time"

	"keyhub/internal/model"
)

// DateLayout is the format of DailyUsage.Date.
const DateLayout = "2006-01-02"

// windowDays is the length of the usage histogram, today included.
const windowDays = 7

// UsageSource lists every recorded usage event.
type UsageSource interface {
	ListUsage(ctx context.Context) ([]model.UsageEvent, error)
}

// DailyUsage is the number of events on one calendar day.
type DailyUsage struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Metrics is the dashboard summary of recorded usage.
type Metrics struct {
	TotalRequests   int          `json:"totalRequests"`
	RequestsToday   int          `json:"requestsToday"`
	AvgResponseTime int64        `json:"avgResponseTime"`
	SuccessRate     float64      `json:"successRate"`
	UsageData       []DailyUsage `json:"usageData"`
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// WithLocation sets the time zone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		a.loc = loc
	}
}

// Aggregator computes Metrics from the usage ledger.
type Aggregator struct {
	source UsageSource
	logger *slog.Logger
	now    func() time.Time
	loc    *time.Location
}

// NewAggregator creates an Aggregator using local time.
func NewAggregator(source UsageSource, logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		source: source,
		logger: logger.With("component", "metrics"),
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Compute summarizes every recorded event. A read failure is logged and yields
// zero totals with an empty histogram.
func (a *Aggregator) Compute(ctx context.Context) Metrics {
	now := a.now().In(a.loc)
	today := midnight(now)

	days := make([]DailyUsage, windowDays)
	index := make(map[string]int, windowDays)
	for i := 0; i < windowDays; i++ {
		day := today.AddDate(0, 0, i-(windowDays-1)).Format(DateLayout)
		days[i] = DailyUsage{Date: day}
		index[day] = i
	}

	events, err := a.source.ListUsage(ctx)
	if err != nil {
		a.logger.Error("Failed to load usage events", "error", err)
		return Metrics{UsageData: days}
	}

	m := Metrics{TotalRequests: len(events), UsageData: days}
	var succeeded int
	var timed int
	var totalMs int64
	for _, ev := range events {
		ts := ev.Timestamp.In(a.loc)
		if !ts.Before(today) {
			m.RequestsToday++
		}
		if ev.Success {
			succeeded++
		}
		if ev.ResponseTimeMs != nil {
			timed++
			totalMs += *ev.ResponseTimeMs
		}
		if i, ok := index[ts.Format(DateLayout)]; ok {
			days[i].Count++
		}
	}

	if m.TotalRequests > 0 {
		m.SuccessRate = math.Round(1000*float64(succeeded)/float64(m.TotalRequests)) / 10
	}
	if timed > 0 {
		m.AvgResponseTime = int64(math.Round(float64(totalMs) / float64(timed)))
	}
	return m
}

func midnight(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}
