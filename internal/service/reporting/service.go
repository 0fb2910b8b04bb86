package reporting

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/errors"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/report"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/ticket"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/values"
)

// Options carry the configuration surface the engine consumes
type Options struct {
	Zone       *time.Location
	Policies   ticket.SLAPolicySet
	Categories CategoryMap
	TopN       int
	// IncludeCarryOver counts tickets created before the window in volume
	// statistics. Off by default; listings always include them.
	IncludeCarryOver bool
	CacheTTL         time.Duration
	// Now is injectable for deterministic tests; nil means time.Now.
	Now func() time.Time
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Options) topN() int {
	if o.TopN <= 0 {
		return DefaultTopN
	}
	return o.TopN
}

func (o *Options) zone() *time.Location {
	if o.Zone == nil {
		return time.UTC
	}
	return o.Zone
}

// service implements the Service interface
type service struct {
	rows     RowSource
	cache    DocumentCache
	notifier RunNotifier
	opts     Options
	logger   *slog.Logger
}

// NewService creates the reporting service. cache and notifier may be nil;
// the pipeline then runs uncached and unannounced.
func NewService(rows RowSource, cache DocumentCache, notifier RunNotifier, opts Options, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		rows:     rows,
		cache:    cache,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

// GenerateReport runs the full pipeline: fetch, normalize, fan the three
// analyzers out over the immutable record set, compose, cache.
func (s *service) GenerateReport(ctx context.Context, req *ReportRequest) (*report.Document, error) {
	if req == nil {
		return nil, errors.NewValidationError("INVALID_REQUEST", "request cannot be nil")
	}
	w, err := s.parseWindow(req.Start, req.End)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && !req.ForceRefresh {
		if doc, err := s.cache.GetByKey(ctx, w.Key()); err == nil && doc != nil {
			s.logger.DebugContext(ctx, "report served from cache", "window", w.Key())
			return doc, nil
		}
	}

	runID := uuid.New()
	if s.notifier != nil {
		s.notifier.RunStarted(runID, w)
	}
	doc, err := s.run(ctx, w)
	if err != nil {
		// The empty-range marker is informational: the document exists and
		// is complete, all zeros.
		if !errors.IsEmptyRange(err) {
			if s.notifier != nil {
				s.notifier.RunFailed(runID, err)
			}
			return nil, err
		}
		s.logger.InfoContext(ctx, "report window matched no tickets",
			"window", w.Key(), "marker", err.Error())
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, w.Key(), doc, s.opts.CacheTTL); err != nil {
			// Cache failures cost only the memoization, never the report.
			s.logger.WarnContext(ctx, "failed to cache report document",
				"window", w.Key(), "error", err)
		}
	}
	if s.notifier != nil {
		s.notifier.RunCompleted(runID, doc)
	}
	return doc, nil
}

func (s *service) run(ctx context.Context, w Window) (*report.Document, error) {
	normalized, err := s.fetchAndNormalize(ctx, w)
	if err != nil {
		return nil, err
	}

	counting := normalized.Tickets
	if !s.opts.IncludeCarryOver {
		counting = normalized.InRange()
	}

	in := &ComposeInput{
		Window:      w,
		GeneratedAt: s.opts.now(),
		SkippedRows: normalized.Skipped,
	}

	// The analyzers only read the canonical set, so they fan out safely;
	// each writes to its own field of the compose input.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		in.TypeStats = Aggregate(counting, DimensionType)
		in.TeamStats = Aggregate(counting, DimensionTeam)
		in.EngineerStats = Aggregate(counting, DimensionEngineer)
		in.TeamMonthly = MonthlyStats(counting, ByTeam)
		in.EngineerMonthly = MonthlyStats(counting, ByEngineer)
	}()
	go func() {
		defer wg.Done()
		in.InfraKPI = KPITrend(normalized.Tickets, w, ScopeInfrastructure)
		in.AppKPI = KPITrend(normalized.Tickets, w, ScopeApplication)
		in.TeamTrend = teamTrends(counting, w)
	}()
	go func() {
		defer wg.Done()
		in.Exceptions = FindExceptions(normalized.Tickets, s.opts.topN(), s.opts.now())
	}()
	wg.Wait()

	doc := Compose(in)
	if len(counting) == 0 {
		return doc, errors.NewEmptyRangeError(w.Start.String(), w.End.String())
	}
	return doc, nil
}

// teamTrends builds the per-team monthly resolution-rate series behind the
// team analysis charts. Only service requests feed them, matching the
// team-performance convention of the rendered report.
func teamTrends(records []*ticket.Ticket, w Window) map[string]*TrendSeries {
	byTeam := make(map[string][]*ticket.Ticket)
	for _, t := range records {
		if t.Type != ticket.TypeServiceRequest {
			continue
		}
		key := UnassignedKey
		if t.AssignedTeam != nil {
			key = t.AssignedTeam.Key
		}
		byTeam[key] = append(byTeam[key], t)
	}
	out := make(map[string]*TrendSeries, len(byTeam))
	for key, ts := range byTeam {
		out[key] = Trend(ts, w, MetricResolutionRate, ScopeAll)
	}
	return out
}

// GetReport returns a previously generated document by ID
func (s *service) GetReport(ctx context.Context, id uuid.UUID) (*report.Document, error) {
	if id == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_REPORT_ID", "report ID is required")
	}
	if s.cache == nil {
		return nil, errors.ErrReportNotFound
	}
	doc, err := s.cache.GetByID(ctx, id)
	if err != nil {
		return nil, errors.ErrReportNotFound
	}
	return doc, nil
}

// GetAggregates computes one dimension on demand without composing
func (s *service) GetAggregates(ctx context.Context, req *StatsRequest) (*AggregationResult, error) {
	if req == nil {
		return nil, errors.NewValidationError("INVALID_REQUEST", "request cannot be nil")
	}
	dim, err := ParseDimension(req.Dimension)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_DIMENSION", err.Error())
	}
	w, err := s.parseWindow(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	normalized, err := s.fetchAndNormalize(ctx, w)
	if err != nil {
		return nil, err
	}
	counting := normalized.Tickets
	if !s.opts.IncludeCarryOver {
		counting = normalized.InRange()
	}
	return Aggregate(counting, dim), nil
}

// GetTrend computes one metric series on demand
func (s *service) GetTrend(ctx context.Context, req *TrendRequest) (*TrendSeries, error) {
	if req == nil {
		return nil, errors.NewValidationError("INVALID_REQUEST", "request cannot be nil")
	}
	metric, err := ParseTrendMetric(req.Metric)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_METRIC", err.Error())
	}
	scope, err := ParseScope(req.Category)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_CATEGORY", err.Error())
	}
	w, err := s.parseWindow(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	normalized, err := s.fetchAndNormalize(ctx, w)
	if err != nil {
		return nil, err
	}
	return Trend(normalized.Tickets, w, metric, scope), nil
}

func (s *service) fetchAndNormalize(ctx context.Context, w Window) (*NormalizeResult, error) {
	rows, err := s.rows.FetchWindow(ctx, w)
	if err != nil {
		return nil, errors.NewExternalError("ticket-source", "failed to fetch rows").WithCause(err)
	}
	normalized, err := Normalize(rows, NormalizeOptions{
		Window:     w,
		Policies:   s.opts.Policies,
		Categories: s.opts.Categories,
		Cutoff:     s.opts.now(),
	})
	if err != nil {
		return nil, err
	}
	if normalized.Skipped > 0 {
		s.logger.WarnContext(ctx, "skipped invalid source rows",
			"window", w.Key(), "skipped", normalized.Skipped)
	}
	return normalized, nil
}

func (s *service) parseWindow(start, end string) (Window, error) {
	from, err := values.ParseMonth(start)
	if err != nil {
		return Window{}, errors.NewValidationError("INVALID_WINDOW", err.Error())
	}
	to, err := values.ParseMonth(end)
	if err != nil {
		return Window{}, errors.NewValidationError("INVALID_WINDOW", err.Error())
	}
	return NewWindow(from, to, s.opts.zone())
}
