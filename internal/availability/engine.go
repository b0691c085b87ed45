package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"stationbook/internal/capacity"
	"stationbook/internal/clock"
	"stationbook/internal/eligibility"
	"stationbook/internal/interval"
	"stationbook/internal/metrics"
	"stationbook/internal/model"
	"stationbook/internal/slots"
)

// MaxDateRangeDays bounds a GetAvailableDates query.
const MaxDateRangeDays = 90

const (
	defaultWorkers        = 8
	defaultRequestTimeout = 10 * time.Second
)

// DataSource is the read-only collaborator the engine computes from.
// Every method must honour ctx cancellation.
type DataSource interface {
	// FetchService returns nil, nil for an unknown service.
	FetchService(ctx context.Context, serviceID int64) (*model.Service, error)
	FetchEligibilityInputs(ctx context.Context, serviceID, treatmentTypeID int64) (eligibility.Inputs, error)
	FetchWorkingShifts(ctx context.Context, stationIDs []int64, weekday int) ([]model.WorkingShift, error)
	// FetchBusinessHours returns nil, nil when the weekday has no hours.
	FetchBusinessHours(ctx context.Context, weekday int) (*model.BusinessHour, error)
	FetchAppointments(ctx context.Context, stationIDs []int64, from, to time.Time) ([]model.Appointment, error)
	FetchUnavailability(ctx context.Context, stationIDs []int64, from, to time.Time) ([]model.StationUnavailability, error)
}

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	Location       *time.Location
	Clock          clock.Clock
	Workers        int
	RequestTimeout time.Duration
	MinAdvance     time.Duration
	MaxAdvanceDays int // 0 = no horizon
	Stride         slots.Stride
	Limiter        capacity.Limiter
}

// Engine answers availability queries against a DataSource snapshot.
type Engine struct {
	src     DataSource
	opts    Options
	windows *slots.WindowBuilder
	tracer  trace.Tracer
	logger  *zerolog.Logger
}

// NewEngine creates an availability engine.
func NewEngine(src DataSource, opts Options, logger *zerolog.Logger) *Engine {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Stride == "" {
		opts.Stride = slots.StridePacked
	}
	if opts.Limiter == nil {
		opts.Limiter = capacity.Unbounded{}
	}
	return &Engine{
		src:     src,
		opts:    opts,
		windows: slots.NewWindowBuilder(logger),
		tracer:  otel.Tracer("stationbook/availability"),
		logger:  logger,
	}
}

// Location returns the business timezone.
func (e *Engine) Location() *time.Location { return e.opts.Location }

// DatesQuery asks which days in [From, To] have at least one slot.
type DatesQuery struct {
	ServiceID      int64
	From           time.Time
	To             time.Time
	CustomerTypeID *int64
}

// DateAvailability is one row of the day view.
type DateAvailability struct {
	Date      string `json:"date"`
	Available bool   `json:"available"`
}

// TimesQuery asks for the slots of one day.
type TimesQuery struct {
	ServiceID      int64
	Date           time.Time
	CustomerTypeID *int64
}

// TimeSlot is one offered start on one station.
type TimeSlot struct {
	StationID        int64     `json:"station_id"`
	StationName      string    `json:"station_name"`
	Time             string    `json:"time"`
	StartsAt         time.Time `json:"starts_at"`
	DurationMinutes  int       `json:"duration_minutes"`
	RequiresApproval bool      `json:"requires_approval"`
	Price            int64     `json:"price"`
}

// Exclusion records an eligible station dropped from a computation.
type Exclusion struct {
	StationID int64
	Reason    string
	Err       error
}

const (
	reasonDegenerateDuration = "degenerate_duration"
	reasonInvariant          = "invariant_violation"
)

// plan is the day-independent part of a request.
type plan struct {
	service    *model.Service
	candidates []eligibility.Candidate
	durations  []time.Duration // indexed like candidates
	order      map[int64]int   // station id -> display position
}

func (p *plan) stationIDs() []int64 {
	ids := make([]int64, len(p.candidates))
	for i, c := range p.candidates {
		ids[i] = c.Station.ID
	}
	return ids
}

func (p *plan) maxBreak() time.Duration {
	var brk time.Duration
	for _, c := range p.candidates {
		if b := c.Station.Break(); b > brk {
			brk = b
		}
	}
	return brk
}

// GetAvailableDates reports, for every day in [From, To], whether any
// eligible station has a bookable slot.
func (e *Engine) GetAvailableDates(ctx context.Context, q DatesQuery) (result []DateAvailability, err error) {
	started := time.Now()
	defer func() {
		metrics.ObserveRequest("dates", outcome(err), time.Since(started))
	}()

	if err = validateDates(q); err != nil {
		return nil, err
	}
	from := model.StartOfDay(q.From, e.opts.Location)
	to := model.StartOfDay(q.To, e.opts.Location)
	if err = validateSpan(from, to); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "availability.GetAvailableDates", trace.WithAttributes(
		attribute.Int64("service_id", q.ServiceID),
		attribute.String("from", from.Format(time.DateOnly)),
		attribute.String("to", to.Format(time.DateOnly)),
	))
	defer func() { endSpan(span, err) }()

	p, err := e.prepare(ctx, q.ServiceID, q.CustomerTypeID)
	if err != nil {
		return nil, classify(ctx, err)
	}

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if err = ctx.Err(); err != nil {
			return nil, classify(ctx, err)
		}
		list, dayErr := e.computeDay(ctx, p, day)
		if dayErr != nil {
			err = classify(ctx, dayErr)
			return nil, err
		}
		result = append(result, DateAvailability{
			Date:      day.Format(time.DateOnly),
			Available: len(list) > 0,
		})
	}
	return result, nil
}

// GetAvailableTimes lists every bookable slot of one day, sorted by start
// time, station display order and station ID.
func (e *Engine) GetAvailableTimes(ctx context.Context, q TimesQuery) (result []TimeSlot, err error) {
	started := time.Now()
	defer func() {
		metrics.ObserveRequest("times", outcome(err), time.Since(started))
		metrics.AddSlotsEmitted("times", len(result))
	}()

	if q.ServiceID <= 0 {
		return nil, fmt.Errorf("%w: service id is required", ErrInvalidRequest)
	}
	if q.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	day := model.StartOfDay(q.Date, e.opts.Location)

	ctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "availability.GetAvailableTimes", trace.WithAttributes(
		attribute.Int64("service_id", q.ServiceID),
		attribute.String("date", day.Format(time.DateOnly)),
	))
	defer func() { endSpan(span, err) }()

	p, err := e.prepare(ctx, q.ServiceID, q.CustomerTypeID)
	if err != nil {
		return nil, classify(ctx, err)
	}

	list, err := e.computeDay(ctx, p, day)
	if err != nil {
		err = classify(ctx, err)
		return nil, err
	}
	return timeView(p, list, e.opts.Location), nil
}

func validateDates(q DatesQuery) error {
	switch {
	case q.ServiceID <= 0:
		return fmt.Errorf("%w: service id is required", ErrInvalidRequest)
	case q.From.IsZero() || q.To.IsZero():
		return fmt.Errorf("%w: from and to are required", ErrInvalidRequest)
	}
	return nil
}

// validateSpan counts calendar days between two midnights.
func validateSpan(from, to time.Time) error {
	if to.Before(from) {
		return fmt.Errorf("%w: range end before start", ErrInvalidRequest)
	}
	days := 1
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		days++
		if days > MaxDateRangeDays {
			return fmt.Errorf("%w: range longer than %d days", ErrInvalidRequest, MaxDateRangeDays)
		}
	}
	return nil
}

// prepare resolves the service, the eligible stations and their durations.
// A nil plan service means the request cannot be served (configuration gap).
func (e *Engine) prepare(ctx context.Context, serviceID int64, customerTypeID *int64) (*plan, error) {
	log := e.log(ctx)

	svc, err := e.src.FetchService(ctx, serviceID)
	if err != nil {
		return nil, fetchErr("fetch_service", err)
	}
	if svc == nil {
		log.Warn().Int64("service_id", serviceID).Msg("unknown service, reporting no availability")
		return &plan{}, nil
	}

	in, err := e.src.FetchEligibilityInputs(ctx, serviceID, svc.TreatmentTypeID)
	if err != nil {
		return nil, fetchErr("fetch_eligibility_inputs", err)
	}

	eligible := eligibility.Filter(eligibility.Request{
		ServiceID:       serviceID,
		TreatmentTypeID: svc.TreatmentTypeID,
		CustomerTypeID:  customerTypeID,
	}, in)

	p := &plan{service: svc, order: make(map[int64]int, len(eligible))}
	for _, c := range eligible {
		d, err := slots.ResolveDuration(c.BaseTimeMinutes, c.DurationModifierMinutes, &c.Station)
		if err != nil {
			e.reportExclusion(ctx, Exclusion{StationID: c.Station.ID, Reason: reasonDegenerateDuration, Err: err})
			continue
		}
		p.order[c.Station.ID] = len(p.candidates)
		p.candidates = append(p.candidates, c)
		p.durations = append(p.durations, d)
	}

	log.Debug().
		Int64("service_id", serviceID).
		Int("eligible", len(eligible)).
		Int("usable", len(p.candidates)).
		Msg("eligibility resolved")
	return p, nil
}

// dayInputs is the collaborator data for one day.
type dayInputs struct {
	hours  *model.BusinessHour
	shifts map[int64][]model.WorkingShift
	appts  map[int64][]model.Appointment
	blocks map[int64][]model.StationUnavailability
}

func (e *Engine) fetchDay(ctx context.Context, p *plan, day, from, to time.Time) (*dayInputs, error) {
	ids := p.stationIDs()
	weekday := model.Weekday(day)

	var (
		hours  *model.BusinessHour
		shifts []model.WorkingShift
		appts  []model.Appointment
		blocks []model.StationUnavailability
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hours, err = e.src.FetchBusinessHours(gctx, weekday)
		return fetchErr("fetch_business_hours", err)
	})
	g.Go(func() error {
		var err error
		shifts, err = e.src.FetchWorkingShifts(gctx, ids, weekday)
		return fetchErr("fetch_working_shifts", err)
	})
	g.Go(func() error {
		var err error
		appts, err = e.src.FetchAppointments(gctx, ids, from, to)
		return fetchErr("fetch_appointments", err)
	})
	g.Go(func() error {
		var err error
		blocks, err = e.src.FetchUnavailability(gctx, ids, from, to)
		return fetchErr("fetch_unavailability", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := &dayInputs{
		hours:  hours,
		shifts: make(map[int64][]model.WorkingShift),
		appts:  make(map[int64][]model.Appointment),
		blocks: make(map[int64][]model.StationUnavailability),
	}
	for _, s := range shifts {
		in.shifts[s.StationID] = append(in.shifts[s.StationID], s)
	}
	for _, a := range appts {
		in.appts[a.StationID] = append(in.appts[a.StationID], a)
	}
	for _, b := range blocks {
		in.blocks[b.StationID] = append(in.blocks[b.StationID], b)
	}
	return in, nil
}

// computeDay runs the per-station pipeline for one day and applies the
// capacity layer. The returned slots are in aggregate order.
func (e *Engine) computeDay(ctx context.Context, p *plan, day time.Time) (out []slots.Slot, err error) {
	if len(p.candidates) == 0 || !e.withinHorizon(day) {
		return nil, nil
	}

	ctx, span := e.tracer.Start(ctx, "availability.computeDay", trace.WithAttributes(
		attribute.String("date", day.Format(time.DateOnly)),
		attribute.Int("stations", len(p.candidates)),
	))
	defer func() { endSpan(span, err) }()

	dayStart, dayEnd := model.DayRange(day, e.opts.Location)
	// Widen by the largest break so padding from bookings just outside the
	// day still reaches into it.
	brk := p.maxBreak()
	window := interval.Interval{Start: dayStart.Add(-brk), End: dayEnd.Add(brk)}

	in, err := e.fetchDay(ctx, p, day, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	if in.hours == nil {
		e.log(ctx).Debug().Int("day_of_week", model.Weekday(day)).Msg("no business hours, day closed")
		return nil, nil
	}

	cutoff := e.opts.Clock.Now().Add(e.opts.MinAdvance)
	perStation := make([][]slots.Slot, len(p.candidates))
	excluded := make([]*Exclusion, len(p.candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i := range p.candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st := &p.candidates[i].Station

			open := e.windows.Build(st.ID, day, in.shifts[st.ID], in.hours)
			if len(open) == 0 {
				return nil
			}

			occ, err := slots.ProjectOccupancy(st.ID, window, in.appts[st.ID], in.blocks[st.ID], st.Break())
			if err != nil {
				var iv *slots.InvariantViolation
				if errors.As(err, &iv) {
					excluded[i] = &Exclusion{StationID: st.ID, Reason: reasonInvariant, Err: err}
					return nil
				}
				return err
			}
			if err := gctx.Err(); err != nil {
				return err
			}

			perStation[i] = slots.Generate(slots.Params{
				StationID: st.ID,
				Open:      open,
				Exclusion: occ.Exclusion,
				Duration:  p.durations[i],
				Step:      st.SlotInterval(),
				Break:     st.Break(),
				Cutoff:    cutoff,
				Stride:    e.opts.Stride,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, x := range excluded {
		if x != nil {
			e.reportExclusion(ctx, *x)
		}
	}

	merged := mergeSlots(perStation, p.order)
	limited, err := e.opts.Limiter.Apply(ctx, capacity.Request{Category: p.service.Category, Day: dayStart}, merged)
	if err != nil {
		return nil, fetchErr("capacity", err)
	}
	return limited, nil
}

// withinHorizon reports whether day can still hold a slot given the clock
// and the configured booking horizon.
func (e *Engine) withinHorizon(day time.Time) bool {
	now := e.opts.Clock.Now().In(e.opts.Location)
	_, dayEnd := model.DayRange(day, e.opts.Location)
	if !dayEnd.After(now) {
		return false
	}
	if e.opts.MaxAdvanceDays <= 0 {
		return true
	}
	last := model.StartOfDay(now, e.opts.Location).AddDate(0, 0, e.opts.MaxAdvanceDays)
	return !day.After(last)
}

func (e *Engine) reportExclusion(ctx context.Context, x Exclusion) {
	metrics.IncStationExcluded(x.Reason)
	e.log(ctx).Warn().
		Err(x.Err).
		Int64("station_id", x.StationID).
		Str("reason", x.Reason).
		Msg("station excluded from availability")
}

// log prefers the request-scoped logger carried by ctx.
func (e *Engine) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return e.logger
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
