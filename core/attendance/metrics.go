package attendance

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/school"
)

type (
	// ClassroomSummary is one dashboard row: the live roll-up for a
	// classroom on a given date.
	ClassroomSummary struct {
		ClassroomID   int     `json:"classroom_id"`
		ClassroomName string  `json:"classroom_name"`
		Status        Status  `json:"status"`
		StatusColor   string  `json:"status_color"`
		TotalStudents int     `json:"total_students"`
		PresentCount  int     `json:"present_count"`
		AbsentCount   int     `json:"absent_count"`
		LateCount     int     `json:"late_count"`
		LeaveCount    int     `json:"leave_count"`
		ExcusedCount  int     `json:"excused_count"`
		Percentage    float64 `json:"percentage"`
	}

	// RealtimeMetrics is the per-classroom status matrix for one date.
	RealtimeMetrics struct {
		Date        time.Time          `json:"date"`
		GeneratedAt time.Time          `json:"generated_at"`
		Classrooms  []ClassroomSummary `json:"classrooms"`
	}

	// Aggregator derives the matrix from the live store. Read-only: there is
	// no mutation path through here.
	Aggregator struct {
		recordRepo RecordRepository
		schoolSvc  school.Service
	}
)

func NewAggregator(recordRepo RecordRepository, schoolSvc school.Service) *Aggregator {
	return &Aggregator{recordRepo: recordRepo, schoolSvc: schoolSvc}
}

// Aggregate recomputes one summary row per classroom for the date. Records
// are read whole, so a row never mixes pre- and post-transition counts.
func (agg *Aggregator) Aggregate(date time.Time) (RealtimeMetrics, error) {
	day := DateOf(date)

	rooms, err := agg.schoolSvc.QueryAllClassrooms()
	if err != nil {
		return RealtimeMetrics{}, err
	}
	recs, err := agg.recordRepo.ListRecordsForDate(day)
	if err != nil {
		return RealtimeMetrics{}, err
	}
	recsByRoom := make(map[int]Record, len(recs))
	for _, rec := range recs {
		recsByRoom[rec.ClassroomID] = rec
	}

	summaries := make([]ClassroomSummary, 0, len(rooms))
	for _, room := range rooms {
		enrolled, err := agg.schoolSvc.EnrolledStudents(room.ID)
		if err != nil {
			return RealtimeMetrics{}, err
		}

		summary := ClassroomSummary{
			ClassroomID:   room.ID,
			ClassroomName: room.Name,
			Status:        StatusNotMarked,
			TotalStudents: len(enrolled),
		}
		if rec, ok := recsByRoom[room.ID]; ok {
			counts := rec.Counts()
			summary.Status = rec.Status
			summary.PresentCount = counts.Present
			summary.AbsentCount = counts.Absent
			summary.LateCount = counts.Late
			summary.LeaveCount = counts.Leave
			summary.ExcusedCount = counts.Excused
		}
		summary.StatusColor = summary.Status.Color()
		summary.Percentage = percentage(summary.PresentCount, summary.TotalStudents)
		summaries = append(summaries, summary)
	}

	return RealtimeMetrics{
		Date:        day,
		GeneratedAt: nowFunc().UTC(),
		Classrooms:  summaries,
	}, nil
}

// percentage rounds to one decimal; empty classrooms report 0, not NaN.
func percentage(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(present)/float64(total)*1000) / 10
}

// Poller refreshes a cached snapshot of today's metrics on a fixed cadence.
// It has an explicit start/stop lifecycle so teardown leaves no dangling
// timers and tests can drive refreshes directly via Refresh.
type Poller struct {
	agg      *Aggregator
	interval time.Duration
	logger   core.Logger

	mu      sync.RWMutex
	latest  *RealtimeMetrics
	started bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewPoller(agg *Aggregator, interval time.Duration, logger core.Logger) *Poller {
	return &Poller{
		agg:      agg,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the polling loop. It returns immediately; the loop runs
// until Stop is called or ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)

		p.Refresh()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Refresh()
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			}
		}
	}()
}

// Refresh recomputes today's snapshot once. Safe to call concurrently with
// in-flight writes: the aggregator only ever reads whole records.
func (p *Poller) Refresh() {
	metrics, err := p.agg.Aggregate(nowFunc())
	if err != nil {
		p.logger.Error("refreshing metrics snapshot: "+err.Error(), err)
		return
	}
	p.mu.Lock()
	p.latest = &metrics
	p.mu.Unlock()
}

// Latest returns the most recent snapshot, if any poll has completed.
func (p *Poller) Latest() (RealtimeMetrics, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return RealtimeMetrics{}, false
	}
	return *p.latest, true
}

// Stop terminates the polling loop and waits for it to exit. Idempotent;
// a no-op if the poller was never started.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()
	if started {
		<-p.done
	}
}
