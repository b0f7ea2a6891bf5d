package scan

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"options-advisor/config"
	"options-advisor/internal/engine"
	"options-advisor/internal/position"
)

// Kind names the five daily scans.
type Kind string

const (
	ScanMorning  Kind = "morning"   // comprehensive next-day review
	ScanPostOpen Kind = "post_open" // urgent-only after the open
	ScanMidday   Kind = "midday"    // opportunity check
	ScanPreClose Kind = "pre_close" // urgent/assignment check
	ScanEvening  Kind = "evening"   // next-day preview
)

// urgentOnly reports whether the scan suppresses unchanged same-kind
// results unless the position moved meaningfully or expires today.
func (k Kind) urgentOnly() bool {
	return k == ScanPostOpen || k == ScanPreClose
}

// SnapshotSource supplies the latest open-position snapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]position.Position, error)
}

// Evaluator runs one position through the decision tree.
type Evaluator interface {
	Evaluate(ctx context.Context, pos *position.Position) *engine.EvaluationResult
}

// Sink receives the deduplicated scan output.
type Sink interface {
	Recommendation(ctx context.Context, res *engine.EvaluationResult)
	Resolution(ctx context.Context, pos position.Position)
	ScanCompleted(ctx context.Context, report Report)
}

// Report summarizes one scan run.
type Report struct {
	ID        string        `json:"id"`
	Kind      Kind          `json:"kind"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Evaluated int           `json:"evaluated"`
	Emitted   int           `json:"emitted"`
	Resolved  int           `json:"resolved"`
	Skipped   bool          `json:"skipped"`
}

// Scheduler runs the five daily scans and the dedup filter between the
// evaluator and the sink.
type Scheduler struct {
	snapshots SnapshotSource
	evaluator Evaluator
	book      *position.Book
	state     *StateStore
	sink      Sink
	cfg       config.ScanConfig
	loc       *time.Location
	logger    zerolog.Logger
	clock     func() time.Time

	running  atomic.Bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu         sync.RWMutex
	lastReport *Report
}

// NewScheduler creates the scan scheduler. The timezone in cfg governs
// both the wall-clock schedule and the day-rollover boundary.
func NewScheduler(snapshots SnapshotSource, evaluator Evaluator, book *position.Book, state *StateStore, sink Sink, cfg config.ScanConfig, logger zerolog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scan timezone %q: %w", cfg.Timezone, err)
	}
	return &Scheduler{
		snapshots: snapshots,
		evaluator: evaluator,
		book:      book,
		state:     state,
		sink:      sink,
		cfg:       cfg,
		loc:       loc,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		clock:     time.Now,
		stopChan:  make(chan struct{}),
	}, nil
}

// Start begins the background schedule loop.
func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("scan scheduler disabled")
		return
	}
	s.wg.Add(1)
	go s.runLoop()
	s.logger.Info().Msg("scan scheduler started")
}

// Stop shuts the schedule loop down and waits for a running scan.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// LastReport returns the most recent scan report.
func (s *Scheduler) LastReport() *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var lastFired string

	for {
		select {
		case <-ticker.C:
			now := s.clock().In(s.loc)
			if s.cfg.SkipWeekends && (now.Weekday() == time.Saturday || now.Weekday() == time.Sunday) {
				continue
			}
			kind, ok := s.scanDueAt(now)
			if !ok {
				continue
			}
			// One firing per schedule slot per day.
			slot := fmt.Sprintf("%s-%s", now.Format("2006-01-02"), kind)
			if slot == lastFired {
				continue
			}
			lastFired = slot
			s.Run(context.Background(), kind)
		case <-s.stopChan:
			s.logger.Info().Msg("scan scheduler stopped")
			return
		}
	}
}

// scanDueAt matches the wall-clock minute against the configured times.
func (s *Scheduler) scanDueAt(now time.Time) (Kind, bool) {
	hhmm := now.Format("15:04")
	switch hhmm {
	case s.cfg.MorningTime:
		return ScanMorning, true
	case s.cfg.PostOpenTime:
		return ScanPostOpen, true
	case s.cfg.MiddayTime:
		return ScanMidday, true
	case s.cfg.PreCloseTime:
		return ScanPreClose, true
	case s.cfg.EveningTime:
		return ScanEvening, true
	}
	return "", false
}

// evaluated pairs a position with its fresh result for the filter phase.
type evaluated struct {
	pos position.Position
	res *engine.EvaluationResult
}

// Run executes one scan. Scans never overlap: if one is still running
// when the next fires, the new one is skipped — the next scheduled scan
// re-evaluates everything from scratch anyway.
func (s *Scheduler) Run(ctx context.Context, kind Kind) Report {
	report := Report{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: s.clock(),
	}

	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Str("kind", string(kind)).Msg("previous scan still running, skipping")
		report.Skipped = true
		return report
	}
	defer s.running.Store(false)

	log := s.logger.With().Str("scan", report.ID[:8]).Str("kind", string(kind)).Logger()
	log.Info().Msg("scan started")

	// Reconcile the book; positions gone from the feed are resolved.
	snapshot, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		log.Error().Err(err).Msg("snapshot fetch failed, evaluating previous book")
	} else {
		resolved := s.book.Reconcile(snapshot)
		for _, p := range resolved {
			s.sink.Resolution(ctx, p)
		}
		report.Resolved = len(resolved)
	}

	positions := s.book.List()
	report.Evaluated = len(positions)

	// Parallel evaluation phase: positions are independent, the only
	// shared writes happen in the single-threaded filter phase below.
	results := s.evaluateAll(ctx, positions)

	// Filter phase, single-threaded: batch dedup, urgent-only filters,
	// same-day hash dedup, then state writes.
	emitted := s.filterAndEmit(ctx, kind, results)
	report.Emitted = emitted

	report.Duration = s.clock().Sub(report.StartedAt)
	log.Info().
		Int("evaluated", report.Evaluated).
		Int("emitted", report.Emitted).
		Int("resolved", report.Resolved).
		Dur("duration", report.Duration).
		Msg("scan completed")

	s.mu.Lock()
	s.lastReport = &report
	s.mu.Unlock()
	s.sink.ScanCompleted(ctx, report)

	return report
}

// evaluateAll fans positions out over the worker pool. Each evaluation
// carries its own timeout so one slow symbol cannot stall the scan.
func (s *Scheduler) evaluateAll(ctx context.Context, positions []position.Position) []evaluated {
	workers := s.cfg.WorkerCount
	if workers < 1 {
		workers = 4
	}

	posChan := make(chan position.Position, len(positions))
	resChan := make(chan evaluated, len(positions))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range posChan {
				evalCtx := ctx
				var cancel context.CancelFunc
				if s.cfg.PositionTimeout > 0 {
					evalCtx, cancel = context.WithTimeout(ctx, s.cfg.PositionTimeout)
				}
				res := s.evaluator.Evaluate(evalCtx, &p)
				if cancel != nil {
					cancel()
				}
				resChan <- evaluated{pos: p, res: res}
			}
		}()
	}

	for _, p := range positions {
		posChan <- p
	}
	close(posChan)
	wg.Wait()
	close(resChan)

	out := make([]evaluated, 0, len(positions))
	for ev := range resChan {
		out = append(out, ev)
	}
	// Stable order for the batch-dedup pass.
	sort.Slice(out, func(i, j int) bool {
		if out[i].pos.Symbol != out[j].pos.Symbol {
			return out[i].pos.Symbol < out[j].pos.Symbol
		}
		return out[i].pos.ID < out[j].pos.ID
	})
	return out
}

// filterAndEmit applies the dedup layers in order and emits survivors.
func (s *Scheduler) filterAndEmit(ctx context.Context, kind Kind, results []evaluated) int {
	now := s.clock().In(s.loc)

	// A batch must never send the same account/symbol two different
	// recommendations for the same action: keep the highest priority one.
	type batchKey struct {
		account string
		symbol  string
		action  engine.Action
	}
	best := make(map[batchKey]evaluated)
	order := make([]batchKey, 0, len(results))
	for _, ev := range results {
		if !ev.res.Actionable() {
			continue
		}
		key := batchKey{ev.pos.Account, ev.pos.Symbol, ev.res.Action}
		prev, ok := best[key]
		if !ok {
			best[key] = ev
			order = append(order, key)
			continue
		}
		if priorityRank(ev.res.Priority) < priorityRank(prev.res.Priority) {
			best[key] = ev
		}
	}

	emitted := 0
	for _, key := range order {
		ev := best[key]
		last, seen := s.state.Last(ctx, ev.pos.ID)

		if kind.urgentOnly() && seen && !s.escalated(ev, last, now) {
			continue
		}

		hash := ev.res.Hash()
		if seen && last.Hash == hash {
			continue
		}

		s.sink.Recommendation(ctx, ev.res)
		s.state.Record(ctx, ev.pos.ID, PositionState{
			Hash:       hash,
			Action:     string(ev.res.Action),
			Priority:   string(ev.res.Priority),
			ITMPercent: ev.res.ITMPercent,
			EmittedAt:  s.clock(),
		})
		emitted++
	}
	return emitted
}

// escalated decides whether an urgent-only scan may re-surface a position
// already notified today: only when the result is a different kind of
// action, the position moved meaningfully deeper ITM, or it expires today.
func (s *Scheduler) escalated(ev evaluated, last PositionState, now time.Time) bool {
	if string(ev.res.Action) != last.Action {
		return true
	}
	if ev.res.ITMPercent-last.ITMPercent > s.cfg.DeeperITMTrigger {
		return true
	}
	if ev.pos.ExpiresToday(now) {
		return true
	}
	return false
}

func priorityRank(p engine.Priority) int {
	switch p {
	case engine.PriorityUrgent:
		return 0
	case engine.PriorityHigh:
		return 1
	case engine.PriorityMedium:
		return 2
	default:
		return 3
	}
}
