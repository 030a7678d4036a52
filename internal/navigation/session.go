package navigation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"ecomap-navigation/internal/geo"
	"ecomap-navigation/internal/route"
)

// ErrNoSegments rejects navigation start on a route without segments.
var ErrNoSegments = errors.New("route has no segments")

// Position is one live GPS fix.
type Position struct {
	Lon       float64   `json:"lon"`
	Lat       float64   `json:"lat"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// PositionStream delivers continuous position updates. The returned channel
// is closed when the subscription ends, whether cancelled or failed. A
// session holds at most one active subscription at a time.
type PositionStream interface {
	Watch(ctx context.Context) (<-chan Position, error)
}

// Speaker is the fire-and-forget spoken-instruction sink. The session never
// waits on it.
type Speaker interface {
	Speak(text string)
	Cancel()
}

type State string

const (
	StateIdle       State = "idle"
	StateNavigating State = "navigating"
	StateCompleted  State = "completed"
)

type Mode string

const (
	ModeManual Mode = "manual"
	ModeSynced Mode = "synced"
)

type Direction string

const (
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
)

// Snapshot is a point-in-time view of the session for transport layers.
type Snapshot struct {
	State          State     `json:"state"`
	Mode           Mode      `json:"mode"`
	SegmentIndex   int       `json:"segment_index"`
	Position       geo.Point `json:"position"`
	DistanceToNext float64   `json:"distance_to_next"`
	Instruction    string    `json:"instruction,omitempty"`
}

// Session drives turn-by-turn guidance over a segmented route: manual
// stepping, GPS-synced auto-advance and spoken instructions. UI-driven
// races (double clicks, stale callbacks) are expected, so invalid calls are
// idempotent no-ops rather than errors.
type Session struct {
	ID      string
	logger  *slog.Logger
	stream  PositionStream
	speaker Speaker

	mu             sync.Mutex
	state          State
	mode           Mode
	route          route.Route
	currentIndex   int
	position       geo.Point
	distanceToNext float64
	cancelWatch    context.CancelFunc
	watchDone      chan struct{}
}

func NewSession(id string, stream PositionStream, speaker Speaker, logger *slog.Logger) *Session {
	return &Session{
		ID:      id,
		logger:  logger,
		stream:  stream,
		speaker: speaker,
		state:   StateIdle,
		mode:    ModeManual,
	}
}

// Start begins navigation on the given route in manual mode and announces
// the first instruction. A route without segments is a precondition
// failure.
func (s *Session) Start(r route.Route) error {
	if len(r.Segments) == 0 {
		return ErrNoSegments
	}

	s.reset()

	s.mu.Lock()
	s.state = StateNavigating
	s.mode = ModeManual
	s.route = r
	s.currentIndex = 0
	s.distanceToNext = r.Segments[0].Distance
	s.position = r.Segments[0].Coordinates[0]
	instruction := r.Segments[0].Instruction
	s.mu.Unlock()

	s.speaker.Speak(instruction)
	return nil
}

// Advance steps the current segment manually. The index clamps to the
// segment range; stepping past the final segment completes the session.
func (s *Session) Advance(dir Direction) {
	s.mu.Lock()
	if s.state != StateNavigating {
		s.mu.Unlock()
		return
	}

	next := s.currentIndex
	switch dir {
	case DirectionNext:
		next++
	case DirectionPrevious:
		next--
	default:
		s.mu.Unlock()
		return
	}

	if next >= len(s.route.Segments) {
		s.state = StateCompleted
		s.mu.Unlock()
		return
	}
	if next < 0 {
		s.mu.Unlock()
		return
	}

	instruction := s.applyIndexLocked(next)
	s.mu.Unlock()

	s.speaker.Speak(instruction)
}

// applyIndexLocked moves the session onto segment idx and returns its
// instruction. Caller holds s.mu.
func (s *Session) applyIndexLocked(idx int) string {
	seg := s.route.Segments[idx]
	s.currentIndex = idx
	s.position = seg.Coordinates[0]
	s.distanceToNext = seg.Distance
	return seg.Instruction
}

// EnableSync subscribes to the position stream and auto-advances the
// current segment from live fixes. Calling it while already synced is
// idempotent. A subscription failure leaves the session in manual mode.
func (s *Session) EnableSync(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateNavigating || s.mode == ModeSynced {
		s.mu.Unlock()
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	updates, err := s.stream.Watch(watchCtx)
	if err != nil {
		cancel()
		s.mu.Unlock()
		s.logger.Warn("position subscription failed, staying in manual mode",
			"session", s.ID, "error", err)
		return
	}

	done := make(chan struct{})
	s.mode = ModeSynced
	s.cancelWatch = cancel
	s.watchDone = done
	s.mu.Unlock()

	go s.consume(updates, done)
}

func (s *Session) consume(updates <-chan Position, done chan struct{}) {
	defer close(done)
	for pos := range updates {
		s.handlePosition(pos)
	}

	// The stream ended on its own (error or upstream close): fall back to
	// manual mode instead of terminating the session.
	s.mu.Lock()
	if s.mode == ModeSynced {
		s.mode = ModeManual
		s.cancelWatch = nil
		s.watchDone = nil
		s.logger.Warn("position stream ended, sync disabled", "session", s.ID)
	}
	s.mu.Unlock()
}

func (s *Session) handlePosition(pos Position) {
	s.mu.Lock()
	if s.state != StateNavigating || s.mode != ModeSynced {
		s.mu.Unlock()
		return
	}

	s.position = geo.Point{Lon: pos.Lon, Lat: pos.Lat}
	closest := closestSegmentIndex(s.route.Segments, pos)
	if closest == s.currentIndex {
		// Unchanged index: the update is dropped, not queued.
		s.mu.Unlock()
		return
	}

	instruction := s.applyIndexLocked(closest)
	s.mu.Unlock()

	s.speaker.Speak(instruction)
}

// closestSegmentIndex picks the segment containing the point closest to the
// fix, by Euclidean distance in degrees. Ties go to the lowest index.
func closestSegmentIndex(segments []route.Segment, pos Position) int {
	closest := 0
	minDist := math.Inf(1)
	for i, seg := range segments {
		for _, c := range seg.Coordinates {
			dx := pos.Lon - c.Lon
			dy := pos.Lat - c.Lat
			if d := dx*dx + dy*dy; d < minDist {
				minDist = d
				closest = i
			}
		}
	}
	return closest
}

// DisableSync returns to manual stepping. No position callback fires after
// it returns.
func (s *Session) DisableSync() {
	s.mu.Lock()
	if s.mode != ModeSynced {
		s.mu.Unlock()
		return
	}
	s.mode = ModeManual
	cancel, done := s.cancelWatch, s.watchDone
	s.cancelWatch, s.watchDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Stop ends navigation: the position subscription is cancelled and any
// pending utterance dropped before the session returns to idle.
func (s *Session) Stop() {
	s.mu.Lock()
	idle := s.state == StateIdle
	s.mu.Unlock()
	if idle {
		return
	}

	s.reset()
	s.speaker.Cancel()
}

// reset returns the session to idle and waits for any active position
// subscription to wind down.
func (s *Session) reset() {
	s.mu.Lock()
	s.state = StateIdle
	s.mode = ModeManual
	s.currentIndex = 0
	s.distanceToNext = 0
	cancel, done := s.cancelWatch, s.watchDone
	s.cancelWatch, s.watchDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Route returns the active route.
func (s *Session) Route() route.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Snapshot captures the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:          s.state,
		Mode:           s.mode,
		SegmentIndex:   s.currentIndex,
		Position:       s.position,
		DistanceToNext: s.distanceToNext,
	}
	if s.state == StateNavigating && s.currentIndex < len(s.route.Segments) {
		snap.Instruction = s.route.Segments[s.currentIndex].Instruction
	}
	return snap
}
