package sched

import (
	"container/heap"
	"time"
)

type simEvent struct {
	at    time.Duration
	seq   uint64
	id    EventID
	fn    func()
	index int
}

type eventQueue []*simEvent

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	ev := x.(*simEvent)
	ev.index = len(*q)
	*q = append(*q, ev)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[:n-1]
	return ev
}

// Simulator is a single-threaded discrete-event engine.
// Events fire in time order; events scheduled for the same instant fire in the
// order they were scheduled. Simulated time only advances when Run or RunUntil
// dispatches an event.
type Simulator struct {
	now     time.Duration
	queue   eventQueue
	pending map[EventID]*simEvent
	nextID  EventID
	seq     uint64
	stopped bool
	fired   uint64
}

// NewSimulator returns a simulator at time zero.
func NewSimulator() *Simulator {
	return &Simulator{pending: make(map[EventID]*simEvent)}
}

func (s *Simulator) Now() time.Duration {
	return s.now
}

func (s *Simulator) Schedule(delay time.Duration, fn func()) EventID {
	if delay < 0 {
		delay = 0
	}
	s.nextID++
	s.seq++
	ev := &simEvent{at: s.now + delay, seq: s.seq, id: s.nextID, fn: fn}
	heap.Push(&s.queue, ev)
	s.pending[ev.id] = ev
	return ev.id
}

// ScheduleAt schedules fn at an absolute simulated time; times in the past run at Now.
func (s *Simulator) ScheduleAt(at time.Duration, fn func()) EventID {
	return s.Schedule(at-s.now, fn)
}

func (s *Simulator) Cancel(id EventID) bool {
	ev, ok := s.pending[id]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, ev.index)
	delete(s.pending, id)
	return true
}

// Run dispatches events until the queue is empty or Stop is called.
func (s *Simulator) Run() {
	s.stopped = false
	for !s.stopped && s.queue.Len() > 0 {
		s.step()
	}
}

// RunUntil dispatches every event due at or before t and then advances the clock to t.
// Self-rescheduling events make Run endless, so bounded runs use RunUntil.
func (s *Simulator) RunUntil(t time.Duration) {
	s.stopped = false
	for !s.stopped && s.queue.Len() > 0 && s.queue[0].at <= t {
		s.step()
	}
	if !s.stopped && t > s.now {
		s.now = t
	}
}

// Stop makes the current Run or RunUntil return after the event in progress.
func (s *Simulator) Stop() {
	s.stopped = true
}

// Pending returns the number of events waiting to fire.
func (s *Simulator) Pending() int {
	return s.queue.Len()
}

// Fired returns the number of events dispatched so far.
func (s *Simulator) Fired() uint64 {
	return s.fired
}

func (s *Simulator) step() {
	ev := heap.Pop(&s.queue).(*simEvent)
	delete(s.pending, ev.id)
	s.now = ev.at
	s.fired++
	ev.fn()
}
