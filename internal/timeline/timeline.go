// Package timeline merges per-source event sequences into one ordered timeline.
package timeline

import (
	"container/heap"
	"sort"

	"github.com/clarityops/clarity/internal/models"
)

// Sequence is one source's events with its declaration-order priority.
// Lower priority sorts first on timestamp ties.
type Sequence struct {
	Name     string
	Priority int
	Events   []models.LogEvent
}

// Build merges the sequences into a single timeline ordered by
// (timestamp, priority, intra-source index). The merge is stable: events with
// identical keys keep their relative declaration order. Ordered inputs merge
// in linear time; a disordered sequence is stably normalized first so the
// output law holds for any input.
func Build(sequences ...Sequence) models.Timeline {
	total := 0
	cursors := make(cursorHeap, 0, len(sequences))
	for _, seq := range sequences {
		if len(seq.Events) == 0 {
			continue
		}
		events := normalize(seq.Events)
		total += len(events)
		cursors = append(cursors, &cursor{events: events, priority: seq.Priority})
	}

	heap.Init(&cursors)

	merged := make([]models.LogEvent, 0, total)
	for cursors.Len() > 0 {
		c := cursors[0]
		merged = append(merged, c.events[c.pos])
		c.pos++
		if c.pos < len(c.events) {
			heap.Fix(&cursors, 0)
		} else {
			heap.Pop(&cursors)
		}
	}

	return models.Timeline{Events: merged}
}

// normalize returns the events ordered by timestamp. Ordered input is
// returned as-is after an O(n) check; disordered input is copied and sorted
// stably so equal timestamps keep their original record order.
func normalize(events []models.LogEvent) []models.LogEvent {
	ordered := true
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			ordered = false
			break
		}
	}
	if ordered {
		return events
	}

	sorted := make([]models.LogEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

type cursor struct {
	events   []models.LogEvent
	pos      int
	priority int
}

type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i].events[h[i].pos], h[j].events[h[j].pos]
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return a.Index < b.Index
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x interface{}) { *h = append(*h, x.(*cursor)) }

func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
