package watch

import (
	"sort"

	"github.com/medlink-labs/medlink/internal/domain"
)

// fileQueue holds accepted files ordered by creation time ascending, so the
// oldest file is always dequeued first regardless of notification order.
type fileQueue struct {
	items []domain.FileEvent
}

func (q *fileQueue) push(ev domain.FileEvent) {
	q.items = append(q.items, ev)
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].CreatedAt.Before(q.items[j].CreatedAt)
	})
}

func (q *fileQueue) pop() (domain.FileEvent, bool) {
	if len(q.items) == 0 {
		return domain.FileEvent{}, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	return ev, true
}

func (q *fileQueue) len() int {
	return len(q.items)
}
