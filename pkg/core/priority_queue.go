package core

import "sync"

// Item is an entry that can be ordered inside a PriorityQueue.
type Item interface {
	Less(Item) bool
}

// PriorityQueue is a mutex-guarded min-heap. The smallest item per Less is
// popped first.
type PriorityQueue struct {
	sync.Mutex
	length int
	data   []Item
}

func NewPriorityQueue(data []Item) *PriorityQueue {
	q := &PriorityQueue{
		data:   data,
		length: len(data),
	}

	if q.length > 0 {
		for i := q.length >> 1; i >= 0; i-- {
			q.down(i)
		}
	}

	return q
}

func (q *PriorityQueue) Push(item Item) {
	q.Lock()
	defer q.Unlock()

	q.data = append(q.data, item)
	q.length++
	q.up(q.length - 1)
}

func (q *PriorityQueue) Pop() Item {
	q.Lock()
	defer q.Unlock()

	if q.length == 0 {
		return nil
	}

	top := q.data[0]
	q.length--

	if q.length > 0 {
		q.data[0] = q.data[q.length]
		q.down(0)
	}
	q.data = q.data[:q.length]

	return top
}

func (q *PriorityQueue) Peek() Item {
	q.Lock()
	defer q.Unlock()

	if q.length == 0 {
		return nil
	}
	return q.data[0]
}

func (q *PriorityQueue) Len() int {
	q.Lock()
	defer q.Unlock()

	return q.length
}

func (q *PriorityQueue) down(pos int) {
	data := q.data
	half := q.length >> 1
	item := data[pos]

	for pos < half {
		left := (pos << 1) + 1
		right := left + 1

		best, bestPos := data[left], left
		if right < q.length && data[right].Less(best) {
			best, bestPos = data[right], right
		}

		if !best.Less(item) {
			break
		}

		data[pos] = best
		pos = bestPos
	}

	data[pos] = item
}

func (q *PriorityQueue) up(pos int) {
	data := q.data
	item := data[pos]

	for pos > 0 {
		parent := (pos - 1) >> 1
		current := data[parent]

		if !item.Less(current) {
			break
		}

		data[pos] = current
		pos = parent
	}

	data[pos] = item
}
