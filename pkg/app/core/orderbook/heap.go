package orderbook

// entry is a resting order plus its arrival sequence number.
type entry struct {
	order Order
	seq   uint64
}

// bidQueue implements heap.Interface for the bid side: highest price on
// top, then earliest timestamp, then lowest sequence.
// Use container/heap package to manipulate this heap (Init, Push, Pop).
type bidQueue []entry

func (q bidQueue) Len() int { return len(q) }
func (q bidQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.order.Price != b.order.Price {
		return a.order.Price > b.order.Price
	}
	return earlier(a, b)
}
func (q bidQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *bidQueue) Push(x interface{}) {
	*q = append(*q, x.(entry))
}

func (q *bidQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[0 : n-1]
	return x
}

// askQueue implements heap.Interface for the ask side: lowest price on top,
// then earliest timestamp, then lowest sequence.
type askQueue []entry

func (q askQueue) Len() int { return len(q) }
func (q askQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.order.Price != b.order.Price {
		return a.order.Price < b.order.Price
	}
	return earlier(a, b)
}
func (q askQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *askQueue) Push(x interface{}) {
	*q = append(*q, x.(entry))
}

func (q *askQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[0 : n-1]
	return x
}

func earlier(a, b entry) bool {
	if a.order.Timestamp != b.order.Timestamp {
		return a.order.Timestamp < b.order.Timestamp
	}
	return a.seq < b.seq
}
