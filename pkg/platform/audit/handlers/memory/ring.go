package memory

import audit "auditd/pkg/platform/audit"

// ring is a bounded FIFO of records. When full, the oldest record is dropped
// to make room for the new one.
type ring struct {
	records  []audit.Record
	head     int // next write position
	count    int
	capacity int
	dropped  int64
}

func newRing(capacity int) *ring {
	return &ring{records: make([]audit.Record, capacity), capacity: capacity}
}

func (r *ring) push(rec audit.Record) {
	r.records[r.head] = rec
	r.head = (r.head + 1) % r.capacity
	if r.count == r.capacity {
		r.dropped++
		return
	}
	r.count++
}

// at returns the i-th oldest record, 0 <= i < count.
func (r *ring) at(i int) audit.Record {
	tail := (r.head - r.count + r.capacity) % r.capacity
	return r.records[(tail+i)%r.capacity]
}

func (r *ring) reset() {
	clear(r.records)
	r.head, r.count = 0, 0
}
