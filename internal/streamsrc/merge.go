package streamsrc

// TimestampedFrame is any value the merge queue can order by timestamp.
type TimestampedFrame interface {
	FrameTimestampUs() int64
}

// MergeQueue multiplexes several already-ordered streams of
// TimestampedFrame values into one sequence, always draining the stream
// with the earliest pending timestamp next. Each source stream must itself
// be chronologically ordered; the queue does not sort within a stream.
type MergeQueue struct {
	sources []<-chan TimestampedFrame
	pending []TimestampedFrame
	open    []bool
}

// NewMergeQueue wraps one channel per source stream. Each channel is
// expected to be fed by a single producer (e.g. a DetectionReader or
// TrackReader loop on its own goroutine) and closed at end of stream.
func NewMergeQueue(sources ...<-chan TimestampedFrame) *MergeQueue {
	q := &MergeQueue{
		sources: sources,
		pending: make([]TimestampedFrame, len(sources)),
		open:    make([]bool, len(sources)),
	}
	for i := range q.open {
		q.open[i] = true
	}
	return q
}

// Next returns the pending frame with the earliest timestamp across all
// still-open sources, and the index of the source it came from. ok is
// false once every source is drained.
func (q *MergeQueue) Next() (frame TimestampedFrame, sourceIndex int, ok bool) {
	for i := range q.sources {
		if q.open[i] && q.pending[i] == nil {
			q.fill(i)
		}
	}

	best := -1
	for i := range q.sources {
		if q.pending[i] == nil {
			continue
		}
		if best == -1 || q.pending[i].FrameTimestampUs() < q.pending[best].FrameTimestampUs() {
			best = i
		}
	}
	if best == -1 {
		return nil, -1, false
	}

	frame = q.pending[best]
	q.pending[best] = nil
	return frame, best, true
}

func (q *MergeQueue) fill(i int) {
	v, open := <-q.sources[i]
	if !open {
		q.open[i] = false
		return
	}
	q.pending[i] = v
}
