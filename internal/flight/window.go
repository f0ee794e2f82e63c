package flight

// windowSize is the number of acceleration samples smoothed before a phase
// transition is considered. Three consecutive samples reject single-tick
// vibration spikes near the launch threshold while keeping detection latency
// to three ticks.
const windowSize = 3

// window is a fixed-capacity ring buffer over the most recent acceleration
// samples with an incrementally maintained running sum: the evicted sample is
// subtracted and the new one added, no per-tick re-summation.
type window struct {
	samples [windowSize]float64
	head    int
	n       int
	sum     float64
}

// push adds v, evicting the oldest sample once the window is full.
func (w *window) push(v float64) {
	if w.n == windowSize {
		w.sum -= w.samples[w.head]
	} else {
		w.n++
	}
	w.samples[w.head] = v
	w.head = (w.head + 1) % windowSize
	w.sum += v
}
