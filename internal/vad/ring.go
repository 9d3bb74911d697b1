package vad

// ring is a fixed-capacity circular buffer of frame classifications. Pushing
// into a full ring evicts the oldest entry.
type ring struct {
	frames []bool
	head   int
	size   int
	count  int // voiced frames currently held
}

func newRing(capacity int) *ring {
	return &ring{frames: make([]bool, capacity)}
}

func (r *ring) capacity() int { return len(r.frames) }

func (r *ring) len() int { return r.size }

func (r *ring) voiced() int { return r.count }

func (r *ring) unvoiced() int { return r.size - r.count }

func (r *ring) push(voiced bool) {
	if r.size == len(r.frames) {
		if r.frames[r.head] {
			r.count--
		}
		r.frames[r.head] = voiced
		r.head = (r.head + 1) % len(r.frames)
	} else {
		r.frames[(r.head+r.size)%len(r.frames)] = voiced
		r.size++
	}
	if voiced {
		r.count++
	}
}

func (r *ring) reset() {
	r.head, r.size, r.count = 0, 0, 0
}
