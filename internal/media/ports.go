package media

// portAllocator hands out media ports from a fixed range. Not safe for
// concurrent use; the registry lock guards it.
type portAllocator struct {
	min, max int
	next     int
	inUse    map[int]struct{}
}

func newPortAllocator(min, max int) *portAllocator {
	return &portAllocator{min: min, max: max, next: min, inUse: make(map[int]struct{})}
}

func (p *portAllocator) acquire() (int, error) {
	size := p.max - p.min + 1
	for i := 0; i < size; i++ {
		port := p.next
		p.next++
		if p.next > p.max {
			p.next = p.min
		}
		if _, taken := p.inUse[port]; !taken {
			p.inUse[port] = struct{}{}
			return port, nil
		}
	}
	return 0, ErrNoPortsAvailable
}

func (p *portAllocator) release(port int) {
	delete(p.inUse, port)
}

func (p *portAllocator) used() int { return len(p.inUse) }
