package entity

import "fmt"

const bytesInMB = 1 << 20

// ThroughputSample is the aggregate download rate of one node.
type ThroughputSample struct {
	Node    string
	MB      float64
	Seconds float64
}

func NewThroughputSample(node string, bytes int64, seconds float64) ThroughputSample {
	return ThroughputSample{
		Node:    node,
		MB:      float64(bytes) / bytesInMB,
		Seconds: seconds,
	}
}

// MBps returns zero when nothing was timed.
func (s ThroughputSample) MBps() float64 {
	if s.Seconds <= 0 {
		return 0
	}

	return s.MB / s.Seconds
}

func (s ThroughputSample) String() string {
	return fmt.Sprintf("%s:%.3f", s.Node, s.MBps())
}
