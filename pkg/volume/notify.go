package volume

import (
	"sync/atomic"

	"orthoview/internal/models"
)

// SliceReady reports that a background fetch integrated new data.
type SliceReady struct {
	// Volume is the id of the volume the data belongs to.
	Volume string

	// Axis is the canonical axis the fetched slice is orthogonal to.
	Axis models.Axis

	// Index is the common-grid slice index that was displayed when the
	// fetch was requested. Consumers compare it with what they show now.
	Index int

	// SourceIndex is the fetched slice index in the source file.
	SourceIndex int
}

// Notifier receives SliceReady events. OnSliceReady is called from fetch
// goroutines; it must not block and must be safe for concurrent use.
type Notifier interface {
	OnSliceReady(ev SliceReady)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev SliceReady)

// OnSliceReady implements Notifier.
func (f NotifierFunc) OnSliceReady(ev SliceReady) { f(ev) }

// ChannelNotifier delivers events on a buffered channel. When the buffer
// is full the event is dropped and counted.
type ChannelNotifier struct {
	ch      chan SliceReady
	dropped atomic.Int64
}

// NewChannelNotifier creates a notifier with the given buffer size.
func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelNotifier{ch: make(chan SliceReady, buffer)}
}

// OnSliceReady implements Notifier.
func (n *ChannelNotifier) OnSliceReady(ev SliceReady) {
	select {
	case n.ch <- ev:
	default:
		n.dropped.Add(1)
	}
}

// C returns the event channel.
func (n *ChannelNotifier) C() <-chan SliceReady { return n.ch }

// Dropped returns how many events were discarded because the buffer was full.
func (n *ChannelNotifier) Dropped() int64 { return n.dropped.Load() }
