package docstore

import "sync/atomic"

// allCollections addresses every subscriber regardless of collection.
const allCollections = ""

type feedSub struct {
	collection string
	ch         chan struct{}
}

// feed fans collection-changed signals out to live queries.
//
// A single internal loop owns the subscriber set; public methods talk to it
// through channels. Signals coalesce: each subscriber channel holds at most
// one pending signal, and a subscriber re-reads the full result set when it
// wakes, so dropping a signal while one is pending loses nothing.
type feed struct {
	subscribeCh   chan feedSub
	unsubscribeCh chan chan struct{}
	publishCh     chan string
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

func newFeed() *feed {
	f := &feed{
		subscribeCh:   make(chan feedSub),
		unsubscribeCh: make(chan chan struct{}),
		publishCh:     make(chan string, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *feed) run() {
	defer close(f.stopped)

	clients := make(map[chan struct{}]string)

	signal := func(collection string) {
		for ch, c := range clients {
			if collection != allCollections && c != collection {
				continue
			}
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}

	for {
		select {
		case <-f.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-f.subscribeCh:
			clients[sub.ch] = sub.collection

		case ch := <-f.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case collection := <-f.publishCh:
			signal(collection)

		case resp := <-f.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every subscriber channel. Safe to call
// more than once.
func (f *feed) Close() {
	if f.closed.CompareAndSwap(false, true) {
		close(f.stopCh)
	}
	<-f.stopped
}

// Subscribe registers for changes to collection. The returned channel is
// closed when the feed stops or on Unsubscribe.
func (f *feed) Subscribe(collection string) chan struct{} {
	ch := make(chan struct{}, 1)
	if f.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case f.subscribeCh <- feedSub{collection: collection, ch: ch}:
	case <-f.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (f *feed) Unsubscribe(ch chan struct{}) {
	if f.closed.Load() {
		return
	}
	select {
	case f.unsubscribeCh <- ch:
	case <-f.stopped:
	}
}

// Publish signals subscribers of collection; allCollections signals all.
func (f *feed) Publish(collection string) {
	if f.closed.Load() {
		return
	}
	select {
	case f.publishCh <- collection:
	case <-f.stopped:
	}
}

// Count returns the number of live subscribers.
func (f *feed) Count() int {
	if f.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case f.countReqCh <- resp:
	case <-f.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-f.stopped:
		return 0
	}
}
