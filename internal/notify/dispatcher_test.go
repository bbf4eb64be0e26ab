package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// collectingChannel records delivered events so channel fan-out can be
// asserted without a broker.
type collectingChannel struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (c *collectingChannel) Name() string { return "collect" }

func (c *collectingChannel) Deliver(_ context.Context, event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return context.DeadlineExceeded
	}
	c.events = append(c.events, event)
	return nil
}

func (c *collectingChannel) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

type DispatcherSuite struct {
	suite.Suite
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

// run starts the dispatcher and returns a stop function that waits for the
// loop to exit.
func (s *DispatcherSuite) run(d *Dispatcher) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func collect(s *DispatcherSuite, sub *Subscription, want int, timeout time.Duration) []Event {
	var got []Event
	deadline := time.After(timeout)
	for len(got) < want {
		select {
		case event := <-sub.Events():
			got = append(got, event)
		case <-deadline:
			s.Require().Failf("timeout", "collected %d of %d events", len(got), want)
			return got
		}
	}
	return got
}

func (s *DispatcherSuite) TestFanOut() {
	d := New(0)
	stop := s.run(d)
	defer stop()

	sub := d.Subscribe("target-1")
	defer sub.Close()
	other := d.Subscribe("target-2")
	defer other.Close()

	err := d.Publish(context.Background(), Event{Type: EventBalanceChanged, TargetID: "target-1", DedupeKey: "k"})
	s.Require().NoError(err)

	got := collect(s, sub, 1, time.Second)
	s.Equal("target-1", got[0].TargetID)

	select {
	case event := <-other.Events():
		s.Failf("unexpected delivery", "target-2 received %v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func (s *DispatcherSuite) TestCoalescing() {
	// Three rapid events sharing a dedupe key collapse into one delivery
	// carrying the latest payload.
	d := New(80 * time.Millisecond)
	stop := s.run(d)
	defer stop()

	sub := d.Subscribe("card-1")
	defer sub.Close()

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		err := d.Publish(ctx, Event{
			Type:      EventBalanceChanged,
			TargetID:  "card-1",
			DedupeKey: "balance_changed:card-1",
			Payload:   map[string]any{"balance": int64(i * 10)},
		})
		s.Require().NoError(err)
	}

	got := collect(s, sub, 1, time.Second)
	s.Equal(int64(30), got[0].Payload["balance"])

	select {
	case event := <-sub.Events():
		s.Failf("expected coalescing", "second delivery arrived: %v", event)
	case <-time.After(200 * time.Millisecond):
	}
}

func (s *DispatcherSuite) TestCoalescingKeepsNewestState() {
	// Publishers emit after commit from separate goroutines, so an event for
	// an older card version can arrive after the event for a newer one. The
	// coalesced delivery must carry the newest version either way.
	d := New(80 * time.Millisecond)
	stop := s.run(d)
	defer stop()

	sub := d.Subscribe("card-1")
	defer sub.Close()

	ctx := context.Background()
	err := d.Publish(ctx, Event{
		Type:      EventBalanceChanged,
		TargetID:  "card-1",
		DedupeKey: "balance_changed:card-1",
		Payload:   map[string]any{"balance": int64(10), "version": int64(3)},
	})
	s.Require().NoError(err)
	err = d.Publish(ctx, Event{
		Type:      EventBalanceChanged,
		TargetID:  "card-1",
		DedupeKey: "balance_changed:card-1",
		Payload:   map[string]any{"balance": int64(5), "version": int64(2)},
	})
	s.Require().NoError(err)

	got := collect(s, sub, 1, time.Second)
	s.Equal(int64(10), got[0].Payload["balance"])
	s.Equal(int64(3), got[0].Payload["version"])
}

func (s *DispatcherSuite) TestDistinctDedupeKeysAllDeliver() {
	d := New(40 * time.Millisecond)
	stop := s.run(d)
	defer stop()

	sub := d.Subscribe("customer-1")
	defer sub.Close()

	ctx := context.Background()
	keys := []string{"enrollment_requested:e1", "enrollment_accepted:e1", "balance_changed:c1"}
	for _, key := range keys {
		err := d.Publish(ctx, Event{Type: EventBalanceChanged, TargetID: "customer-1", DedupeKey: key})
		s.Require().NoError(err)
	}

	got := collect(s, sub, len(keys), time.Second)
	seen := make(map[string]bool)
	for _, event := range got {
		seen[event.DedupeKey] = true
	}
	s.Len(seen, len(keys))
}

func (s *DispatcherSuite) TestOrderingPerTarget() {
	// Distinct dedupe keys for one target flush in publish order.
	d := New(30 * time.Millisecond)
	stop := s.run(d)
	defer stop()

	sub := d.Subscribe("customer-1")
	defer sub.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := d.Publish(ctx, Event{
			Type:      EventBalanceChanged,
			TargetID:  "customer-1",
			DedupeKey: string(rune('a' + i)),
			Payload:   map[string]any{"n": i},
		})
		s.Require().NoError(err)
	}

	got := collect(s, sub, 5, time.Second)
	for i, event := range got {
		s.Equal(i, event.Payload["n"])
	}
}

func (s *DispatcherSuite) TestPendingEventsFlushOnShutdown() {
	d := New(10 * time.Second)
	stop := s.run(d)

	sub := d.Subscribe("target-1")
	defer sub.Close()

	err := d.Publish(context.Background(), Event{Type: EventBalanceChanged, TargetID: "target-1", DedupeKey: "k"})
	s.Require().NoError(err)

	// Give the loop time to take the event into its pending set, then
	// cancel: the pending event must still be delivered.
	time.Sleep(50 * time.Millisecond)
	stop()

	select {
	case event := <-sub.Events():
		s.Equal("target-1", event.TargetID)
	case <-time.After(time.Second):
		s.Fail("pending event was not flushed on shutdown")
	}
}

func (s *DispatcherSuite) TestChannelDelivery() {
	ch := &collectingChannel{}
	d := New(0, WithChannel(ch))
	stop := s.run(d)
	defer stop()

	err := d.Publish(context.Background(), Event{Type: EventEnrollmentAccepted, TargetID: "t", DedupeKey: "k"})
	s.Require().NoError(err)

	s.Eventually(func() bool {
		return len(ch.Events()) == 1
	}, time.Second, 10*time.Millisecond)
	s.Equal(EventEnrollmentAccepted, ch.Events()[0].Type)
}

func (s *DispatcherSuite) TestClosedSubscriptionStopsReceiving() {
	d := New(0)
	stop := s.run(d)
	defer stop()

	sub := d.Subscribe("target-1")
	sub.Close()

	// Delivery after Close must not panic the dispatch loop.
	err := d.Publish(context.Background(), Event{Type: EventBalanceChanged, TargetID: "target-1", DedupeKey: "k"})
	s.Require().NoError(err)
	time.Sleep(50 * time.Millisecond)
}
