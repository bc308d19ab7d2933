package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"custos/pkg/domain"
)

type PublisherSuite struct {
	suite.Suite

	store     *InMemoryStore
	publisher *Publisher
	cancel    context.CancelFunc
	done      chan struct{}
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.publisher = NewPublisher(s.store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	worker := NewWorker(s.publisher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go func() {
		defer close(s.done)
		_ = worker.Run(ctx)
	}()
}

func (s *PublisherSuite) TearDownTest() {
	s.cancel()
	<-s.done
}

func (s *PublisherSuite) waitFor(count int) {
	s.T().Helper()
	require.Eventually(s.T(), func() bool {
		return s.store.Len() >= count
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *PublisherSuite) TestEmitStampsIdentityAndTimestamp() {
	subject := domain.Address{0x01}
	s.publisher.Emit(context.Background(), Event{
		Kind:    KindDecision,
		Action:  "can_transfer",
		Subject: subject,
		Outcome: "allowed",
	})
	s.waitFor(1)

	events, err := s.store.ListBySubject(context.Background(), subject)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.NotEmpty(events[0].ID)
	s.False(events[0].Timestamp.IsZero())
	s.Equal(KindDecision, events[0].Kind)
}

func (s *PublisherSuite) TestWorkerDrainsBurstInOrder() {
	subject := domain.Address{0x02}
	const burst = 100
	for i := 0; i < burst; i++ {
		s.publisher.Emit(context.Background(), Event{
			Kind:    KindSettlement,
			Action:  "transferred",
			Subject: subject,
		})
	}
	s.waitFor(burst)

	events, err := s.store.ListBySubject(context.Background(), subject)
	s.Require().NoError(err)
	s.Len(events, burst)
}

func (s *PublisherSuite) TestListFiltersBySubject() {
	a := domain.Address{0x0a}
	b := domain.Address{0x0b}
	s.publisher.Emit(context.Background(), Event{Kind: KindAdmin, Action: "set_limits", Subject: a})
	s.publisher.Emit(context.Background(), Event{Kind: KindAdmin, Action: "set_limits", Subject: b})
	s.waitFor(2)

	events, err := s.publisher.List(context.Background(), a)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(a, events[0].Subject)
}

type failingSink struct {
	calls int
}

func (f *failingSink) Publish(context.Context, Event) error {
	f.calls++
	return context.DeadlineExceeded
}

func (s *PublisherSuite) TestSinkFailureDoesNotStopWorker() {
	sink := &failingSink{}
	publisher := NewPublisher(NewInMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	worker := NewWorker(publisher, slog.New(slog.NewTextHandler(io.Discard, nil)), sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	subject := domain.Address{0x03}
	publisher.Emit(context.Background(), Event{Kind: KindDecision, Action: "a", Subject: subject})
	publisher.Emit(context.Background(), Event{Kind: KindDecision, Action: "b", Subject: subject})

	require.Eventually(s.T(), func() bool {
		events, err := publisher.List(context.Background(), subject)
		return err == nil && len(events) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	s.Equal(2, sink.calls)
}
