package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/events"
)

type stubStore struct {
	last events.Event
	err  error
}

func (s *stubStore) Insert(_ context.Context, ev events.Event) (events.Event, error) {
	if s.err != nil {
		return events.Event{}, s.err
	}
	ev.ID = uuid.NewString()
	s.last = ev
	return ev, nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsAndNotifies(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	ev, err := bus.Emit(context.Background(), events.TopicOrderCreated, "order-1", events.OrderCreated{OrderID: "order-1", Total: "920.00"})
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)
	require.Equal(t, events.TopicOrderCreated, store.last.Topic)
	require.Len(t, notifier.events, 1)
	require.Equal(t, ev.ID, notifier.events[0].ID)

	var decoded events.OrderCreated
	require.NoError(t, json.Unmarshal(notifier.events[0].Payload, &decoded))
	require.Equal(t, "920.00", decoded.Total)
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), " ", "x", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, "x", "{not json")
	require.Error(t, err)
}

func TestEmitStoreFailureSkipsNotifiers(t *testing.T) {
	notifier := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{err: errors.New("db down")}, Notifiers: []events.Notifier{notifier}}
	_, err := bus.Emit(context.Background(), events.TopicOrderCreated, "x", nil)
	require.Error(t, err)
	require.Empty(t, notifier.events)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("queue down")}
	ok := &captureNotifier{}
	bus := events.Bus{Notifiers: []events.Notifier{failing, ok}}
	ev, err := bus.Emit(context.Background(), events.TopicOrderStatusChanged, "x", json.RawMessage(`{"to":"shipped"}`))
	require.ErrorContains(t, err, "queue down")
	require.Len(t, ok.events, 1, "later notifiers still run")
	require.JSONEq(t, `{"to":"shipped"}`, string(ev.Payload))
}
