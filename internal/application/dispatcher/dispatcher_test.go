package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/event"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

type testLogger struct {
	mu     sync.Mutex
	errors int
}

func (l *testLogger) Info(string, ...interface{}) {}
func (l *testLogger) Error(string, ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors++
}

func TestDispatcherDeliversByType(t *testing.T) {
	d := New(&testLogger{})

	var mu sync.Mutex
	var got []string
	require.NoError(t, d.Subscribe(event.TypeStageExited, "collector", func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt.InstanceID)
		return nil
	}))

	d.Publish(context.Background(), event.NewEvent(event.TypeStageExited, "INV-1", workflow.StageIngest, nil))
	d.Publish(context.Background(), event.NewEvent(event.TypeInstanceCreated, "INV-2", workflow.StageIngest, nil))
	d.Close()

	assert.Equal(t, []string{"INV-1"}, got)
}

func TestDispatcherWildcardSeesEverything(t *testing.T) {
	d := New(&testLogger{})

	var mu sync.Mutex
	count := 0
	d.SubscribeAll("audit", func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	})

	d.Publish(context.Background(), event.NewEvent(event.TypeStageEntered, "INV-1", workflow.StageIngest, nil))
	d.Publish(context.Background(), event.NewEvent(event.TypeInstanceFailed, "INV-1", workflow.StageMatch, nil))
	d.Close()

	assert.Equal(t, 2, count)
}

func TestDispatcherSurvivesFailingHandler(t *testing.T) {
	logger := &testLogger{}
	d := New(logger)

	d.SubscribeAll("broken", func(ctx context.Context, evt *event.Event) error {
		return errors.New("sink unavailable")
	})
	d.SubscribeAll("panicky", func(ctx context.Context, evt *event.Event) error {
		panic("boom")
	})

	d.Publish(context.Background(), event.NewEvent(event.TypeStageEntered, "INV-1", workflow.StageIngest, nil))
	d.Close()

	assert.Equal(t, 2, logger.errors)
}

func TestDispatcherRejectsUnknownType(t *testing.T) {
	d := New(&testLogger{})
	err := d.Subscribe("bogus.type", "x", func(ctx context.Context, evt *event.Event) error { return nil })
	assert.Error(t, err)
}

func TestDispatcherDropsAfterClose(t *testing.T) {
	d := New(&testLogger{})

	count := 0
	d.SubscribeAll("audit", func(ctx context.Context, evt *event.Event) error {
		count++
		return nil
	})
	d.Close()
	d.Publish(context.Background(), event.NewEvent(event.TypeStageEntered, "INV-1", workflow.StageIngest, nil))

	assert.Zero(t, count)
}
