package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Queue_runsJobsInSubmissionOrder(t *testing.T) {
	// given
	q := NewQueue(64)
	defer q.Close()
	started := make(chan struct{})
	release := make(chan struct{})
	var order []int

	// a blocking first job makes the remaining submissions queue up behind it
	go func() {
		_ = q.Do(context.Background(), func() error {
			close(started)
			<-release
			order = append(order, 0)
			return nil
		})
	}()
	<-started

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = q.Do(context.Background(), func() error {
				order = append(order, n)
				return nil
			})
		}(i)
		// submissions are serialized so that the enqueue order is deterministic
		require.Eventually(t, func() bool { return len(q.jobs) == i }, time.Second, time.Millisecond)
	}

	// when
	close(release)
	wg.Wait()

	// then
	expected := make([]int, 21)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, order)
}

func Test_Queue_failureIsolation(t *testing.T) {
	// given
	q := NewQueue(4)
	defer q.Close()
	boom := errors.New("boom")

	// when
	errFail := q.Do(context.Background(), func() error { return boom })
	errPanic := q.Do(context.Background(), func() error { panic("kaboom") })
	var ran bool
	errNext := q.Do(context.Background(), func() error { ran = true; return nil })

	// then
	assert.ErrorIs(t, errFail, boom)
	assert.ErrorContains(t, errPanic, "kaboom")
	assert.NoError(t, errNext)
	assert.True(t, ran)
}

func Test_Queue_neverRunsJobsConcurrently(t *testing.T) {
	// given
	q := NewQueue(8)
	defer q.Close()
	var mu sync.Mutex
	active, maxActive := 0, 0

	// when
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), func() error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				time.Sleep(100 * time.Microsecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	// then
	assert.Equal(t, 1, maxActive)
}

func Test_Queue_closed(t *testing.T) {
	// given
	q := NewQueue(1)
	q.Close()

	// when
	err := q.Do(context.Background(), func() error { return nil })

	// then
	assert.ErrorIs(t, err, ErrQueueClosed)
	q.Close()
}

func Test_Queue_cancelledWhileWaitingForSlot(t *testing.T) {
	// given
	q := NewQueue(1)
	defer q.Close()
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = q.Do(context.Background(), func() error { close(started); <-release; return nil })
	}()
	<-started
	// fill the single backlog slot
	go func() { _ = q.Do(context.Background(), func() error { return nil }) }()
	require.Eventually(t, func() bool { return len(q.jobs) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// when
	err := q.Do(ctx, func() error { return nil })

	// then
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}
