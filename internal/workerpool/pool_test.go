package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoRunner(t Task) ([]byte, error) {
	return t.Bytes, nil
}

func TestSubmitAndWait(t *testing.T) {
	p := New(Config{MaxWorkers: 2}, echoRunner)
	defer p.Shutdown(context.Background())

	f, err := p.Submit(Task{Bytes: []byte("abc"), OriginalName: "a.jpg"})
	require.NoError(t, err)

	res, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []byte("abc"), res.Bytes)
	assert.Equal(t, 3, res.OriginalSize)
	assert.Equal(t, 3, res.OptimizedSize)
	assert.Equal(t, "a.jpg", res.OriginalName)
}

func TestFailingTaskYieldsFailedResult(t *testing.T) {
	p := New(Config{}, func(Task) ([]byte, error) {
		return nil, errors.New("boom")
	})
	defer p.Shutdown(context.Background())

	f, err := p.Submit(Task{Bytes: []byte("x")})
	require.NoError(t, err)

	res, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.Bytes)
	assert.EqualError(t, res.Err, "boom")
}

func TestPanickingTaskIsContained(t *testing.T) {
	p := New(Config{}, func(Task) ([]byte, error) {
		panic("codec exploded")
	})
	defer p.Shutdown(context.Background())

	f, err := p.Submit(Task{})
	require.NoError(t, err)

	res, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.ErrorContains(t, res.Err, "codec exploded")

	// pool still serves new tasks after a panic
	f2, err := p.Submit(Task{})
	require.NoError(t, err)
	_, err = f2.Wait(context.Background())
	assert.NoError(t, err)
}

func TestSubmitManyPreservesOrder(t *testing.T) {
	p := New(Config{MaxWorkers: 4}, func(task Task) ([]byte, error) {
		return task.Bytes, nil
	})
	defer p.Shutdown(context.Background())

	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = Task{Bytes: []byte(fmt.Sprintf("payload-%d", i)), OriginalName: fmt.Sprintf("f%d", i)}
	}

	mf, err := p.SubmitMany(tasks)
	require.NoError(t, err)

	results, err := mf.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 8)
	for i, res := range results {
		assert.True(t, res.Success)
		assert.Equal(t, fmt.Sprintf("payload-%d", i), string(res.Bytes))
		assert.Equal(t, fmt.Sprintf("f%d", i), res.OriginalName)
	}
}

func TestSubmitManyMixedOutcomes(t *testing.T) {
	p := New(Config{MaxWorkers: 2}, func(task Task) ([]byte, error) {
		if task.OriginalName == "bad" {
			return nil, errors.New("undecodable")
		}
		return task.Bytes, nil
	})
	defer p.Shutdown(context.Background())

	mf, err := p.SubmitMany([]Task{
		{Bytes: []byte("ok"), OriginalName: "good"},
		{Bytes: []byte("nope"), OriginalName: "bad"},
	})
	require.NoError(t, err)

	results, err := mf.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
}

func TestQueueFull(t *testing.T) {
	block := make(chan struct{})
	p := New(Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, func(Task) ([]byte, error) {
		<-block
		return nil, nil
	})
	defer func() {
		close(block)
		p.Shutdown(context.Background())
	}()

	// first task occupies the worker, second fills the queue
	_, err := p.Submit(Task{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return p.Stats().ActiveWorkers == 1
	}, time.Second, 5*time.Millisecond)
	_, err = p.Submit(Task{})
	require.NoError(t, err)

	_, err = p.Submit(Task{})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestShutdownRejectsNewWork(t *testing.T) {
	p := New(Config{}, echoRunner)
	require.NoError(t, p.Shutdown(context.Background()))

	_, err := p.Submit(Task{})
	assert.ErrorIs(t, err, ErrPoolClosed)

	// second shutdown is a no-op
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestShutdownDrainsInFlight(t *testing.T) {
	var done int64
	p := New(Config{MaxWorkers: 2}, func(Task) ([]byte, error) {
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&done, 1)
		return nil, nil
	})

	for i := 0; i < 4; i++ {
		_, err := p.Submit(Task{})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	assert.Equal(t, int64(4), atomic.LoadInt64(&done))
}

func TestStatsBounds(t *testing.T) {
	p := New(Config{MinWorkers: 2, MaxWorkers: 5}, echoRunner)
	defer p.Shutdown(context.Background())

	st := p.Stats()
	assert.Equal(t, 2, st.MinWorkers)
	assert.Equal(t, 5, st.MaxWorkers)
	assert.GreaterOrEqual(t, st.Workers, 2)
	assert.Equal(t, 0, st.QueueDepth)
}

func TestElasticWorkersRetire(t *testing.T) {
	p := New(Config{MinWorkers: 1, MaxWorkers: 4, IdleTimeout: 30 * time.Millisecond}, func(Task) ([]byte, error) {
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	})
	defer p.Shutdown(context.Background())

	mf, err := p.SubmitMany(make([]Task, 12))
	require.NoError(t, err)
	_, err = mf.Wait(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return p.Stats().Workers == 1
	}, time.Second, 10*time.Millisecond, "surplus workers retire to the floor")
}
