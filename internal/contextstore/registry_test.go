package contextstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type params struct {
	Name  string
	Count int
}

func mergeParams(old, next params) params {
	if next.Name == "" {
		next.Name = old.Name
	}
	if next.Count == 0 {
		next.Count = old.Count
	}
	return next
}

func TestSetAndGet(t *testing.T) {
	r := NewRegistry[params](KindControllerParams, time.Minute, mergeParams)

	rec := r.Set("abc", params{Name: "first", Count: 1})
	assert.Equal(t, "abc", rec.ClientID)
	assert.False(t, rec.CreatedAt.IsZero())

	got, ok := r.Get("abc")
	require.True(t, ok)
	assert.Equal(t, "first", got.Value.Name)
}

func TestMergeOnWrite(t *testing.T) {
	r := NewRegistry[params](KindControllerParams, time.Minute, mergeParams)

	first := r.Set("abc", params{Name: "first", Count: 3})
	time.Sleep(5 * time.Millisecond)
	second := r.Set("abc", params{Count: 7})

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt) || second.UpdatedAt.Equal(first.UpdatedAt))

	got, ok := r.Get("abc")
	require.True(t, ok)
	assert.Equal(t, "first", got.Value.Name, "unset fields keep prior values")
	assert.Equal(t, 7, got.Value.Count)
}

func TestReplaceWithoutMerge(t *testing.T) {
	r := NewRegistry[params](KindRequest, time.Minute, nil)

	r.Set("abc", params{Name: "first", Count: 3})
	r.Set("abc", params{Count: 7})

	got, ok := r.Get("abc")
	require.True(t, ok)
	assert.Equal(t, "", got.Value.Name)
	assert.Equal(t, 7, got.Value.Count)
}

func TestIDsAndCount(t *testing.T) {
	r := NewRegistry[params](KindControllerParams, time.Minute, nil)
	r.Set("a", params{})
	r.Set("b", params{})

	assert.ElementsMatch(t, []string{"a", "b"}, r.IDs())
	assert.Equal(t, 2, r.Count())

	assert.True(t, r.Delete("a"))
	assert.Equal(t, 1, r.Count())
}

func TestExpiry(t *testing.T) {
	r := NewRegistry[params](KindControllerParams, 20*time.Millisecond, nil)
	r.Set("a", params{})

	time.Sleep(40 * time.Millisecond)

	assert.False(t, r.Has("a"))
	assert.Empty(t, r.IDs())
}

func TestSweepReportsIDs(t *testing.T) {
	r := NewRegistry[params](KindControllerParams, 20*time.Millisecond, nil)
	r.Set("gone", params{Name: "tmpfile"})

	time.Sleep(40 * time.Millisecond)

	var seen []string
	n := r.Sweep(func(id string, rec Record[params]) {
		seen = append(seen, id)
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"gone"}, seen)
}
