package timer

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertHeapOrdered(t *testing.T, l *List) {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 1; i < len(l.h); i++ {
		parent := (i - 1) / 2
		require.False(t, l.h[i].expire.Before(l.h[parent].expire),
			"child %d expires before parent %d", i, parent)
		require.Equal(t, i, l.h[i].index)
	}
}

func TestTickFiresOnlyExpired(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	l := New()

	var fired []int
	for i, offset := range []int{30, 5, 20, 10, 15} {
		i := i
		l.Insert(base.Add(time.Duration(offset)*time.Second), func() { fired = append(fired, i) })
	}
	assertHeapOrdered(t, l)

	n := l.Tick(base.Add(15 * time.Second))
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 3, 4}, fired, "expired entries fire earliest first")
	assert.Equal(t, 2, l.Len())

	next, ok := l.Next()
	require.True(t, ok)
	assert.True(t, next.After(base.Add(15*time.Second)), "no expired entry stays reachable")

	assert.Equal(t, 0, l.Tick(base.Add(19*time.Second)))
	assert.Equal(t, 2, l.Len())
}

func TestAdjustReordersEntry(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	l := New()

	fired := map[string]bool{}
	a := l.Insert(base.Add(1*time.Second), func() { fired["a"] = true })
	l.Insert(base.Add(5*time.Second), func() { fired["b"] = true })

	require.True(t, l.Adjust(a, base.Add(10*time.Second)))
	assertHeapOrdered(t, l)

	l.Tick(base.Add(6 * time.Second))
	assert.False(t, fired["a"], "extended entry must not fire early")
	assert.True(t, fired["b"])
	assert.True(t, l.Pending(a))
}

func TestRemove(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	l := New()

	called := false
	tm := l.Insert(base, func() { called = true })

	assert.True(t, l.Remove(tm))
	assert.False(t, l.Remove(tm), "second remove is a no-op")
	assert.False(t, l.Adjust(tm, base.Add(time.Hour)))
	assert.False(t, l.Pending(tm))

	l.Tick(base.Add(time.Hour))
	assert.False(t, called)
	assert.Equal(t, 0, l.Len())
}

func TestFiredTimerIsInactive(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	l := New()

	tm := l.Insert(base, nil)
	assert.Equal(t, 1, l.Tick(base))
	assert.False(t, l.Pending(tm))
	assert.False(t, l.Remove(tm))
}

func TestCallbackMayRemoveOthers(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	l := New()

	var other *Timer
	l.Insert(base, func() { l.Remove(other) })
	other = l.Insert(base.Add(time.Minute), nil)

	l.Tick(base)
	assert.Equal(t, 0, l.Len())
}

func TestRandomOperationsKeepOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Unix(1_700_000_000, 0)
	l := New()

	var handles []*Timer
	for i := 0; i < 500; i++ {
		switch op := rng.Intn(4); {
		case op <= 1 || len(handles) == 0:
			handles = append(handles, l.Insert(base.Add(time.Duration(rng.Intn(1000))*time.Second), nil))
		case op == 2:
			h := handles[rng.Intn(len(handles))]
			l.Adjust(h, base.Add(time.Duration(rng.Intn(1000))*time.Second))
		default:
			l.Remove(handles[rng.Intn(len(handles))])
		}
		assertHeapOrdered(t, l)
	}

	now := base.Add(500 * time.Second)
	l.Tick(now)
	assertHeapOrdered(t, l)
	if next, ok := l.Next(); ok {
		assert.True(t, next.After(now))
	}
}
