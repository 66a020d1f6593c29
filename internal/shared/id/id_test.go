package id

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		s := gen.Generate().String()
		require.Len(t, s, 26)
		_, dup := seen[s]
		require.False(t, dup, "duplicate id %s", s)
		seen[s] = struct{}{}
	}
}

func TestTypedIDs(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{"request", NewRequestID().String(), RequestPrefix},
		{"trace", NewTraceID().String(), TracePrefix},
		{"span", NewSpanID().String(), SpanPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(tt.id, tt.prefix+"_"), tt.id)
			assert.True(t, Valid(tt.id))
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(NewGenerator().Generate().String()))
	assert.False(t, Valid(""))
	assert.False(t, Valid("req_not-a-ulid"))
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewRequestID().String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))
	assert.True(t, ts.Before(time.Now().Add(time.Second)))

	_, err = Timestamp("garbage")
	assert.Error(t, err)
}

func TestMonotonicOrdering(t *testing.T) {
	gen := NewGenerator()

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = gen.Generate().String()
	}

	assert.True(t, sort.StringsAreSorted(ids))
}

func TestConcurrentGeneration(t *testing.T) {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all = make(map[RequestID]struct{})
	)

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := NewRequestID()
				mu.Lock()
				all[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, all, 800)
}

func BenchmarkNewRequestID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewRequestID()
	}
}
