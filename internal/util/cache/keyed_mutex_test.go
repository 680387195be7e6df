package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	require := require.New(t)

	km := NewKeyedMutex[string]()
	counter := 0
	wg := &sync.WaitGroup{}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.With("a", func() {
				counter++
			})
		}()
	}
	wg.Wait()
	require.Equal(100, counter)

	// all lock entries are released once the holders are gone
	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Equal(t, 0, len(km.locks))
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex[string]()
	km.Lock("a")
	defer km.Unlock("a")

	done := make(chan struct{})
	go func() {
		km.With("b", func() {})
		close(done)
	}()
	// a lock on "a" must not block "b"
	<-done
}
