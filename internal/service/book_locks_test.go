package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookLocksSerialisePerBook(t *testing.T) {
	locks := NewBookLocks()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Lock(7)
			defer release()
			current := counter
			counter = current + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, locks.locks)
}
