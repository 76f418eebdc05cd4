package mysync

import (
	"sync"
	"testing"
)

func TestDo(t *testing.T) {
	mu := NewMutex(map[int]int{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				mu.Do(func(m map[int]int) { m[j%10]++ })
			}
		}()
	}
	wg.Wait()

	var total int
	mu.Do(func(m map[int]int) {
		for _, n := range m {
			total += n
		}
	})
	if total != 800 {
		t.Errorf("got %d increments, want 800", total)
	}
}
