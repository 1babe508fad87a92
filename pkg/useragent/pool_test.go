package useragent

import (
	"sync"
	"testing"
)

func TestNextRoundRobin(t *testing.T) {
	p := New([]string{"a", "b", "c"})
	got := []string{p.Next(), p.Next(), p.Next(), p.Next()}
	want := []string{"a", "b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDefaultsNonEmpty(t *testing.T) {
	p := New(nil)
	if p.Size() == 0 {
		t.Fatal("expected built-in agents")
	}
	if p.Next() == "" {
		t.Errorf("expected a non-empty agent")
	}
	if p.Random() == "" {
		t.Errorf("expected a non-empty random agent")
	}
}

func TestCopiesInput(t *testing.T) {
	src := []string{"a", "b"}
	p := New(src)
	src[0] = "mutated"
	if p.Next() != "a" {
		t.Errorf("pool must not observe caller mutations")
	}
}

func TestConcurrentNext(t *testing.T) {
	p := New([]string{"a", "b", "c"})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if p.Next() == "" {
					t.Error("empty agent under concurrency")
					return
				}
			}
		}()
	}
	wg.Wait()
}
