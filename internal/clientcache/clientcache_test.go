package clientcache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type client struct{ key string }

func TestGet_ReusesClientForSameCredential(t *testing.T) {
	c := New[*client](0)
	builds := 0
	build := func(k string) (*client, error) {
		builds++
		return &client{key: k}, nil
	}

	a, _ := c.Get("sk-1", build)
	b, _ := c.Get("sk-1", build)
	if a != b {
		t.Error("same credential produced different clients")
	}
	if builds != 1 {
		t.Errorf("builds = %d, want 1", builds)
	}

	d, _ := c.Get("sk-2", build)
	if d == a {
		t.Error("rotated credential reused the old client")
	}
	if d.key != "sk-2" {
		t.Errorf("client key = %q, want sk-2", d.key)
	}
}

func TestGet_BuildErrorNotCached(t *testing.T) {
	c := New[*client](2)
	boom := errors.New("bad")
	if _, err := c.Get("sk-1", func(string) (*client, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
	if _, err := c.Get("sk-1", func(k string) (*client, error) { return &client{k}, nil }); err != nil {
		t.Fatalf("second Get: %v", err)
	}
}

func TestGet_EvictsOldest(t *testing.T) {
	c := New[*client](2)
	build := func(k string) (*client, error) { return &client{k}, nil }
	first, _ := c.Get("sk-1", build)
	_, _ = c.Get("sk-2", build)
	_, _ = c.Get("sk-3", build)
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	again, _ := c.Get("sk-1", build)
	if again == first {
		t.Error("evicted client was returned")
	}
}

func TestGet_Concurrent(t *testing.T) {
	c := New[*client](8)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = c.Get(fmt.Sprintf("sk-%d", i%4), func(k string) (*client, error) { return &client{k}, nil })
		}(i)
	}
	wg.Wait()
	if c.Len() != 4 {
		t.Errorf("Len = %d, want 4", c.Len())
	}
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len after Purge = %d", c.Len())
	}
}
