package proxy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAddAndRotate(t *testing.T) {
	p := NewPool(Config{})
	if err := p.Add("http://p1.example.com:8080"); err != nil {
		t.Fatal(err)
	}
	if err := p.Add("http://p2.example.com:8080"); err != nil {
		t.Fatal(err)
	}

	a := p.Next()
	b := p.Next()
	c := p.Next()
	if a == nil || b == nil || c == nil {
		t.Fatal("expected proxies from a populated pool")
	}
	if a.Host == b.Host {
		t.Errorf("expected rotation, got %s twice", a.Host)
	}
	if c.Host != a.Host {
		t.Errorf("expected round-robin wrap, got %s", c.Host)
	}
}

func TestAddRejectsRelative(t *testing.T) {
	p := NewPool(Config{})
	if err := p.Add("not-a-url"); err == nil {
		t.Errorf("expected error for relative URL")
	}
}

func TestBenchAfterFailures(t *testing.T) {
	p := NewPool(Config{MaxFailures: 2, Cooldown: time.Hour})
	if err := p.Add("http://p1.example.com:8080"); err != nil {
		t.Fatal(err)
	}
	u := p.Next()

	if err := p.MarkFailure(u); err != nil {
		t.Fatal(err)
	}
	if p.Next() == nil {
		t.Fatal("one failure must not bench the proxy")
	}
	if err := p.MarkFailure(u); err != nil {
		t.Fatal(err)
	}
	if p.Next() != nil {
		t.Errorf("expected nil once the only proxy is benched")
	}
}

func TestSuccessResetsFailures(t *testing.T) {
	p := NewPool(Config{MaxFailures: 2, Cooldown: time.Hour})
	if err := p.Add("http://p1.example.com:8080"); err != nil {
		t.Fatal(err)
	}
	u := p.Next()

	_ = p.MarkFailure(u)
	_ = p.MarkSuccess(u)
	_ = p.MarkFailure(u)
	if p.Next() == nil {
		t.Errorf("success must reset the failure count")
	}
}

func TestMarkUnknown(t *testing.T) {
	p := NewPool(Config{})
	if err := p.Add("http://p1.example.com:8080"); err != nil {
		t.Fatal(err)
	}
	other := p.Next()
	other.Host = "other.example.com:8080"
	// the mutated URL no longer matches the pool entry
	if err := p.MarkFailure(other); err == nil {
		t.Errorf("expected ErrUnknownProxy")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxies.txt")
	content := "# fleet\nhttp://p1.example.com:8080\n\nhttp://p2.example.com:8080\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	p := NewPool(Config{})
	if err := p.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if p.Len() != 2 {
		t.Errorf("expected 2 proxies, got %d", p.Len())
	}
}
