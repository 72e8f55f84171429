package cache

import (
	"testing"
)

func TestGdsfStoresWithinCapacity(t *testing.T) {
	c := NewGdsf[string, *sizedEntry](10)
	if _, accepted := c.Store("a", &sizedEntry{size: 4, cost: 100}); !accepted {
		t.Fatal("store within capacity must be accepted")
	}
	if _, accepted := c.Store("b", &sizedEntry{size: 6, cost: 100}); !accepted {
		t.Fatal("store filling the capacity must be accepted")
	}
	if c.Used() != 10 {
		t.Errorf("expected used=10, got %d", c.Used())
	}
}

func TestGdsfEvictsCheapSmallEntries(t *testing.T) {
	c := NewGdsf[string, *sizedEntry](10)
	// Low priority: cost/size = 1.
	c.Store("cheap", &sizedEntry{size: 5, cost: 5})
	// High priority: cost/size = 1000.
	c.Store("dear", &sizedEntry{size: 5, cost: 5000})

	// The newcomer's priority (200) beats "cheap" (1) but not "dear".
	if _, accepted := c.Store("mid", &sizedEntry{size: 5, cost: 1000}); !accepted {
		t.Fatal("newcomer displacing a cheaper prefix must be accepted")
	}
	if c.Contains("cheap") {
		t.Error("the cheap entry must be the eviction victim")
	}
	if !c.Contains("dear") || !c.Contains("mid") {
		t.Error("the valuable entries must survive")
	}
}

func TestGdsfRejectsWeakNewcomer(t *testing.T) {
	c := NewGdsf[string, *sizedEntry](10)
	c.Store("a", &sizedEntry{size: 5, cost: 5000})
	c.Store("b", &sizedEntry{size: 5, cost: 5000})

	// Priority 1 cannot displace priority-1000 residents.
	if _, accepted := c.Store("weak", &sizedEntry{size: 5, cost: 5}); accepted {
		t.Fatal("a weak newcomer must be rejected")
	}
	if !c.Contains("a") || !c.Contains("b") {
		t.Error("residents must be untouched by a rejected insert")
	}

	// The rejection advanced the clock to the newcomer's priority, so an
	// identical retry still loses, but the clock keeps moving.
	if _, accepted := c.Store("weak", &sizedEntry{size: 5, cost: 5}); accepted {
		t.Error("retry with the same priority must still be rejected")
	}
}

func TestGdsfClockProgressionAdmitsRepeatedInserts(t *testing.T) {
	c := NewGdsf[string, *sizedEntry](4)
	c.Store("resident", &sizedEntry{size: 4, cost: 400}) // priority 100

	// Each rejection bumps the clock by the newcomer's priority offset;
	// eventually newcomers enter above the resident.
	var admitted bool
	for i := 0; i < 20 && !admitted; i++ {
		_, admitted = c.Store("challenger", &sizedEntry{size: 4, cost: 40})
	}
	if !admitted {
		t.Error("clock progression must eventually admit the challenger")
	}
}

func TestGdsfFrequencyProtectsHotEntries(t *testing.T) {
	c := NewGdsf[string, *sizedEntry](10)
	c.Store("hot", &sizedEntry{size: 5, cost: 50})
	c.Store("cold", &sizedEntry{size: 5, cost: 50})
	for i := 0; i < 9; i++ {
		c.Fetch("hot")
	}

	// Newcomer priority (50) sits between cold (10) and hot (100).
	if _, accepted := c.Store("new", &sizedEntry{size: 5, cost: 250}); !accepted {
		t.Fatal("newcomer must displace the cold entry")
	}
	if c.Contains("cold") {
		t.Error("the cold entry must be evicted")
	}
	if !c.Contains("hot") {
		t.Error("the frequently hit entry must survive")
	}
}

func TestGdsfRemove(t *testing.T) {
	c := NewGdsf[string, *sizedEntry](10)
	c.Store("a", &sizedEntry{size: 4, cost: 100})
	if _, ok := c.Remove("a"); !ok {
		t.Fatal("expected remove to find the entry")
	}
	if c.Used() != 0 {
		t.Errorf("expected used=0 after remove, got %d", c.Used())
	}
	if c.Contains("a") {
		t.Error("removed entry must be gone")
	}
}

func TestGdsfReplaceSameKey(t *testing.T) {
	c := NewGdsf[string, *sizedEntry](10)
	c.Store("a", &sizedEntry{size: 4, cost: 100, id: 1})
	c.Store("a", &sizedEntry{size: 6, cost: 100, id: 2})

	v, ok := c.Fetch("a")
	if !ok || v.id != 2 {
		t.Fatalf("expected the replacement entry, got %+v (ok=%v)", v, ok)
	}
	if c.Used() != 6 {
		t.Errorf("expected used=6, got %d", c.Used())
	}
}
