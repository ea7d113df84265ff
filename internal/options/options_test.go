package options

import "testing"

func TestLevelMaxSizeGrowsByMultiplier(t *testing.T) {
	o := DefaultStorageOptions()
	o.MaxLevelFileSizeBase = 100
	o.MaxLevelFileSizeMultiplier = 10

	if got := o.LevelMaxSize(0); got != 0 {
		t.Fatalf("expected level 0 to have no target, got %d", got)
	}
	if got := o.LevelMaxSize(1); got != 100 {
		t.Fatalf("expected level 1 target 100, got %d", got)
	}
	if got := o.LevelMaxSize(2); got != 1000 {
		t.Fatalf("expected level 2 target 1000, got %d", got)
	}
}

func TestDefaultCacheOptions(t *testing.T) {
	c := DefaultCacheOptions()
	if c.MaxBufferSize == 0 || c.MaxImmutableNumber == 0 {
		t.Fatal("expected non-zero defaults")
	}
}
