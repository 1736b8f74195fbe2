package ids

import (
	"testing"
	"time"
)

func TestNewIsMonotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("expected %s > %s", next, prev)
		}
		prev = next
	}
}

func TestTimeRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	got, ok := Time(NewAt(at))
	if !ok {
		t.Fatal("expected id to parse")
	}
	if !got.Equal(at) {
		t.Fatalf("unexpected time %v, want %v", got, at)
	}
	if _, ok := Time("not-a-ulid"); ok {
		t.Fatal("expected invalid id to be rejected")
	}
}
