package dedup

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_AdmitTwice(t *testing.T) {
	tr := New()

	assert.True(t, tr.TryAdmit("/watch/a.jpg"))
	assert.False(t, tr.TryAdmit("/watch/a.jpg"), "in-flight path must not be re-admitted")

	tr.MarkDone("/watch/a.jpg")
	assert.False(t, tr.TryAdmit("/watch/a.jpg"), "done path must not be re-admitted")
}

func TestTracker_ReleaseAllowsRetry(t *testing.T) {
	tr := New()

	assert.True(t, tr.TryAdmit("/watch/a.jpg"))
	tr.Release("/watch/a.jpg")
	assert.True(t, tr.TryAdmit("/watch/a.jpg"))
}

func TestTracker_ReleaseKeepsDone(t *testing.T) {
	tr := New()

	tr.TryAdmit("/watch/a.jpg")
	tr.MarkDone("/watch/a.jpg")
	tr.Release("/watch/a.jpg")

	s, ok := tr.State("/watch/a.jpg")
	assert.True(t, ok)
	assert.Equal(t, Done, s)
}

func TestTracker_Seeded(t *testing.T) {
	tr := New("/watch/old.pdf")

	assert.False(t, tr.TryAdmit("/watch/old.pdf"))
	assert.True(t, tr.TryAdmit("/watch/new.pdf"))
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, []string{"/watch/old.pdf"}, tr.Snapshot(Done))
	assert.Equal(t, []string{"/watch/new.pdf"}, tr.Snapshot(InFlight))
}

func TestTracker_ResetAndForget(t *testing.T) {
	tr := New("/a", "/b")
	tr.TryAdmit("/c")

	tr.Reset()
	assert.Equal(t, 1, tr.Len())
	assert.True(t, tr.TryAdmit("/a"))

	tr.Forget("/c")
	assert.True(t, tr.TryAdmit("/c"))
}

func TestTracker_ConcurrentAdmit(t *testing.T) {
	tr := New()

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
	)

	for i := 0; i < 64; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if tr.TryAdmit("/watch/race.bin") {
				admitted.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "in-flight", InFlight.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "unknown", State(0).String())
}
