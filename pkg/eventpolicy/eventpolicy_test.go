package eventpolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldEmit_FirstEventEmits(t *testing.T) {
	p := New(80*time.Millisecond, 120*time.Millisecond)
	base := time.Now()
	require.True(t, p.ShouldEmit(Event{Source: "cec", Key: "volume_up", Kind: "volume_up"}, base))
}

func TestShouldEmit_DedupeWindow(t *testing.T) {
	p := New(80*time.Millisecond, 0)
	base := time.Now()
	ev := Event{Source: "cec", Key: "volume_up", Kind: "volume_up"}

	require.True(t, p.ShouldEmit(ev, base))
	// Same fingerprint inside the dedupe window is dropped even though the
	// rate limit alone would have allowed it.
	assert.False(t, p.ShouldEmit(ev, base.Add(10*time.Millisecond)))
	// Once the dedupe window has elapsed (and the rate limit has too,
	// since minInterval is 0 here), it emits again.
	assert.True(t, p.ShouldEmit(ev, base.Add(90*time.Millisecond)))
}

func TestShouldEmit_RateLimitIsGlobal(t *testing.T) {
	p := New(0, 120*time.Millisecond)
	base := time.Now()

	require.True(t, p.ShouldEmit(Event{Source: "cec", Key: "volume_up", Kind: "volume_up"}, base))
	// A different fingerprint is still rate-limited by the shared
	// last-emit timestamp.
	assert.False(t, p.ShouldEmit(Event{Source: "cec", Key: "volume_down", Kind: "volume_down"}, base.Add(50*time.Millisecond)))
	assert.True(t, p.ShouldEmit(Event{Source: "cec", Key: "volume_down", Kind: "volume_down"}, base.Add(130*time.Millisecond)))
}

func TestShouldEmit_AtMostOneEmitPerFingerprintBurst(t *testing.T) {
	// P5: for any stream of identical-fingerprint events less than
	// dedupeWindow apart, at most one should_emit == true results.
	p := New(80*time.Millisecond, 0)
	base := time.Now()
	ev := Event{Source: "cec", Key: "mute", Kind: "mute"}

	emits := 0
	for i := 0; i < 20; i++ {
		if p.ShouldEmit(ev, base.Add(time.Duration(i)*time.Millisecond)) {
			emits++
		}
	}
	assert.Equal(t, 1, emits)
}

func TestShouldEmit_MinIntervalRespected(t *testing.T) {
	// P6: wall time between any two emits is >= min_interval_s.
	p := New(0, 120*time.Millisecond)
	base := time.Now()

	var lastEmit time.Time
	var sawFirst bool
	for i := 0; i < 50; i++ {
		now := base.Add(time.Duration(i*10) * time.Millisecond)
		ev := Event{Source: "cec", Key: "give_audio_status", Kind: "give_audio_status"}
		if p.ShouldEmit(ev, now) {
			if sawFirst {
				assert.GreaterOrEqual(t, now.Sub(lastEmit), 120*time.Millisecond)
			}
			lastEmit = now
			sawFirst = true
		}
	}
	require.True(t, sawFirst)
}
