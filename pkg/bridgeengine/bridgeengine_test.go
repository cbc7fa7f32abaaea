package bridgeengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corvidae/cecbridge/pkg/ampclient"
	"github.com/corvidae/cecbridge/pkg/cecframe"
	"github.com/corvidae/cecbridge/pkg/config"
	"github.com/corvidae/cecbridge/pkg/eventpolicy"
	"github.com/corvidae/cecbridge/pkg/logging"
)

// fakeAdapter is an in-memory cecadapter.Adapter recording every
// transmitted frame, for assertions on what the engine pushed back to
// the bus without needing a real kernel device.
type fakeAdapter struct {
	mu  sync.Mutex
	out [][]byte
}

func (f *fakeAdapter) Recv() ([]byte, bool) { return nil, false }

func (f *fakeAdapter) Send(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, append([]byte(nil), frame...))
	return true
}

func (f *fakeAdapter) Close() error { return nil }

func (f *fakeAdapter) last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		return nil
	}
	return f.out[len(f.out)-1]
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.out)
}

// ampFake is a scripted stand-in for the amplifier's REST surface, used
// to build a real *ampclient.Client against an httptest server while
// counting calls per endpoint for the scenario-level REST-call assertions.
type ampFake struct {
	mu      sync.Mutex
	volume  int
	muted   bool
	calls   []string
}

func newAmpFake(t *testing.T, volume int, muted bool) (*ampclient.Client, *ampFake) {
	t.Helper()
	fake := &ampFake{volume: volume, muted: muted}

	mux := http.NewServeMux()
	mux.HandleFunc("/systems/current/sources/current/soundControl/volume", func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			fake.calls = append(fake.calls, "get_volume")
			json.NewEncoder(w).Encode(map[string]interface{}{"volume": fake.volume})
		case http.MethodPost:
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			if v, ok := body["volume"].(float64); ok {
				fake.volume = int(v)
			}
			fake.calls = append(fake.calls, "set_volume")
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.HandleFunc("/systems/current/sources/current/soundControl/volumeUp", func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		fake.volume++
		fake.calls = append(fake.calls, "volume_up")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/systems/current/sources/current/soundControl/volumeDown", func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		fake.volume--
		fake.calls = append(fake.calls, "volume_down")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/groups/current/sources/current", func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		fake.calls = append(fake.calls, "get_muted")
		state := "unmuted"
		if fake.muted {
			state = "muted"
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"muteState": state})
	})
	mux.HandleFunc("/groups/current/sources/current/playback/mute", func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		fake.muted = true
		fake.calls = append(fake.calls, "mute")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/groups/current/sources/current/playback/unmute", func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		fake.muted = false
		fake.calls = append(fake.calls, "unmute")
		w.WriteHeader(http.StatusOK)
	})

	// mute_toggle issues a GET to /groups/.../current first; since our
	// mux already serves that path above, no extra handler is needed.

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return ampclient.New(u.Hostname(), port, ""), fake
}

func testEngine(t *testing.T, vendorCompat config.VendorCompat, volume int, muted bool) (*Engine, *fakeAdapter, *ampFake) {
	t.Helper()
	amp, fake := newAmpFake(t, volume, muted)
	adapter := &fakeAdapter{}
	cfg := &config.Config{
		CECVendorCompat: vendorCompat,
		CECOSDName:      "Audio",
	}
	log, err := logging.NewLogger(&config.Config{LogLevel: "error"})
	require.NoError(t, err)
	policy := eventpolicy.New(0, 0)
	return New(cfg, amp, adapter, policy, log), adapter, fake
}

func ev(kind cecframe.Kind) *cecframe.InboundEvent {
	return &cecframe.InboundEvent{Kind: kind, Source: "cec", Key: kind.String()}
}

// Scenario 1: volume-up relative path.
func TestScenario_VolumeUpRelativePath(t *testing.T) {
	e, adapter, fake := testEngine(t, config.VendorCompatNone, 10, false)
	e.HandleInbound(context.Background(), ev(cecframe.KindVolumeUp))

	require.Equal(t, []string{"get_volume", "set_volume"}, fake.calls)
	require.Equal(t, "50:7A:0B", cecframe.Describe(adapter.last()))

	snap := e.Snapshot()
	require.NotNil(t, snap.Volume)
	require.Equal(t, 11, *snap.Volume)
}

// Scenario 2: SetAudioVolumeLevel with mute.
func TestScenario_SetAudioVolumeLevelWithMute(t *testing.T) {
	e, adapter, _ := testEngine(t, config.VendorCompatNone, 20, false)
	// Seed cache at (20, false) the way a prior GiveAudioStatus would.
	e.HandleInbound(context.Background(), ev(cecframe.KindGiveAudioStatus))
	adapter.out = nil

	setEv := ev(cecframe.KindSetAudioVolumeLevel)
	setEv.Level = 0x1A
	setEv.Muted = true
	e.HandleInbound(context.Background(), setEv)

	require.Equal(t, "50:7A:9A", cecframe.Describe(adapter.last()))
	snap := e.Snapshot()
	require.Equal(t, 26, *snap.Volume)
	require.True(t, *snap.Muted)
}

// Scenario 3: Samsung sync request, compat=samsung.
func TestScenario_SamsungSyncRequest_CompatSamsung(t *testing.T) {
	e, adapter, fake := testEngine(t, config.VendorCompatSamsung, 0, false)
	e.HandleInbound(context.Background(), ev(cecframe.KindGiveAudioStatus))
	fake.calls = nil
	adapter.out = nil

	syncEv := ev(cecframe.KindSamsungVendor)
	syncEv.Subcommand = cecframe.SamsungSubSyncTVVolume
	// Force the cached volume to 0x2B as the scenario specifies.
	v := 0x2B
	e.cachedVolume = &v

	e.HandleInbound(context.Background(), syncEv)

	require.Equal(t, "50:89:95:01:2B", cecframe.Describe(adapter.last()))
	require.Empty(t, fake.calls)
}

// Scenario 4: same input, compat=none.
func TestScenario_SamsungSyncRequest_CompatNone(t *testing.T) {
	e, adapter, fake := testEngine(t, config.VendorCompatNone, 0, false)
	v := 0x2B
	e.cachedVolume = &v

	syncEv := ev(cecframe.KindSamsungVendor)
	syncEv.Subcommand = cecframe.SamsungSubSyncTVVolume
	e.HandleInbound(context.Background(), syncEv)

	require.Equal(t, 0, adapter.count())
	require.Empty(t, fake.calls)
}

// Scenario 5: external drift notification.
func TestScenario_ExternalDriftNotification(t *testing.T) {
	e, adapter, fake := testEngine(t, config.VendorCompatNone, 10, false)
	e.HandleInbound(context.Background(), ev(cecframe.KindGiveAudioStatus))
	adapter.out = nil

	fake.mu.Lock()
	fake.volume = 20
	fake.mu.Unlock()

	e.watchSuspendUntil = time.Time{}
	e.tickLocked(context.Background())

	require.Equal(t, "50:7A:14", cecframe.Describe(adapter.last()))
	snap := e.Snapshot()
	require.Equal(t, 20, *snap.Volume)
}

// Scenario 6: watcher suspension around engine activity.
func TestScenario_WatcherSuspensionAroundEngineActivity(t *testing.T) {
	e, adapter, fake := testEngine(t, config.VendorCompatNone, 10, false)
	e.HandleInbound(context.Background(), ev(cecframe.KindGiveAudioStatus))
	adapter.out = nil
	fake.calls = nil

	fake.mu.Lock()
	fake.volume = 99
	fake.mu.Unlock()

	// watchSuspendUntil was just set by HandleInbound to ~0.8s from now.
	e.tickLocked(context.Background())

	require.Empty(t, fake.calls)
	require.Equal(t, 0, adapter.count())
}

// P1: set_volume is always called with a clamped 0..=100 value.
func TestP1_SetVolumeIsAlwaysClamped(t *testing.T) {
	e, _, fake := testEngine(t, config.VendorCompatNone, 50, false)
	setEv := ev(cecframe.KindSetAudioVolumeLevel)
	setEv.Level = 250 // out of range on the wire would already be masked to 7 bits upstream,
	// but the engine still clamps defensively.
	e.HandleInbound(context.Background(), setEv)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.LessOrEqual(t, fake.volume, 100)
	require.GreaterOrEqual(t, fake.volume, 0)
}

// P2: vendor_state_byte mirrors cached_volume after any cache-changing event.
func TestP2_VendorStateByteMirrorsVolume(t *testing.T) {
	e, _, _ := testEngine(t, config.VendorCompatNone, 40, false)
	e.HandleInbound(context.Background(), ev(cecframe.KindGiveAudioStatus))

	snap := e.Snapshot()
	require.Equal(t, byte(*snap.Volume), e.vendorStateByte)
}

// P3: idempotence of GiveAudioStatus.
func TestP3_GiveAudioStatusIdempotent(t *testing.T) {
	e, adapter, _ := testEngine(t, config.VendorCompatNone, 33, true)
	e.HandleInbound(context.Background(), ev(cecframe.KindGiveAudioStatus))
	first := adapter.last()
	e.HandleInbound(context.Background(), ev(cecframe.KindGiveAudioStatus))
	second := adapter.last()
	require.Equal(t, first, second)
}

// P4: status encode/decode round-trips.
func TestP4_StatusRoundTrips(t *testing.T) {
	for v := 0; v <= 100; v += 7 {
		for _, m := range []bool{true, false} {
			frame := cecframe.EncodeReportAudioStatus(v, m)
			gotV, gotM, ok := cecframe.DecodeReportAudioStatus(frame)
			require.True(t, ok)
			require.Equal(t, v, gotV)
			require.Equal(t, m, gotM)
		}
	}
}

// P7: compat gate — no transmit for any SamsungVendor* event when
// cec_vendor_compat == none.
func TestP7_CompatGateDropsAllSamsungEvents(t *testing.T) {
	e, adapter, fake := testEngine(t, config.VendorCompatNone, 10, false)

	for _, subcommand := range []byte{cecframe.SamsungSubSyncTVVolume, cecframe.SamsungSubQSymphonyMode, cecframe.SamsungSub88, cecframe.SamsungSub96} {
		sv := ev(cecframe.KindSamsungVendor)
		sv.Subcommand = subcommand
		sv.Payload = []byte{subcommand, 0x50}
		e.HandleInbound(context.Background(), sv)
	}
	e.HandleInbound(context.Background(), ev(cecframe.KindSamsungVendorWithID))

	require.Equal(t, 0, adapter.count())
	require.Empty(t, fake.calls)
}

func TestMute_TogglesCacheAndTransmits(t *testing.T) {
	e, adapter, fake := testEngine(t, config.VendorCompatNone, 10, false)
	e.HandleInbound(context.Background(), ev(cecframe.KindGiveAudioStatus))
	adapter.out = nil

	e.HandleInbound(context.Background(), ev(cecframe.KindMute))

	require.Contains(t, fake.calls, "mute")
	snap := e.Snapshot()
	require.True(t, *snap.Muted)
	require.Equal(t, "50:7A:8A", cecframe.Describe(adapter.last()))
}

func TestUserControlReleased_NoAction(t *testing.T) {
	e, adapter, fake := testEngine(t, config.VendorCompatNone, 10, false)
	e.HandleInbound(context.Background(), ev(cecframe.KindUserControlReleased))
	require.Equal(t, 0, adapter.count())
	require.Empty(t, fake.calls)
}

func TestFixedResponses(t *testing.T) {
	cases := map[cecframe.Kind]string{
		cecframe.KindSystemAudioModeRequest:      "50:72:01",
		cecframe.KindGiveSystemAudioModeStatus:   "50:7E:01",
		cecframe.KindRequestArcInitiation:        "50:C0",
		cecframe.KindRequestArcTermination:       "50:C5",
		cecframe.KindRequestShortAudioDescriptor: "50:A3:09:07:07",
	}
	for kind, want := range cases {
		e, adapter, _ := testEngine(t, config.VendorCompatNone, 10, false)
		e.HandleInbound(context.Background(), ev(kind))
		require.Equal(t, want, cecframe.Describe(adapter.last()), "kind %v", kind)
	}
}
