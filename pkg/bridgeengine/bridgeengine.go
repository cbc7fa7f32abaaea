// Package bridgeengine implements the Audio-System protocol state machine
// (spec.md §4.5, C5) and its companion external watcher (§4.6, C6). Both
// share one struct and one exclusive lock: the cached volume/muted/
// vendor-state-byte triple is the single shared mutable cell in the core,
// modeled as one struct behind one mutex rather than separate atomics.
// The switch in HandleInbound is deliberately flat static dispatch on
// cecframe.Kind, not a dispatch table, to keep every opcode's handling
// exhaustive and visible in one place.
//
// Every method that touches shared state locks mu first; helpers whose
// name ends "...Locked" assume the caller already holds it, except
// tickLocked, the watcher's per-tick body, which takes mu itself.
package bridgeengine

import (
	"context"
	"sync"
	"time"

	"github.com/corvidae/cecbridge/pkg/ampclient"
	"github.com/corvidae/cecbridge/pkg/cecadapter"
	"github.com/corvidae/cecbridge/pkg/cecframe"
	"github.com/corvidae/cecbridge/pkg/config"
	"github.com/corvidae/cecbridge/pkg/eventpolicy"
	"github.com/corvidae/cecbridge/pkg/logging"
)

const (
	externalWatchSuspend  = 800 * time.Millisecond
	externalWatchInterval = 500 * time.Millisecond
	inboundPollInterval   = 20 * time.Millisecond

	// initialVendorStateByte is the cache's vendor_state_byte default
	// until the first real observation (spec.md §3).
	initialVendorStateByte byte = 0x14
)

// Engine is the daemon's Audio-System state machine plus its external
// watcher. The fields from cachedVolume through watchSuspendUntil are
// shared mutable state guarded by mu; every HTTP call, every CEC transmit, and every cache
// read-modify-write happens while holding it (spec.md §5).
type Engine struct {
	mu sync.Mutex

	amp     *ampclient.Client
	adapter cecadapter.Adapter
	policy  *eventpolicy.Policy
	log     *logging.Logger

	vendorCompat config.VendorCompat
	osdName      string
	vendorID     uint32

	cachedVolume      *int
	cachedMuted       *bool
	vendorStateByte   byte
	watchSuspendUntil time.Time
}

// New builds an Engine bound to one amplifier client / CEC adapter pair
// for the duration of one supervisor cycle.
func New(cfg *config.Config, amp *ampclient.Client, adapter cecadapter.Adapter, policy *eventpolicy.Policy, log *logging.Logger) *Engine {
	var vendorID uint32
	if cfg.CECVendorCompat == config.VendorCompatSamsung {
		vendorID = cecadapter.SamsungVendorID
	}
	return &Engine{
		amp:             amp,
		adapter:         adapter,
		policy:          policy,
		log:             log,
		vendorCompat:    cfg.CECVendorCompat,
		osdName:         cfg.CECOSDName,
		vendorID:        vendorID,
		vendorStateByte: initialVendorStateByte,
	}
}

// RunInbound polls the adapter for received frames and dispatches each
// parsed one to HandleInbound, until ctx is cancelled. A frame the codec
// does not recognize is a silent FrameError-shaped drop (spec.md §7); it
// never reaches HandleInbound.
func (e *Engine) RunInbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, ok := e.adapter.Recv()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(inboundPollInterval):
			}
			continue
		}

		ev, ok := cecframe.Parse(frame, "cec")
		if !ok {
			e.log.Debugf("bridgeengine", "dropping unrecognized frame %s", cecframe.Describe(frame))
			continue
		}
		e.HandleInbound(ctx, ev)
	}
}

// HandleInbound processes one inbound event under the single I/O lock.
// It never lets a failing event bring down the loop: every amplifier or
// adapter error is logged and aborts only the current event, preserving
// whatever cache state already exists.
func (e *Engine) HandleInbound(ctx context.Context, ev *cecframe.InboundEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.watchSuspendUntil = time.Now().Add(externalWatchSuspend)

	switch ev.Kind {
	case cecframe.KindSystemAudioModeRequest:
		e.transmitLocked(cecframe.EncodeSetSystemAudioModeOn())
	case cecframe.KindGiveSystemAudioModeStatus:
		e.transmitLocked(cecframe.EncodeSystemAudioModeStatusOn())
	case cecframe.KindRequestArcInitiation:
		e.transmitLocked(cecframe.EncodeInitiateArc())
	case cecframe.KindRequestArcTermination:
		e.transmitLocked(cecframe.EncodeTerminateArc())
	case cecframe.KindRequestShortAudioDescriptor:
		e.transmitLocked(cecframe.EncodeReportShortAudioDescriptor())
	case cecframe.KindGiveDeviceVendorID:
		e.transmitLocked(cecframe.EncodeDeviceVendorID(e.vendorID))
	case cecframe.KindGiveOsdName:
		e.transmitLocked(cecframe.EncodeSetOSDName(e.osdName))
	case cecframe.KindGiveDevicePowerStatus:
		// Observed, no reply: TVs tested against this daemon never
		// require Report Power Status (spec.md §9 open question).

	case cecframe.KindGiveAudioStatus:
		e.handleGiveAudioStatusLocked(ctx)
	case cecframe.KindSetAudioVolumeLevel:
		e.handleSetAudioVolumeLevelLocked(ctx, ev)

	case cecframe.KindVolumeUp:
		if e.policyAllowsLocked(ev) {
			e.handleVolumeStepLocked(ctx, true)
		}
	case cecframe.KindVolumeDown:
		if e.policyAllowsLocked(ev) {
			e.handleVolumeStepLocked(ctx, false)
		}
	case cecframe.KindMute:
		if e.policyAllowsLocked(ev) {
			e.handleMuteLocked(ctx)
		}
	case cecframe.KindUserControlReleased:
		// No action; never re-report (spec.md §4.5).

	case cecframe.KindSamsungVendor:
		e.handleSamsungVendorLocked(ctx, ev)
	case cecframe.KindSamsungVendorWithID:
		if e.vendorCompat == config.VendorCompatSamsung {
			e.log.Debugf("bridgeengine", "dropping samsung vendor-with-id frame")
		}
	}
}

func (e *Engine) policyAllowsLocked(ev *cecframe.InboundEvent) bool {
	return e.policy.ShouldEmit(eventpolicy.Event{Source: ev.Source, Key: ev.Key, Kind: ev.Kind.String()}, time.Now())
}

func (e *Engine) handleGiveAudioStatusLocked(ctx context.Context) {
	if err := e.ensureCacheLocked(ctx); err != nil {
		e.log.Warnf("bridgeengine", "give_audio_status: cache hydration failed: %v", err)
		return
	}
	e.transmitLocked(cecframe.EncodeReportAudioStatus(*e.cachedVolume, *e.cachedMuted))
}

// ensureCacheLocked implements cache hydration (spec.md §4.5): any
// currently-unknown half of the cache is filled from the amplifier.
func (e *Engine) ensureCacheLocked(ctx context.Context) error {
	if e.cachedVolume == nil {
		v, err := e.amp.GetVolume(ctx)
		if err != nil {
			return err
		}
		v = clampInt(v, 0, 100)
		e.cachedVolume = &v
		e.vendorStateByte = byte(v)
	}
	if e.cachedMuted == nil {
		m, err := e.amp.GetMuted(ctx)
		if err != nil {
			return err
		}
		e.cachedMuted = &m
	}
	return nil
}

func (e *Engine) handleSetAudioVolumeLevelLocked(ctx context.Context, ev *cecframe.InboundEvent) {
	level := clampInt(ev.Level, 0, 100)
	if err := e.amp.SetVolume(ctx, level); err != nil {
		e.log.Warnf("bridgeengine", "set_audio_volume_level: set_volume failed: %v", err)
		return
	}
	e.cachedVolume = &level
	e.vendorStateByte = byte(level)

	current, err := e.resolveMutedLocked(ctx)
	if err != nil {
		e.log.Warnf("bridgeengine", "set_audio_volume_level: get_muted failed: %v", err)
		return
	}
	if current != ev.Muted {
		if err := e.amp.MuteToggle(ctx); err != nil {
			e.log.Warnf("bridgeengine", "set_audio_volume_level: mute_toggle failed: %v", err)
			return
		}
	}
	muted := ev.Muted
	e.cachedMuted = &muted

	e.transmitLocked(cecframe.EncodeReportAudioStatus(*e.cachedVolume, *e.cachedMuted))
}

// resolveMutedLocked returns the cached mute state if known, otherwise
// queries the amplifier directly (used only where the spec explicitly
// requires ground truth, e.g. SetAudioVolumeLevel's mute reconciliation).
func (e *Engine) resolveMutedLocked(ctx context.Context) (bool, error) {
	if e.cachedMuted != nil {
		return *e.cachedMuted, nil
	}
	return e.amp.GetMuted(ctx)
}

// handleVolumeStepLocked implements VolumeUp/VolumeDown (spec.md §4.5).
// The relative step reads the amplifier's ground-truth volume and nudges
// it by one; on any failure it falls back to the amplifier's native
// step endpoint and, only then, guesses the new cache value from the old
// one. The transmitted mute bit uses whatever is already cached (or
// false if nothing is cached yet) rather than querying get_muted, so the
// relative step costs at most two amplifier calls, matching the "relative
// step" scenario's REST call count; the native-endpoint fallback adds a
// third.
func (e *Engine) handleVolumeStepLocked(ctx context.Context, up bool) {
	delta := 1
	if !up {
		delta = -1
	}

	newVolume, ok := e.attemptRelativeStepLocked(ctx, delta)
	if !ok {
		var err error
		if up {
			err = e.amp.VolumeUp(ctx)
		} else {
			err = e.amp.VolumeDown(ctx)
		}
		if err != nil {
			e.log.Warnf("bridgeengine", "volume step: native endpoint failed: %v", err)
			return
		}
		if e.cachedVolume == nil {
			// No ground truth to guess from; the next watcher tick
			// will hydrate the cache instead of transmitting a
			// fabricated status.
			return
		}
		newVolume = clampInt(*e.cachedVolume+delta, 0, 100)
	}

	e.cachedVolume = &newVolume
	e.vendorStateByte = byte(newVolume)

	muted := false
	if e.cachedMuted != nil {
		muted = *e.cachedMuted
	}
	e.transmitLocked(cecframe.EncodeReportAudioStatus(newVolume, muted))
}

// attemptRelativeStepLocked reads the amplifier's current volume and, if
// a one-step nudge actually changes it, applies it absolutely. Returns
// ok=false on any amplifier error so the caller falls back.
func (e *Engine) attemptRelativeStepLocked(ctx context.Context, delta int) (int, bool) {
	current, err := e.amp.GetVolume(ctx)
	if err != nil {
		return 0, false
	}
	target := clampInt(current+delta, 0, 100)
	if target == current {
		return target, true
	}
	if err := e.amp.SetVolume(ctx, target); err != nil {
		return 0, false
	}
	return target, true
}

func (e *Engine) handleMuteLocked(ctx context.Context) {
	if err := e.amp.MuteToggle(ctx); err != nil {
		e.log.Warnf("bridgeengine", "mute: mute_toggle failed: %v", err)
		return
	}
	if e.cachedMuted != nil {
		m := !*e.cachedMuted
		e.cachedMuted = &m
	}

	volume := int(e.vendorStateByte)
	if e.cachedVolume != nil {
		volume = *e.cachedVolume
	}
	muted := false
	if e.cachedMuted != nil {
		muted = *e.cachedMuted
	}
	e.transmitLocked(cecframe.EncodeReportAudioStatus(volume, muted))
}

// handleSamsungVendorLocked implements the Samsung vendor-extension
// family (spec.md §4.5), gated entirely behind cec_vendor_compat ==
// samsung (P7): every branch here is unreachable when the flag is off.
func (e *Engine) handleSamsungVendorLocked(ctx context.Context, ev *cecframe.InboundEvent) {
	if e.vendorCompat != config.VendorCompatSamsung {
		return
	}

	switch ev.Subcommand {
	case cecframe.SamsungSubSyncTVVolume:
		if e.cachedVolume != nil {
			e.vendorStateByte = byte(clampInt(*e.cachedVolume, 0, 100))
		}
		e.transmitLocked(cecframe.EncodeSamsungVendorSyncReply(e.vendorStateByte))

	case cecframe.SamsungSubQSymphonyMode:
		if ev.Mode != nil && isAcceptedQSymphonyMode(*ev.Mode) {
			e.log.Debugf("bridgeengine", "accepted q-symphony mode 0x%02X", *ev.Mode)
		} else {
			e.log.Debugf("bridgeengine", "dropping q-symphony mode update")
		}

	case cecframe.SamsungSub88:
		e.log.Debugf("bridgeengine", "accepted samsung vendor subcommand 0x88")

	case cecframe.SamsungSub96:
		e.log.Debugf("bridgeengine", "accepted samsung vendor subcommand 0x96")
		e.maybeApplyTVVolumeUpdateLocked(ctx, ev)

	default:
		e.log.Debugf("bridgeengine", "dropping unknown samsung vendor subcommand 0x%02X", ev.Subcommand)
	}
}

func isAcceptedQSymphonyMode(mode byte) bool {
	switch mode {
	case 0x01, 0x03, 0x04, 0x05, 0x06:
		return true
	default:
		return false
	}
}

// maybeApplyTVVolumeUpdateLocked interprets a 0x96 payload's last byte as
// a TV-pushed volume level when it looks like one (spec.md §4.5). It
// never transmits a response of its own.
func (e *Engine) maybeApplyTVVolumeUpdateLocked(ctx context.Context, ev *cecframe.InboundEvent) {
	if len(ev.Payload) < 2 {
		return
	}
	candidate := int(ev.Payload[len(ev.Payload)-1])
	if candidate < 0 || candidate > 100 {
		return
	}
	if e.cachedVolume == nil || candidate != *e.cachedVolume {
		if err := e.amp.SetVolume(ctx, candidate); err != nil {
			e.log.Warnf("bridgeengine", "samsung 0x96: set_volume failed: %v", err)
			return
		}
	}
	e.vendorStateByte = byte(candidate)
	e.cachedVolume = &candidate
}

// transmitLocked sends frame on the CEC bus. A nil adapter (keyboard
// input mode has no CEC bus to answer on) silently drops the frame,
// mirroring the original daemon's keyboard path never calling send_tx.
func (e *Engine) transmitLocked(frame []byte) {
	if e.adapter == nil {
		return
	}
	if !e.adapter.Send(frame) {
		e.log.Warnf("bridgeengine", "transmit failed for frame %s", cecframe.Describe(frame))
	}
}

// Watch runs the external watcher (spec.md §4.6) until ctx is cancelled,
// polling the amplifier every external_watch_interval_s and broadcasting
// a fresh Report Audio Status whenever its state drifts from the cache.
func (e *Engine) Watch(ctx context.Context) error {
	ticker := time.NewTicker(externalWatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.tickLocked(ctx)
		}
	}
}

func (e *Engine) tickLocked(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if time.Now().Before(e.watchSuspendUntil) {
		return
	}

	volume, err := e.amp.GetVolume(ctx)
	if err != nil {
		e.log.Debugf("bridgeengine", "watcher: get_volume failed: %v", err)
		return
	}
	muted, err := e.amp.GetMuted(ctx)
	if err != nil {
		e.log.Debugf("bridgeengine", "watcher: get_muted failed: %v", err)
		return
	}
	volume = clampInt(volume, 0, 100)

	if e.cachedVolume == nil || e.cachedMuted == nil {
		e.cachedVolume = &volume
		e.cachedMuted = &muted
		e.vendorStateByte = byte(volume)
		return
	}

	if volume != *e.cachedVolume || muted != *e.cachedMuted {
		e.cachedVolume = &volume
		e.cachedMuted = &muted
		e.vendorStateByte = byte(volume)
		e.transmitLocked(cecframe.EncodeReportAudioStatus(volume, muted))
	}
}

// Snapshot is a read-only copy of the cached audio state, used by the CLI
// status surface; it never races with HandleInbound/Watch since it takes
// the same lock.
type Snapshot struct {
	Volume *int
	Muted  *bool
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{}
	if e.cachedVolume != nil {
		v := *e.cachedVolume
		s.Volume = &v
	}
	if e.cachedMuted != nil {
		m := *e.cachedMuted
		s.Muted = &m
	}
	return s
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
