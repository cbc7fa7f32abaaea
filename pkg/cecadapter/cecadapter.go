// Package cecadapter owns the kernel CEC character device (spec.md §4.2):
// claiming logical address 5 as an Audio System, producing a stream of
// raw received frames, and transmitting frames. The ioctl-driven
// implementation lives in cecadapter_linux.go, reproducing the
// <linux/cec.h> UAPI directly (cec_msg, cec_log_addrs, the CEC_ADAP_*/
// CEC_S_*/CEC_TRANSMIT/CEC_RECEIVE numbers) rather than translating the
// original's cec-client subprocess wrapper; this package has no non-Linux
// target, so cecadapter_other.go simply reports "unsupported platform".
package cecadapter

import (
	"errors"
	"time"
)

// VendorProfile selects the vendor-compatibility extension the adapter
// announces (spec.md §3's vendor-ID table).
type VendorProfile string

const (
	VendorNone    VendorProfile = "none"
	VendorSamsung VendorProfile = "samsung"
)

// SamsungVendorID is the 24-bit vendor identifier Samsung TVs expect a
// Q-Symphony-capable Audio System to announce.
const SamsungVendorID uint32 = 0x0000F0

// Config configures one adapter open/configure cycle.
type Config struct {
	DevicePath string
	OSDName    string
	Vendor     VendorProfile
}

// claimRetryDelays are the three bounded retry delays from spec.md §4.2
// step 4: 0.1s, 0.25s, 0.5s.
var claimRetryDelays = []time.Duration{
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// ErrUnsupportedPlatform is returned by Open on any platform without a
// real /dev/cec implementation (i.e. everywhere but Linux).
var ErrUnsupportedPlatform = errors.New("cecadapter: CEC adapter is only supported on linux")

// Adapter is the interface the protocol engine and supervisor consume;
// bridgeengine and supervisor depend on this, not on the concrete ioctl
// type, so tests can substitute a fake.
type Adapter interface {
	// Recv returns one received frame, or (nil, false) if none is
	// currently available. Never blocks longer than a short poll
	// interval; callers loop on it from a dedicated goroutine.
	Recv() ([]byte, bool)
	// Send transmits a frame. Returns false (never panics) if the
	// adapter is closed or the kernel rejects the transmit.
	Send(frame []byte) bool
	// Close releases the device.
	Close() error
}
