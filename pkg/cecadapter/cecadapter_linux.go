//go:build linux

package cecadapter

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/corvidae/cecbridge/pkg/bridgeerr"
)

var vendorIDTable = map[VendorProfile]uint32{
	VendorSamsung: SamsungVendorID,
}

// LinuxAdapter owns one open /dev/cecN file descriptor. Every method that
// touches the descriptor locks mu first: one struct, one mutex, one device
// handle.
type LinuxAdapter struct {
	mu       sync.Mutex
	fd       int
	open     bool
	vendorID uint32
}

// Open implements spec.md §4.2 steps 1-5: set mode, inspect the existing
// logical-address mask, claim address 5 if not already claimed (retrying
// Busy up to 3 times), and broadcast the vendor-ID announce once for the
// samsung profile.
func Open(cfg Config) (Adapter, error) {
	fd, err := unix.Open(cfg.DevicePath, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, bridgeerr.NewAdapterError("open", fmt.Errorf("%s: %w", cfg.DevicePath, err), false)
	}

	a := &LinuxAdapter{fd: fd, open: true}

	if err := a.setMode(cecModeInitiator | cecModeFollower); err != nil {
		unix.Close(fd)
		return nil, err
	}

	addrs, err := a.getLogAddrs()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	const audioSystemBit = 1 << cecLogAddrAudioSystem
	if addrs.LogAddrMask&audioSystemBit != 0 {
		// Another follower (or a previous run of this daemon) already
		// holds logical address 5; keep the kernel's existing vendor id
		// and skip the claim, per spec.md §4.2 step 2.
		a.vendorID = addrs.VendorID
		return a, nil
	}

	spoof := cfg.Vendor == VendorSamsung
	wantVendorID, _ := vendorIDTable[cfg.Vendor]

	var claimErr error
	for attempt := 0; attempt <= len(claimRetryDelays); attempt++ {
		claimErr = a.claim(cfg.OSDName, spoof, wantVendorID)
		if claimErr == nil {
			break
		}
		if !bridgeerr.IsBusy(claimErr) || attempt == len(claimRetryDelays) {
			unix.Close(fd)
			return nil, claimErr
		}
		time.Sleep(claimRetryDelays[attempt])
	}
	if claimErr != nil {
		unix.Close(fd)
		return nil, claimErr
	}

	if spoof {
		a.vendorID = wantVendorID
	}

	if cfg.Vendor == VendorSamsung {
		a.broadcastVendorID()
	}

	return a, nil
}

func (a *LinuxAdapter) claim(osdName string, spoofVendor bool, vendorID uint32) error {
	var addrs cecLogAddrs
	addrs.NumLogAddrs = 1
	addrs.CecVersion = cecVersion14
	addrs.PrimaryDeviceType[0] = cecDeviceTypeAudioSystem
	addrs.LogAddrType[0] = 4       // CEC_LOG_ADDR_TYPE_AUDIOSYSTEM
	addrs.AllDeviceTypes[0] = 0x08 // CEC_OP_ALL_DEVTYPE_AUDIOSYSTEM
	name := osdName
	if name == "" {
		name = "Audio"
	}
	if len(name) > len(addrs.OSDName) {
		name = name[:len(addrs.OSDName)]
	}
	copy(addrs.OSDName[:], name)
	if spoofVendor {
		addrs.VendorID = vendorID
	}

	if err := a.ioctl(cecAdapSLogAddrs, unsafe.Pointer(&addrs)); err != nil {
		if err == unix.EBUSY {
			return bridgeerr.NewAdapterError("claim logical address", err, true)
		}
		return bridgeerr.NewAdapterError("claim logical address", err, false)
	}
	return nil
}

func (a *LinuxAdapter) getLogAddrs() (*cecLogAddrs, error) {
	var addrs cecLogAddrs
	if err := a.ioctl(cecAdapGLogAddrs, unsafe.Pointer(&addrs)); err != nil {
		return nil, bridgeerr.NewAdapterError("get logical addresses", err, false)
	}
	return &addrs, nil
}

func (a *LinuxAdapter) setMode(mode uint32) error {
	if err := a.ioctl(cecSMode, unsafe.Pointer(&mode)); err != nil {
		return bridgeerr.NewAdapterError("set mode", err, false)
	}
	return nil
}

func (a *LinuxAdapter) broadcastVendorID() {
	// Best-effort: the send result is ignored, so a failed announce is
	// neither logged nor fatal.
	a.mu.Lock()
	defer a.mu.Unlock()
	vid := a.vendorID
	frame := []byte{
		0x5<<4 | 0xF, 0x87,
		byte(vid >> 16), byte(vid >> 8), byte(vid),
	}
	a.sendLocked(frame)
}

// Recv dequeues one received frame, skipping internal TX-status
// notifications (sequence != 0, tx_status != 0, rx_status == 0), per
// spec.md §4.2. It never blocks: callers poll it from a loop with their
// own short sleep between empty reads so the engine/watcher can interleave.
func (a *LinuxAdapter) Recv() ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return nil, false
	}
	a.drainEventsLocked()

	for {
		var msg cecMsg
		err := a.ioctl(cecReceive, unsafe.Pointer(&msg))
		if err != nil {
			// EAGAIN / ENODATA: nothing queued right now.
			return nil, false
		}
		if msg.Sequence != 0 && msg.TxStatus != 0 && msg.RxStatus == 0 {
			continue // internal TX-status echo, not a real inbound frame
		}
		n := int(msg.Len)
		if n > cecMaxMsgSize {
			n = cecMaxMsgSize
		}
		frame := append([]byte(nil), msg.Msg[:n]...)
		return frame, true
	}
}

// Send transmits frame. Returns false (never panics) on a closed adapter
// or a kernel-rejected transmit; callers log and continue.
func (a *LinuxAdapter) Send(frame []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sendLocked(frame)
}

func (a *LinuxAdapter) sendLocked(frame []byte) bool {
	if !a.open {
		return false
	}
	if len(frame) == 0 || len(frame) > cecMaxMsgSize {
		return false
	}

	var msg cecMsg
	msg.Len = uint32(len(frame))
	msg.Timeout = 1000
	copy(msg.Msg[:], frame)

	if err := a.ioctl(cecTransmit, unsafe.Pointer(&msg)); err != nil {
		return false
	}
	return msg.TxStatus&cecTxStatusOK != 0
}

// Close releases the device; safe to call more than once.
func (a *LinuxAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return nil
	}
	a.open = false
	return unix.Close(a.fd)
}

func (a *LinuxAdapter) ioctl(req uint32, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(a.fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// drainEventsLocked dequeues and discards pending CEC_DQEVENT
// notifications (state-change / lost-message events this daemon does not
// act on) so they never pile up and starve CEC_RECEIVE's poll path.
// Caller must hold mu.
func (a *LinuxAdapter) drainEventsLocked() {
	for {
		var ev cecEvent
		if err := a.ioctl(cecDQEvent, unsafe.Pointer(&ev)); err != nil {
			return
		}
	}
}

