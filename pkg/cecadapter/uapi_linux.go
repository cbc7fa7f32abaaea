//go:build linux

package cecadapter

import "unsafe"

// Reproduced from <linux/cec.h>. Field order and sizes match the kernel
// UAPI exactly; this is deliberately not translated from any other
// language's constant table (spec.md §9).

const (
	cecMaxMsgSize  = 16
	cecMaxLogAddrs = 4
)

// cecMsg mirrors struct cec_msg.
type cecMsg struct {
	TxTS         uint64
	RxTS         uint64
	Len          uint32
	Timeout      uint32
	Sequence     uint32
	Flags        uint32
	Msg          [cecMaxMsgSize]byte
	Reply        uint8
	RxStatus     uint8
	TxStatus     uint8
	TxArbLostCnt uint8
	TxNackCnt    uint8
	TxLowDriveCnt uint8
	TxErrorCnt   uint8
}

// cecLogAddrs mirrors struct cec_log_addrs.
type cecLogAddrs struct {
	LogAddr           [cecMaxLogAddrs]uint8
	LogAddrMask       uint16
	CecVersion        uint8
	NumLogAddrs       uint8
	VendorID          uint32
	Flags             uint32
	OSDName           [15]byte
	PrimaryDeviceType [cecMaxLogAddrs]uint8
	LogAddrType       [cecMaxLogAddrs]uint8
	AllDeviceTypes    [cecMaxLogAddrs]uint8
	Features          [cecMaxLogAddrs][12]uint8
}

// cecEvent mirrors struct cec_event (only the fields this adapter reads).
type cecEvent struct {
	TS       uint64
	EventType uint32
	Flags    uint32
	// union cec_event.{state_change, lost_msgs, raw[16]} kept as opaque
	// bytes: this adapter only dequeues events to drain the queue, it does
	// not act on them.
	Pad [64]byte
}

// rxStatus / txStatus bit values.
const (
	cecRxStatusOK      = 1 << 0
	cecTxStatusOK      = 1 << 0
	cecTxStatusNACK    = 1 << 2
)

// cec_log_addrs.flags
const cecLogAddrsFlAllowRCPassthru = 1 << 1

// Device types (cec_log_addrs primary/all device type, cec-version).
const (
	cecDeviceTypeAudioSystem = 5
	cecVersion14             = 5 // CEC_VERSION_1_4
	cecLogAddrUnregistered   = 0xf
	cecLogAddrAudioSystem    = 5
	cecLogAddrInvalid        = 0xff
)

// CEC_MODE_* for CEC_S_MODE: initiator bits in the low nibble, follower
// bits in the high nibble. spec.md §4.2 step 1 wants plain
// Initiator | Follower so inbound broadcasts are delivered without
// claiming exclusive passthrough.
const (
	cecModeInitiator = 0x1  // CEC_MODE_INITIATOR
	cecModeFollower  = 0x10 // CEC_MODE_FOLLOWER
)

var (
	sizeofCecMsg      = unsafe.Sizeof(cecMsg{})
	sizeofCecLogAddrs = unsafe.Sizeof(cecLogAddrs{})
	sizeofCecEvent    = unsafe.Sizeof(cecEvent{})
	sizeofUint32      = unsafe.Sizeof(uint32(0))
)
