// Package cecframe parses and encodes HDMI-CEC byte frames for an Audio
// System (logical address 5). It is pure and side-effect-free: no I/O, no
// logging, just bytes in, typed events out, and typed events in, bytes out.
package cecframe

import "fmt"

// Logical addresses used on the bus.
const (
	LogicalAudioSystem byte = 0x5
	LogicalTV          byte = 0x0
	LogicalBroadcast   byte = 0xF
)

// Opcodes this Audio System understands.
const (
	OpUserControlPressed         byte = 0x44
	OpUserControlReleased        byte = 0x45
	OpGiveAudioStatus            byte = 0x71
	OpSetAudioVolumeLevel        byte = 0x73
	OpSamsungVendor              byte = 0x89
	OpSamsungVendorWithID        byte = 0xA0
	OpGiveOsdName                byte = 0x46
	OpSetOsdName                 byte = 0x47
	OpSystemAudioModeRequest     byte = 0x70
	OpGiveSystemAudioModeStatus  byte = 0x7D
	OpGiveDeviceVendorID         byte = 0x8C
	OpGiveDevicePowerStatus      byte = 0x8F
	OpRequestShortAudioDesc      byte = 0xA4
	OpRequestArcInitiation       byte = 0xC3
	OpRequestArcTermination      byte = 0xC4
	OpReportAudioStatus          byte = 0x7A
)

// User-control keycodes carried by OpUserControlPressed.
const (
	keycodeVolumeUp   byte = 0x41
	keycodeVolumeDown byte = 0x42
	keycodeMute       byte = 0x43
)

// Samsung vendor subcommands (opcode 0x89 payload byte 0).
const (
	SamsungSubSyncTVVolume  byte = 0x95
	SamsungSubQSymphonyMode byte = 0x92
	SamsungSub88            byte = 0x88
	SamsungSub96            byte = 0x96
)

// Kind tags the shape of an InboundEvent. It is a closed set; the protocol
// engine switches on it exhaustively.
type Kind int

const (
	KindVolumeUp Kind = iota
	KindVolumeDown
	KindMute
	KindUserControlReleased
	KindGiveAudioStatus
	KindSystemAudioModeRequest
	KindGiveSystemAudioModeStatus
	KindRequestArcInitiation
	KindRequestArcTermination
	KindRequestShortAudioDescriptor
	KindGiveDeviceVendorID
	KindGiveOsdName
	KindGiveDevicePowerStatus
	KindSetAudioVolumeLevel
	KindSamsungVendor
	KindSamsungVendorWithID
)

// String returns the stable name used as the fingerprint key component; it
// matches the event-kind vocabulary the rest of the system (and the CLI's
// --input keyboard harness) speaks.
func (k Kind) String() string {
	switch k {
	case KindVolumeUp:
		return "volume_up"
	case KindVolumeDown:
		return "volume_down"
	case KindMute:
		return "mute"
	case KindUserControlReleased:
		return "user_control_released"
	case KindGiveAudioStatus:
		return "give_audio_status"
	case KindSystemAudioModeRequest:
		return "system_audio_mode_request"
	case KindGiveSystemAudioModeStatus:
		return "give_system_audio_mode_status"
	case KindRequestArcInitiation:
		return "request_arc_initiation"
	case KindRequestArcTermination:
		return "request_arc_termination"
	case KindRequestShortAudioDescriptor:
		return "request_short_audio_descriptor"
	case KindGiveDeviceVendorID:
		return "give_device_vendor_id"
	case KindGiveOsdName:
		return "give_osd_name"
	case KindGiveDevicePowerStatus:
		return "give_device_power_status"
	case KindSetAudioVolumeLevel:
		return "set_audio_volume_level"
	case KindSamsungVendor:
		return "samsung_vendor_command"
	case KindSamsungVendorWithID:
		return "samsung_vendor_command_with_id"
	default:
		return "unknown"
	}
}

// InboundEvent is the tagged union C1 produces. Fields outside a variant's
// payload are zero-valued; callers switch on Kind, not on field presence.
type InboundEvent struct {
	Kind   Kind
	Source string
	Key    string

	// SetAudioVolumeLevel payload.
	Level int
	Muted bool

	// Samsung vendor payload (opcode 0x89 / 0xA0).
	Subcommand byte
	Mode       *byte
	Payload    []byte
}

var systemRequestTable = map[byte]Kind{
	OpGiveOsdName:               KindGiveOsdName,
	OpSystemAudioModeRequest:    KindSystemAudioModeRequest,
	OpGiveSystemAudioModeStatus: KindGiveSystemAudioModeStatus,
	OpGiveDeviceVendorID:        KindGiveDeviceVendorID,
	OpGiveDevicePowerStatus:     KindGiveDevicePowerStatus,
	OpRequestShortAudioDesc:     KindRequestShortAudioDescriptor,
	OpRequestArcInitiation:      KindRequestArcInitiation,
	OpRequestArcTermination:     KindRequestArcTermination,
}

// Parse decodes one received frame into an InboundEvent. It returns
// (nil, false) for frames that are too short, use an opcode this Audio
// System does not act on, or carry an unrecognized keycode — all silent
// drops per the FrameError policy; nothing here ever panics.
func Parse(frame []byte, source string) (*InboundEvent, bool) {
	l := len(frame)
	if l < 2 {
		return nil, false
	}
	opcode := frame[1]

	switch {
	case l >= 3 && opcode == OpUserControlPressed:
		switch frame[2] {
		case keycodeVolumeUp:
			return newEvent(KindVolumeUp, source), true
		case keycodeVolumeDown:
			return newEvent(KindVolumeDown, source), true
		case keycodeMute:
			return newEvent(KindMute, source), true
		default:
			return nil, false
		}

	case opcode == OpUserControlReleased:
		return newEvent(KindUserControlReleased, source), true

	case opcode == OpGiveAudioStatus:
		return newEvent(KindGiveAudioStatus, source), true

	case l >= 3 && opcode == OpSetAudioVolumeLevel:
		status := frame[2]
		ev := newEvent(KindSetAudioVolumeLevel, source)
		ev.Level = int(status & 0x7F)
		ev.Muted = status&0x80 != 0
		return ev, true

	case l >= 3 && opcode == OpSamsungVendor:
		ev := newEvent(KindSamsungVendor, source)
		ev.Subcommand = frame[2]
		if frame[2] == SamsungSubQSymphonyMode && l >= 4 {
			m := frame[3]
			ev.Mode = &m
		}
		ev.Payload = append([]byte(nil), frame[2:]...)
		return ev, true

	case l >= 3 && opcode == OpSamsungVendorWithID:
		ev := newEvent(KindSamsungVendorWithID, source)
		ev.Payload = append([]byte(nil), frame[2:]...)
		return ev, true

	default:
		if kind, ok := systemRequestTable[opcode]; ok {
			return newEvent(kind, source), true
		}
		return nil, false
	}
}

func newEvent(kind Kind, source string) *InboundEvent {
	return &InboundEvent{Kind: kind, Source: source, Key: kind.String()}
}

func header(initiator, destination byte) byte {
	return initiator<<4 | destination
}

// EncodeSetSystemAudioModeOn encodes "50 72 01".
func EncodeSetSystemAudioModeOn() []byte {
	return []byte{header(LogicalAudioSystem, LogicalTV), 0x72, 0x01}
}

// EncodeSystemAudioModeStatusOn encodes "50 7E 01".
func EncodeSystemAudioModeStatusOn() []byte {
	return []byte{header(LogicalAudioSystem, LogicalTV), 0x7E, 0x01}
}

// EncodeInitiateArc encodes "50 C0".
func EncodeInitiateArc() []byte {
	return []byte{header(LogicalAudioSystem, LogicalTV), 0xC0}
}

// EncodeTerminateArc encodes "50 C5".
func EncodeTerminateArc() []byte {
	return []byte{header(LogicalAudioSystem, LogicalTV), 0xC5}
}

// EncodeReportShortAudioDescriptor encodes the fixed LPCM 2ch descriptor
// "50 A3 09 07 07".
func EncodeReportShortAudioDescriptor() []byte {
	return []byte{header(LogicalAudioSystem, LogicalTV), 0xA3, 0x09, 0x07, 0x07}
}

// EncodeDeviceVendorID encodes a unicast Device Vendor ID frame.
func EncodeDeviceVendorID(vendorID uint32) []byte {
	return []byte{
		header(LogicalAudioSystem, LogicalTV), 0x87,
		byte(vendorID >> 16), byte(vendorID >> 8), byte(vendorID),
	}
}

// EncodeVendorIDBroadcast encodes the broadcast vendor-ID announce, sent
// once after a successful samsung-profile logical-address claim.
func EncodeVendorIDBroadcast(vendorID uint32) []byte {
	return []byte{
		header(LogicalAudioSystem, LogicalBroadcast), 0x87,
		byte(vendorID >> 16), byte(vendorID >> 8), byte(vendorID),
	}
}

// EncodeSetOSDName encodes the OSD name frame. An empty name falls back to
// "Audio"; names longer than 14 ASCII bytes are truncated.
func EncodeSetOSDName(name string) []byte {
	if name == "" {
		name = "Audio"
	}
	if len(name) > 14 {
		name = name[:14]
	}
	frame := []byte{header(LogicalAudioSystem, LogicalTV), OpSetOsdName}
	return append(frame, []byte(name)...)
}

// EncodeReportAudioStatus encodes opcode 0x7A: high bit mute, low 7 bits
// volume. volume is clamped into 0..=100 before encoding.
func EncodeReportAudioStatus(volume int, muted bool) []byte {
	volume = clamp(volume, 0, 100)
	status := byte(volume & 0x7F)
	if muted {
		status |= 0x80
	}
	return []byte{header(LogicalAudioSystem, LogicalTV), OpReportAudioStatus, status}
}

// DecodeReportAudioStatus reverses EncodeReportAudioStatus, for round-trip
// testing of the status byte (P4).
func DecodeReportAudioStatus(frame []byte) (volume int, muted bool, ok bool) {
	if len(frame) < 3 || frame[1] != OpReportAudioStatus {
		return 0, false, false
	}
	status := frame[2]
	return int(status & 0x7F), status&0x80 != 0, true
}

// EncodeSamsungVendorSyncReply encodes "50 89 95 01 <vendorStateByte>", the
// reply to a Samsung SYNC_TV_VOLUME request.
func EncodeSamsungVendorSyncReply(vendorStateByte byte) []byte {
	return []byte{header(LogicalAudioSystem, LogicalTV), OpSamsungVendor, SamsungSubSyncTVVolume, 0x01, vendorStateByte}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Describe renders a frame as colon-separated hex bytes, matching the wire
// notation used throughout spec scenarios (e.g. "50:7A:0B") and convenient
// for log lines.
func Describe(frame []byte) string {
	out := ""
	for i, b := range frame {
		if i > 0 {
			out += ":"
		}
		out += fmt.Sprintf("%02X", b)
	}
	return out
}
