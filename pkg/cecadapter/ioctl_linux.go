//go:build linux

package cecadapter

// Linux ioctl direction/size encoding, reproduced from <asm-generic/ioctl.h>
// so the CEC_* numbers below match what the running kernel expects without
// depending on cgo or a headers package.
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	cecIoctlType = 'a'
)

func ioc(dir, nr uint32, size uintptr) uint32 {
	return (dir << iocDirShift) | (cecIoctlType << iocTypeShift) | (nr << iocNRShift) | (uint32(size) << iocSizeShift)
}

// CEC_* ioctl numbers, from <linux/cec.h>.
var (
	cecAdapGLogAddrs = ioc(iocRead, 3, sizeofCecLogAddrs)
	cecAdapSLogAddrs = ioc(iocWrite|iocRead, 4, sizeofCecLogAddrs)
	cecTransmit      = ioc(iocWrite|iocRead, 5, sizeofCecMsg)
	cecReceive       = ioc(iocWrite|iocRead, 6, sizeofCecMsg)
	cecDQEvent       = ioc(iocWrite|iocRead, 7, sizeofCecEvent)
	cecSMode         = ioc(iocWrite, 9, sizeofUint32)
)
