//go:build linux
// +build linux

// Package hcisocket implements wiihost.Transport over a Linux HCI user
// channel (HCI_CHANNEL_USER) raw socket: the kernel hands the whole H4
// stream straight to user space with no btmgmt/bluetoothd in the loop,
// which is what lets this stack run its own pairing and link-setup state
// machine instead of borrowing the host's.
package hcisocket

import (
	"io"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func ioR(t, nr, size uintptr) uintptr { return (2 << 30) | (t << 8) | nr | (size << 16) }
func ioW(t, nr, size uintptr) uintptr { return (1 << 30) | (t << 8) | nr | (size << 16) }

func ioctl(fd, op, arg uintptr) error {
	if _, _, ep := unix.Syscall(unix.SYS_IOCTL, fd, op, arg); ep != 0 {
		return ep
	}
	return nil
}

const (
	ioctlSize     = 4
	hciMaxDevices = 16
	typHCI        = 72 // 'H'
)

var (
	hciUpDevice      = ioW(typHCI, 201, ioctlSize) // HCIDEVUP
	hciDownDevice    = ioW(typHCI, 202, ioctlSize) // HCIDEVDOWN
	hciGetDeviceList = ioR(typHCI, 210, ioctlSize) // HCIGETDEVLIST
)

type devListRequest struct {
	devNum     uint16
	devRequest [hciMaxDevices]struct {
		id  uint16
		opt uint32
	}
}

// Socket is a Linux HCI user-channel raw socket. It implements
// wiihost.Transport: Read/Write carry H4-framed bytes. Real HCI flow
// control (Number-Of-Completed-Packets events replenishing a controller
// buffer budget) is more machinery than the Wii dialog's low,
// bursty traffic needs; HasSendCredit instead checks a constant credit
// budget set once at construction, defaulting to unlimited.
type Socket struct {
	fd     int
	closed chan struct{}
	rmu    sync.Mutex
	wmu    sync.Mutex

	credit int32 // negative means unlimited; atomic
}

// SocketOption configures a Socket at construction time.
type SocketOption func(*Socket)

// WithCredit caps the number of Write calls HasSendCredit allows before
// reporting false. A negative value (the default) means unlimited.
func WithCredit(n int32) SocketOption {
	return func(s *Socket) { s.credit = n }
}

// Open binds a HCI user-channel socket to the given adapter index
// (as in /sys/class/bluetooth/hciN). Binding a user channel takes the
// adapter away from the kernel's own Bluetooth stack and bluetoothd for
// as long as the socket stays open.
func Open(devID int, opts ...SocketOption) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW, unix.BTPROTO_HCI)
	if err != nil {
		return nil, errors.Wrap(err, "hcisocket: can't create socket")
	}

	// The adapter must be down before a user channel can bind to it.
	if err := ioctl(uintptr(fd), hciDownDevice, uintptr(devID)); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "hcisocket: can't down device")
	}

	sa := &unix.SockaddrHCI{Dev: uint16(devID), Channel: unix.HCI_CHANNEL_USER}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "hcisocket: can't bind to hci user channel")
	}

	// Binding implicitly resets and ups the controller; drain whatever
	// stray event that produces before the engine's own RESET is issued.
	pfds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	if n, _ := unix.Poll(pfds, 20); n > 0 && pfds[0].Revents&unix.POLLIN != 0 {
		var scratch [256]byte
		unix.Read(fd, scratch[:])
	}

	s := &Socket{fd: fd, closed: make(chan struct{}), credit: -1}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenFirstAvailable tries every adapter in the kernel's HCI device list
// in order and returns the first one that binds successfully.
func OpenFirstAvailable(opts ...SocketOption) (*Socket, error) {
	probe, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW, unix.BTPROTO_HCI)
	if err != nil {
		return nil, errors.Wrap(err, "hcisocket: can't create probe socket")
	}
	defer unix.Close(probe)

	req := devListRequest{devNum: hciMaxDevices}
	if err := ioctl(uintptr(probe), hciGetDeviceList, uintptr(unsafe.Pointer(&req))); err != nil {
		return nil, errors.Wrap(err, "hcisocket: can't get device list")
	}

	var lastErr error
	for i := 0; i < int(req.devNum); i++ {
		s, err := Open(int(req.devRequest[i].id), opts...)
		if err == nil {
			return s, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("hcisocket: no hci adapters present")
	}
	return nil, errors.Wrap(lastErr, "hcisocket: no usable adapter found")
}

// HasSendCredit reports whether a Write would currently be accepted
// against the constant credit budget set by WithCredit. Unlimited
// (the default) always reports true.
func (s *Socket) HasSendCredit() bool {
	return atomic.LoadInt32(&s.credit) != 0
}

func (s *Socket) Read(p []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, io.EOF
	default:
	}
	s.rmu.Lock()
	defer s.rmu.Unlock()
	n, err := unix.Read(s.fd, p)
	if err != nil {
		return n, errors.Wrap(err, "hcisocket: read")
	}
	return n, nil
}

func (s *Socket) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	n, err := unix.Write(s.fd, p)
	if err != nil {
		return n, errors.Wrap(err, "hcisocket: write")
	}
	if c := atomic.LoadInt32(&s.credit); c > 0 {
		atomic.AddInt32(&s.credit, -1)
	}
	return n, nil
}

// Close makes every later Read report io.EOF and releases the underlying
// file descriptor. A Read already blocked in the kernel is not
// interrupted: Close waits for it to return before closing the
// descriptor.
func (s *Socket) Close() error {
	close(s.closed)
	s.rmu.Lock()
	defer s.rmu.Unlock()
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return errors.Wrap(unix.Close(s.fd), "hcisocket: close")
}
