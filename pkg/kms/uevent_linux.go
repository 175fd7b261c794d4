//go:build linux

package kms

import (
	"bytes"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// openUeventSocket joins the kernel uevent multicast group. Connector
// changes surface here as "change" events on the drm subsystem with
// HOTPLUG=1; the card descriptor itself never reports hotplug.
func openUeventSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_NETLINK,
		unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK,
		unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	sa := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: 1,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}
	return fd, nil
}

// readUeventRecords drains the uevent socket and returns one hotplug
// Event per drm change notification. Non-drm traffic is discarded.
func readUeventRecords(fd int) ([]Event, error) {
	var events []Event
	buf := make([]byte, 2048)
	for {
		n, _, err := unix.Recvfrom(fd, buf, unix.MSG_DONTWAIT)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return events, nil
			}
			return events, fmt.Errorf("kms: read uevent: %w", err)
		}
		if isDrmHotplug(buf[:n]) {
			events = append(events, Event{Type: EventHotplug, Time: time.Now()})
		}
	}
}

func isDrmHotplug(payload []byte) bool {
	var drm, hotplug bool
	for _, field := range bytes.Split(payload, []byte{0}) {
		switch {
		case bytes.Equal(field, []byte("SUBSYSTEM=drm")):
			drm = true
		case bytes.Equal(field, []byte("HOTPLUG=1")):
			hotplug = true
		}
	}
	return drm && hotplug
}
