//go:build linux

package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/kmspipe/kmspipe-go/pkg/kms"
)

const (
	logindService = "org.freedesktop.login1"
	logindManager = "org.freedesktop.login1.Manager"
	logindSession = "org.freedesktop.login1.Session"
	managerPath   = dbus.ObjectPath("/org/freedesktop/login1")
)

// Config carries the session's collaborators.
type Config struct {
	// Logger receives human-readable log records.
	Logger *slog.Logger
	// SessionID names the logind session to attach to. Empty uses
	// XDG_SESSION_ID, then the calling process's session.
	SessionID string
}

type deviceNums struct {
	major, minor uint32
}

// Session brokers device access through one logind session. The zero
// value is not usable; construct with New. All methods are safe for
// concurrent use.
type Session struct {
	logger *slog.Logger
	id     string

	mu          sync.Mutex
	conn        *dbus.Conn
	object      dbus.BusObject
	controlled  bool
	unreachable bool
	taken       map[string]deviceNums
}

// New returns a session that connects to logind on first use.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		logger: logger,
		id:     cfg.SessionID,
		taken:  make(map[string]deviceNums),
	}
}

// OpenCard opens the card node at path and prepares it for atomic
// mode-setting. The fd comes from logind when the session is reachable,
// from a direct open otherwise. Call ReleaseDevice after closing a
// logind-brokered card.
func (s *Session) OpenCard(ctx context.Context, path string) (*kms.Card, error) {
	fd, brokered, err := s.takeDevice(ctx, path)
	if err != nil {
		return nil, err
	}
	card, err := kms.NewCard(fd, path)
	if err != nil {
		if brokered {
			if rerr := s.ReleaseDevice(path); rerr != nil {
				s.logger.Warn("release device after failed card setup",
					"path", path, "err", rerr)
			}
		}
		return nil, err
	}
	return card, nil
}

// takeDevice returns an owned fd for the node at path and whether it
// came from logind.
func (s *Session) takeDevice(ctx context.Context, path string) (int, bool, error) {
	obj, err := s.connect(ctx)
	if err != nil {
		s.logger.Warn("logind unavailable, opening device directly",
			"path", path, "err", err)
		fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err != nil {
			return -1, false, fmt.Errorf("session: open %s: %w", path, err)
		}
		return fd, false, nil
	}

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return -1, false, fmt.Errorf("session: stat %s: %w", path, err)
	}
	nums := deviceNums{
		major: uint32(unix.Major(uint64(st.Rdev))),
		minor: uint32(unix.Minor(uint64(st.Rdev))),
	}

	var fd dbus.UnixFD
	var inactive bool
	call := obj.CallWithContext(ctx, logindSession+".TakeDevice", 0, nums.major, nums.minor)
	if err := call.Store(&fd, &inactive); err != nil {
		return -1, false, fmt.Errorf("session: take device %s: %w", path, err)
	}
	if inactive {
		s.logger.Warn("session inactive, device fd starts paused", "path", path)
	}
	unix.CloseOnExec(int(fd))

	s.mu.Lock()
	s.taken[path] = nums
	s.mu.Unlock()
	return int(fd), true, nil
}

// ReleaseDevice returns a brokered device to logind. Paths that were
// opened directly are forgotten without a bus call.
func (s *Session) ReleaseDevice(path string) error {
	s.mu.Lock()
	nums, ok := s.taken[path]
	obj := s.object
	delete(s.taken, path)
	s.mu.Unlock()
	if !ok || obj == nil {
		return nil
	}
	if err := obj.Call(logindSession+".ReleaseDevice", 0, nums.major, nums.minor).Err; err != nil {
		return fmt.Errorf("session: release device %s: %w", path, err)
	}
	return nil
}

// Close releases session control and the bus connection. Brokered
// devices still open are released first.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	obj := s.object
	controlled := s.controlled
	taken := s.taken
	s.conn = nil
	s.object = nil
	s.controlled = false
	s.taken = make(map[string]deviceNums)
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	for path, nums := range taken {
		if err := obj.Call(logindSession+".ReleaseDevice", 0, nums.major, nums.minor).Err; err != nil {
			s.logger.Warn("release device at close", "path", path, "err", err)
		}
	}
	if controlled {
		if err := obj.Call(logindSession+".ReleaseControl", 0).Err; err != nil {
			s.logger.Warn("release session control", "err", err)
		}
	}
	return conn.Close()
}

// connect resolves the logind session object and takes control of it,
// caching the result. A session found unreachable stays unreachable.
func (s *Session) connect(ctx context.Context) (dbus.BusObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.object != nil {
		return s.object, nil
	}
	if s.unreachable {
		return nil, fmt.Errorf("session: logind marked unreachable")
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		s.unreachable = true
		return nil, fmt.Errorf("system bus: %w", err)
	}
	mgr := conn.Object(logindService, managerPath)

	id := s.id
	if id == "" {
		id = os.Getenv("XDG_SESSION_ID")
	}
	var sessionPath dbus.ObjectPath
	if id != "" {
		err = mgr.CallWithContext(ctx, logindManager+".GetSession", 0, id).Store(&sessionPath)
	} else {
		err = mgr.CallWithContext(ctx, logindManager+".GetSessionByPID", 0, uint32(os.Getpid())).Store(&sessionPath)
	}
	if err != nil {
		s.unreachable = true
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	obj := conn.Object(logindService, sessionPath)
	if err := obj.CallWithContext(ctx, logindSession+".TakeControl", 0, false).Err; err != nil {
		s.unreachable = true
		return nil, fmt.Errorf("take control: %w", err)
	}

	s.conn = conn
	s.object = obj
	s.controlled = true
	s.logger.Info("logind session controlled", "session", sessionPath)
	return obj, nil
}
