package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/xaiki/uhid-keyboard/hid"
	"github.com/xaiki/uhid-keyboard/internal/configpaths"
	"github.com/xaiki/uhid-keyboard/internal/log"
	"github.com/xaiki/uhid-keyboard/internal/server/inject"
	"github.com/xaiki/uhid-keyboard/internal/server/inject/auth"
	"github.com/xaiki/uhid-keyboard/internal/session"
	"github.com/xaiki/uhid-keyboard/uhid"
)

const keyFileName = "uhidkbd.key.txt"

// RunCmd creates the virtual keyboard and runs the session loop until a
// hang-up or signal.
type RunCmd struct {
	Path    string `arg:"" optional:"" default:"/dev/uhid" help:"uhid character device path" env:"UHIDKBD_DEVICE_PATH"`
	Name    string `help:"Device name announced to the kernel" default:"uhidkbd" env:"UHIDKBD_DEVICE_NAME"`
	Bus     uint16 `help:"Bus type identifier (3 = BUS_USB)" default:"3" env:"UHIDKBD_DEVICE_BUS"`
	Vendor  uint32 `help:"Vendor ID" default:"0x15d9" env:"UHIDKBD_DEVICE_VENDOR"`
	Product uint32 `help:"Product ID" default:"0x0a37" env:"UHIDKBD_DEVICE_PRODUCT"`
	Version uint32 `help:"Version identifier" default:"0" env:"UHIDKBD_DEVICE_VERSION"`
	Country uint32 `help:"Country identifier" default:"0" env:"UHIDKBD_DEVICE_COUNTRY"`

	Inject inject.ServerConfig `embed:"" prefix:"inject."`
}

// Run is called by kong when the run command is executed.
func (r *RunCmd) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.runSession(ctx, logger, rawLogger)
}

func (r *RunCmd) runSession(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	logger.Info("opening uhid chardev", "path", r.Path)
	dev, err := os.OpenFile(r.Path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open uhid chardev %s: %w", r.Path, err)
	}
	defer dev.Close()

	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		logger.Warn("stdin is not a terminal; input may arrive line-buffered")
	} else if restore, err := rawInputMode(stdinFd); err != nil {
		logger.Warn("cannot set tty state", "error", err)
	} else {
		defer restore()
	}

	sess := session.New(dev, logger, rawLogger)
	if err := sess.CreateDevice(&uhid.CreateRequest{
		Name:       r.Name,
		Descriptor: hid.ReportDescriptor,
		Bus:        r.Bus,
		Vendor:     r.Vendor,
		Product:    r.Product,
		Version:    r.Version,
		Country:    r.Country,
	}); err != nil {
		return err
	}
	defer func() {
		// Best-effort teardown; a dead channel is logged, not retried.
		if err := sess.DestroyDevice(); err != nil {
			logger.Error("failed to destroy uhid device", "error", err)
		}
	}()

	// The Go runtime handles signals on its own threads, so a pending
	// context cancellation never interrupts the poll. It is surfaced as
	// a descriptor instead: a pipe whose write end is closed on Done,
	// which wakes the poll with a hang-up on the read end.
	cancelR, cancelW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create shutdown pipe: %w", err)
	}
	defer cancelR.Close()
	defer cancelW.Close()
	go func() {
		<-ctx.Done()
		cancelW.Close()
	}()

	fds := []int{stdinFd, int(dev.Fd()), int(cancelR.Fd())}

	injectR, cleanup, err := r.startInjection(logger)
	if err != nil {
		return err
	}
	if injectR != nil {
		defer cleanup()
		fds = append(fds, int(injectR.Fd()))
	}

	logger.Info("keyboard uhid device created; type to send keystrokes")

	buf := make([]byte, 128)
	for {
		if ctx.Err() != nil {
			logger.Info("shutting down")
			return nil
		}

		ready, err := session.Wait(fds...)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}

		if ready[2].Readable || ready[2].HangUp {
			logger.Info("shutting down")
			return nil
		}
		if ready[0].HangUp {
			logger.Info("received HUP on stdin")
			return nil
		}
		if ready[1].HangUp {
			logger.Info("received HUP on uhid chardev")
			return nil
		}

		if ready[0].Readable {
			n, err := os.Stdin.Read(buf)
			if n == 0 || errors.Is(err, io.EOF) {
				logger.Info("stdin closed")
				return nil
			}
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			if err := sess.ProcessKeystrokes(buf[:n]); err != nil {
				return err
			}
		}

		if ready[1].Readable {
			if err := sess.HandleDeviceEvent(); err != nil {
				if errors.Is(err, session.ErrChannelClosed) {
					logger.Info("uhid channel closed")
					return nil
				}
				return err
			}
		}

		if len(ready) > 3 && ready[3].Readable {
			n, err := injectR.Read(buf)
			if err != nil {
				return fmt.Errorf("read injection pipe: %w", err)
			}
			if err := sess.ProcessKeystrokes(buf[:n]); err != nil {
				return err
			}
		}
	}
}

// startInjection brings up the remote injection listeners when
// configured and returns the pipe end the session loop polls.
func (r *RunCmd) startInjection(logger *slog.Logger) (*os.File, func(), error) {
	if r.Inject.Addr == "" && r.Inject.WsAddr == "" {
		return nil, nil, nil
	}

	password, err := injectionKey(logger)
	if err != nil {
		return nil, nil, err
	}
	r.Inject.Password = password

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("create injection pipe: %w", err)
	}

	srv, err := inject.New(r.Inject, pw, logger)
	if err != nil {
		pr.Close()
		pw.Close()
		return nil, nil, err
	}

	if r.Inject.Addr != "" {
		if err := srv.Listen(); err != nil {
			pr.Close()
			pw.Close()
			return nil, nil, err
		}
		go func() {
			if err := srv.Serve(); err != nil {
				logger.Error("injection listener failed", "error", err)
			}
		}()
	}
	if r.Inject.WsAddr != "" {
		go func() {
			if err := srv.ListenAndServeWS(); err != nil {
				logger.Error("websocket injection listener failed", "error", err)
			}
		}()
	}

	cleanup := func() {
		_ = srv.Close()
		_ = srv.CloseWS()
		pw.Close()
		pr.Close()
	}
	return pr, cleanup, nil
}

// injectionKey loads the pre-shared injection key, generating one into
// the config dir on first use.
func injectionKey(logger *slog.Logger) (string, error) {
	dir, err := configpaths.DefaultConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve key file path: %w", err)
	}
	keyFilePath := filepath.Join(dir, keyFileName)
	if pwd, err := os.ReadFile(keyFilePath); err == nil {
		return strings.TrimSpace(string(pwd)), nil
	}

	newPwd, err := auth.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("generate injection key: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir for key file: %w", err)
	}
	if err := os.WriteFile(keyFilePath, []byte(newPwd), 0o600); err != nil {
		return "", fmt.Errorf("write injection key file: %w", err)
	}
	logger.Info("generated injection key", "path", keyFilePath)
	logger.Info("clients authenticate with the key stored in that file; edit it to change the key")
	return newPwd, nil
}

// rawInputMode puts the terminal into non-canonical mode so keystrokes
// arrive byte by byte, returning a restore func. Only ICANON is
// cleared; echo and signal handling stay untouched so Ctrl-C still
// quits.
func rawInputMode(fd int) (func(), error) {
	state, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}
	saved := *state

	state.Lflag &^= unix.ICANON
	state.Cc[unix.VMIN] = 1
	state.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, state); err != nil {
		return nil, err
	}
	return func() { _ = unix.IoctlSetTermios(fd, unix.TCSETS, &saved) }, nil
}
