package ftpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"
	"syscall"
	"time"

	"github.com/jgivc/ftpstage/internal/common"
	"github.com/jgivc/ftpstage/internal/entity"
	"github.com/jlaffaye/ftp"
)

type ftpDialer struct {
	user     string
	password string
	port     int
	timeout  time.Duration
	log      *slog.Logger
}

func NewDialer(user, password string, port int, timeout time.Duration, log *slog.Logger) *ftpDialer {
	return &ftpDialer{
		user:     user,
		password: password,
		port:     port,
		timeout:  timeout,
		log:      log.With(slog.String("item", "FTPDialer")),
	}
}

/*
Dial opens a control connection to ip and logs in. The client always uses
passive data connections and switches to binary type and UTF-8 file names
during login. The dialer timeout bounds the connect and every single read or
write on the control and data connections, so a stalled peer surfaces as a
lost connection. Cancelling ctx closes every connection of the session.
*/
func (d *ftpDialer) Dial(ctx context.Context, ip string) (entity.Session, error) {
	addr := net.JoinHostPort(ip, strconv.Itoa(d.port))

	conn, err := ftp.Dial(addr,
		ftp.DialWithDialFunc(d.dialFunc(ctx)),
		ftp.DialWithTimeout(d.timeout),
		ftp.DialWithShutTimeout(d.timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to %s: %w", addr, err)
	}

	if err := conn.Login(d.user, d.password); err != nil {
		if qErr := conn.Quit(); qErr != nil {
			d.log.Debug("Cannot quit after failed login", slog.String("addr", addr), slog.Any("error", qErr))
		}

		return nil, fmt.Errorf("cannot login to %s: %w", addr, err)
	}

	return &session{conn: conn, addr: addr}, nil
}

func (d *ftpDialer) dialFunc(ctx context.Context) func(network, address string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.timeout}

	return func(network, address string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}

		return newDeadlineConn(ctx, conn, d.timeout), nil
	}
}

// deadlineConn moves the deadline forward before every read and write.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
	stop    func() bool
}

func newDeadlineConn(ctx context.Context, conn net.Conn, timeout time.Duration) *deadlineConn {
	return &deadlineConn{
		Conn:    conn,
		timeout: timeout,
		stop:    context.AfterFunc(ctx, func() { _ = conn.Close() }),
	}
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}

	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}

	return c.Conn.Write(p)
}

func (c *deadlineConn) Close() error {
	c.stop()

	return c.Conn.Close()
}

type session struct {
	conn *ftp.ServerConn
	addr string
}

func (s *session) Addr() string {
	return s.addr
}

func (s *session) Retr(path string) (io.ReadCloser, error) {
	resp, err := s.conn.Retr(path)
	if err != nil {
		return nil, Classify(err)
	}

	return &response{resp: resp}, nil
}

func (s *session) Quit() error {
	return s.conn.Quit()
}

// response maps data connection errors to the transfer error classes.
// io.EOF is passed through untouched.
type response struct {
	resp *ftp.Response
}

func (r *response) Read(p []byte) (int, error) {
	n, err := r.resp.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = Classify(err)
	}

	return n, err
}

func (r *response) Close() error {
	return Classify(r.resp.Close())
}

/*
Classify maps a client error to one of the transfer error classes:
permanent 5xx replies become ErrRemoteFileNotFound, a closed or reset
connection becomes ErrConnectionLost. Everything else is returned as is.
*/
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if protoErr.Code >= ftp.StatusBadCommand && protoErr.Code < 600 {
			return fmt.Errorf("%w: %w", common.ErrRemoteFileNotFound, err)
		}

		return err
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return fmt.Errorf("%w: %w", common.ErrConnectionLost, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", common.ErrConnectionLost, err)
	}

	return err
}
