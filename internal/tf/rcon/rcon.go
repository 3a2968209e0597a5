// Package rcon implements the Source RCON protocol used to issue commands to
// the game process: length-prefixed binary frames over a TCP stream, with
// multi-frame responses reassembled through an empty trailing "halt" request.
package rcon

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	serverdataResponseValue int32 = 0
	serverdataExecCommand   int32 = 2
	serverdataAuthResponse  int32 = 2
	serverdataAuth          int32 = 3

	// Frame size field counts the id, type and two trailing nuls but not
	// itself.
	frameOverhead = 10
	// The game never sends bodies larger than 4096 bytes per frame.
	maxFrameSize = 4096 + frameOverhead

	defaultTimeout = time.Second
)

var (
	ErrConnect = errors.New("failed to connect to rcon host")
	ErrAuth    = errors.New("rcon authentication refused")
	ErrFrame   = errors.New("malformed rcon frame")
	ErrRCON    = errors.New("error making rcon request")
)

// Connection describes one rcon endpoint. Each Exec call dials a fresh
// connection, authenticates, runs the command and closes the socket; there is
// no retry state, callers simply skip a polling cycle on failure.
type Connection struct {
	addr     string
	password string
	timeout  time.Duration
}

func New(addr string, password string) Connection {
	return Connection{addr: addr, password: password, timeout: defaultTimeout}
}

// Exec runs a single command and returns the full reassembled response text.
func (r Connection) Exec(ctx context.Context, cmd string) (string, error) {
	console, errDial := dial(ctx, r.addr, r.password, r.timeout)
	if errDial != nil {
		return "", errDial
	}
	defer console.Close()

	resp, errExec := console.exec(cmd)
	if errExec != nil {
		return "", errors.Join(errExec, fmt.Errorf("%w: %s", ErrRCON, r.addr))
	}

	return resp, nil
}

type frame struct {
	id   int32
	kind int32
	body []byte
}

// remoteConsole is a single authenticated rcon session.
type remoteConsole struct {
	conn    net.Conn
	timeout time.Duration
	reqID   int32
}

func dial(ctx context.Context, addr string, password string, timeout time.Duration) (*remoteConsole, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, errConn := dialer.DialContext(ctx, "tcp", addr)
	if errConn != nil {
		return nil, errors.Join(errConn, ErrConnect)
	}

	console := &remoteConsole{conn: conn, timeout: timeout}
	if errAuth := console.auth(password); errAuth != nil {
		conn.Close()

		return nil, errAuth
	}

	return console, nil
}

func (c *remoteConsole) Close() error {
	return c.conn.Close()
}

// nextID returns a fresh request id. Ids increment mod 65536 and wrap.
func (c *remoteConsole) nextID() int32 {
	c.reqID = (c.reqID + 1) % 65536

	return c.reqID
}

// auth sends the shared secret and reads frames until the auth response
// arrives, discarding anything the server emits first. An auth response
// carrying id -1 means the password was rejected.
func (c *remoteConsole) auth(password string) error {
	authID := c.nextID()
	if err := c.writeFrame(authID, serverdataAuth, password); err != nil {
		return err
	}

	for {
		resp, errRead := c.readFrame()
		if errRead != nil {
			return errRead
		}

		if resp.kind != serverdataAuthResponse {
			continue
		}

		if resp.id == -1 {
			return ErrAuth
		}

		return nil
	}
}

// exec sends the command followed by an empty sentinel request. The server may
// split one logical reply across frames with arbitrary boundaries, so bodies
// are concatenated until the echo of the sentinel id shows up; the sentinel's
// own body is not part of the result.
func (c *remoteConsole) exec(cmd string) (string, error) {
	cmdID := c.nextID()
	if err := c.writeFrame(cmdID, serverdataExecCommand, cmd); err != nil {
		return "", err
	}

	haltID := c.nextID()
	if err := c.writeFrame(haltID, serverdataExecCommand, ""); err != nil {
		return "", err
	}

	var response []byte
	for {
		resp, errRead := c.readFrame()
		if errRead != nil {
			return "", errRead
		}

		if resp.id == haltID {
			return string(response), nil
		}

		response = append(response, resp.body...)
	}
}

func (c *remoteConsole) writeFrame(id int32, kind int32, body string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return errors.Join(err, ErrRCON)
	}

	buf := make([]byte, 0, 4+frameOverhead+len(body))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(body)+frameOverhead))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(kind))
	buf = append(buf, body...)
	buf = append(buf, 0x00, 0x00)

	if _, err := c.conn.Write(buf); err != nil {
		return errors.Join(err, ErrRCON)
	}

	return nil
}

func (c *remoteConsole) readFrame() (frame, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return frame{}, errors.Join(err, ErrRCON)
	}

	var sizeBuf [4]byte
	if _, err := io.ReadFull(c.conn, sizeBuf[:]); err != nil {
		return frame{}, errors.Join(err, ErrRCON)
	}

	size := binary.LittleEndian.Uint32(sizeBuf[:])
	if size < frameOverhead || size > maxFrameSize {
		return frame{}, fmt.Errorf("%w: size %d", ErrFrame, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return frame{}, errors.Join(err, ErrRCON)
	}

	if payload[size-2] != 0x00 || payload[size-1] != 0x00 {
		return frame{}, fmt.Errorf("%w: missing terminator", ErrFrame)
	}

	return frame{
		id:   int32(binary.LittleEndian.Uint32(payload[0:4])),
		kind: int32(binary.LittleEndian.Uint32(payload[4:8])),
		body: payload[8 : size-2],
	}, nil
}
