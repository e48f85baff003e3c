package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/dreamware/graphvt/internal/wire"
)

// maxFrameBytes bounds a single length-prefixed frame. It is generous
// relative to any legitimate envelope (the largest is a TX_INIT/NODE_PROG
// update batch) but keeps a corrupt or hostile length prefix from forcing
// a multi-gigabyte allocation before the frame body has even been read.
const maxFrameBytes = 64 << 20

// TCPTransport is a real, multi-process Transport: each endpoint
// listens on its own address and dials peers lazily on first send,
// framing every wire.Envelope behind a 4-byte length prefix.
//
// It satisfies the same ordering contract as MemoryTransport: a
// single persistent connection per (src, dest) pair, so writes on
// that connection are delivered in the order they were made,
// preserving the per-(vt_id, shard) FIFO spec.md §5 requires.
type TCPTransport struct {
	id        int
	directory map[int]string
	ln        net.Listener

	mu    sync.Mutex
	conns map[int]net.Conn

	inbox chan inboundMsg
	errc  chan error
	wg    sync.WaitGroup
}

var _ Transport = (*TCPTransport)(nil)

// NewTCPTransport starts listening on listenAddr for id and returns a
// transport that can reach every peer named in directory (including
// itself, though self-sends are unusual). directory is not mutated.
func NewTCPTransport(id int, listenAddr string, directory map[int]string) (*TCPTransport, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %s: %w", listenAddr, err)
	}
	dirCopy := make(map[int]string, len(directory))
	for k, v := range directory {
		dirCopy[k] = v
	}
	t := &TCPTransport{
		id:        id,
		directory: dirCopy,
		ln:        ln,
		conns:     make(map[int]net.Conn),
		inbox:     make(chan inboundMsg, 256),
		errc:      make(chan error, 1),
	}
	t.wg.Add(1)
	go t.acceptLoop()
	return t, nil
}

func (t *TCPTransport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			return // listener closed
		}
		go t.readLoop(conn)
	}
}

// readLoop reads a stream of {handshake sender id}{length-prefixed
// envelopes} from one inbound connection. A framing error is logged
// and the connection is dropped — the transport is assumed to
// self-recover via the next dial (spec.md §7). A frame whose envelope
// fails to decode is logged and skipped; the connection stays open.
func (t *TCPTransport) readLoop(conn net.Conn) {
	defer conn.Close()

	var idBuf [4]byte
	if _, err := io.ReadFull(conn, idBuf[:]); err != nil {
		log.Printf("transport: handshake read failed: %v", err)
		return
	}
	sender := int(binary.LittleEndian.Uint32(idBuf[:]))

	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			if err != io.EOF {
				log.Printf("transport: frame length read failed from %d: %v", sender, err)
			}
			return
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		if n > maxFrameBytes {
			log.Printf("transport: frame length %d from %d exceeds %d byte limit", n, sender, maxFrameBytes)
			return
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(conn, body); err != nil {
			log.Printf("transport: frame body read failed from %d: %v", sender, err)
			return
		}
		env, err := wire.Decode(body)
		if err != nil {
			log.Printf("transport: envelope decode failed from %d: %v", sender, err)
			continue
		}
		t.inbox <- inboundMsg{sender: sender, env: env}
	}
}

func (t *TCPTransport) dial(dest int) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conn, ok := t.conns[dest]; ok {
		return conn, nil
	}
	addr, ok := t.directory[dest]
	if !ok {
		return nil, fmt.Errorf("transport: no address for endpoint %d", dest)
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	var idBuf [4]byte
	binary.LittleEndian.PutUint32(idBuf[:], uint32(t.id))
	if _, err := conn.Write(idBuf[:]); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: handshake write to %d: %w", dest, err)
	}
	t.conns[dest] = conn
	return conn, nil
}

func (t *TCPTransport) Send(ctx context.Context, dest int, env wire.Envelope) error {
	conn, err := t.dial(dest)
	if err != nil {
		return err
	}
	body := wire.Encode(env)
	// One Write per frame, so concurrent Sends on the same connection
	// cannot interleave one frame's length prefix with another's body.
	frame := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	if _, err := conn.Write(frame); err != nil {
		t.dropConn(dest)
		return fmt.Errorf("transport: send to %d: %w", dest, err)
	}
	return nil
}

func (t *TCPTransport) dropConn(dest int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conn, ok := t.conns[dest]; ok {
		conn.Close()
		delete(t.conns, dest)
	}
}

func (t *TCPTransport) Recv(ctx context.Context) (int, wire.Envelope, error) {
	select {
	case m := <-t.inbox:
		return m.sender, m.env, nil
	case <-ctx.Done():
		return 0, wire.Envelope{}, ErrTimeout
	}
}

func (t *TCPTransport) Close() error {
	err := t.ln.Close()
	t.mu.Lock()
	for dest, conn := range t.conns {
		conn.Close()
		delete(t.conns, dest)
	}
	t.mu.Unlock()
	t.wg.Wait()
	return err
}

// ParseDirectory parses "id=host:port,id=host:port,..." into a
// directory suitable for NewTCPTransport, the format cmd/timestamper
// and cmd/shard read from VT_PEERS.
func ParseDirectory(s string) (map[int]string, error) {
	directory := make(map[int]string)
	for _, pair := range strings.Split(s, ",") {
		if pair == "" {
			continue
		}
		idStr, addr, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed peer entry %q, want id=addr", pair)
		}
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return nil, fmt.Errorf("malformed peer id in %q: %w", pair, err)
		}
		directory[id] = addr
	}
	return directory, nil
}
