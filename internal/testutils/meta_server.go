package testutils

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
)

// MetaServer is an in-memory server for the subset of the meta protocol used by the
// client: mg, ms, md, ma and mn. Any other command is answered with ERROR.
//
// When Credentials is set ("<username> <password>"), a text protocol authentication
// ("set _auth ...") is expected and checked.
type MetaServer struct {
	Credentials string

	mu    sync.Mutex
	items map[string][]byte
}

func NewMetaServer() *MetaServer {
	return &MetaServer{items: map[string][]byte{}}
}

// Set stores an item directly.
func (s *MetaServer) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

// Get returns an item stored on the server.
func (s *MetaServer) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok
}

// Serve is a Handler. Responses to pipelined requests are flushed together.
func (s *MetaServer) Serve(conn net.Conn) {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}

		fields := strings.Fields(strings.TrimSuffix(line, "\r\n"))
		if !s.handle(fields, r, w) {
			w.Flush()
			return
		}

		if r.Buffered() == 0 {
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

// handle answers one command. It returns false when the connection must be closed.
func (s *MetaServer) handle(fields []string, r *bufio.Reader, w *bufio.Writer) bool {
	if len(fields) == 0 {
		w.WriteString("ERROR\r\n")
		return true
	}

	cmd, args := fields[0], fields[1:]
	flags := map[byte]string{}
	if len(args) > 0 {
		start := 1
		if cmd == "ms" || cmd == "set" {
			start = 2
		}
		for _, f := range args[min(start, len(args)):] {
			flags[f[0]] = f[1:]
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd {
	case "mn":
		w.WriteString("MN\r\n")

	case "mg":
		if len(args) < 1 {
			w.WriteString("CLIENT_ERROR bad command line format\r\n")
			return false
		}
		value, ok := s.items[args[0]]
		switch {
		case !ok:
			w.WriteString("EN\r\n")
		case hasFlag(flags, 'v'):
			w.WriteString("VA " + strconv.Itoa(len(value)))
			if hasFlag(flags, 'f') {
				w.WriteString(" f0")
			}
			w.WriteString("\r\n")
			w.Write(value)
			w.WriteString("\r\n")
		default:
			w.WriteString("HD\r\n")
		}

	case "ms", "set":
		data, ok := readData(args, cmd, r)
		if !ok {
			w.WriteString("CLIENT_ERROR bad data chunk\r\n")
			return false
		}
		if cmd == "set" {
			if args[0] != "_auth" || string(data) != s.Credentials {
				w.WriteString("CLIENT_ERROR authentication failure\r\n")
				return false
			}
			w.WriteString("STORED\r\n")
			return true
		}
		s.items[args[0]] = data
		w.WriteString("HD\r\n")

	case "md":
		if len(args) < 1 {
			w.WriteString("CLIENT_ERROR bad command line format\r\n")
			return false
		}
		if _, ok := s.items[args[0]]; !ok {
			w.WriteString("NF\r\n")
			return true
		}
		delete(s.items, args[0])
		w.WriteString("HD\r\n")

	case "ma":
		if len(args) < 1 {
			w.WriteString("CLIENT_ERROR bad command line format\r\n")
			return false
		}
		value, ok := s.items[args[0]]
		if !ok {
			w.WriteString("NF\r\n")
			return true
		}
		current, err := strconv.ParseUint(string(value), 10, 64)
		if err != nil {
			w.WriteString("CLIENT_ERROR cannot increment or decrement non-numeric value\r\n")
			return false
		}
		delta := uint64(1)
		if d, ok := flags['D']; ok {
			delta, _ = strconv.ParseUint(d, 10, 64)
		}
		value = strconv.AppendUint(nil, current+delta, 10)
		s.items[args[0]] = value
		if hasFlag(flags, 'v') {
			w.WriteString("VA " + strconv.Itoa(len(value)) + "\r\n")
			w.Write(value)
			w.WriteString("\r\n")
		} else {
			w.WriteString("HD\r\n")
		}

	default:
		w.WriteString("ERROR\r\n")
	}

	return true
}

func hasFlag(flags map[byte]string, f byte) bool {
	_, ok := flags[f]
	return ok
}

// readData reads the data block of ms (size is args[1]) or set (size is args[3]).
func readData(args []string, cmd string, r *bufio.Reader) ([]byte, bool) {
	sizeIdx := 1
	if cmd == "set" {
		sizeIdx = 3
	}
	if len(args) <= sizeIdx {
		return nil, false
	}

	size, err := strconv.Atoi(args[sizeIdx])
	if err != nil || size < 0 {
		return nil, false
	}

	data := make([]byte, size+2)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, false
	}
	if string(data[size:]) != "\r\n" {
		return nil, false
	}
	return data[:size], true
}
