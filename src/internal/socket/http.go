package socket

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/maksimkurb/keen-relay/src/internal/packet"
	"github.com/maksimkurb/keen-relay/src/internal/queue"
)

var (
	headerEnd = []byte("\r\n\r\n")

	connectEstablished = []byte("HTTP/1.1 200 Connection established\r\n\r\n")
)

// ErrHTTPHeader is returned for requests that are not valid proxy requests.
var ErrHTTPHeader = errors.New("invalid HTTP proxy request")

type httpState uint8

const (
	httpReadingHeader httpState = iota
	httpWaitingAdapter
	httpReplyingConnect
	httpForwarding
)

// HTTPProxySocket serves HTTP proxy clients: CONNECT tunnels and plain
// requests with an absolute URI. For plain requests the header is
// rewritten to origin form and forwarded as the first upstream data.
type HTTPProxySocket struct {
	proxyBase
	exec          queue.Executor
	scanMaxLength int

	state     httpState
	isConnect bool
	// header is the rewritten request of a plain HTTP client.
	header []byte
}

// NewHTTPProxySocket wraps an accepted raw socket. scanMaxLength bounds the
// request header, 0 selects DefaultScanLength.
func NewHTTPProxySocket(exec queue.Executor, raw RawSocket, scanMaxLength int, observer Observer) *HTTPProxySocket {
	s := &HTTPProxySocket{exec: exec, scanMaxLength: scanMaxLength}
	s.init(s, "http", raw, s, observer)
	return s
}

// Open implements ProxySocket.
func (s *HTTPProxySocket) Open() {
	if !s.open() {
		return
	}
	s.state = httpReadingHeader
	s.raw.ReadDataToPattern(headerEnd, s.scanMaxLength)
}

// RespondTo implements ProxySocket.
func (s *HTTPProxySocket) RespondTo(Adapter) {
	if s.cancelled || s.state != httpWaitingAdapter {
		return
	}
	if s.isConnect {
		s.state = httpReplyingConnect
		s.raw.Write(connectEstablished)
		return
	}
	s.state = httpForwarding
	s.readyForForward()
}

// ReadData implements Socket. The first read of a plain request yields the
// rewritten header.
func (s *HTTPProxySocket) ReadData() {
	if s.cancelled {
		return
	}
	if s.header != nil {
		header := s.header
		s.header = nil
		s.exec.Async(func() {
			if !s.cancelled {
				s.forwardRead(header)
			}
		})
		return
	}
	s.raw.ReadData()
}

// DidRead implements RawDelegate.
func (s *HTTPProxySocket) DidRead(data []byte, _ RawSocket) {
	if s.cancelled {
		return
	}

	switch s.state {
	case httpReadingHeader:
		session, header, isConnect, err := parseProxyRequest(data)
		if err != nil {
			s.fail(err)
			return
		}
		s.isConnect = isConnect
		s.header = header
		s.state = httpWaitingAdapter
		s.receivedSession(session)
	case httpForwarding:
		s.forwardRead(data)
	}
}

// DidWrite implements RawDelegate.
func (s *HTTPProxySocket) DidWrite(data []byte, _ RawSocket) {
	if s.cancelled {
		return
	}

	switch s.state {
	case httpReplyingConnect:
		s.state = httpForwarding
		s.readyForForward()
	case httpForwarding:
		s.forwardWrite(data)
	}
}

// parseProxyRequest validates a request header block. For plain requests
// it returns the header rewritten for the origin server.
func parseProxyRequest(data []byte) (*ConnectSession, []byte, bool, error) {
	if !bytes.HasSuffix(data, headerEnd) {
		return nil, nil, false, fmt.Errorf("%w: header too long or incomplete", ErrHTTPHeader)
	}

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, nil, false, fmt.Errorf("%w: %v", ErrHTTPHeader, err)
	}

	if req.Method == http.MethodConnect {
		session, err := sessionFromHostPort(req.Host, "")
		if err != nil {
			return nil, nil, false, err
		}
		return session, nil, true, nil
	}

	if !req.URL.IsAbs() || req.URL.Host == "" {
		return nil, nil, false, fmt.Errorf("%w: request target must be an absolute URI", ErrHTTPHeader)
	}
	if req.URL.Scheme != "http" {
		return nil, nil, false, fmt.Errorf("%w: unsupported scheme %q", ErrHTTPHeader, req.URL.Scheme)
	}
	session, err := sessionFromHostPort(req.URL.Host, "80")
	if err != nil {
		return nil, nil, false, err
	}
	return session, rewriteHeader(data, req.URL.RequestURI()), false, nil
}

func sessionFromHostPort(hostport, defaultPort string) (*ConnectSession, error) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		if defaultPort == "" {
			return nil, fmt.Errorf("%w: %v", ErrHTTPHeader, err)
		}
		host, port = hostport, defaultPort
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil || host == "" {
		return nil, fmt.Errorf("%w: bad destination %q", ErrHTTPHeader, hostport)
	}
	return NewConnectSession(host, packet.Port(n)), nil
}

// rewriteHeader turns an absolute-form request line into origin form and
// drops hop-by-hop proxy headers, keeping everything else byte for byte.
func rewriteHeader(data []byte, requestURI string) []byte {
	lines := strings.Split(strings.TrimSuffix(string(data), "\r\n\r\n"), "\r\n")

	if parts := strings.SplitN(lines[0], " ", 3); len(parts) == 3 {
		lines[0] = parts[0] + " " + requestURI + " " + parts[2]
	}

	var b strings.Builder
	b.Grow(len(data))
	for i, line := range lines {
		if i > 0 && strings.HasPrefix(strings.ToLower(line), "proxy-") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
