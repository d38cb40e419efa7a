package upstreams

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/dnsproxy"
	"github.com/maksimkurb/keen-relay/src/internal/log"
	"github.com/maksimkurb/keen-relay/src/internal/utils"
)

const (
	// URL scheme constants
	httpsScheme = "https://"

	// HTTP client configuration
	dohClientTimeout       = 10 * time.Second // Total timeout for DoH requests
	dohIdleConnTimeout     = 30 * time.Second // How long idle connections are kept
	dohMaxIdleConns        = 10               // Maximum idle connections total
	dohMaxIdleConnsPerHost = 5                // Maximum idle connections per host

	// HTTP content types
	dnsMessageContentType = "application/dns-message"
)

// DoHResolver sends each query as a DNS-over-HTTPS POST on its own goroutine.
type DoHResolver struct {
	BaseResolver
	url    string
	client *http.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDoHResolver creates a DNS-over-HTTPS resolver for an https:// URL.
func NewDoHResolver(urlStr string, restrictedDomain string) *DoHResolver {
	ctx, cancel := context.WithCancel(context.Background())
	return &DoHResolver{
		BaseResolver: BaseResolver{Domain: utils.NormalizeDomain(restrictedDomain)},
		url:          urlStr,
		client: &http.Client{
			Timeout: dohClientTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        dohMaxIdleConns,
				IdleConnTimeout:     dohIdleConnTimeout,
				DisableCompression:  true,
				MaxIdleConnsPerHost: dohMaxIdleConnsPerHost,
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Resolve implements dnsproxy.Resolver.
func (d *DoHResolver) Resolve(s *dnsproxy.Session) {
	if d.ctx.Err() != nil {
		return
	}
	id := s.TransactionID()
	payload := append([]byte(nil), s.Request.Payload()...)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		body, err := d.query(payload)
		if err != nil {
			if d.ctx.Err() == nil {
				log.Debugf("[%04x] Upstream error (upstream: %s): %v", id, d.String(), err)
			}
			return
		}
		d.deliver(body)
	}()
}

func (d *DoHResolver) query(payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(d.ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", dnsMessageContentType)
	httpReq.Header.Set("Accept", dnsMessageContentType)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("DoH request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DoH request failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, udpMaxMessageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read DoH response: %w", err)
	}
	return body, nil
}

// Stop implements dnsproxy.Resolver. In-flight requests are aborted.
func (d *DoHResolver) Stop() {
	d.cancel()
	d.wg.Wait()
	d.client.CloseIdleConnections()
}

// String returns a human-readable representation of the resolver.
func (d *DoHResolver) String() string {
	return "doh://" + strings.TrimPrefix(d.url, httpsScheme) + d.suffix()
}
