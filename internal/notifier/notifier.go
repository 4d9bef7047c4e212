package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/skapxd/image-optimization-service/internal/entities"
)

const defaultTimeout = 10 * time.Second

// Notifier fires webhook callbacks in parallel with best-effort semantics.
// Failures are logged and never surfaced to the caller.
type Notifier struct {
	client *http.Client
}

func New() *Notifier {
	return &Notifier{client: &http.Client{Timeout: defaultTimeout}}
}

// NewWithClient lets tests inject a client.
func NewWithClient(client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Notifier{client: client}
}

// Notify sends payload to every callback concurrently and waits for all of
// them to settle. Invalid URLs are skipped with a warning. Non-GET requests
// carry payload as a JSON body. Non-2xx responses and transport errors are
// logged, never retried.
func (n *Notifier) Notify(ctx context.Context, callbacks []entities.CallbackSink, payload any) {
	if len(callbacks) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[notifier] cannot serialize callback payload: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, cb := range callbacks {
		wg.Add(1)
		go func(cb entities.CallbackSink) {
			defer wg.Done()
			n.send(ctx, cb, body)
		}(cb)
	}
	wg.Wait()
}

func (n *Notifier) send(ctx context.Context, cb entities.CallbackSink, body []byte) {
	parsed, err := url.Parse(cb.URL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		log.Printf("[notifier] skipping callback with invalid url %q", cb.URL)
		return
	}

	method := strings.ToUpper(strings.TrimSpace(cb.Method))
	if method == "" {
		method = http.MethodPost
	}

	var reader io.Reader
	if method != http.MethodGet {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, cb.URL, reader)
	if err != nil {
		log.Printf("[notifier] cannot build %s request to %s: %v", method, cb.URL, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cb.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("[notifier] callback %s %s failed: %v", method, cb.URL, err)
		sentry.CaptureException(err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[notifier] callback %s %s answered %d", method, cb.URL, resp.StatusCode)
	}
}
