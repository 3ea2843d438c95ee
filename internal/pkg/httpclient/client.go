package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panelhub_remote_requests_total",
		Help: "Requests sent to remote panels by method and status class.",
	}, []string{"method", "class"})
	remoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "panelhub_remote_request_seconds",
		Help:    "Latency of requests sent to remote panels.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

// Client wraps resty for requests to remote panels. It never retries on its
// own; callers decide which fallbacks are safe.
type Client struct {
	r *resty.Client
}

// New creates a client with a 15s timeout and retries disabled.
func New() *Client {
	r := resty.New().
		SetTimeout(15 * time.Second).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Client{r: r}
}

// WithTimeout sets a custom timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.r.SetTimeout(d)
	return c
}

// WithHeader sets a custom header.
func (c *Client) WithHeader(key, value string) *Client {
	c.r.SetHeader(key, value)
	return c
}

// WithInsecureSkipVerify disables TLS verification. Panels are commonly
// deployed with self-signed certificates.
func (c *Client) WithInsecureSkipVerify() *Client {
	c.r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	return c
}

// Response is the transport-neutral view of a remote answer.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// IsJSON reports whether the response declared a JSON media type.
func (r *Response) IsJSON() bool {
	mt, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(r.ContentType, ";", 2)[0]))
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Option customises a single request.
type Option func(*resty.Request)

// JSON sets a JSON request body.
func JSON(body interface{}) Option {
	return func(req *resty.Request) {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
}

// Form sets a form-encoded request body.
func Form(data map[string]string) Option {
	return func(req *resty.Request) {
		req.SetFormData(data)
	}
}

// Bearer sets the Authorization header.
func Bearer(token string) Option {
	return func(req *resty.Request) {
		req.SetAuthToken(token)
	}
}

// Do sends a request. A non-nil error means the panel could not be reached
// or did not answer in time; any HTTP status is returned as a Response.
func (c *Client) Do(ctx context.Context, method, url string, opts ...Option) (*Response, error) {
	req := c.r.R().SetContext(ctx)
	for _, opt := range opts {
		opt(req)
	}

	start := time.Now()
	resp, err := req.Execute(method, url)
	remoteLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		remoteRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	remoteRequests.WithLabelValues(method, fmt.Sprintf("%dxx", resp.StatusCode()/100)).Inc()

	return &Response{
		Status:      resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.Body(),
	}, nil
}

// Raw returns the underlying resty client for advanced usage.
func (c *Client) Raw() *resty.Client {
	return c.r
}
