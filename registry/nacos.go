// Package registry registers the service instance with a Nacos naming server
// and keeps the registration alive with heartbeats.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/medpricing/medical-data-service/config"
	"github.com/medpricing/medical-data-service/interfaces"
	"github.com/medpricing/medical-data-service/logging"
	"github.com/medpricing/medical-data-service/metrics"
)

const (
	instancePath = "/nacos/v2/ns/instance"
	beatPath     = "/nacos/v1/ns/instance/beat"

	// codeInstanceNotFound is returned by a beat for an instance the server forgot
	codeInstanceNotFound = 20404
)

// ErrInstanceNotFound is returned by Beat when the server no longer knows the instance
var ErrInstanceNotFound = errors.New("instance not registered on the naming server")

// StatusError reports a non-200 answer from the naming server
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nacos %s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// nacosResult is the envelope of v2 answers and v1 beat answers
type nacosResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Compile-time check to ensure NacosClient implements Registry
var _ interfaces.Registry = (*NacosClient)(nil)

// NacosClient implements interfaces.Registry over the Nacos open API
type NacosClient struct {
	baseURL  string
	service  string
	ip       string
	port     string
	group    string
	space    string
	retry    *retryablehttp.Client
	client   *http.Client
	enrolled atomic.Bool
	lastBeat atomic.Int64 // unix nanoseconds
}

// NewNacosClient creates a client registering ip:port under the configured service name
func NewNacosClient(cfg config.NacosConfig, port string) *NacosClient {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	retryClient.Logger = retryLogger{}
	// Hand the last response back so non-200 answers become StatusError
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	baseURL := cfg.Server
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	return &NacosClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		service: cfg.ServiceName,
		ip:      cfg.AdvertiseIP,
		port:    port,
		group:   cfg.Group,
		space:   cfg.Namespace,
		retry:   retryClient,
		client:  retryClient.StandardClient(),
	}
}

func (c *NacosClient) instanceQuery() url.Values {
	q := url.Values{}
	q.Set("serviceName", c.service)
	q.Set("ip", c.ip)
	q.Set("port", c.port)
	if c.group != "" {
		q.Set("groupName", c.group)
	}
	if c.space != "" {
		q.Set("namespaceId", c.space)
	}
	return q
}

// Register announces the instance as an ephemeral instance
func (c *NacosClient) Register(ctx context.Context) error {
	q := c.instanceQuery()
	q.Set("ephemeral", "true")

	if _, err := c.call(ctx, "register", http.MethodPost, instancePath, q); err != nil {
		return err
	}

	c.enrolled.Store(true)
	c.lastBeat.Store(time.Now().UnixNano())
	logging.Info("Service registered with Nacos",
		"server", c.baseURL,
		"service", c.service,
		"ip", c.ip,
		"port", c.port,
	)
	return nil
}

// Beat sends one heartbeat. A beat for an unknown instance returns
// ErrInstanceNotFound and marks the client unregistered.
func (c *NacosClient) Beat(ctx context.Context) error {
	q := c.instanceQuery()

	result, err := c.call(ctx, "beat", http.MethodPut, beatPath, q)
	if err != nil {
		return err
	}
	if result.Code == codeInstanceNotFound {
		c.enrolled.Store(false)
		return ErrInstanceNotFound
	}

	c.lastBeat.Store(time.Now().UnixNano())
	return nil
}

// Deregister removes the instance from the naming server
func (c *NacosClient) Deregister(ctx context.Context) error {
	q := c.instanceQuery()
	q.Set("ephemeral", "true")

	if _, err := c.call(ctx, "deregister", http.MethodDelete, instancePath, q); err != nil {
		return err
	}

	c.enrolled.Store(false)
	logging.Info("Service deregistered from Nacos", "service", c.service)
	return nil
}

// Registered reports whether the last register call succeeded and no beat was refused since
func (c *NacosClient) Registered() bool {
	return c.enrolled.Load()
}

// LastBeat returns the time of the last successful register or beat
func (c *NacosClient) LastBeat() time.Time {
	ns := c.lastBeat.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (c *NacosClient) call(ctx context.Context, operation, method, path string, q url.Values) (nacosResult, error) {
	result, err := c.do(ctx, operation, method, path, q)
	outcome := "success"
	if err != nil || result.Code == codeInstanceNotFound {
		outcome = "failure"
	}
	metrics.RegistryRequests.WithLabelValues(operation, outcome).Inc()
	return result, err
}

func (c *NacosClient) do(ctx context.Context, operation, method, path string, q url.Values) (nacosResult, error) {
	var result nacosResult

	endpoint := c.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return result, fmt.Errorf("failed to create %s request: %w", operation, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return result, fmt.Errorf("nacos %s request failed: %w", operation, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return result, fmt.Errorf("failed to read nacos %s response: %w", operation, err)
	}

	if resp.StatusCode != http.StatusOK {
		return result, &StatusError{Operation: operation, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	// Older servers answer "ok" as plain text
	if len(body) > 0 && body[0] == '{' {
		if err := json.Unmarshal(body, &result); err != nil {
			return result, fmt.Errorf("invalid nacos %s response: %w", operation, err)
		}
	}

	return result, nil
}

// retryLogger routes retryablehttp's leveled logs through the service logger
type retryLogger struct{}

func (retryLogger) Error(msg string, keysAndValues ...any) { logging.Error(msg, keysAndValues...) }
func (retryLogger) Warn(msg string, keysAndValues ...any)  { logging.Warn(msg, keysAndValues...) }
func (retryLogger) Info(msg string, keysAndValues ...any)  { logging.Debug(msg, keysAndValues...) }
func (retryLogger) Debug(msg string, keysAndValues ...any) { logging.Debug(msg, keysAndValues...) }
