package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scttfrdmn/droprealms-api/internal/config"
	"github.com/scttfrdmn/droprealms-api/internal/metrics"
	"github.com/scttfrdmn/droprealms-api/pkg/types"
	"go.uber.org/zap"
)

const maxResponseBodyBytes = 1 << 20

// Operation names used in errors, logs and metrics
const (
	OpStart    = "start"
	OpStop     = "stop"
	OpDescribe = "describe"
)

// Client issues start, stop and describe calls against the Compute Engine v1 API
type Client struct {
	logger     *zap.Logger
	baseURL    string
	timeout    time.Duration
	tokens     TokenSource
	httpClient *http.Client
	metrics    *metrics.Recorder
}

// apiErrorResponse is the error envelope returned by Google APIs
type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewClient creates a new compute control client
func NewClient(logger *zap.Logger, gcpConfig *config.GCPConfig, tokens TokenSource, httpClient *http.Client, recorder *metrics.Recorder) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		logger:     logger,
		baseURL:    strings.TrimRight(gcpConfig.ComputeBaseURL, "/"),
		timeout:    gcpConfig.RequestTimeoutDuration(),
		tokens:     tokens,
		httpClient: httpClient,
		metrics:    recorder,
	}
}

// StopInstance initiates a stop. It returns once the control plane accepts the request;
// the instance converges to TERMINATED asynchronously.
func (c *Client) StopInstance(ctx context.Context, ref types.InstanceRef) (*types.Operation, error) {
	return c.instanceAction(ctx, OpStop, ref)
}

// StartInstance initiates a start without waiting for RUNNING
func (c *Client) StartInstance(ctx context.Context, ref types.InstanceRef) (*types.Operation, error) {
	return c.instanceAction(ctx, OpStart, ref)
}

// DescribeInstance reads the instance and translates it into a snapshot
func (c *Client) DescribeInstance(ctx context.Context, ref types.InstanceRef) (*types.InstanceSnapshot, error) {
	desc, err := c.getInstance(ctx, ref)
	if err != nil {
		return nil, err
	}

	snapshot := desc.Snapshot()
	c.logger.Debug("Described instance",
		zap.String("instance", ref.String()),
		zap.String("status", snapshot.Status),
		zap.Bool("has_external_ip", snapshot.HasExternalIP()))

	return &snapshot, nil
}

// GetExternalIP reads the instance and classifies its first external address
func (c *Client) GetExternalIP(ctx context.Context, ref types.InstanceRef) (*types.ExternalIPLookup, error) {
	desc, err := c.getInstance(ctx, ref)
	if err != nil {
		return nil, err
	}

	lookup := desc.LookupExternalIP()
	c.logger.Debug("Looked up external address",
		zap.String("instance", ref.String()),
		zap.String("result", string(lookup.Result)))

	return &lookup, nil
}

func (c *Client) instanceAction(ctx context.Context, operation string, ref types.InstanceRef) (*types.Operation, error) {
	c.logger.Info("Requesting instance action",
		zap.String("operation", operation),
		zap.String("instance", ref.Name),
		zap.String("project", ref.Project),
		zap.String("zone", ref.Zone))

	body, err := c.call(ctx, operation, http.MethodPost, c.instanceURL(ref)+"/"+operation, strings.NewReader("{}"))
	if err != nil {
		return nil, err
	}

	// Any success response acknowledges the request; the body is informational only.
	var op types.Operation
	if err := json.Unmarshal(body, &op); err != nil {
		c.logger.Debug("Could not decode operation body", zap.String("operation", operation), zap.Error(err))
	}

	c.logger.Info("Instance action accepted",
		zap.String("operation", operation),
		zap.String("instance", ref.String()),
		zap.String("operation_name", op.Name),
		zap.String("operation_status", op.Status))

	return &op, nil
}

func (c *Client) getInstance(ctx context.Context, ref types.InstanceRef) (*types.InstanceDescription, error) {
	body, err := c.call(ctx, OpDescribe, http.MethodGet, c.instanceURL(ref), nil)
	if err != nil {
		return nil, err
	}

	desc, err := types.ParseInstanceDescription(body)
	if err != nil {
		return nil, &ControlPlaneError{Kind: KindMalformedResponse, Operation: OpDescribe, Err: err}
	}

	return desc, nil
}

// call performs one bearer-authenticated request and returns the success body.
// The token fetch strictly precedes the control plane request.
func (c *Client) call(ctx context.Context, operation, method, target string, payload io.Reader) ([]byte, error) {
	start := time.Now()

	body, err := c.doCall(ctx, operation, method, target, payload)

	result := "success"
	if err != nil {
		result = resultLabel(err)
	}
	c.metrics.ObserveControlPlaneCall(operation, result, time.Since(start))

	if err != nil {
		c.logger.Warn("Compute API call failed",
			zap.String("operation", operation),
			zap.String("method", method),
			zap.String("url", target),
			zap.Error(err))
	}

	return body, err
}

func (c *Client) doCall(ctx context.Context, operation, method, target string, payload io.Reader) ([]byte, error) {
	token, err := c.tokens.FetchToken(ctx)
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, &ControlPlaneError{Kind: KindTransport, Operation: operation, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", token.AuthorizationHeader())
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ControlPlaneError{Kind: KindTransport, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, &ControlPlaneError{Kind: KindTransport, Operation: operation, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ControlPlaneError{
			Kind:       kindForStatus(resp.StatusCode),
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    apiErrorMessage(body),
		}
	}

	return body, nil
}

// instanceURL builds {base}/projects/{project}/zones/{zone}/instances/{name}
func (c *Client) instanceURL(ref types.InstanceRef) string {
	return fmt.Sprintf("%s/projects/%s/zones/%s/instances/%s",
		c.baseURL,
		url.PathEscape(ref.Project),
		url.PathEscape(ref.Zone),
		url.PathEscape(ref.Name))
}

// apiErrorMessage extracts the message from a Google API error envelope
func apiErrorMessage(body []byte) string {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return ""
}

func resultLabel(err error) string {
	var cpErr *ControlPlaneError
	if errors.As(err, &cpErr) {
		return string(cpErr.Kind)
	}
	var credErr *CredentialError
	if errors.As(err, &credErr) {
		return "credential"
	}
	return "error"
}
