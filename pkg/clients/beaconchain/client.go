package beaconchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/li-blockchain/rewards-collector/internal/metrics"
	"github.com/li-blockchain/rewards-collector/internal/metrics/metricsTypes"
	"github.com/li-blockchain/rewards-collector/pkg/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultApiUrl        = "https://beaconcha.in/api/v1"
	DefaultBeaconNodeUrl = "http://localhost:5052"
	DefaultRateLimit     = 8.0

	// The withdrawals endpoint returns the window of 100 epochs ending at the
	// queried epoch.
	withdrawalsWindowOffset = 99
)

// UpstreamError wraps a transport, HTTP or API status failure.
type UpstreamError struct {
	Op         string
	Url        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request to %s failed with status %d: %v", e.Op, e.Url, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request to %s failed: %v", e.Op, e.Url, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode == http.StatusNotFound
	}
	return false
}

type BeaconchainClientConfig struct {
	ApiUrl        string
	ApiKey        string
	BeaconNodeUrl string
	// requests per second; non-positive disables rate limiting
	RateLimit float64
}

type BeaconchainClient struct {
	config     *BeaconchainClientConfig
	httpClient *http.Client
	clock      clock.Clock
	gate       *RateGate
	metrics    *metrics.MetricsSink
	logger     *zap.Logger
}

type ClientOpt func(*BeaconchainClient)

func WithHttpClient(hc *http.Client) ClientOpt {
	return func(c *BeaconchainClient) {
		c.httpClient = hc
	}
}

func WithClock(cl clock.Clock) ClientOpt {
	return func(c *BeaconchainClient) {
		c.clock = cl
	}
}

func WithMetrics(ms *metrics.MetricsSink) ClientOpt {
	return func(c *BeaconchainClient) {
		c.metrics = ms
	}
}

func NewBeaconchainClient(cfg *BeaconchainClientConfig, l *zap.Logger, opts ...ClientOpt) *BeaconchainClient {
	if cfg.ApiUrl == "" {
		cfg.ApiUrl = DefaultApiUrl
	}
	if cfg.BeaconNodeUrl == "" {
		cfg.BeaconNodeUrl = DefaultBeaconNodeUrl
	}
	c := &BeaconchainClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		clock:      clock.NewRealClock(),
		metrics:    metrics.NewNoopMetricsSink(),
		logger:     l,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.gate = NewRateGate(cfg.RateLimit, c.clock)
	return c
}

func joinIndices(indices []string) string {
	return strings.Join(indices, ",")
}

func (c *BeaconchainClient) rewardsUrl(path string, query url.Values) string {
	u := strings.TrimRight(c.config.ApiUrl, "/") + path
	if len(query) > 0 {
		u = u + "?" + query.Encode()
	}
	return u
}

func (c *BeaconchainClient) beaconNodeUrl(path string) string {
	return strings.TrimRight(c.config.BeaconNodeUrl, "/") + path
}

func (c *BeaconchainClient) recordRequest(op string, statusCode int, started time.Time) {
	labels := []metricsTypes.MetricsLabel{
		{Name: metricsTypes.Label_Endpoint, Value: op},
		{Name: metricsTypes.Label_Status, Value: strconv.Itoa(statusCode)},
	}
	_ = c.metrics.Incr(metricsTypes.Metric_Incr_ApiRequest, labels, 1)
	_ = c.metrics.Timing(metricsTypes.Metric_Timing_ApiRequestDuration, time.Since(started), labels[:1])
}

// do sends the request through the rate gate and decodes a 200 response into out.
func (c *BeaconchainClient) do(ctx context.Context, op string, method string, fullUrl string, body interface{}, withApiKey bool, out interface{}) error {
	if err := c.gate.Wait(ctx); err != nil {
		return &UpstreamError{Op: op, Url: fullUrl, Err: err}
	}

	var reqBody io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "failed to encode %s request body", op)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullUrl, reqBody)
	if err != nil {
		return &UpstreamError{Op: op, Url: fullUrl, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withApiKey {
		req.Header.Set("apikey", c.config.ApiKey)
	}

	started := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		c.recordRequest(op, 0, started)
		c.logger.Sugar().Errorw("Failed to perform request",
			zap.String("op", op),
			zap.String("url", fullUrl),
			zap.Error(err),
		)
		return &UpstreamError{Op: op, Url: fullUrl, Err: err}
	}
	defer res.Body.Close()
	c.recordRequest(op, res.StatusCode, started)

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return &UpstreamError{Op: op, Url: fullUrl, StatusCode: res.StatusCode, Err: err}
	}

	if res.StatusCode != http.StatusOK {
		c.logger.Sugar().Errorw("Received non-200 response",
			zap.String("op", op),
			zap.String("url", fullUrl),
			zap.Int("status", res.StatusCode),
		)
		return &UpstreamError{
			Op:         op,
			Url:        fullUrl,
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("response body: %s", truncate(string(bodyBytes), 256)),
		}
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return &UpstreamError{Op: op, Url: fullUrl, StatusCode: res.StatusCode, Err: errors.Wrap(err, "failed to decode response")}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func checkStatus(op string, fullUrl string, status string) error {
	if status != statusOK {
		return &UpstreamError{Op: op, Url: fullUrl, StatusCode: http.StatusOK, Err: fmt.Errorf("api status '%s'", status)}
	}
	return nil
}

// GetWithdrawals returns withdrawals for epochs [epoch, epoch+99].
func (c *BeaconchainClient) GetWithdrawals(ctx context.Context, indices []string, epoch uint64) (*WithdrawalsResponse, error) {
	queryEpoch := epoch + withdrawalsWindowOffset
	fullUrl := c.rewardsUrl(
		fmt.Sprintf("/validator/%s/withdrawals", joinIndices(indices)),
		url.Values{"epoch": []string{strconv.FormatUint(queryEpoch, 10)}},
	)

	c.logger.Sugar().Infow("Fetching withdrawals",
		zap.Int("validators", len(indices)),
		zap.Uint64("fromEpoch", epoch),
		zap.Uint64("toEpoch", queryEpoch),
	)

	res := &WithdrawalsResponse{}
	if err := c.do(ctx, "withdrawals", http.MethodGet, fullUrl, nil, true, res); err != nil {
		return nil, err
	}
	if err := checkStatus("withdrawals", fullUrl, res.Status); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *BeaconchainClient) GetProposals(ctx context.Context, indices []string, epoch uint64) (*ProposalsResponse, error) {
	fullUrl := c.rewardsUrl(
		fmt.Sprintf("/validator/%s/proposals", joinIndices(indices)),
		url.Values{"epoch": []string{strconv.FormatUint(epoch, 10)}},
	)

	c.logger.Sugar().Infow("Fetching proposals",
		zap.Int("validators", len(indices)),
		zap.Uint64("epoch", epoch),
	)

	res := &ProposalsResponse{}
	if err := c.do(ctx, "proposals", http.MethodGet, fullUrl, nil, true, res); err != nil {
		return nil, err
	}
	if err := checkStatus("proposals", fullUrl, res.Status); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *BeaconchainClient) GetExecutionBlock(ctx context.Context, blockNumber uint64) (*ExecutionBlockResponse, error) {
	fullUrl := c.rewardsUrl(fmt.Sprintf("/execution/block/%d", blockNumber), nil)

	res := &ExecutionBlockResponse{}
	if err := c.do(ctx, "executionBlock", http.MethodGet, fullUrl, nil, true, res); err != nil {
		return nil, err
	}
	if err := checkStatus("executionBlock", fullUrl, res.Status); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *BeaconchainClient) GetEpochSlots(ctx context.Context, epoch uint64) (*EpochSlotsResponse, error) {
	fullUrl := c.rewardsUrl(fmt.Sprintf("/epoch/%d/slots", epoch), nil)

	res := &EpochSlotsResponse{}
	if err := c.do(ctx, "epochSlots", http.MethodGet, fullUrl, nil, true, res); err != nil {
		return nil, err
	}
	if err := checkStatus("epochSlots", fullUrl, res.Status); err != nil {
		return nil, err
	}
	return res, nil
}

// GetValidatorStatuses asks the beacon node for the status of each validator.
// Failures are logged and yield an empty map so exit classification degrades
// to "not exited".
func (c *BeaconchainClient) GetValidatorStatuses(ctx context.Context, indices []string) map[string]string {
	statuses := make(map[string]string)
	if len(indices) == 0 {
		return statuses
	}

	fullUrl := c.beaconNodeUrl("/eth/v1/beacon/states/head/validators")
	res := &validatorStatusesResponse{}
	if err := c.do(ctx, "validatorStatuses", http.MethodPost, fullUrl, &validatorStatusesRequest{Ids: indices}, false, res); err != nil {
		c.logger.Sugar().Errorw("Failed to fetch validator statuses, treating all as not exited",
			zap.Int("validators", len(indices)),
			zap.Error(err),
		)
		return statuses
	}

	for _, v := range res.Data {
		statuses[v.Index] = v.Status
	}
	c.logger.Sugar().Debugw("Fetched validator statuses", zap.Int("count", len(statuses)))
	return statuses
}

// GetLatestFinalizedEpoch returns 0 when the beacon node cannot be queried,
// which callers treat as "not ready".
func (c *BeaconchainClient) GetLatestFinalizedEpoch(ctx context.Context) uint64 {
	fullUrl := c.beaconNodeUrl("/eth/v1/beacon/states/finalized/finality_checkpoints")

	res := &finalityCheckpointsResponse{}
	if err := c.do(ctx, "finalityCheckpoints", http.MethodGet, fullUrl, nil, false, res); err != nil {
		c.logger.Sugar().Errorw("Failed to fetch latest finalized epoch", zap.Error(err))
		return 0
	}

	epoch, err := strconv.ParseUint(res.Data.Finalized.Epoch, 10, 64)
	if err != nil {
		c.logger.Sugar().Errorw("Failed to parse finalized epoch",
			zap.String("epoch", res.Data.Finalized.Epoch),
			zap.Error(err),
		)
		return 0
	}
	return epoch
}
