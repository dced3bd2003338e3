// Package lockgateway wraps the lock vendor's HTTP API. Vendor faults of any
// shape (network error, timeout, non-2xx, vendor-reported failure) come back
// as a failed Result with a populated error message; nothing escapes as a
// panic or a bare error.
package lockgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-querystring/query"
	"golang.org/x/time/rate"

	"github.com/stayflow/guestgate/internal/domain"
	"github.com/stayflow/guestgate/pkg/logger"
)

// Result is the normalized outcome of one vendor call.
type Result struct {
	Success        bool
	VendorResponse json.RawMessage
	ErrorMessage   string
}

// Gateway is what the orchestrator needs from the vendor client.
type Gateway interface {
	Open(ctx context.Context, device *domain.LockDevice) Result
}

type Config struct {
	BaseURL        string
	Username       string
	Password       string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 || cfg.Timeout > 10*time.Second {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
	}
}

// gyroParams is the query shape of the vendor's gyro-style action endpoint,
// used for unit doors.
type gyroParams struct {
	DoorID string `url:"door_id"`
	Action string `url:"action"`
}

type vendorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Open fires the role-appropriate vendor operation. Portal doors use the
// door-open endpoint; unit doors use the gyro action endpoint. The two shapes
// are a vendor quirk, not ours.
func (c *Client) Open(ctx context.Context, device *domain.LockDevice) Result {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{Success: false, ErrorMessage: "connection error: " + err.Error()}
	}

	var url string
	switch device.Role {
	case domain.DoorPortal:
		url = fmt.Sprintf("%s/v2/devices/%s/doors/%s/open", c.cfg.BaseURL, device.DeviceID, device.DoorID)
	case domain.DoorUnit:
		params, err := query.Values(gyroParams{DoorID: device.DoorID, Action: "open"})
		if err != nil {
			return Result{Success: false, ErrorMessage: "invalid gyro parameters: " + err.Error()}
		}
		url = fmt.Sprintf("%s/v2/devices/%s/actions/gyro?%s", c.cfg.BaseURL, device.DeviceID, params.Encode())
	default:
		return Result{Success: false, ErrorMessage: fmt.Sprintf("unsupported door role %q", device.Role)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(nil))
	if err != nil {
		return Result{Success: false, ErrorMessage: "failed to build vendor request: " + err.Error()}
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Accept", "application/json")

	logger.DebugContext(ctx, "Calling lock vendor", "role", device.Role, "device", device.DeviceID)

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and transport faults land here.
		return Result{Success: false, ErrorMessage: "connection error: " + err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Result{Success: false, ErrorMessage: "failed to read vendor response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{
			Success:        false,
			VendorResponse: body,
			ErrorMessage:   fmt.Sprintf("vendor returned status %d", resp.StatusCode),
		}
	}

	var vr vendorResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return Result{
			Success:        false,
			VendorResponse: body,
			ErrorMessage:   "unreadable vendor response: " + err.Error(),
		}
	}

	if !vr.Success {
		msg := vr.Message
		if msg == "" {
			msg = "vendor reported failure"
		}
		return Result{Success: false, VendorResponse: body, ErrorMessage: msg}
	}

	return Result{Success: true, VendorResponse: body}
}

var _ Gateway = (*Client)(nil)
