// Package ampclient is the REST client against the amplifier's IP-control
// surface (spec.md §4.3): one low-level request helper wrapped by small
// typed methods, talking HTTP to a resolved (address, port, base_path)
// target.
package ampclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corvidae/cecbridge/pkg/bridgeerr"
)

// DefaultTimeout matches spec.md §4.3: amplifier calls default to 2.5s.
const DefaultTimeout = 2500 * time.Millisecond

// Client is a thin REST client for one amplifier target. It holds no
// mutable state beyond the configured http.Client; callers (the protocol
// engine) are responsible for serializing calls under their own I/O lock.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client from an already-resolved target. base_path is
// normalized by the caller (config/discovery layer); New does not
// second-guess it beyond joining it into the base URL.
func New(address string, port int, basePath string) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d%s", address, port, basePath),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// NewWithTimeout is New with an explicit per-request timeout, used by
// tests and by callers that need a tighter bound than the 2.5s default.
func NewWithTimeout(address string, port int, basePath string, timeout time.Duration) *Client {
	c := New(address, port, basePath)
	c.http.Timeout = timeout
	return c
}

func (c *Client) get(ctx context.Context, path string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, bridgeerr.NewTransportError("GET "+path, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, bridgeerr.NewTransportError("GET "+path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil, &notFoundError{path: path}
	}
	if resp.StatusCode >= 300 {
		return nil, bridgeerr.NewProtocolError("GET "+path, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var data map[string]interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, bridgeerr.NewProtocolError("GET "+path, fmt.Errorf("invalid json: %w", err))
		}
	}
	return data, nil
}

func (c *Client) post(ctx context.Context, path string, payload map[string]interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return bridgeerr.NewProtocolError("POST "+path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return bridgeerr.NewTransportError("POST "+path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return bridgeerr.NewTransportError("POST "+path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return bridgeerr.NewProtocolError("POST "+path, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

type notFoundError struct{ path string }

func (e *notFoundError) Error() string { return fmt.Sprintf("%s: not found", e.path) }

// GetVolume returns the amplifier's current volume, 0..=100.
func (c *Client) GetVolume(ctx context.Context) (int, error) {
	data, err := c.get(ctx, "/systems/current/sources/current/soundControl/volume")
	if err != nil {
		return 0, err
	}
	v, ok := data["volume"]
	if !ok {
		return 0, bridgeerr.NewProtocolError("get_volume", fmt.Errorf("missing volume key in response"))
	}
	n, ok := v.(float64)
	if !ok {
		return 0, bridgeerr.NewProtocolError("get_volume", fmt.Errorf("volume field is not numeric: %v", v))
	}
	return clamp(int(n), 0, 100), nil
}

// SetVolume posts the clamped target volume.
func (c *Client) SetVolume(ctx context.Context, volume int) error {
	volume = clamp(volume, 0, 100)
	return c.post(ctx, "/systems/current/sources/current/soundControl/volume", map[string]interface{}{"volume": volume})
}

// VolumeUp calls the amplifier's native relative-step-up endpoint.
func (c *Client) VolumeUp(ctx context.Context) error {
	return c.post(ctx, "/systems/current/sources/current/soundControl/volumeUp", nil)
}

// VolumeDown calls the amplifier's native relative-step-down endpoint.
func (c *Client) VolumeDown(ctx context.Context) error {
	return c.post(ctx, "/systems/current/sources/current/soundControl/volumeDown", nil)
}

// GetMuted reports whether the amplifier's current source is muted.
func (c *Client) GetMuted(ctx context.Context) (bool, error) {
	data, err := c.get(ctx, "/groups/current/sources/current")
	if err != nil {
		return false, err
	}
	state, _ := data["muteState"].(string)
	return strings.EqualFold(state, "muted"), nil
}

// MuteToggle mutes or unmutes depending on the amplifier's current state,
// per spec.md §4.3 ("if get_muted: POST .../unmute; else .../mute").
func (c *Client) MuteToggle(ctx context.Context) error {
	muted, err := c.GetMuted(ctx)
	if err != nil {
		return err
	}
	if muted {
		return c.post(ctx, "/groups/current/sources/current/playback/unmute", nil)
	}
	return c.post(ctx, "/groups/current/sources/current/playback/mute", nil)
}

// FetchJSON issues a bare GET against path and returns the decoded JSON
// object, or nil if the body was empty. It is the low-level primitive the
// topology walker (pkg/topology) uses to probe endpoints spec.md's C3
// contract doesn't name (/devices/current, /systems/current's groupId),
// without duplicating the request/error-wrapping plumbing above.
func (c *Client) FetchJSON(ctx context.Context, path string) (map[string]interface{}, error) {
	return c.get(ctx, path)
}

// GetSystems fetches the amplifier's system inventory, falling back to
// /systems/current on a 404 (spec.md §4.3).
func (c *Client) GetSystems(ctx context.Context) (map[string]interface{}, error) {
	data, err := c.get(ctx, "/systems")
	if err == nil {
		return data, nil
	}
	if _, ok := err.(*notFoundError); ok {
		return c.get(ctx, "/systems/current")
	}
	return nil, err
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
