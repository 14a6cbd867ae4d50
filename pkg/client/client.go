// Package client talks to a lantzd HTTP API.
package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/imroc/req"
	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/server"
	"github.com/lumasullo/lantz/pkg/state"
)

type ApiClient struct {
	Addr      string
	ApiPrefix string
}

// NewApiClient accepts host:port or a full http url
func NewApiClient(addr string) *ApiClient {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	addr = strings.TrimRight(addr, "/")
	return &ApiClient{
		Addr:      addr,
		ApiPrefix: addr + server.ApiPrefix,
	}
}

// Error is a failed API call. It unwraps to the descriptor error named by
// Kind, or to the class matching the status code when the server sent none.
type Error struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

func (e *Error) Unwrap() error {
	if err := server.KindError(e.Kind); err != nil {
		return err
	}
	switch e.StatusCode {
	case http.StatusNotFound:
		return lantz.ErrNotFound
	case http.StatusBadRequest:
		return lantz.ErrInvalidArgument
	case http.StatusMethodNotAllowed:
		return lantz.ErrReadOnly
	case http.StatusConflict:
		return lantz.ErrInvalidState
	case http.StatusServiceUnavailable:
		return lantz.ErrFinalized
	case http.StatusGatewayTimeout:
		return lantz.ErrTimeout
	case http.StatusBadGateway:
		return lantz.ErrTransport
	}
	return nil
}

func check(r *req.Resp) error {
	if r.Response().StatusCode == http.StatusOK {
		return nil
	}
	e := &Error{StatusCode: r.Response().StatusCode}
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := r.ToJSON(&body); err != nil || body.Error == "" {
		e.Message = r.Response().Status
	} else {
		e.Message = body.Error
		e.Kind = body.Kind
	}
	return e
}

func (c *ApiClient) instrumentUrl(inst string) string {
	return fmt.Sprintf("%s/%s", c.ApiPrefix, url.PathEscape(inst))
}

func (c *ApiClient) featUrl(inst, feat string) string {
	return fmt.Sprintf("%s/feats/%s", c.instrumentUrl(inst), url.PathEscape(feat))
}

func (c *ApiClient) keyUrl(inst, feat string, key any) string {
	return fmt.Sprintf("%s/%s", c.featUrl(inst, feat), url.PathEscape(fmt.Sprint(key)))
}

func (c *ApiClient) actionUrl(inst, action string) string {
	return fmt.Sprintf("%s/actions/%s", c.instrumentUrl(inst), url.PathEscape(action))
}

func (c *ApiClient) getJSON(u string, v any) error {
	r, err := req.Get(u)
	if err != nil {
		return fmt.Errorf("%w: %v", lantz.ErrTransport, err)
	}
	if err := check(r); err != nil {
		return err
	}
	return r.ToJSON(v)
}

func (c *ApiClient) postJSON(u string, body, v any) error {
	r, err := req.Post(u, req.BodyJSON(body))
	if err != nil {
		return fmt.Errorf("%w: %v", lantz.ErrTransport, err)
	}
	if err := check(r); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return r.ToJSON(v)
}

func (c *ApiClient) getValue(u string) (any, error) {
	var v server.Value
	if err := c.getJSON(u, &v); err != nil {
		return nil, err
	}
	return server.FromValue(v)
}

// Version returns the server build information
func (c *ApiClient) Version() (*server.VersionInfo, error) {
	v := &server.VersionInfo{}
	if err := c.getJSON(c.Addr+"/version", v); err != nil {
		return nil, err
	}
	return v, nil
}

// Instruments lists instrument names
func (c *ApiClient) Instruments() ([]string, error) {
	var names []string
	if err := c.getJSON(c.ApiPrefix, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Describe returns the descriptors of an instrument
func (c *ApiClient) Describe(inst string) (*server.InstrumentInfo, error) {
	info := &server.InstrumentInfo{}
	if err := c.getJSON(c.instrumentUrl(inst), info); err != nil {
		return nil, err
	}
	return info, nil
}

// Get reads a feature. Values with units come back as units.Quantity.
func (c *ApiClient) Get(inst, feat string) (any, error) {
	return c.getValue(c.featUrl(inst, feat))
}

// Set writes a feature
func (c *ApiClient) Set(inst, feat string, value any) error {
	return c.postJSON(c.featUrl(inst, feat), server.ToValue(value), nil)
}

// GetIndexed reads one key of an indexed feature
func (c *ApiClient) GetIndexed(inst, feat string, key any) (any, error) {
	return c.getValue(c.keyUrl(inst, feat, key))
}

// SetIndexed writes one key of an indexed feature
func (c *ApiClient) SetIndexed(inst, feat string, key, value any) error {
	return c.postJSON(c.keyUrl(inst, feat, key), server.ToValue(value), nil)
}

// SetIndexedMany writes several keys in one request
func (c *ApiClient) SetIndexedMany(inst, feat string, keys, values []any) error {
	if len(keys) != len(values) {
		return fmt.Errorf("%w: %d keys but %d values", lantz.ErrInvalidArgument, len(keys), len(values))
	}
	entries := make([]server.Entry, len(keys))
	for i := range keys {
		v := server.ToValue(values[i])
		entries[i] = server.Entry{Key: keys[i], Value: v.Value, Units: v.Units}
	}
	return c.postJSON(c.featUrl(inst, feat), entries, nil)
}

// Invoke runs an action and returns its result
func (c *ApiClient) Invoke(inst, action string, args ...any) (any, error) {
	body := server.Invocation{Args: make([]server.Value, len(args))}
	for i, a := range args {
		body.Args[i] = server.ToValue(a)
	}
	var v server.Value
	if err := c.postJSON(c.actionUrl(inst, action), body, &v); err != nil {
		return nil, err
	}
	return server.FromValue(v)
}

// SetPoints returns the journal of last written values of an instrument
func (c *ApiClient) SetPoints(inst string) ([]state.SetPoint, error) {
	var sps []state.SetPoint
	if err := c.getJSON(c.instrumentUrl(inst)+"/setpoints", &sps); err != nil {
		return nil, err
	}
	return sps, nil
}

// IsStatus reports whether err is an API error with the given status code
func IsStatus(err error, code int) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == code
}
