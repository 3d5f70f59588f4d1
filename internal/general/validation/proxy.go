package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"logistics/internal/domain/geo"
	"logistics/internal/general/logger"
	"logistics/internal/general/metrics"
)

const (
	DefaultTimeout      = 3 * time.Second
	DefaultRadiusKM     = 5.0
	maxResponseBodySize = 1 << 20
)

var (
	ErrNotFound    = errors.New("entity not found")
	ErrUnavailable = errors.New("peer service unavailable")
)

// Proxy reads and writes entities owned by the user/driver service over HTTP.
type Proxy struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *logger.Logger
	metrics *metrics.Metrics
	users   UserCache
}

type Option func(*Proxy)

func WithHTTPClient(c *http.Client) Option { return func(p *Proxy) { p.http = c } }
func WithTimeout(d time.Duration) Option   { return func(p *Proxy) { p.timeout = d } }
func WithLogger(l *logger.Logger) Option   { return func(p *Proxy) { p.logger = l } }
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Proxy) { p.metrics = m }
}
func WithUserCache(c UserCache) Option { return func(p *Proxy) { p.users = c } }

// NewProxy builds a Proxy for baseURL (e.g. http://user-driver:3001).
func NewProxy(baseURL string, opts ...Option) *Proxy {
	p := &Proxy{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	return p
}

// ---- reads with a three-way result ----

func (p *Proxy) LookupUser(ctx context.Context, id string) Lookup[UserData] {
	if p.users != nil {
		if u, ok := p.users.GetUser(id); ok {
			p.metrics.PeerCall("lookup_user", "cache_hit")
			return Lookup[UserData]{Outcome: Found, Value: u}
		}
	}
	res := fetch[UserData](ctx, p, "lookup_user", http.MethodGet, "/api/users/"+url.PathEscape(id), nil, nil)
	if res.Found() && p.users != nil {
		p.users.PutUser(*res.Value)
	}
	return res
}

func (p *Proxy) LookupDriver(ctx context.Context, id string) Lookup[DriverData] {
	return fetch[DriverData](ctx, p, "lookup_driver", http.MethodGet, "/api/drivers/"+url.PathEscape(id), nil, nil)
}

func (p *Proxy) LookupDriverByUserID(ctx context.Context, userID string) Lookup[DriverData] {
	return fetch[DriverData](ctx, p, "lookup_driver_by_user", http.MethodGet, "/api/drivers/user/"+url.PathEscape(userID), nil, nil)
}

// ---- collapsed wrappers: not-found and unreachable both read as false/nil ----

func (p *Proxy) ValidateUser(ctx context.Context, id string) bool {
	return p.LookupUser(ctx, id).Found()
}

func (p *Proxy) ValidateDriver(ctx context.Context, id string) bool {
	return p.LookupDriver(ctx, id).Found()
}

func (p *Proxy) GetUserInfo(ctx context.Context, id string) *UserData {
	return p.LookupUser(ctx, id).Value
}

func (p *Proxy) GetDriverInfo(ctx context.Context, id string) *DriverData {
	return p.LookupDriver(ctx, id).Value
}

func (p *Proxy) GetDriverByUserID(ctx context.Context, userID string) *DriverData {
	return p.LookupDriverByUserID(ctx, userID).Value
}

// FindNearbyDrivers lists drivers around loc sorted by distance. Any failure
// yields an empty list. A non-positive radius means DefaultRadiusKM.
func (p *Proxy) FindNearbyDrivers(ctx context.Context, loc geo.Point, radiusKM float64) []DriverData {
	if radiusKM <= 0 {
		radiusKM = DefaultRadiusKM
	}
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("radius", strconv.FormatFloat(radiusKM, 'f', -1, 64))

	res := fetch[[]DriverData](ctx, p, "find_nearby_drivers", http.MethodGet, "/api/drivers/nearby", q, nil)
	if !res.Found() || res.Value == nil {
		return []DriverData{}
	}

	drivers := *res.Value
	for i := range drivers {
		if drivers[i].CurrentLocation == nil {
			continue
		}
		d := loc.DistanceKM(*drivers[i].CurrentLocation)
		drivers[i].Distance = &d
	}
	sort.SliceStable(drivers, func(i, j int) bool {
		di, dj := drivers[i].Distance, drivers[j].Distance
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return *di < *dj
		}
	})
	if drivers == nil {
		drivers = []DriverData{}
	}
	return drivers
}

// ---- writes: updated entity or nil, never retried ----

func (p *Proxy) UpdateDriverLocation(ctx context.Context, driverID string, loc geo.Point) *DriverData {
	if err := loc.Validate(); err != nil {
		p.logger.Error(ctx, "peer_request_invalid", "Refusing to send invalid driver location", err,
			map[string]any{"driver_id": driverID})
		return nil
	}
	path := "/api/drivers/" + url.PathEscape(driverID) + "/location"
	return fetch[DriverData](ctx, p, "update_driver_location", http.MethodPatch, path, nil, loc).Value
}

// UpdateDriverStatus sets the peer-side account status (active, inactive, suspended).
func (p *Proxy) UpdateDriverStatus(ctx context.Context, driverID, status string) *DriverData {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "active", "inactive", "suspended":
	default:
		p.logger.Error(ctx, "peer_request_invalid", "Refusing to send unknown driver status",
			fmt.Errorf("status %q", status), map[string]any{"driver_id": driverID})
		return nil
	}
	path := "/api/drivers/" + url.PathEscape(driverID) + "/status"
	return fetch[DriverData](ctx, p, "update_driver_status", http.MethodPatch, path, nil,
		map[string]string{"status": status}).Value
}

// RateDriver submits a 0..5 rating.
func (p *Proxy) RateDriver(ctx context.Context, driverID string, rating float64) *DriverData {
	if rating < 0 || rating > 5 {
		p.logger.Error(ctx, "peer_request_invalid", "Refusing to send out-of-range rating",
			fmt.Errorf("rating %v", rating), map[string]any{"driver_id": driverID})
		return nil
	}
	path := "/api/drivers/" + url.PathEscape(driverID) + "/rate"
	return fetch[DriverData](ctx, p, "rate_driver", http.MethodPost, path, nil,
		map[string]float64{"rating": rating}).Value
}

// ---- transport ----

func fetch[T any](ctx context.Context, p *Proxy, op, method, path string, query url.Values, body any) Lookup[T] {
	res := do[T](ctx, p, method, path, query, body)
	p.metrics.PeerCall(op, res.Outcome.String())

	details := map[string]any{"operation": op, "path": path}
	switch res.Outcome {
	case Unavailable:
		p.logger.Error(ctx, "peer_unavailable", "User/driver service call failed", res.Err, details)
	case NotFound:
		p.logger.Debug(ctx, "peer_not_found", "User/driver service reported no entity", details)
	}
	return res
}

func do[T any](ctx context.Context, p *Proxy, method, path string, query url.Values, body any) Lookup[T] {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	target := p.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Lookup[T]{Outcome: Unavailable, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return Lookup[T]{Outcome: Unavailable, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return Lookup[T]{Outcome: Unavailable, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return Lookup[T]{Outcome: NotFound, Err: ErrNotFound}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout:
		return Lookup[T]{Outcome: Unavailable, Err: fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)}
	case resp.StatusCode >= 300:
		// rejected requests (auth, bad input) say nothing about the entity
		return Lookup[T]{Outcome: Unavailable, Err: fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)}
	}

	var env envelope[T]
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(&env); err != nil {
		return Lookup[T]{Outcome: Unavailable, Err: fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)}
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "success=false"
		}
		return Lookup[T]{Outcome: NotFound, Err: fmt.Errorf("%w: %s", ErrNotFound, msg)}
	}
	if env.Data == nil {
		return Lookup[T]{Outcome: NotFound, Err: fmt.Errorf("%w: empty data", ErrNotFound)}
	}
	return Lookup[T]{Outcome: Found, Value: env.Data}
}
