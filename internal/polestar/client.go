// Package polestar is a small client for the Polestar vehicle cloud. It logs
// in with the account credentials, keeps the session alive, and caches the
// latest car information and telematics per VIN between refreshes.
package polestar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"

	"github.com/autopeer-io/polestar-exporter/pkg/log"
)

// Client talks to the vehicle cloud on behalf of one account.
type Client struct {
	cfg  Config
	base *http.Client
	api  *http.Client

	ready atomic.Bool

	mu        sync.RWMutex
	info      map[string]*VehicleInfo
	telemetry map[string]*Telemetry
}

// NewClient validates cfg and prepares a client. No network calls are made
// until Init.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("polestar config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Jar, Timeout and CheckRedirect are set on a copy; the caller's client is not touched.
	base := &http.Client{}
	if cfg.HTTPClient != nil {
		clone := *cfg.HTTPClient
		base = &clone
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	base.Jar = jar
	if cfg.RequestTimeout > 0 {
		base.Timeout = cfg.RequestTimeout
	}

	return &Client{
		cfg:       *cfg,
		base:      base,
		info:      make(map[string]*VehicleInfo),
		telemetry: make(map[string]*Telemetry),
	}, nil
}

// Init logs in and verifies that every configured VIN belongs to the account.
// It is called once at startup; a failure here is not retried.
func (c *Client) Init(ctx context.Context) error {
	auth, err := newAuthenticator(ctx, &c.cfg, c.base)
	if err != nil {
		return err
	}
	c.base.CheckRedirect = auth.checkRedirect

	token, err := auth.login(ctx)
	if err != nil {
		return fmt.Errorf("logging in to vehicle cloud: %w", err)
	}

	// The token source outlives Init: it logs in again whenever refresh fails.
	sessionCtx := context.WithoutCancel(ctx)
	c.api = &http.Client{
		Transport: &oauth2.Transport{
			Source: newLoginTokenSource(sessionCtx, auth, token),
			Base:   c.base.Transport,
		},
		Timeout: c.base.Timeout,
	}

	cars, err := c.fetchCars(ctx)
	if err != nil {
		return err
	}
	for _, vin := range c.cfg.VINs {
		info, ok := cars[vin]
		if !ok {
			return fmt.Errorf("%s: %w", vin, ErrVehicleNotFound)
		}
		c.storeInfo(vin, info)
		log.Info("Found vehicle on account", "vin", vin, "model", info.ModelName)
	}

	c.ready.Store(true)
	return nil
}

// Initialized reports whether Init has completed successfully.
func (c *Client) Initialized() bool {
	return c.ready.Load()
}

// Refresh re-reads car information and telematics for vin and replaces the
// cached snapshots. On error the cache is left untouched.
func (c *Client) Refresh(ctx context.Context, vin string) error {
	if !c.Initialized() {
		return ErrNotInitialized
	}
	if !slices.Contains(c.cfg.VINs, vin) {
		return fmt.Errorf("%s: %w", vin, ErrVehicleNotFound)
	}

	cars, err := c.fetchCars(ctx)
	if err != nil {
		return err
	}
	info, ok := cars[vin]
	if !ok {
		return fmt.Errorf("%s: %w", vin, ErrVehicleNotFound)
	}

	var tr telematicsResponse
	if err := c.query(ctx, "CarTelematics", queryTelematics, map[string]any{"vin": vin}, &tr); err != nil {
		return err
	}

	log.FromContext(ctx).Debug("Refreshed vehicle from cloud", "telematics", tr.Telematics != nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.info[vin] = info
	if tr.Telematics == nil {
		delete(c.telemetry, vin)
	} else {
		c.telemetry[vin] = tr.Telematics
	}
	return nil
}

// VehicleInfo returns the cached car information for vin.
func (c *Client) VehicleInfo(vin string) (*VehicleInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.info[vin]
	return info, ok
}

// Telemetry returns the cached telematics for vin.
func (c *Client) Telemetry(vin string) (*Telemetry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.telemetry[vin]
	return t, ok
}

func (c *Client) fetchCars(ctx context.Context) (map[string]*VehicleInfo, error) {
	var cr carsResponse
	if err := c.query(ctx, "GetConsumerCarsV2", queryCars, nil, &cr); err != nil {
		return nil, err
	}
	cars := make(map[string]*VehicleInfo, len(cr.Cars))
	for _, car := range cr.Cars {
		cars[car.VIN] = car.toVehicleInfo()
	}
	return cars, nil
}

func (c *Client) storeInfo(vin string, info *VehicleInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info[vin] = info
}
