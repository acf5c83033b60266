package options

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*PolestarOptions)(nil)

// PolestarOptions holds the vehicle-cloud account and the vehicles to export.
type PolestarOptions struct {
	Username string   `json:"username" mapstructure:"username"`
	Password string   `json:"password" mapstructure:"password"`
	VINs     []string `json:"vins" mapstructure:"vins"`

	// IssuerURL is the OpenID Connect issuer used for login and token refresh.
	IssuerURL string `json:"issuer-url" mapstructure:"issuer-url"`

	// APIURL is the GraphQL endpoint serving car information and telematics.
	APIURL string `json:"api-url" mapstructure:"api-url"`

	ClientID    string `json:"client-id" mapstructure:"client-id"`
	RedirectURL string `json:"redirect-url" mapstructure:"redirect-url"`

	// RequestTimeout bounds each individual HTTP request to the vehicle cloud.
	RequestTimeout time.Duration `json:"request-timeout" mapstructure:"request-timeout"`
}

// NewPolestarOptions creates a PolestarOptions object with the public endpoints.
func NewPolestarOptions() *PolestarOptions {
	return &PolestarOptions{
		IssuerURL:      "https://polestarid.eu.polestar.com",
		APIURL:         "https://pc-api.polestar.com/eu-north-1/mystar-v2/",
		ClientID:       "l3oopkc_10",
		RedirectURL:    "https://www.polestar.com/sign-in-callback",
		RequestTimeout: 20 * time.Second,
	}
}

// SetVINs accepts a comma-separated list and stores the trimmed, non-empty entries.
func (o *PolestarOptions) SetVINs(raw string) {
	o.VINs = splitVINs(raw)
}

func splitVINs(raw string) []string {
	var vins []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			vins = append(vins, v)
		}
	}
	return vins
}

// Validate reports every missing mandatory value at once.
func (o *PolestarOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.Username == "" {
		errs = append(errs, errors.New("EXPORTER_USERNAME (--polestar.username) is required"))
	}
	if o.Password == "" {
		errs = append(errs, errors.New("EXPORTER_PASSWORD (--polestar.password) is required"))
	}
	if len(o.VINs) == 0 {
		errs = append(errs, errors.New("EXPORTER_VIN (--polestar.vin) is required"))
	}
	for _, raw := range []string{o.IssuerURL, o.APIURL} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			errs = append(errs, fmt.Errorf("invalid vehicle cloud url %q: %w", raw, err))
		}
	}
	if o.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--polestar.request-timeout must be positive, got %s", o.RequestTimeout))
	}

	return errs
}

// AddFlags adds flags for the vehicle cloud account to the specified FlagSet.
func (o *PolestarOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Username, "polestar.username", o.Username, "Polestar ID username (email).")
	fs.StringVar(&o.Password, "polestar.password", o.Password, "Polestar ID password.")
	fs.StringSliceVar(&o.VINs, "polestar.vin", o.VINs, "VIN(s) of the vehicles to export, comma-separated.")
	fs.StringVar(&o.IssuerURL, "polestar.issuer-url", o.IssuerURL, "OpenID Connect issuer of the vehicle cloud.")
	fs.StringVar(&o.APIURL, "polestar.api-url", o.APIURL, "GraphQL endpoint of the vehicle cloud.")
	fs.StringVar(&o.ClientID, "polestar.client-id", o.ClientID, "OAuth2 client ID registered with the vehicle cloud.")
	fs.StringVar(&o.RedirectURL, "polestar.redirect-url", o.RedirectURL, "OAuth2 redirect URL registered for the client ID.")
	fs.DurationVar(&o.RequestTimeout, "polestar.request-timeout", o.RequestTimeout, "Timeout for a single request to the vehicle cloud.")
}
