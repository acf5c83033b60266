package polestar

import (
	"errors"
	"net/http"
	"time"
)

// Scopes requested during login.
var Scopes = []string{"openid", "profile", "email", "customer:attributes"}

// Config configures a Client.
type Config struct {
	Username string
	Password string
	VINs     []string

	IssuerURL   string
	APIURL      string
	ClientID    string
	RedirectURL string

	RequestTimeout time.Duration

	// HTTPClient supplies the base transport. The client copies it before
	// installing its own cookie jar and redirect policy.
	HTTPClient *http.Client
}

func (c *Config) validate() error {
	switch {
	case c.Username == "" || c.Password == "":
		return errors.New("polestar: username and password are required")
	case len(c.VINs) == 0:
		return errors.New("polestar: at least one VIN is required")
	case c.IssuerURL == "" || c.APIURL == "":
		return errors.New("polestar: issuer and api urls are required")
	case c.ClientID == "" || c.RedirectURL == "":
		return errors.New("polestar: client id and redirect url are required")
	}
	return nil
}
