package options

import (
	"net"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions contains configuration items for the metrics exposition server.
type HttpOptions struct {
	// Network with server network.
	Network string `json:"network" mapstructure:"network"`

	// Addr is the bind address and port, e.g. 0.0.0.0:9000.
	Addr string `json:"addr" mapstructure:"addr"`

	// MetricsPath is the path the registry is served on.
	MetricsPath string `json:"metrics-path" mapstructure:"metrics-path"`

	// ReadHeaderTimeout bounds how long a scraper may take to send request headers.
	ReadHeaderTimeout time.Duration `json:"read-header-timeout" mapstructure:"read-header-timeout"`

	// ShutdownTimeout bounds the graceful shutdown of in-flight scrapes.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewHttpOptions creates a HttpOptions object with default parameters.
func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Network:           "tcp",
		Addr:              "0.0.0.0:9000",
		MetricsPath:       "/metrics",
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// SetHostPort rebuilds Addr from a bind host and a port, keeping whichever
// part is empty (or zero) from the current value.
func (o *HttpOptions) SetHostPort(host string, port int) {
	curHost, curPort, err := net.SplitHostPort(o.Addr)
	if err != nil {
		curHost, curPort = "0.0.0.0", "9000"
	}
	if host == "" {
		host = curHost
	}
	p := curPort
	if port != 0 {
		p = strconv.Itoa(port)
	}
	o.Addr = net.JoinHostPort(host, p)
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HttpOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags for the exposition server to the specified FlagSet.
func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Network, "http.network", o.Network, "Specify the network for the HTTP server.")
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "Specify the HTTP server bind address and port.")
	fs.StringVar(&o.MetricsPath, "http.metrics-path", o.MetricsPath, "Path under which metrics are exposed.")
	fs.DurationVar(&o.ReadHeaderTimeout, "http.read-header-timeout", o.ReadHeaderTimeout, "Timeout for reading scrape request headers.")
	fs.DurationVar(&o.ShutdownTimeout, "http.shutdown-timeout", o.ShutdownTimeout, "Timeout for draining scrapes on shutdown.")
}
