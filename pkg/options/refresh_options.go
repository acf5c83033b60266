package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*RefreshOptions)(nil)

// MinRefreshInterval keeps the per-cycle deadline (interval minus one second) positive.
const MinRefreshInterval = 2 * time.Second

// RefreshOptions controls the polling cadence.
type RefreshOptions struct {
	// Interval is both the sleep between cycles and, minus one second, the cycle deadline.
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// NewRefreshOptions returns the default 60 second cadence.
func NewRefreshOptions() *RefreshOptions {
	return &RefreshOptions{
		Interval: 60 * time.Second,
	}
}

// Timeout is the deadline applied to one fetch-and-publish cycle.
func (o *RefreshOptions) Timeout() time.Duration {
	return o.Interval - time.Second
}

func (o *RefreshOptions) Validate() []error {
	if o == nil {
		return nil
	}
	if o.Interval < MinRefreshInterval {
		return []error{fmt.Errorf("EXPORTER_INTERVAL (--refresh.interval) must be at least %s, got %s", MinRefreshInterval, o.Interval)}
	}
	return nil
}

func (o *RefreshOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Interval, "refresh.interval", o.Interval, "Time between refresh cycles. Each cycle is abandoned after interval minus one second.")
}
