package options

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/polestar-exporter/internal/exporter"
	"github.com/autopeer-io/polestar-exporter/pkg/log"
	"github.com/autopeer-io/polestar-exporter/pkg/options"
)

// Environment variable prefixes, in order of precedence.
const (
	EnvPrefix       = "EXPORTER"
	LegacyEnvPrefix = "POLESTAR_EXPORTER"
)

type ExporterOptions struct {
	HttpOptions     *options.HttpOptions     `json:"http" mapstructure:"http"`
	PolestarOptions *options.PolestarOptions `json:"polestar" mapstructure:"polestar"`
	RefreshOptions  *options.RefreshOptions  `json:"refresh" mapstructure:"refresh"`
	MqttOptions     *options.MqttOptions     `json:"mqtt" mapstructure:"mqtt"`
	Log             *log.Options             `json:"log" mapstructure:"log"`
}

func NewExporterOptions() *ExporterOptions {
	return &ExporterOptions{
		HttpOptions:     options.NewHttpOptions(),
		PolestarOptions: options.NewPolestarOptions(),
		RefreshOptions:  options.NewRefreshOptions(),
		MqttOptions:     options.NewMqttOptions(),
		Log:             log.NewOptions(),
	}
}

func (o *ExporterOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.PolestarOptions.AddFlags(fss.FlagSet("polestar"))
	o.RefreshOptions.AddFlags(fss.FlagSet("refresh"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

// envBinding maps one environment setting onto the options. flags lists the
// command-line flags that take precedence over it.
type envBinding struct {
	key   string
	flags []string
	apply func(o *ExporterOptions, value string) error
}

var envBindings = []envBinding{
	{"bind_address", []string{"http.addr"}, func(o *ExporterOptions, v string) error {
		o.HttpOptions.SetHostPort(v, 0)
		return nil
	}},
	{"port", []string{"http.addr"}, func(o *ExporterOptions, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid port %q", v)
		}
		o.HttpOptions.SetHostPort("", port)
		return nil
	}},
	{"interval", []string{"refresh.interval"}, func(o *ExporterOptions, v string) error {
		d, err := parseInterval(v)
		if err != nil {
			return err
		}
		o.RefreshOptions.Interval = d
		return nil
	}},
	{"username", []string{"polestar.username"}, func(o *ExporterOptions, v string) error {
		o.PolestarOptions.Username = v
		return nil
	}},
	{"password", []string{"polestar.password"}, func(o *ExporterOptions, v string) error {
		o.PolestarOptions.Password = v
		return nil
	}},
	{"vin", []string{"polestar.vin"}, func(o *ExporterOptions, v string) error {
		o.PolestarOptions.SetVINs(v)
		return nil
	}},
	{"log_level", []string{"log.level"}, func(o *ExporterOptions, v string) error {
		o.Log.Level = v
		return nil
	}},
	{"log_format", []string{"log.format"}, func(o *ExporterOptions, v string) error {
		o.Log.Format = v
		return nil
	}},
	{"mqtt_broker", []string{"mqtt.broker"}, func(o *ExporterOptions, v string) error {
		o.MqttOptions.Broker = v
		return nil
	}},
	{"mqtt_username", []string{"mqtt.username"}, func(o *ExporterOptions, v string) error {
		o.MqttOptions.Username = v
		return nil
	}},
	{"mqtt_password", []string{"mqtt.password"}, func(o *ExporterOptions, v string) error {
		o.MqttOptions.Password = v
		return nil
	}},
	{"mqtt_topic_root", []string{"mqtt.topic-root"}, func(o *ExporterOptions, v string) error {
		o.MqttOptions.TopicRoot = v
		return nil
	}},
}

// parseInterval accepts whole seconds ("60") or a duration ("90s").
func parseInterval(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: expected seconds or a duration", v)
	}
	return d, nil
}

// LoadEnv applies EXPORTER_* environment variables, falling back to the
// POLESTAR_EXPORTER_* names. Flags explicitly set on fs win over both.
func (o *ExporterOptions) LoadEnv(v *viper.Viper, fs *pflag.FlagSet) error {
	errs := []error{}
	for _, b := range envBindings {
		name := strings.ToUpper(b.key)
		if err := v.BindEnv(b.key, EnvPrefix+"_"+name, LegacyEnvPrefix+"_"+name); err != nil {
			return err
		}
		if changed(fs, b.flags) || !v.IsSet(b.key) {
			continue
		}
		if err := b.apply(o, strings.TrimSpace(v.GetString(b.key))); err != nil {
			errs = append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, name, err))
		}
	}
	return utilerrors.NewAggregate(errs)
}

func changed(fs *pflag.FlagSet, names []string) bool {
	if fs == nil {
		return false
	}
	for _, n := range names {
		if fs.Changed(n) {
			return true
		}
	}
	return false
}

func (o *ExporterOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.PolestarOptions.Validate()...)
	errs = append(errs, o.RefreshOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *ExporterOptions) Config() (*exporter.DaemonConfig, error) {
	return &exporter.DaemonConfig{
		HttpOptions:     o.HttpOptions,
		PolestarOptions: o.PolestarOptions,
		RefreshOptions:  o.RefreshOptions,
		MqttOptions:     o.MqttOptions,
	}, nil
}
