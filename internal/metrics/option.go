package metrics

// Provider selects the metrics backend.
type Provider string

const (
	PrometheusProvider Provider = "PROMETHEUS_PROVIDER"
	EmptyProvider      Provider = "EMPTY_PROVIDER"
)

// ProviderCfg configures the selected backend.
type ProviderCfg struct {
	Provider Provider
}

type options struct {
	serviceName string
	provider    ProviderCfg
	port        string
}

// Option mutates metric provider options.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		serviceName: "venus",
		provider:    ProviderCfg{Provider: EmptyProvider},
		port:        "9090",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithServiceName sets the service name resource attribute.
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithProviderConfig selects the backend.
func WithProviderConfig(cfg ProviderCfg) Option {
	return func(o *options) {
		o.provider = cfg
	}
}

// WithPort sets the scrape endpoint port.
func WithPort(port string) Option {
	return func(o *options) {
		if port != "" {
			o.port = port
		}
	}
}
