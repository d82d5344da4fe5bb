package config

// Config represents the control plane's configuration.
type Config struct {
	ControlPlane struct {
		ListenAddress       string   `yaml:"listen_address"`
		ListenPort          int      `yaml:"listen_port"`
		SharedSecret        string   `yaml:"shared_secret"`
		AdvertisedHostports []string `yaml:"advertised_hostports"`
		AuthTimeoutMS       int      `yaml:"auth_timeout_ms"`
		InboundBufferBytes  int      `yaml:"inbound_buffer_bytes"`
	} `yaml:"control_plane"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`

	CDR struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"cdr"`
}

// ConfigManager defines the interface for configuration management.
type ConfigManager interface {
	Load(filename string) (*Config, error)
	Validate(config *Config) error
}
