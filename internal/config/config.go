package config

import (
	"encoding/json"
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database  *dbConfig
	Service   *svcConfig
	Providers *ProvidersConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"reelqueue"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string        `envconfig:"REELQUEUE_ADDRESS" default:":3443"`
	MetricsAddress  string        `envconfig:"REELQUEUE_METRICS_ADDRESS" default:":8080"`
	LogLevel        string        `envconfig:"REELQUEUE_LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"REELQUEUE_LOG_FORMAT" default:"console"`
	CorsOrigins     []string      `envconfig:"REELQUEUE_CORS_ORIGINS" default:"*"`
	ProviderTimeout time.Duration `envconfig:"REELQUEUE_PROVIDER_TIMEOUT" default:"60s"`
}

type ProvidersConfig struct {
	ForceStub bool `envconfig:"REELQUEUE_FORCE_STUB" default:"false"`
	Sora      SoraConfig
	Veo       VeoConfig
}

type SoraConfig struct {
	APIKey  string `envconfig:"SORA_API_KEY" default:""`
	BaseURL string `envconfig:"SORA_BASE_URL" default:"https://api.openai.com/v1"`
	Model   string `envconfig:"SORA_MODEL" default:"sora-2"`
}

type VeoConfig struct {
	ProjectID          string `envconfig:"VEO_PROJECT_ID" default:""`
	Location           string `envconfig:"VEO_LOCATION" default:"us-central1"`
	Model              string `envconfig:"VEO_MODEL" default:"veo-3.1-generate-preview"`
	ServiceAccountJSON string `envconfig:"VEO_SERVICE_ACCOUNT_JSON" default:""`
	ServiceAccountFile string `envconfig:"VEO_SERVICE_ACCOUNT_FILE" default:""`
	// Endpoint overrides the regional https://{location}-aiplatform.googleapis.com host.
	Endpoint   string `envconfig:"VEO_ENDPOINT" default:""`
	TokenURL   string `envconfig:"VEO_TOKEN_URL" default:"https://oauth2.googleapis.com/token"`
	StorageURL string `envconfig:"VEO_STORAGE_URL" default:"https://storage.googleapis.com"`
}

// HasCredentials reports whether a real Sora adapter can be built.
func (s SoraConfig) HasCredentials() bool {
	return s.APIKey != ""
}

// HasCredentials reports whether a real Veo adapter can be built.
func (v VeoConfig) HasCredentials() bool {
	return v.ProjectID != "" && (v.ServiceAccountJSON != "" || v.ServiceAccountFile != "")
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a fresh, uncached configuration. Tests use it to tweak
// settings without touching the process wide instance.
func NewDefault() *Config {
	c := new(Config)
	if err := envconfig.Process("", c); err != nil {
		panic(err)
	}
	return c
}

func (c *Config) String() string {
	redacted := *c
	if c.Providers != nil {
		p := *c.Providers
		if p.Sora.APIKey != "" {
			p.Sora.APIKey = "********"
		}
		if p.Veo.ServiceAccountJSON != "" {
			p.Veo.ServiceAccountJSON = "********"
		}
		redacted.Providers = &p
	}
	if c.Database != nil {
		db := *c.Database
		db.Password = "********"
		redacted.Database = &db
	}
	val, _ := json.Marshal(redacted)
	return string(val)
}
