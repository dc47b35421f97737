package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	// Server
	Port        string `yaml:"port" env:"PORT" env-default:"8080"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	BaseURL     string `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8080"`
	FrontendURL string `yaml:"frontend_url" env:"FRONTEND_URL" env-default:"http://localhost:3000"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// Storage
	StoreBackend string `yaml:"store_backend" env:"STORE_BACKEND" env-default:"postgres"`
	DatabaseURL  string `yaml:"database_url" env:"DATABASE_URL"`

	Supabase   Supabase   `yaml:"supabase"`
	Frameio    Frameio    `yaml:"frameio"`
	Trello     Trello     `yaml:"trello"`
	Stripe     Stripe     `yaml:"stripe"`
	Email      Email      `yaml:"email"`
	Redis      Redis      `yaml:"redis"`
	Supervisor Supervisor `yaml:"supervisor"`

	AdminUserIDs []string `yaml:"admin_user_ids" env:"ADMIN_USER_IDS" env-separator:","`
	AdminEmail   string   `yaml:"admin_email" env:"ADMIN_EMAIL"`

	AccessWindow time.Duration `yaml:"access_window" env:"ACCESS_WINDOW" env-default:"744h"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT" env-default:"10s"`
	CacheBackend string        `yaml:"cache_backend" env:"CACHE_BACKEND" env-default:"memory"`
}

type Supabase struct {
	URL            string `yaml:"url" env:"SUPABASE_URL"`
	ServiceRoleKey string `yaml:"service_role_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	JWTSecret      string `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
}

type Frameio struct {
	ClientID      string   `yaml:"client_id" env:"FRAMEIO_CLIENT_ID"`
	ClientSecret  string   `yaml:"client_secret" env:"FRAMEIO_CLIENT_SECRET"`
	RedirectURL   string   `yaml:"redirect_url" env:"FRAMEIO_REDIRECT_URL"`
	AuthURL       string   `yaml:"auth_url" env:"FRAMEIO_AUTH_URL" env-default:"https://ims-na1.adobelogin.com/ims/authorize/v2"`
	TokenURL      string   `yaml:"token_url" env:"FRAMEIO_TOKEN_URL" env-default:"https://ims-na1.adobelogin.com/ims/token/v3"`
	Scopes        []string `yaml:"scopes" env:"FRAMEIO_SCOPES" env-separator:"," env-default:"openid,email,profile,offline_access,additional_info.roles"`
	APIBaseURL    string   `yaml:"api_base_url" env:"FRAMEIO_API_BASE_URL" env-default:"https://api.frame.io/v4"`
	AccountID     string   `yaml:"account_id" env:"FRAMEIO_ACCOUNT_ID"`
	ProjectID     string   `yaml:"project_id" env:"FRAMEIO_PROJECT_ID"`
	RootFolderID  string   `yaml:"root_folder_id" env:"FRAMEIO_ROOT_FOLDER_ID"`
	WebhookSecret string   `yaml:"webhook_secret" env:"FRAMEIO_WEBHOOK_SECRET"`
	ShareComments bool     `yaml:"share_comments" env:"FRAMEIO_SHARE_COMMENTS" env-default:"true"`
}

type Trello struct {
	APIKey         string `yaml:"api_key" env:"TRELLO_API_KEY"`
	Token          string `yaml:"token" env:"TRELLO_TOKEN"`
	APIBaseURL     string `yaml:"api_base_url" env:"TRELLO_API_BASE_URL" env-default:"https://api.trello.com/1"`
	BoardID        string `yaml:"board_id" env:"TRELLO_BOARD_ID"`
	IntakeListID   string `yaml:"intake_list_id" env:"TRELLO_LIST_INTAKE"`
	RevisionListID string `yaml:"revision_list_id" env:"TRELLO_LIST_REVISIONS"`
	ReviewListID   string `yaml:"review_list_id" env:"TRELLO_LIST_REVIEW"`
	DoneListID     string `yaml:"done_list_id" env:"TRELLO_LIST_DONE"`
	WebhookSecret  string `yaml:"webhook_secret" env:"TRELLO_WEBHOOK_SECRET"`
	CallbackURL    string `yaml:"callback_url" env:"TRELLO_CALLBACK_URL"`
}

type Stripe struct {
	SecretKey          string `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	WebhookSecret      string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	PriceBasic         string `yaml:"price_basic" env:"STRIPE_PRICE_BASIC"`
	PriceStandard      string `yaml:"price_standard" env:"STRIPE_PRICE_STANDARD"`
	PricePremium       string `yaml:"price_premium" env:"STRIPE_PRICE_PREMIUM"`
	RevisionPriceCents int64  `yaml:"revision_price_cents" env:"REVISION_PRICE_CENTS" env-default:"500"`
	RevisionCurrency   string `yaml:"revision_currency" env:"REVISION_CURRENCY" env-default:"usd"`
}

type Email struct {
	ResendAPIKey string `yaml:"resend_api_key" env:"RESEND_API_KEY"`
	From         string `yaml:"from" env:"EMAIL_FROM" env-default:"Studio <studio@example.com>"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Supervisor struct {
	Interval     time.Duration `yaml:"interval" env:"SUPERVISOR_INTERVAL" env-default:"12h"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"SUPERVISOR_INITIAL_DELAY" env-default:"30s"`
}

// Load reads the optional YAML file at CONFIG_PATH, then the environment.
func Load() (*Config, error) {
	var cfg Config

	var err error
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", c.StoreBackend)
	}
	switch c.CacheBackend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory or redis, got %q", c.CacheBackend)
	}
	if c.Supabase.JWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}
	if c.Stripe.RevisionPriceCents <= 0 {
		return fmt.Errorf("REVISION_PRICE_CENTS must be positive")
	}
	if c.Supervisor.Interval <= 0 {
		return fmt.Errorf("SUPERVISOR_INTERVAL must be positive")
	}
	if c.Frameio.ClientID != "" && c.Frameio.RedirectURL == "" {
		return fmt.Errorf("FRAMEIO_REDIRECT_URL is required when FRAMEIO_CLIENT_ID is set")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsAdmin(userID string) bool {
	return slices.Contains(c.AdminUserIDs, userID)
}

// StripePrice returns the subscription price id configured for tier.
func (c *Config) StripePrice(tier string) string {
	switch tier {
	case "basic":
		return c.Stripe.PriceBasic
	case "standard":
		return c.Stripe.PriceStandard
	case "premium":
		return c.Stripe.PricePremium
	}
	return ""
}
