package mpesa

import "os"

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"
)

// Config carries the Daraja API credentials and endpoints.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Environment    string // "sandbox" or "production"
	// BaseURL overrides the environment-derived endpoint; used by tests.
	BaseURL string
}

// ConfigFromEnv reads the MPESA_* environment variables.
func ConfigFromEnv() Config {
	cfg := Config{
		ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
		ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
		ShortCode:      os.Getenv("MPESA_BUSINESS_SHORT_CODE"),
		Passkey:        os.Getenv("MPESA_PASSKEY"),
		CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
		Environment:    os.Getenv("MPESA_ENVIRONMENT"),
	}
	if cfg.Environment == "" {
		cfg.Environment = "sandbox"
	}
	if cfg.ShortCode == "" {
		cfg.ShortCode = "174379" // Daraja sandbox default
	}
	return cfg
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Environment == "production" {
		return productionBaseURL
	}
	return sandboxBaseURL
}
