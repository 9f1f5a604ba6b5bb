package config

import "testing"

func validBase() Config {
	return Config{
		App:    AppConfig{Env: "local", Port: 8080},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "console", SSLMode: ""},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Auth:   AuthConfig{JWTSecret: "secret", AdminUsername: "admin", AdminPassword: "pw"},
		Gemini: GeminiConfig{APIKey: "key"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "console"
	c.Auth.JWTAudience = "console"
	c.Vapi.WebhookToken = "tok"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_ProductionRequiresWebhookToken(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer = "console"
	c.Auth.JWTAudience = "console"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without VAPI_WEBHOOK_TOKEN")
	}
}

func TestValidate_ViewerCredentialsMustPair(t *testing.T) {
	c := validBase()
	c.Auth.ViewerUsername = "viewer"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for viewer username without password")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Gemini.BaseURL == "" || c.Gemini.ChatModel == "" || c.Gemini.EmbedModel == "" {
		t.Fatalf("expected gemini defaults to be applied: %+v", c.Gemini)
	}
}
