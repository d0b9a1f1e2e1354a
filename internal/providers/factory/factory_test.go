package factory_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/lead-intake-service/internal/config"
	emailprovider "github.com/example/lead-intake-service/internal/providers/email"
	"github.com/example/lead-intake-service/internal/providers/factory"
)

func TestEmailBackends(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ProviderConfig
		want    string
		wantErr bool
	}{
		{name: "default mock", cfg: config.ProviderConfig{}, want: "mock"},
		{
			name: "smtp",
			cfg: config.ProviderConfig{
				EmailProvider: " SMTP ",
				SMTP:          config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "a@example.com"},
			},
			want: "smtp",
		},
		{
			name: "resend",
			cfg: config.ProviderConfig{
				EmailProvider: "resend",
				Resend:        config.ResendConfig{APIKey: "re_x", From: "a@example.com"},
			},
			want: "resend",
		},
		{name: "smtp missing host", cfg: config.ProviderConfig{EmailProvider: "smtp"}, wantErr: true},
		{name: "unknown", cfg: config.ProviderConfig{EmailProvider: "pigeon"}, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			provider, err := factory.Email(tc.cfg, time.Second, zerolog.Nop())
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			named, ok := provider.(emailprovider.Named)
			if !ok || named.Name() != tc.want {
				t.Fatalf("expected %s provider, got %T", tc.want, provider)
			}
		})
	}
}
