package config

import (
	"errors"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML overlay. Pointer fields distinguish "absent" from
// "set to empty" so only keys present in the file override the environment.
type fileConfig struct {
	BrandName       *string `yaml:"brand_name"`
	InternalSubject *string `yaml:"internal_subject"`
	ClientSubject   *string `yaml:"client_subject"`
	ResponseWindow  *string `yaml:"response_window"`
	TestSubject     *string `yaml:"test_subject"`

	MailFrom            *string `yaml:"mail_from"`
	AdminEmail          *string `yaml:"admin_email"`
	InternalNotifyEmail *string `yaml:"internal_notify_email"`
}

func mergeFile(path string, base *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return errors.New("config file is empty")
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	// A new brand name re-derives the default copy before explicit overrides.
	if fc.BrandName != nil {
		base.Branding = defaultBranding(strings.TrimSpace(*fc.BrandName))
	}
	setIfPresent(&base.Branding.InternalSubject, fc.InternalSubject)
	setIfPresent(&base.Branding.ClientSubject, fc.ClientSubject)
	setIfPresent(&base.Branding.ResponseWindow, fc.ResponseWindow)
	setIfPresent(&base.Branding.TestSubject, fc.TestSubject)

	if fc.MailFrom != nil {
		base.Mail.From = strings.TrimSpace(*fc.MailFrom)
		base.Providers.SMTP.From = base.Mail.From
		base.Providers.Resend.From = base.Mail.From
	}
	setIfPresent(&base.Mail.AdminEmail, fc.AdminEmail)
	setIfPresent(&base.Mail.InternalNotifyEmail, fc.InternalNotifyEmail)
	return nil
}

func setIfPresent(dst *string, v *string) {
	if v == nil {
		return
	}
	if s := strings.TrimSpace(*v); s != "" {
		*dst = s
	}
}
