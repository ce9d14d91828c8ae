package mpgs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// APIVersion is the REST API version every path is built against.
const APIVersion = "version/52"

// Region gateway hosts.
const (
	HostEU  = "eu-gateway.mastercard.com"
	HostAP  = "ap-gateway.mastercard.com"
	HostNA  = "na-gateway.mastercard.com"
	HostUAT = "secure.uat.tnspayments.com"
)

// Config configures the gateway client.
type Config struct {
	// Region is eu, ap, na, uat or custom.
	Region     string `envconfig:"MPGS_REGION" default:"eu"`
	CustomHost string `envconfig:"MPGS_CUSTOM_HOST"`

	Sandbox           bool   `envconfig:"MPGS_SANDBOX" default:"true"`
	MerchantID        string `envconfig:"MPGS_MERCHANT_ID"`
	Password          string `envconfig:"MPGS_PASSWORD"`
	SandboxMerchantID string `envconfig:"MPGS_SANDBOX_MERCHANT_ID"`
	SandboxPassword   string `envconfig:"MPGS_SANDBOX_PASSWORD"`

	Timeout time.Duration `envconfig:"MPGS_TIMEOUT" default:"30s"`
}

// Host resolves the gateway host for the configured region.
func (c Config) Host() (string, error) {
	switch strings.ToLower(c.Region) {
	case "", "eu":
		return HostEU, nil
	case "ap", "as":
		return HostAP, nil
	case "na":
		return HostNA, nil
	case "uat":
		return HostUAT, nil
	case "custom":
		host := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(c.CustomHost, "https://"), "http://"), "/")
		if host == "" {
			return "", errors.New("custom region requires MPGS_CUSTOM_HOST")
		}
		return host, nil
	}
	return "", fmt.Errorf("unknown gateway region %q", c.Region)
}

// Credentials returns the merchant id and API password in effect. The sandbox
// switch selects the sandbox pair.
func (c Config) Credentials() (merchantID, password string) {
	if c.Sandbox {
		return c.SandboxMerchantID, c.SandboxPassword
	}
	return c.MerchantID, c.Password
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Host(); err != nil {
		errs = append(errs, err)
	}
	id, pw := c.Credentials()
	if id == "" {
		errs = append(errs, errors.New("merchant id is required"))
	}
	if pw == "" {
		errs = append(errs, errors.New("api password is required"))
	}
	return errors.Join(errs...)
}

// CheckoutJSURL is the hosted checkout script for host.
func CheckoutJSURL(host string) string {
	return fmt.Sprintf("https://%s/checkout/%s/checkout.js", host, APIVersion)
}

// SessionJSURL is the hosted session script for host and merchant.
func SessionJSURL(host, merchantID string) string {
	return fmt.Sprintf("https://%s/form/%s/merchant/%s/session.js", host, APIVersion, merchantID)
}
