package enums

import "fmt"

// Channel distinguishes direct B2C tenants from Shopify merchants.
type Channel string

const (
	ChannelB2C     Channel = "b2c"
	ChannelShopify Channel = "shopify"
)

func (c Channel) IsValid() bool {
	return c == ChannelB2C || c == ChannelShopify
}

func ParseChannel(value string) (Channel, error) {
	c := Channel(value)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid channel %q", value)
	}
	return c, nil
}

// CreditMode selects whose balance pays for a generation.
type CreditMode string

const (
	// CreditModeAbsorb bills the tenant's own balance.
	CreditModeAbsorb CreditMode = "absorb"
	// CreditModePassthrough bills the end shopper's balance.
	CreditModePassthrough CreditMode = "passthrough"
)

func (m CreditMode) IsValid() bool {
	return m == CreditModeAbsorb || m == CreditModePassthrough
}

func ParseCreditMode(value string) (CreditMode, error) {
	m := CreditMode(value)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid credit mode %q", value)
	}
	return m, nil
}
