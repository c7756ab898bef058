package enums

// PurchaseType is carried in a provider transaction's custom_data.
type PurchaseType string

const (
	PurchaseTypeSubscription PurchaseType = "subscription"
	PurchaseTypePayg         PurchaseType = "payg"
	PurchaseTypeOverage      PurchaseType = "overage"
)

// BilledVia records how a generation was paid for.
type BilledVia string

const (
	BilledViaCredits BilledVia = "credits"
	BilledViaOverage BilledVia = "overage"
)
