package event

// Standard event names from the conversions API's fixed taxonomy.
const (
	StdPageView         = "PageView"
	StdViewContent      = "ViewContent"
	StdViewCart         = "ViewCart"
	StdSearch           = "Search"
	StdAddToCart        = "AddToCart"
	StdInitiateCheckout = "InitiateCheckout"
	StdAddPaymentInfo   = "AddPaymentInfo"
	StdPurchase         = "Purchase"
)

// taxonomy maps platform-native event names to the standard taxonomy.
var taxonomy = map[string]string{
	"page_view":              StdPageView,
	"page_viewed":            StdPageView,
	"product_viewed":         StdViewContent,
	"collection_viewed":      StdViewContent,
	"search_submitted":       StdSearch,
	"product_added_to_cart":  StdAddToCart,
	"cart_viewed":            StdViewCart,
	"checkout_started":       StdInitiateCheckout,
	"payment_info_submitted": StdAddPaymentInfo,
	"checkout_completed":     StdPurchase,
}

// StandardName translates a platform-native event name into the standard
// taxonomy. Names outside the table pass through unchanged so new platform
// events are forwarded rather than dropped.
func StandardName(platformName string) string {
	if std, ok := taxonomy[platformName]; ok {
		return std
	}
	return platformName
}
