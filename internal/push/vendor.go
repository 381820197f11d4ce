package push

import "strings"

// Vendor identifies which push service operates a subscription endpoint.
type Vendor int

const (
	VendorStandard Vendor = iota
	VendorWindows
	VendorApple
	VendorFirebase
)

func (v Vendor) String() string {
	switch v {
	case VendorWindows:
		return "windows"
	case VendorApple:
		return "apple"
	case VendorFirebase:
		return "firebase"
	default:
		return "standard"
	}
}

// Classify maps an endpoint URL to its push vendor. Pure and deterministic:
// the same endpoint always classifies the same way.
func Classify(endpoint string) Vendor {
	e := strings.ToLower(endpoint)
	switch {
	case strings.Contains(e, "windows.com") || strings.Contains(e, "microsoft"):
		return VendorWindows
	case strings.Contains(e, "apple") || strings.Contains(e, "icloud"):
		return VendorApple
	case strings.Contains(e, "fcm") || strings.Contains(e, "firebase"):
		return VendorFirebase
	default:
		return VendorStandard
	}
}
