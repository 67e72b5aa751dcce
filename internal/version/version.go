// ABOUTME: Build and product identification constants
// ABOUTME: Surfaced by the -version flag and the mDNS TXT record
package version

const (
	// Version is the current release version.
	Version = "0.3.0"

	// Product is the product name reported to observers.
	Product = "Castbridge"

	// Manufacturer identifies who ships this build.
	Manufacturer = "harperreed"
)
