// Package version holds the release version, overridable at link time with
// -ldflags "-X github.com/shpitdev/product-image-sampler/internal/version.Current=1.2.3".
package version

// Current is the semantic version without a "v" prefix.
var Current = "0.1.0"
