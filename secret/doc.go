// Package secret resolves sensitive configuration values.
//
// Every string that enters the portal's configuration passes through two
// stages: strict environment expansion (ExpandEnvStrict), then secretref
// resolution against pluggable providers (Resolver). References use the
// prefix "secretref:":
//
//   - Full value:  secretref:env:JWT_SIGNING_KEY
//   - Inline use:  Bearer secretref:env:ADMIN_API_KEY
//
// where the segment after the prefix names the provider.
package secret
