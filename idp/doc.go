// Package idp exchanges refresh tokens at an OAuth2 token endpoint.
//
// The identity provider is a black box: this package only issues the refresh-token grant
// (client credentials in the form body) and classifies the outcome as rejected,
// unavailable or malformed. Rotation fallback and expiry arithmetic belong to the refresh
// coordinator.
package idp
