// Package ssotoken mints and verifies the two signed tokens of the portal
// SSO handshake:
//
//   - the SSO token, minted by the portal for one app and valid for minutes;
//   - the app session token, minted by that app after exchanging the SSO token
//     and valid for days.
//
// Both are HS256 JWTs over a shared secret. Verification pins the algorithm,
// requires iat and exp, allows a small clock-skew leeway, requires the
// app_slug claim to name the verifying app, and requires token_use to match
// the kind being verified. An SSO token whose exp-iat exceeds the configured
// SSO TTL is rejected even when correctly signed.
//
// There is no revocation list. A token stays valid until exp; locking an
// account stops new SSO tokens at the portal but does not end app sessions
// already established downstream.
package ssotoken
