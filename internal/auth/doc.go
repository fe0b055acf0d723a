// Package auth provides identity and token management for the parcel
// box coordination core.
//
// It covers three concerns:
//   - Google sign-in: ID token verification and implicit account
//     creation on first login
//   - API sessions: HMAC-signed JWTs validated per request without a
//     database hit
//   - Bus capability tokens: short-lived JWTs enumerating the exact
//     topic patterns a principal (user, box agent, or the core itself)
//     may read and write; enforced by the broker's auth plugin
package auth
