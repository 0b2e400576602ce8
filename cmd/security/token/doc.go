// Package token verifies the signed credentials that authorize Podium
// operations.
//
// A credential is two base64url segments joined by a dot: the first decodes
// to a JSON payload {name, date}, the second is an RSA PKCS #1 v1.5 signature
// (SHA-256) over the decoded payload bytes. Credentials are minted offline by
// key-generation tooling; at runtime this package only verifies.
//
// Design goals:
//   - One failure mode for callers: any structural or cryptographic problem
//     is ErrInvalidToken. Callers treat it as "reject the request" and never
//     branch on the cause.
//   - A missing verification key is ErrKeyMissing, a deployment problem, not
//     a request problem. It must not be retried.
package token
