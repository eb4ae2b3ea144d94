// Package browserjar reads cookies out of local browser profiles
// (Chromium-family, Firefox, Safari) and exposes them as an http.CookieJar
// so existing sessions can be reused without a login flow.
//
// Browser cookie stores are copied to a private temporary location before
// they are opened, so a running browser is never blocked and its files are
// never touched. Encrypted values are decrypted with OS key material
// (keychain, Secret Service, DPAPI); reading them may trigger a keyring
// prompt. This is intended for local tooling and should not run in server
// contexts.
package browserjar
