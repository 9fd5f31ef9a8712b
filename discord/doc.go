// Package discord implements the Discord side of portal login: the OAuth2
// authorization redirect with a signed state, the code exchange, and the
// guild member lookup that yields the member's role ids.
//
// A state is bound to the browser that requested it through a nonce cookie
// and is consumed on first use through a StateStore.
//
// It resolves identities only. Mapping Discord roles to portal permissions
// belongs to the permission package.
package discord
