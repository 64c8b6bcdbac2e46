// Package feed maps subscription kinds and ad-hoc queries onto
// collaborator capabilities.
//
// Fetchers share one contract: take the client's opaque filter payload,
// call the matching capability, return its data. The subscription
// engine stays agnostic to which fetchers are slow.
package feed
