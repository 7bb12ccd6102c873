// Package tokens estimates token usage before a call is made.
//
// The Governor reserves the estimate against the daily budget when a call
// carries a prompt but no explicit EstimatedTokens. Estimates are
// character-based: they cost nothing to compute and are reconciled with
// actual usage on commit.
package tokens
