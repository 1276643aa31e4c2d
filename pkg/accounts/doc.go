// Package accounts keeps local user accounts and links them to identity
// provider subjects.
//
// A Directory stores accounts; NewMemory serves tests and single-process
// deployments, NewPostgres the rest. Service implements the registration
// rules on top of any Directory: an existing account with the same email or
// phone gets the provider subject linked instead of a new account being
// created, and clashing nicknames get a numeric suffix.
package accounts
