// Package auth provides identities, tokens and authorization for the
// remote API.
//
// Users carry one of three roles (user, admin, owner). Admins and owners
// hold their permissions globally; plain users may only act on their own
// account, their own memberships and the groups they belong to. The
// Engine evaluates these rules per (permission, parameter) pair.
//
// Sessions authenticate with a signed HS256 token whose jti names a row in
// auth_tokens, so tokens can be revoked before they expire. Passwords are
// hashed with Argon2id.
//
// Repositories are built on a database.Querier and are cheap to create,
// so handlers construct them per call inside the request's unit of work.
package auth
