// Package postgres keeps users and accounts in PostgreSQL through sqlx over the pgx stdlib
// driver.
//
// Store satisfies both goShield.UserStore and membership.Store. Read-modify-write operations
// run inside a transaction that locks the row with SELECT ... FOR UPDATE, so concurrent
// membership changes to one account serialize in the database.
package postgres
