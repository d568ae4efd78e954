// Package mongo keeps users and accounts in MongoDB.
//
// Writes are optimistic: every document carries a revision and an update only lands when the
// revision it read is still current. A lost race is retried a bounded number of times before
// the store reports a conflict.
package mongo
