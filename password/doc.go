// Package password hashes passwords with argon2id and checks new passwords against a
// strength policy.
//
// # Output format
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the caller can
// rehash on the next successful login.
//
// The package never stores passwords and never logs them.
package password
