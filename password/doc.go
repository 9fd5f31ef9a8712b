// Package password hashes and verifies the static admin password with argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification always uses the parameters stored in the hash, so raising the
// cost only affects hashes generated afterwards; [Hasher.NeedsRehash] reports
// stale ones.
//
// This package never stores passwords and never logs plaintext or hashes.
package password
