// Package chunky is a deduplicating, encrypted backup store.
//
// A backup is a _snapshot_:
// a list of named blobs
// (usually files),
// each described by the ordered list of chunks needed to reassemble it.
// Blob content is cut into variable-length chunks with FastCDC
// (in the fastcdc subpackage),
// each chunk is encrypted with AES-GCM
// (in the aesgcm subpackage),
// and the ciphertext is stored under its own hash,
// the chunk’s ID.
// Identical ciphertext means an identical ID,
// so every chunk is stored once,
// no matter how many blobs or snapshots share it.
//
// Because the ID is a hash of exactly the bytes on disk,
// anyone can check a repository for bit rot without knowing the password,
// and nobody without the password can probe for plaintext.
//
// Snapshots themselves are serialized,
// chunked,
// and encrypted the same way.
// The chunk IDs of a serialized snapshot,
// together with the salt and iteration count needed to re-derive the key,
// form a snapshot reference.
// References are kept in an append-only log of integer positions,
// the second key space of a Store.
//
// The snapshotstore subpackage ties these together
// and is where backups are appended, checked, restored,
// garbage-collected, and replicated.
// Repository implementations live under store/.
package chunky
