// Package trust validates downloaded artifacts against detached minisign
// signatures.
//
// A valid artifact must carry a signature made with the configured public key,
// and the signer-authenticated trusted comment of that signature must be the
// exact version the updater planned to install. Each failure has its own
// sentinel error so that a tampered download (ErrInvalidSignature) can be told
// apart from a correctly signed but wrong artifact (ErrVersionMismatch).
package trust
