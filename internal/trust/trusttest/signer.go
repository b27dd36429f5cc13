// Package trusttest produces minisign keys and signatures for tests.
package trusttest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/jedisct1/go-minisign"
	"github.com/stretchr/testify/require"
)

// Signer holds an ed25519 key pair in minisign layout.
type Signer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	keyID   [8]byte
}

// NewSigner generates a fresh key pair.
func NewSigner(tb testing.TB) *Signer {
	tb.Helper()

	public, private, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(tb, err)

	s := &Signer{
		private: private,
		public:  public,
	}

	_, err = rand.Read(s.keyID[:])
	require.NoError(tb, err)

	return s
}

// PublicKeyFile returns the public key as written by `minisign -G`.
func (s *Signer) PublicKeyFile() []byte {
	raw := make([]byte, 0, 42)
	raw = append(raw, 'E', 'd')
	raw = append(raw, s.keyID[:]...)
	raw = append(raw, s.public...)

	return []byte("untrusted comment: minisign public key\n" + base64.StdEncoding.EncodeToString(raw) + "\n")
}

// PublicKey returns the decoded public key.
func (s *Signer) PublicKey(tb testing.TB) minisign.PublicKey {
	tb.Helper()

	raw := make([]byte, 0, 42)
	raw = append(raw, 'E', 'd')
	raw = append(raw, s.keyID[:]...)
	raw = append(raw, s.public...)

	key, err := minisign.NewPublicKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(tb, err)

	return key
}

// Sign returns a detached signature of data whose trusted comment is comment.
func (s *Signer) Sign(data []byte, comment string) []byte {
	return s.SignWithCommentLine(data, comment, "trusted comment: "+comment)
}

// SignWithCommentLine signs like Sign but writes commentLine verbatim as the
// trusted comment line, so tests can produce malformed containers.
func (s *Signer) SignWithCommentLine(data []byte, comment, commentLine string) []byte {
	signature := ed25519.Sign(s.private, data)

	raw := make([]byte, 0, 74)
	raw = append(raw, 'E', 'd')
	raw = append(raw, s.keyID[:]...)
	raw = append(raw, signature...)

	global := ed25519.Sign(s.private, append(append([]byte{}, signature...), comment...))

	return []byte("untrusted comment: signature from minisign secret key\n" +
		base64.StdEncoding.EncodeToString(raw) + "\n" +
		commentLine + "\n" +
		base64.StdEncoding.EncodeToString(global) + "\n")
}
