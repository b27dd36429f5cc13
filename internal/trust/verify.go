package trust

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blang/semver"
	"github.com/jedisct1/go-minisign"
	"github.com/spf13/afero"

	"github.com/oshokin/os-updater/internal/domain/system"
)

const trustedCommentPrefix = "trusted comment: "

var (
	// ErrReadArtifact is returned when the artifact itself cannot be read.
	ErrReadArtifact = errors.New("could not read artifact")
	// ErrDecodeSignature is returned when the signature container is missing or malformed.
	ErrDecodeSignature = errors.New("unable to decode signature")
	// ErrInvalidSignature is returned when the artifact does not match its signature.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidTrustedComment is returned when the trusted comment is absent or malformed.
	ErrInvalidTrustedComment = errors.New("invalid trusted comment")
	// ErrInvalidVersion is returned when the trusted comment is not a semantic version.
	ErrInvalidVersion = errors.New("invalid version in trusted comment")
	// ErrVersionMismatch is returned when the signed version is not the planned one.
	ErrVersionMismatch = errors.New("version from signature trusted comment does not match planned version")
)

// Verifier checks staged files against their detached signatures.
type Verifier struct {
	fs        afero.Fs
	publicKey minisign.PublicKey
}

// NewVerifier creates a verifier reading files from fs.
func NewVerifier(fs afero.Fs, publicKey minisign.PublicKey) *Verifier {
	return &Verifier{
		fs:        fs,
		publicKey: publicKey,
	}
}

// VerifyFiles validates the artifact at artifactPath with the signature at
// signaturePath and checks it was signed for the expected version.
func (v *Verifier) VerifyFiles(artifactPath, signaturePath string, expected semver.Version) error {
	encodedSignature, err := afero.ReadFile(v.fs, signaturePath)
	if err != nil {
		return fmt.Errorf("%w '%s': %w", ErrDecodeSignature, signaturePath, err)
	}

	data, err := afero.ReadFile(v.fs, artifactPath)
	if err != nil {
		return fmt.Errorf("%w '%s': %w", ErrReadArtifact, artifactPath, err)
	}

	if err = Verify(data, encodedSignature, v.publicKey, expected); err != nil {
		return fmt.Errorf("verify '%s': %w", artifactPath, err)
	}

	return nil
}

// Verify validates data against a detached minisign signature.
// There is no partial acceptance: any byte of data that differs from what was
// signed makes the whole check fail with ErrInvalidSignature.
func Verify(data, encodedSignature []byte, publicKey minisign.PublicKey, expected semver.Version) error {
	signature, err := minisign.DecodeSignature(string(encodedSignature))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeSignature, err)
	}

	// The global signature covers the comment without its prefix,
	// so a comment line missing the prefix cannot be authenticated.
	if !strings.HasPrefix(signature.TrustedComment, trustedCommentPrefix) {
		return fmt.Errorf("%w: missing %q prefix", ErrInvalidTrustedComment, strings.TrimSpace(trustedCommentPrefix))
	}

	valid, err := publicKey.Verify(data, signature)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	if !valid {
		return ErrInvalidSignature
	}

	comment := strings.TrimSpace(strings.TrimPrefix(signature.TrustedComment, trustedCommentPrefix))
	if comment == "" {
		return fmt.Errorf("%w: empty comment", ErrInvalidTrustedComment)
	}

	signed, err := system.ParseVersion(comment)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidVersion, err)
	}

	if !signed.Equals(expected) {
		return fmt.Errorf("%w: expecting '%s', got '%s'", ErrVersionMismatch, expected, signed)
	}

	return nil
}
