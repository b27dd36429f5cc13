package system

import (
	"crypto/x509"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/blang/semver"
	"github.com/jedisct1/go-minisign"
)

const (
	signatureExtension = ".sig"
	bootEntryExtension = ".efi"
	journalSuffix      = "-install.yaml"
)

// System is the aggregate describing the running OS for one update run.
type System struct {
	// OSName prefixes every cache file, URL and boot entry.
	OSName string
	// Version is the running version, build metadata stripped.
	Version semver.Version
	// Core is the root filesystem image package.
	Core Package
	// Efiboot is the boot binary package.
	Efiboot Package
	// PublicKey verifies every downloaded artifact.
	PublicKey minisign.PublicKey
	// CacheDir stages downloaded artifacts and signatures.
	CacheDir string
}

// CachePath is where the artifact of pkg is staged.
func (s *System) CachePath(pkg Package) string {
	return filepath.Join(s.CacheDir, s.OSName+"-"+pkg.Name)
}

// CacheSignaturePath is where the detached signature of pkg is staged.
func (s *System) CacheSignaturePath(pkg Package) string {
	return s.CachePath(pkg) + signatureExtension
}

// JournalPath is where the install journal is kept while a volume is being written.
func (s *System) JournalPath() string {
	return filepath.Join(s.CacheDir, s.OSName+journalSuffix)
}

// ArtifactURL returns the download URL of pkg for version v under baseURL.
func (s *System) ArtifactURL(pkg Package, baseURL string, v semver.Version) string {
	return strings.TrimRight(baseURL, "/") + "/" + v.String() + "/" + s.OSName + "-" + pkg.Name
}

// SignatureURL returns the download URL of the detached signature of pkg.
func (s *System) SignatureURL(pkg Package, baseURL string, v semver.Version) string {
	return s.ArtifactURL(pkg, baseURL, v) + signatureExtension
}

// BootEntryName is the file name of the boot entry for version v.
func (s *System) BootEntryName(v semver.Version) string {
	return BootEntryFileName(s.OSName, v)
}

// BootEntryFileName is the file name of the boot entry of osName for version v.
func BootEntryFileName(osName string, v semver.Version) string {
	return osName + "-" + v.String() + bootEntryExtension
}

// Remote describes where update checks and payloads come from.
type Remote struct {
	// UpdateURL serves the version descriptors.
	UpdateURL string
	// DistURL serves the artifacts and their signatures.
	DistURL string
	// RootCAs is the only trust anchor used for TLS.
	RootCAs *x509.CertPool
	// Headers are sent with every request (machine identity, running version).
	Headers http.Header
}

// VersionURL returns the URL of the version descriptor for osName.
func (r *Remote) VersionURL(osName string) string {
	return strings.TrimRight(r.UpdateURL, "/") + "/" + osName + "/version"
}
