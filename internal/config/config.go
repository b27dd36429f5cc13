package config

import (
	"bufio"
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/blang/semver"
	"github.com/jedisct1/go-minisign"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"github.com/subosito/gotenv"

	"github.com/oshokin/os-updater/internal/domain/system"
)

// Config is the content of config.toml.
type Config struct {
	// OSName prefixes cache files, URLs and boot entries.
	OSName string `toml:"os_name"`
	// Core describes the root filesystem package.
	Core CoreConfig `toml:"core"`
	// Efiboot describes the boot binary package.
	Efiboot EfibootConfig `toml:"efiboot"`
}

// CoreConfig is the [core] table of config.toml.
type CoreConfig struct {
	// Destination is the volume group holding core volumes.
	Destination string `toml:"destination"`
	// Size is the allocation of a new core volume, LVM notation.
	Size string `toml:"size"`
	// MappedDevice is the template of the device mounted at "/" for a core volume.
	MappedDevice string `toml:"mapped_device"`
}

// EfibootConfig is the [efiboot] table of config.toml.
type EfibootConfig struct {
	// Destination is the boot entries directory.
	Destination string `toml:"destination"`
}

// RemoteConfig is the content of remote.toml.
type RemoteConfig struct {
	// UpdateURL serves version descriptors.
	UpdateURL string `toml:"update_url"`
	// DistURL serves artifacts and signatures.
	DistURL string `toml:"dist_url"`
}

// Paths locates every input of Load.
type Paths struct {
	// ConfigDir holds config.toml and pubkey.
	ConfigDir string
	// RemoteDir holds remote.toml and rootca.pem.
	RemoteDir string
	// CacheDir stages downloads.
	CacheDir string
	// OSRelease is the os-release file.
	OSRelease string
	// MachineID is the machine-id file.
	MachineID string
}

const (
	// DefaultConfigDir is where the OS image ships config.toml and pubkey.
	DefaultConfigDir = "/usr/lib/updater"
	// DefaultRemoteDir is where the machine keeps remote.toml and rootca.pem.
	DefaultRemoteDir = "/etc/updater"
	// DefaultCacheDir stages downloaded payloads.
	DefaultCacheDir = "/var/lib/updater"
	// DefaultOSRelease is the os-release file of the running system.
	DefaultOSRelease = "/etc/os-release"
	// DefaultMachineID is the machine-id file of the running system.
	DefaultMachineID = "/etc/machine-id"

	// ConfigFilename is the system configuration file.
	ConfigFilename = "config.toml"
	// PublicKeyFilename is the minisign public key file.
	PublicKeyFilename = "pubkey"
	// RemoteFilename is the remote configuration file.
	RemoteFilename = "remote.toml"
	// RootCAFilename is the pinned root certificate file.
	RootCAFilename = "rootca.pem"

	machineIDHeaderSuffix = "-machineid"
	versionHeaderSuffix   = "-version"
	untrustedCommentLine  = "untrusted comment:"
)

var (
	// ErrConfig marks every configuration failure.
	ErrConfig = errors.New("invalid configuration")

	errOSNameRequired        = errors.New("os_name must be provided")
	errCoreDestination       = errors.New("core.destination must be provided")
	errEfibootDestination    = errors.New("efiboot.destination must be provided")
	errMappedDeviceTemplate  = errors.New("core.mapped_device must contain {name} or {version}")
	errURLRequired           = errors.New("url must be provided")
	errHTTPSRequired         = errors.New("url must use https")
	errNoCertificate         = errors.New("no certificate found")
	errNoPublicKey           = errors.New("no public key found")
	errInvalidMachineID      = errors.New("could not read a valid machine-id")
	errVersionIDMissing      = errors.New("VERSION_ID is not set")
	errInvalidMachineIDChars = errors.New("machine-id contains control characters")
)

// DefaultPaths returns the locations used on a deployed system.
func DefaultPaths() Paths {
	return Paths{
		ConfigDir: DefaultConfigDir,
		RemoteDir: DefaultRemoteDir,
		CacheDir:  DefaultCacheDir,
		OSRelease: DefaultOSRelease,
		MachineID: DefaultMachineID,
	}
}

// Load reads every configuration input and builds the run's System and Remote.
func Load(fs afero.Fs, paths Paths) (*system.System, *system.Remote, error) {
	paths = WithDefaults(paths)

	cfg, err := LoadConfig(fs, filepath.Join(paths.ConfigDir, ConfigFilename))
	if err != nil {
		return nil, nil, err
	}

	running, err := LoadRunningVersion(fs, paths.OSRelease)
	if err != nil {
		return nil, nil, err
	}

	publicKey, err := LoadPublicKey(fs, filepath.Join(paths.ConfigDir, PublicKeyFilename))
	if err != nil {
		return nil, nil, err
	}

	remoteCfg, err := LoadRemoteConfig(fs, filepath.Join(paths.RemoteDir, RemoteFilename))
	if err != nil {
		return nil, nil, err
	}

	roots, err := LoadRootCAs(fs, filepath.Join(paths.RemoteDir, RootCAFilename))
	if err != nil {
		return nil, nil, err
	}

	machineID, err := LoadMachineID(fs, paths.MachineID)
	if err != nil {
		return nil, nil, err
	}

	sys := &system.System{
		OSName:  cfg.OSName,
		Version: running,
		Core: system.NewPackage(system.KindCore, cfg.Core.Destination, cfg.Core.Size).
			WithMappedDevice(cfg.Core.MappedDevice),
		Efiboot:   system.NewPackage(system.KindEfiboot, cfg.Efiboot.Destination, ""),
		PublicKey: publicKey,
		CacheDir:  paths.CacheDir,
	}

	headers := make(http.Header)
	headers.Set(cfg.OSName+machineIDHeaderSuffix, machineID)
	headers.Set(cfg.OSName+versionHeaderSuffix, running.String())

	remote := &system.Remote{
		UpdateURL: remoteCfg.UpdateURL,
		DistURL:   remoteCfg.DistURL,
		RootCAs:   roots,
		Headers:   headers,
	}

	return sys, remote, nil
}

// LoadConfig reads and validates config.toml.
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	var cfg Config
	if err := decodeTOML(fs, path, &cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("%w: '%s': %w", ErrConfig, path, err)
	}

	return &cfg, nil
}

// LoadRemoteConfig reads and validates remote.toml.
func LoadRemoteConfig(fs afero.Fs, path string) (*RemoteConfig, error) {
	var cfg RemoteConfig
	if err := decodeTOML(fs, path, &cfg); err != nil {
		return nil, err
	}

	if err := ValidateRemote(&cfg); err != nil {
		return nil, fmt.Errorf("%w: '%s': %w", ErrConfig, path, err)
	}

	return &cfg, nil
}

// Validate checks config.toml for required fields and fills defaults.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.OSName) == "" {
		return errOSNameRequired
	}

	if cfg.Core.Destination == "" {
		return errCoreDestination
	}

	if cfg.Efiboot.Destination == "" {
		return errEfibootDestination
	}

	if cfg.Core.Size == "" {
		cfg.Core.Size = system.DefaultCoreSize
	}

	if cfg.Core.MappedDevice == "" {
		cfg.Core.MappedDevice = system.DefaultMappedDevice
	}

	if !strings.Contains(cfg.Core.MappedDevice, "{name}") && !strings.Contains(cfg.Core.MappedDevice, "{version}") {
		return errMappedDeviceTemplate
	}

	return nil
}

// ValidateRemote checks remote.toml URLs.
func ValidateRemote(cfg *RemoteConfig) error {
	urls := []struct{ name, raw string }{
		{name: "update_url", raw: cfg.UpdateURL},
		{name: "dist_url", raw: cfg.DistURL},
	}

	for _, u := range urls {
		name, raw := u.name, u.raw

		if raw == "" {
			return fmt.Errorf("%s: %w", name, errURLRequired)
		}

		parsed, err := url.ParseRequestURI(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}

		if parsed.Scheme != "https" {
			return fmt.Errorf("%s '%s': %w", name, raw, errHTTPSRequired)
		}
	}

	return nil
}

// LoadRunningVersion returns VERSION_ID of the os-release file, build metadata stripped.
func LoadRunningVersion(fs afero.Fs, path string) (semver.Version, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return semver.Version{}, fmt.Errorf("%w: read '%s': %w", ErrConfig, path, err)
	}

	env, err := gotenv.StrictParse(bytes.NewReader(data))
	if err != nil {
		return semver.Version{}, fmt.Errorf("%w: parse '%s': %w", ErrConfig, path, err)
	}

	versionID, ok := env["VERSION_ID"]
	if !ok || versionID == "" {
		return semver.Version{}, fmt.Errorf("%w: '%s': %w", ErrConfig, path, errVersionIDMissing)
	}

	v, err := system.ParseRunningVersion(versionID)
	if err != nil {
		return semver.Version{}, fmt.Errorf("%w: '%s': %w", ErrConfig, path, err)
	}

	return v, nil
}

// LoadPublicKey reads a minisign public key file. The key is the first line
// that is not an untrusted comment.
func LoadPublicKey(fs afero.Fs, path string) (minisign.PublicKey, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return minisign.PublicKey{}, fmt.Errorf("%w: read '%s': %w", ErrConfig, path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, untrustedCommentLine) {
			continue
		}

		key, err := minisign.NewPublicKey(line)
		if err != nil {
			return minisign.PublicKey{}, fmt.Errorf("%w: parse public key '%s': %w", ErrConfig, path, err)
		}

		return key, nil
	}

	return minisign.PublicKey{}, fmt.Errorf("%w: '%s': %w", ErrConfig, path, errNoPublicKey)
}

// LoadRootCAs reads the pinned root certificate into a pool of its own.
func LoadRootCAs(fs afero.Fs, path string) (*x509.CertPool, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: read '%s': %w", ErrConfig, path, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%w: '%s': %w", ErrConfig, path, errNoCertificate)
	}

	return pool, nil
}

// LoadMachineID returns the first line of the machine-id file.
func LoadMachineID(fs afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("%w: read '%s': %w", ErrConfig, path, err)
	}

	line, _, _ := strings.Cut(string(data), "\n")

	id := strings.TrimSpace(line)
	if id == "" {
		return "", fmt.Errorf("%w: '%s': %w", ErrConfig, path, errInvalidMachineID)
	}

	if strings.ContainsFunc(id, func(r rune) bool { return r < ' ' || r == 0x7f }) {
		return "", fmt.Errorf("%w: '%s': %w", ErrConfig, path, errInvalidMachineIDChars)
	}

	return id, nil
}

func decodeTOML(fs afero.Fs, path string, out any) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("%w: read '%s': %w", ErrConfig, path, err)
	}

	if err = toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: parse '%s': %w", ErrConfig, path, err)
	}

	return nil
}

// WithDefaults fills empty paths with DefaultPaths.
func WithDefaults(paths Paths) Paths {
	defaults := DefaultPaths()

	if paths.ConfigDir == "" {
		paths.ConfigDir = defaults.ConfigDir
	}

	if paths.RemoteDir == "" {
		paths.RemoteDir = defaults.RemoteDir
	}

	if paths.CacheDir == "" {
		paths.CacheDir = defaults.CacheDir
	}

	if paths.OSRelease == "" {
		paths.OSRelease = defaults.OSRelease
	}

	if paths.MachineID == "" {
		paths.MachineID = defaults.MachineID
	}

	return paths
}
