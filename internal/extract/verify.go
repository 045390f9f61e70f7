package extract

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// ErrNoVerification is returned when an archive has neither a signature nor
// a checksum file and unverified archives are not allowed.
var ErrNoVerification = errors.New("no signature or checksum available")

// VerificationMethod indicates how an archive was verified.
type VerificationMethod int

const (
	// VerificationNone means the archive was accepted unverified.
	VerificationNone VerificationMethod = iota
	// VerificationGPG means a detached OpenPGP signature was checked.
	VerificationGPG
	// VerificationSHA256 means a SHA-256 checksum was compared.
	VerificationSHA256
)

// String returns the string representation of the verification method.
func (v VerificationMethod) String() string {
	switch v {
	case VerificationGPG:
		return "GPG"
	case VerificationSHA256:
		return "SHA256"
	case VerificationNone:
		return "None"
	default:
		return "Unknown"
	}
}

// Verifier checks archives against detached signatures or checksums.
type Verifier struct {
	keyringPath     string
	allowUnverified bool
}

// NewVerifier creates a verifier. keyringPath may be empty, in which case
// only checksum verification is possible.
func NewVerifier(keyringPath string, allowUnverified bool) *Verifier {
	return &Verifier{
		keyringPath:     keyringPath,
		allowUnverified: allowUnverified,
	}
}

// Verify checks archivePath. A signature is preferred when both a keyring and
// a signature file exist; otherwise a .sha256 file is used.
func (v *Verifier) Verify(archivePath string) (VerificationMethod, error) {
	if v.keyringPath != "" {
		if sigPath := firstExisting(archivePath+".asc", archivePath+".sig"); sigPath != "" {
			if err := v.verifyGPG(archivePath, sigPath); err != nil {
				return VerificationGPG, fmt.Errorf("GPG verification failed: %w", err)
			}
			return VerificationGPG, nil
		}
	}

	if sumPath := firstExisting(archivePath + ".sha256"); sumPath != "" {
		if err := verifySHA256(archivePath, sumPath); err != nil {
			return VerificationSHA256, fmt.Errorf("SHA256 verification failed: %w", err)
		}
		return VerificationSHA256, nil
	}

	if v.allowUnverified {
		return VerificationNone, nil
	}
	return VerificationNone, fmt.Errorf("%s: %w", filepath.Base(archivePath), ErrNoVerification)
}

func (v *Verifier) verifyGPG(archivePath, signaturePath string) error {
	keyring, err := loadKeyring(v.keyringPath)
	if err != nil {
		return err
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	sig, err := os.Open(signaturePath)
	if err != nil {
		return fmt.Errorf("open signature: %w", err)
	}
	defer sig.Close()

	// Try armored first, then binary.
	if _, err = openpgp.CheckArmoredDetachedSignature(keyring, archive, sig, nil); err == nil {
		return nil
	}

	if _, serr := archive.Seek(0, io.SeekStart); serr != nil {
		return fmt.Errorf("rewind archive: %w", serr)
	}
	if _, serr := sig.Seek(0, io.SeekStart); serr != nil {
		return fmt.Errorf("rewind signature: %w", serr)
	}
	if _, err = openpgp.CheckDetachedSignature(keyring, archive, sig, nil); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}

func loadKeyring(path string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer f.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		if _, serr := f.Seek(0, io.SeekStart); serr != nil {
			return nil, fmt.Errorf("rewind keyring: %w", serr)
		}
		keyring, err = openpgp.ReadKeyRing(f)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}
	return keyring, nil
}

func verifySHA256(archivePath, checksumPath string) error {
	actual, err := calculateSHA256(archivePath)
	if err != nil {
		return fmt.Errorf("calculate checksum: %w", err)
	}

	expected, err := findChecksum(checksumPath, filepath.Base(archivePath))
	if err != nil {
		return err
	}

	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("checksum mismatch:\nactual:   %s\nexpected: %s", actual, expected)
	}
	return nil
}

func calculateSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// findChecksum reads "digest  filename" lines. A line holding only a digest
// applies to any file.
func findChecksum(checksumPath, filename string) (string, error) {
	f, err := os.Open(checksumPath)
	if err != nil {
		return "", fmt.Errorf("open checksum file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		switch {
		case len(parts) == 1:
			return parts[0], nil
		case len(parts) >= 2:
			name := strings.TrimPrefix(parts[1], "*")
			if name == filename || filepath.Base(name) == filename {
				return parts[0], nil
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan checksum file: %w", err)
	}
	return "", fmt.Errorf("checksum not found for %s", filename)
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}
