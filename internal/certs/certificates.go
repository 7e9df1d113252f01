package certs

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/spf13/viper"

	"github.com/sparkuma/spark-wallet/internal/logger"
)

const (
	certFileName = "ec_crt.crt"
	keyFileName  = "ec_key.pem"

	pemTypeECPrivateKey = "EC PRIVATE KEY"
)

// Material holds the signing certificate and private key in PEM form.
type Material struct {
	Certificate string
	PrivateKey  string
}

// Load resolves UMA signing material in priority order: whole PEM strings in
// the environment, a hex-encoded private key in the environment, then local
// certificate/key files. Returns nil when nothing is configured; callers must
// treat nil as "signing unavailable" and fail the dependent operation.
func Load() *Material {
	certPEM := viper.GetString("uma_certificate")
	keyPEM := viper.GetString("uma_private_key")
	if certPEM != "" && keyPEM != "" {
		logger.Info("Loading UMA certificates from environment variables")
		return &Material{Certificate: certPEM, PrivateKey: keyPEM}
	}

	if keyHex := viper.GetString("uma_private_key_hex"); keyHex != "" {
		logger.Info("Loading UMA private key from hex environment variable")
		return &Material{
			Certificate: certPEM,
			PrivateKey:  HexToPEM(keyHex, pemTypeECPrivateKey),
		}
	}

	baseDir, err := os.Getwd()
	if err != nil {
		logger.Error("Failed to resolve working directory:", err)
		return nil
	}

	certPath := filepath.Join(baseDir, certFileName)
	keyPath := filepath.Join(baseDir, keyFileName)
	if fileExists(certPath) && fileExists(keyPath) {
		logger.Info("Loading UMA certificates from files")

		certData, err := os.ReadFile(certPath)
		if err != nil {
			logger.Error("Failed to read certificate file:", err)
			return nil
		}
		keyData, err := os.ReadFile(keyPath)
		if err != nil {
			logger.Error("Failed to read key file:", err)
			return nil
		}

		return &Material{Certificate: string(certData), PrivateKey: string(keyData)}
	}

	logger.Warn("No UMA certificates found in environment or files")
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// HexToPEM converts a hex string to a PEM block of the given type
func HexToPEM(hexKey string, pemType string) string {
	data, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return ""
	}

	block := &pem.Block{Type: pemType, Bytes: data}
	return strings.TrimRight(string(pem.EncodeToMemory(block)), "\n")
}

// PEMToSingleLine converts PEM to the single-line form used in env variables
func PEMToSingleLine(pemStr string) string {
	return strings.ReplaceAll(pemStr, "\n", "\\n")
}

// SingleLineToPEM converts the single-line env-variable form back to PEM
func SingleLineToPEM(singleLine string) string {
	return strings.ReplaceAll(singleLine, "\\n", "\n")
}

// secp256k1 SEC1 private keys carry the 32 raw key bytes behind this DER prefix
var sec1KeyPattern = regexp.MustCompile(`(?i)30740201010420([a-f0-9]{64})`)
var anyKeyPattern = regexp.MustCompile(`(?i)([a-f0-9]{64})`)

// ExtractPrivateKeyHex pulls the raw 32-byte private key out of a PEM-encoded
// EC key and returns it as hex. Round-tripping the result through
// PEMFromPrivateKeyHex and back is idempotent.
func ExtractPrivateKeyHex(pemKey string) (string, error) {
	normalized := SingleLineToPEM(pemKey)

	var keyData strings.Builder
	for _, line := range strings.Split(normalized, "\n") {
		if strings.Contains(line, "-----") || strings.TrimSpace(line) == "" {
			continue
		}
		keyData.WriteString(strings.TrimSpace(line))
	}

	der, err := base64.StdEncoding.DecodeString(keyData.String())
	if err != nil {
		return "", fmt.Errorf("failed to decode key body: %w", err)
	}

	derHex := hex.EncodeToString(der)
	if m := sec1KeyPattern.FindStringSubmatch(derHex); m != nil {
		return strings.ToLower(m[1]), nil
	}

	// Fallback: first 32-byte sequence in the structure
	if m := anyKeyPattern.FindStringSubmatch(derHex); m != nil {
		return strings.ToLower(m[1]), nil
	}

	return "", fmt.Errorf("could not extract private key from PEM")
}

// PEMFromPrivateKeyHex rebuilds a SEC1 EC PRIVATE KEY PEM from raw key hex
func PEMFromPrivateKeyHex(keyHex string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return "", fmt.Errorf("failed to decode key hex: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("expected 32 key bytes, got %d", len(raw))
	}

	priv, _ := btcec.PrivKeyFromBytes(raw)
	der := marshalSEC1PrivateKey(priv)
	block := &pem.Block{Type: pemTypeECPrivateKey, Bytes: der}
	return strings.TrimRight(string(pem.EncodeToMemory(block)), "\n"), nil
}

// MarshalPrivateKeyPEM encodes a secp256k1 private key as a SEC1 EC PRIVATE KEY PEM
func MarshalPrivateKeyPEM(priv *btcec.PrivateKey) string {
	block := &pem.Block{Type: pemTypeECPrivateKey, Bytes: marshalSEC1PrivateKey(priv)}
	return strings.TrimRight(string(pem.EncodeToMemory(block)), "\n")
}

// marshalSEC1PrivateKey builds the SEC1 ECPrivateKey DER structure for
// secp256k1: version, 32 key bytes, curve OID 1.3.132.0.10, uncompressed point.
func marshalSEC1PrivateKey(priv *btcec.PrivateKey) []byte {
	keyBytes := priv.Serialize()
	pubBytes := priv.PubKey().SerializeUncompressed()

	der := make([]byte, 0, 118)
	der = append(der, 0x30, 0x74)             // SEQUENCE, 116 bytes
	der = append(der, 0x02, 0x01, 0x01)       // INTEGER version 1
	der = append(der, 0x04, 0x20)             // OCTET STRING, 32 bytes
	der = append(der, keyBytes...)
	der = append(der, 0xa0, 0x07)             // [0] parameters
	der = append(der, 0x06, 0x05, 0x2b, 0x81, 0x04, 0x00, 0x0a) // OID secp256k1
	der = append(der, 0xa1, 0x44)             // [1] public key
	der = append(der, 0x03, 0x42, 0x00)       // BIT STRING, 65 bytes, no unused bits
	der = append(der, pubBytes...)
	return der
}

// ParsePrivateKey parses the PEM key material into a usable signing key
func ParsePrivateKey(pemKey string) (*btcec.PrivateKey, error) {
	keyHex, err := ExtractPrivateKeyHex(pemKey)
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode extracted key: %w", err)
	}

	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

// SignFunc signs a message and returns a hex-encoded DER signature.
type SignFunc func(message string) (string, error)

// VerifyFunc checks a hex-encoded DER signature over a message.
type VerifyFunc func(message string, signature string) bool

// NewSigner builds a signing function over the PEM private key
func NewSigner(privateKeyPEM string) (SignFunc, error) {
	priv, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	return func(message string) (string, error) {
		digest := sha256.Sum256([]byte(message))
		sig := ecdsa.Sign(priv, digest[:])
		return hex.EncodeToString(sig.Serialize()), nil
	}, nil
}

// NewVerifier builds a verification function for the given public key
func NewVerifier(pub *btcec.PublicKey) VerifyFunc {
	return func(message string, signature string) bool {
		sigBytes, err := hex.DecodeString(signature)
		if err != nil {
			return false
		}
		sig, err := ecdsa.ParseDERSignature(sigBytes)
		if err != nil {
			return false
		}
		digest := sha256.Sum256([]byte(message))
		return sig.Verify(digest[:], pub)
	}
}

// PrepareEnvValues returns the environment-variable forms of the local signing
// material, for copying into a deployment dashboard.
func PrepareEnvValues() (map[string]string, error) {
	material := Load()
	if material == nil {
		return nil, fmt.Errorf("no certificates found")
	}

	keyHex, err := ExtractPrivateKeyHex(material.PrivateKey)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"UMA_CERTIFICATE":     PEMToSingleLine(material.Certificate),
		"UMA_PRIVATE_KEY":     PEMToSingleLine(material.PrivateKey),
		"UMA_PRIVATE_KEY_HEX": keyHex,
	}, nil
}
