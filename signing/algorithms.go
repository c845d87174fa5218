package signing

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode2"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/jacsproject/jacs-go/interfaces"
)

// Key encodings per algorithm: RSA-PSS and Ed25519 keys travel as PKCS#8
// (private) and PKIX (public) DER; the lattice schemes use their packed
// binary form. PublicKeyHash is always SHA-256 over the encoded public key.

const rsaKeyBits = 2048

var errKeyFormat = errors.New("invalid key encoding")

// KeyPair holds a freshly generated key pair. Private is the encoded private
// key; callers wrap it in a SigningKeyHandle and zero their copy.
type KeyPair struct {
	Algorithm interfaces.SigningAlgorithm
	Public    interfaces.PublicKey
	Private   []byte
}

// GenerateKeyPair creates a key pair for the given algorithm.
func GenerateKeyPair(algorithm interfaces.SigningAlgorithm) (KeyPair, error) {
	switch algorithm {
	case interfaces.AlgorithmRSAPSS:
		key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return KeyPair{}, fmt.Errorf("rsa key generation: %w", err)
		}
		priv, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return KeyPair{}, fmt.Errorf("failed to marshal private key: %w", err)
		}
		pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			return KeyPair{}, fmt.Errorf("failed to marshal public key: %w", err)
		}
		return KeyPair{Algorithm: algorithm, Public: pub, Private: priv}, nil

	case interfaces.AlgorithmEd25519:
		pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return KeyPair{}, fmt.Errorf("ed25519 key generation: %w", err)
		}
		priv, err := x509.MarshalPKCS8PrivateKey(privKey)
		if err != nil {
			return KeyPair{}, fmt.Errorf("failed to marshal private key: %w", err)
		}
		pub, err := x509.MarshalPKIXPublicKey(pubKey)
		if err != nil {
			return KeyPair{}, fmt.Errorf("failed to marshal public key: %w", err)
		}
		return KeyPair{Algorithm: algorithm, Public: pub, Private: priv}, nil

	case interfaces.AlgorithmDilithium:
		pk, sk, err := mode2.GenerateKey(rand.Reader)
		if err != nil {
			return KeyPair{}, fmt.Errorf("dilithium key generation: %w", err)
		}
		return KeyPair{Algorithm: algorithm, Public: pk.Bytes(), Private: sk.Bytes()}, nil

	case interfaces.AlgorithmMLDSA:
		scheme := mldsa44.Scheme()
		pk, sk, err := scheme.GenerateKey()
		if err != nil {
			return KeyPair{}, fmt.Errorf("ml-dsa key generation: %w", err)
		}
		pub, err := pk.MarshalBinary()
		if err != nil {
			return KeyPair{}, fmt.Errorf("failed to marshal public key: %w", err)
		}
		priv, err := sk.MarshalBinary()
		if err != nil {
			return KeyPair{}, fmt.Errorf("failed to marshal private key: %w", err)
		}
		return KeyPair{Algorithm: algorithm, Public: pub, Private: priv}, nil

	default:
		return KeyPair{}, fmt.Errorf("%w: %q", interfaces.ErrAlgorithmUnsupported, string(algorithm))
	}
}

// signDigest signs a content digest with the encoded private key.
func signDigest(algorithm interfaces.SigningAlgorithm, privateKey, digest []byte) ([]byte, error) {
	switch algorithm {
	case interfaces.AlgorithmRSAPSS:
		parsed, err := x509.ParsePKCS8PrivateKey(privateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errKeyFormat, err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", errKeyFormat)
		}
		return rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       crypto.SHA256,
		})

	case interfaces.AlgorithmEd25519:
		parsed, err := x509.ParsePKCS8PrivateKey(privateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errKeyFormat, err)
		}
		key, ok := parsed.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an Ed25519 key", errKeyFormat)
		}
		return ed25519.Sign(key, digest), nil

	case interfaces.AlgorithmDilithium:
		if len(privateKey) != mode2.PrivateKeySize {
			return nil, fmt.Errorf("%w: dilithium private key length %d", errKeyFormat, len(privateKey))
		}
		var sk mode2.PrivateKey
		sk.Unpack((*[mode2.PrivateKeySize]byte)(privateKey))
		sig := make([]byte, mode2.SignatureSize)
		mode2.SignTo(&sk, digest, sig)
		return sig, nil

	case interfaces.AlgorithmMLDSA:
		scheme := mldsa44.Scheme()
		sk, err := scheme.UnmarshalBinaryPrivateKey(privateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errKeyFormat, err)
		}
		return scheme.Sign(sk, digest, nil), nil

	default:
		return nil, fmt.Errorf("%w: %q", interfaces.ErrAlgorithmUnsupported, string(algorithm))
	}
}

// verifyDigest checks a signature over a content digest. The algorithm is
// the one recorded in the signature, never inferred: an unknown value fails
// with ErrAlgorithmUnsupported so a downgraded record cannot slip through.
func verifyDigest(algorithm interfaces.SigningAlgorithm, publicKey interfaces.PublicKey, digest, signature []byte) error {
	switch algorithm {
	case interfaces.AlgorithmRSAPSS:
		parsed, err := x509.ParsePKIXPublicKey(publicKey)
		if err != nil {
			return fmt.Errorf("%w: %v", errKeyFormat, err)
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: not an RSA key", errKeyFormat)
		}
		if err := rsa.VerifyPSS(key, crypto.SHA256, digest, signature, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       crypto.SHA256,
		}); err != nil {
			return interfaces.ErrSignatureInvalid
		}
		return nil

	case interfaces.AlgorithmEd25519:
		parsed, err := x509.ParsePKIXPublicKey(publicKey)
		if err != nil {
			return fmt.Errorf("%w: %v", errKeyFormat, err)
		}
		key, ok := parsed.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("%w: not an Ed25519 key", errKeyFormat)
		}
		if len(signature) != ed25519.SignatureSize {
			return interfaces.ErrSignatureInvalid
		}
		if !ed25519.Verify(key, digest, signature) {
			return interfaces.ErrSignatureInvalid
		}
		return nil

	case interfaces.AlgorithmDilithium:
		if len(publicKey) != mode2.PublicKeySize {
			return fmt.Errorf("%w: dilithium public key length %d", errKeyFormat, len(publicKey))
		}
		var pk mode2.PublicKey
		pk.Unpack((*[mode2.PublicKeySize]byte)(publicKey))
		if !mode2.Verify(&pk, digest, signature) {
			return interfaces.ErrSignatureInvalid
		}
		return nil

	case interfaces.AlgorithmMLDSA:
		scheme := mldsa44.Scheme()
		pk, err := scheme.UnmarshalBinaryPublicKey(publicKey)
		if err != nil {
			return fmt.Errorf("%w: %v", errKeyFormat, err)
		}
		if !scheme.Verify(pk, digest, signature, nil) {
			return interfaces.ErrSignatureInvalid
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", interfaces.ErrAlgorithmUnsupported, string(algorithm))
	}
}
