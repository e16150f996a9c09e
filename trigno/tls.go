// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package trigno

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

// TLSOption modifies the TLS configuration used for a connection. Options are
// applied each time a connection is opened.
type TLSOption func(context.Context, *tls.Config) error

const (
	pbkdf2Iterations = 10000
	pbkdf2SaltSize   = 8
	aesKeySize       = 32
	aesGCMNonceSize  = 12
)

// WithX509 presents a client certificate loaded from PEM files.
func WithX509(certFile, keyFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return &InvalidArgumentError{
				message: "cannot load X509 key pair",
				wrapped: err,
			}
		}
		cfg.Certificates = append(cfg.Certificates, cert)
		return nil
	}
}

// WithEncryptedX509 presents a client certificate whose private key is
// encrypted with a password read from passFile. The key block holds an 8-byte
// salt followed by the AES-GCM nonce and ciphertext; the AES key is derived
// from the password with PBKDF2 over SHA3-256.
func WithEncryptedX509(certFile, keyFile, passFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		pass, err := os.ReadFile(passFile)
		if err != nil {
			return &InvalidArgumentError{
				message: "cannot read key password file",
				wrapped: err,
			}
		}

		cert, err := loadX509KeyPairWithPassword(
			certFile,
			keyFile,
			strings.TrimSpace(string(pass)),
		)
		if err != nil {
			return &InvalidArgumentError{
				message: "cannot load encrypted X509 key pair",
				wrapped: err,
			}
		}
		cfg.Certificates = append(cfg.Certificates, cert)
		return nil
	}
}

// WithCA verifies the broker against the certificates in caFile.
func WithCA(caFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		pool, err := loadCACertPool(caFile)
		if err != nil {
			return &InvalidArgumentError{
				message: "cannot load CA certificate pool",
				wrapped: err,
			}
		}
		cfg.RootCAs = pool
		return nil
	}
}

// WithInsecureSkipVerify disables verification of the broker's certificate.
// It is intended for bases reached through localhost.
func WithInsecureSkipVerify() TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		cfg.InsecureSkipVerify = true // #nosec G402
		return nil
	}
}

func tlsConfig(
	ctx context.Context,
	hostname string,
	opts []TLSOption,
) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: hostname,
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadCACertPool loads a CA certificate pool from the specified file.
func loadCACertPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("no certificates found in CA file")
	}
	return pool, nil
}

// loadX509KeyPairWithPassword loads a key pair whose key file is encrypted.
func loadX509KeyPairWithPassword(
	certFile,
	keyFile,
	password string,
) (tls.Certificate, error) {
	certPEMBlock, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyPEMBlock, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyDERBlock, _ := pem.Decode(keyPEMBlock)
	if keyDERBlock == nil {
		return tls.Certificate{}, errors.New(
			"failed to decode PEM block containing private key",
		)
	}

	// x509.DecryptPEMBlock is deprecated due to insecurity:
	// https://github.com/golang/go/issues/8860
	der, err := decryptPEMBlock(keyDERBlock, []byte(password))
	if err != nil {
		return tls.Certificate{}, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  keyDERBlock.Type,
		Bytes: der,
	})
	return tls.X509KeyPair(certPEMBlock, keyPEM)
}

// decryptPEMBlock decrypts a PEM block using PBKDF2 and AES-GCM.
func decryptPEMBlock(block *pem.Block, password []byte) ([]byte, error) {
	if block == nil {
		return nil, errors.New("PEM block is nil")
	}
	if len(block.Bytes) < pbkdf2SaltSize {
		return nil, errors.New("PEM block is too short to hold a salt")
	}

	salt := block.Bytes[:pbkdf2SaltSize]
	key := pbkdf2.Key(
		password,
		salt,
		pbkdf2Iterations,
		aesKeySize,
		sha3.New256,
	)
	return aesGCMDecrypt(block.Bytes[pbkdf2SaltSize:], key)
}

// aesGCMDecrypt decrypts data using AES-GCM mode.
func aesGCMDecrypt(encrypted, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	if len(encrypted) < aesGCMNonceSize {
		return nil, errors.New("ciphertext in PEM block is too short")
	}
	nonce, ciphertext := encrypted[:aesGCMNonceSize], encrypted[aesGCMNonceSize:]

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}
