package broker

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet holds an ECDSA keypair. The server carries two: the main wallet
// loaded from PRIVATE_KEY, which owns the channel funds and authorizes a
// session, and a throwaway session wallet generated at startup that signs
// the broker traffic after auth.
type Wallet struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
	Address    common.Address
}

// GenerateWallet creates a fresh keypair, used for session keys.
func GenerateWallet() (*Wallet, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return walletFromKey(privateKey)
}

// LoadWallet loads a wallet from a private key hex string. A leading 0x is
// tolerated since keys usually arrive through env vars in that form.
func LoadWallet(privateKeyHex string) (*Wallet, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return walletFromKey(privateKey)
}

func walletFromKey(privateKey *ecdsa.PrivateKey) (*Wallet, error) {
	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key")
	}

	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  publicKey,
		Address:    crypto.PubkeyToAddress(*publicKey),
	}, nil
}

// SignDigest signs a 32-byte digest. The recovery byte is shifted to the
// 27/28 convention Ethereum tooling expects on the wire.
func (w *Wallet) SignDigest(digest []byte) ([]byte, error) {
	signature, err := crypto.Sign(digest, w.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	signature[64] += 27
	return signature, nil
}

// SignMessage signs the Keccak-256 hash of an arbitrary message.
func (w *Wallet) SignMessage(message []byte) ([]byte, error) {
	return w.SignDigest(crypto.Keccak256Hash(message).Bytes())
}

// RecoverSigner returns the address that produced a signature over the
// Keccak-256 hash of message. Both 0/1 and 27/28 recovery bytes are accepted.
func RecoverSigner(message, signature []byte) (common.Address, error) {
	return RecoverDigestSigner(crypto.Keccak256Hash(message).Bytes(), signature)
}

// RecoverDigestSigner recovers the signer of a pre-hashed 32-byte digest.
func RecoverDigestSigner(digest, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(signature))
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}
