package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account is a signer for one agent wallet.
type Account struct {
	address common.Address
	key     *ecdsa.PrivateKey
}

// Address returns the checksummed address.
func (a *Account) Address() string {
	return a.address.Hex()
}

// Sign signs keccak256(payload) and returns the 0x-prefixed signature.
func (a *Account) Sign(payload []byte) (string, error) {
	sig, err := crypto.Sign(crypto.Keccak256(payload), a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	return hexutil.Encode(sig), nil
}

// PrivateKeyHex exports the key, used only when generating a new wallet.
func (a *Account) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(a.key))
}

func trimKey(privateKey string) string {
	return strings.TrimPrefix(strings.TrimSpace(privateKey), "0x")
}

// IsValidPrivateKey reports whether privateKey is a well-formed secp256k1 key in hex.
func IsValidPrivateKey(privateKey string) bool {
	_, err := crypto.HexToECDSA(trimKey(privateKey))
	return err == nil
}

// IsValidAddress reports whether address is a 20-byte hex address.
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress returns the checksummed form of a valid address.
func NormalizeAddress(address string) (string, error) {
	if !IsValidAddress(address) {
		return "", fmt.Errorf("invalid address %q", address)
	}
	return common.HexToAddress(address).Hex(), nil
}

// CanonicalAddress returns the checksummed form of a valid address and
// anything else unchanged. Map keys built from it agree across letter case.
func CanonicalAddress(address string) string {
	if !IsValidAddress(address) {
		return address
	}
	return common.HexToAddress(address).Hex()
}

// GetAccount builds a signer from a hex private key.
func GetAccount(privateKey string) (*Account, error) {
	key, err := crypto.HexToECDSA(trimKey(privateKey))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Account{address: crypto.PubkeyToAddress(key.PublicKey), key: key}, nil
}

// Generate creates a fresh wallet.
func Generate() (*Account, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Account{address: crypto.PubkeyToAddress(key.PublicKey), key: key}, nil
}
