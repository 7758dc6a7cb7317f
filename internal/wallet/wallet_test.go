package wallet

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known hardhat account #0.
const (
	testKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestGetAccount(t *testing.T) {
	acc, err := GetAccount(testKey)
	require.NoError(t, err)
	assert.Equal(t, testAddress, acc.Address())

	_, err = GetAccount("not-a-key")
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	assert.True(t, IsValidPrivateKey(testKey))
	assert.True(t, IsValidPrivateKey(testKey[2:]))
	assert.False(t, IsValidPrivateKey("0x1234"))

	assert.True(t, IsValidAddress(testAddress))
	assert.True(t, IsValidAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"))
	assert.False(t, IsValidAddress("0xnothex"))
	assert.False(t, IsValidAddress("f39Fd6"))

	norm, err := NormalizeAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	require.NoError(t, err)
	assert.Equal(t, testAddress, norm)

	assert.Equal(t, testAddress, CanonicalAddress("0xF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266"))
	assert.Equal(t, "0xtoken", CanonicalAddress("0xtoken"))
}

func TestSignRecoversAddress(t *testing.T) {
	acc, err := GetAccount(testKey)
	require.NoError(t, err)

	payload := []byte(`{"trade_id":"abc"}`)
	sigHex, err := acc.Sign(payload)
	require.NoError(t, err)

	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)
	pub, err := crypto.SigToPub(crypto.Keccak256(payload), sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, crypto.PubkeyToAddress(*pub).Hex())
}

func TestGenerate(t *testing.T) {
	acc, err := Generate()
	require.NoError(t, err)
	assert.True(t, IsValidAddress(acc.Address()))

	again, err := GetAccount(acc.PrivateKeyHex())
	require.NoError(t, err)
	assert.Equal(t, acc.Address(), again.Address())
}
