package main

import (
	"strings"
	"testing"

	"monad-trade-agent-go/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletKeyEnv(t *testing.T) {
	assert.Equal(t, "WALLET_MAIN_PRIVATE_KEY", walletKeyEnv("main"))
	assert.Equal(t, "WALLET_SNIPER_2_PRIVATE_KEY", walletKeyEnv("sniper-2"))
}

func TestResolveAddress(t *testing.T) {
	acct, err := wallet.Generate()
	require.NoError(t, err)

	fromKey, err := resolveAddress(acct.PrivateKeyHex())
	require.NoError(t, err)
	assert.Equal(t, acct.Address(), fromKey)

	fromAddr, err := resolveAddress(strings.ToLower(acct.Address()))
	require.NoError(t, err)
	assert.Equal(t, acct.Address(), fromAddr)

	_, err = resolveAddress("nope")
	assert.Error(t, err)
}
