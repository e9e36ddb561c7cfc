package signer

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestFromHex(t *testing.T) {
	s, err := FromHex("0x" + testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x71562b71999873DB5b286dF957af199Ec94617F7"), s.Address())

	_, err = FromHex("not-a-key")
	assert.Error(t, err)
}

func TestSignTxRecoversSender(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    3,
		GasPrice: big.NewInt(1),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(0),
	})

	chainID := big.NewInt(1337)
	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
	assert.Zero(t, chainID.Cmp(signed.ChainId()))

	_, err = s.SignTx(tx, nil)
	assert.Error(t, err)
}

func TestFromKeystore(t *testing.T) {
	privateKey, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		PrivateKey: privateKey,
	}
	keyJSON, err := keystore.EncryptKey(key, "secret", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, keyJSON, 0o600))

	s, err := FromKeystore(path, "secret")
	require.NoError(t, err)
	assert.Equal(t, key.Address, s.Address())

	_, err = FromKeystore(path, "wrong")
	assert.Error(t, err)

	_, err = FromKeystore(filepath.Join(t.TempDir(), "missing.json"), "secret")
	assert.Error(t, err)
}
