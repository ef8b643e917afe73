package crypto

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func testOrder() OrderPayload {
	return OrderPayload{
		Salt:          "123456789",
		Maker:         testAddr.Hex(),
		Signer:        testAddr.Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount:   "500000",
		TakerAmount:   "10000000",
		Expiration:    "1758560880",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          0,
		SignatureType: 0,
	}
}

func recoverSigner(t *testing.T, digest []byte, sigHex string) common.Address {
	t.Helper()
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	sig[64] -= 27
	pub, err := ethcrypto.SigToPub(digest, sig)
	require.NoError(t, err)
	return ethcrypto.PubkeyToAddress(*pub)
}

func TestNewSigner_Address(t *testing.T) {
	s, err := NewSigner("0x"+testKey, 137)
	require.NoError(t, err)
	assert.Equal(t, testAddr, s.Address())
	assert.Equal(t, int64(137), s.ChainID())

	_, err = NewSigner("not-hex", 137)
	assert.Error(t, err)
}

func TestSignOrder_RecoversToSigner(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	require.NoError(t, err)

	order := testOrder()
	sig, err := s.SignOrder(order, CTFExchange)
	require.NoError(t, err)

	digest, err := OrderDigest(order, 137, CTFExchange)
	require.NoError(t, err)
	assert.Equal(t, testAddr, recoverSigner(t, digest, sig))
}

func TestOrderDigest_DependsOnExchangeAndChain(t *testing.T) {
	order := testOrder()

	normal, err := OrderDigest(order, 137, CTFExchange)
	require.NoError(t, err)
	negRisk, err := OrderDigest(order, 137, NegRiskCTFExchange)
	require.NoError(t, err)
	amoy, err := OrderDigest(order, 80002, CTFExchange)
	require.NoError(t, err)

	assert.NotEqual(t, normal, negRisk)
	assert.NotEqual(t, normal, amoy)
}

func TestOrderDigest_RejectsBadFields(t *testing.T) {
	o := testOrder()
	o.MakerAmount = "1.5"
	_, err := OrderDigest(o, 137, CTFExchange)
	assert.ErrorContains(t, err, "makerAmount")

	o = testOrder()
	o.Taker = "nope"
	_, err = OrderDigest(o, 137, CTFExchange)
	assert.ErrorContains(t, err, "invalid address")
}

func TestSignAuthMessage_RecoversToSigner(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	require.NoError(t, err)

	sig, err := s.SignAuthMessage(1758560400, 0)
	require.NoError(t, err)

	digest := eip712Hash(authDomainSeparator(137), clobAuthStructHash(testAddr, 1758560400, 0))
	assert.Equal(t, testAddr, recoverSigner(t, digest, sig))
}

func TestSignTx(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	require.NoError(t, err)

	to := common.HexToAddress("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045")
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, To: &to, Gas: 21000})
	signed, err := s.SignTx(tx)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(signed.ChainId()), signed)
	require.NoError(t, err)
	assert.Equal(t, testAddr, from)
}
