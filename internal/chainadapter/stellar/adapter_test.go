package stellar

import (
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/require"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
)

func testContractID(t *testing.T) string {
	t.Helper()
	var raw [32]byte
	raw[0] = 0x42
	addr, err := strkey.Encode(strkey.VersionByteContract, raw[:])
	require.NoError(t, err)
	return addr
}

func TestBuildInvokeHostFunctionEnvelopeProducesASignedRealTransaction(t *testing.T) {
	signer, err := keypair.Random()
	require.NoError(t, err)
	contractID := testContractID(t)

	envelope, err := buildInvokeHostFunctionEnvelope(signer, network.TestNetworkPassphrase, 41, contractID, "withdraw",
		[]xdr.ScVal{scvalBytes([]byte{0xAA, 0xBB})})
	require.NoError(t, err)
	require.NotEmpty(t, envelope)

	var parsed xdr.TransactionEnvelope
	require.NoError(t, xdr.SafeUnmarshalBase64(envelope, &parsed))

	v1, ok := parsed.GetV1()
	require.True(t, ok, "envelope must be a V1 transaction")
	require.Len(t, v1.Tx.Operations, 1)
	require.Len(t, v1.Signatures, 1, "the envelope must carry the source account's signature")

	op, ok := v1.Tx.Operations[0].Body.GetInvokeHostFunctionOp()
	require.True(t, ok, "operation body must be an InvokeHostFunction op")
	require.Equal(t, xdr.HostFunctionTypeHostFunctionTypeInvokeContract, op.HostFunction.Type)
	require.Equal(t, xdr.ScSymbol("withdraw"), op.HostFunction.InvokeContract.FunctionName)
	require.Equal(t, int64(42), int64(v1.Tx.SeqNum), "sequence must be incremented past the supplied account sequence")
}

func TestBuildInvokeHostFunctionEnvelopeRejectsInvalidContractID(t *testing.T) {
	signer, err := keypair.Random()
	require.NoError(t, err)

	_, err = buildInvokeHostFunctionEnvelope(signer, network.TestNetworkPassphrase, 1, "not-a-contract-address", "withdraw", nil)
	require.Error(t, err)
}

func TestSHA256HashlockMatchesPreimage(t *testing.T) {
	var p chainmodel.Preimage
	for i := range p {
		p[i] = 0x07
	}
	hl := SHA256Hashlock(p)
	require.False(t, hl.IsZero())
	require.Equal(t, hl, SHA256Hashlock(p), "hashing must be deterministic")
}

func TestValidateAddressRejectsGarbage(t *testing.T) {
	require.Error(t, ValidateAddress("not-an-address"))
}

func TestValidateAddressAcceptsContractAddress(t *testing.T) {
	require.NoError(t, ValidateAddress(testContractID(t)))
}
