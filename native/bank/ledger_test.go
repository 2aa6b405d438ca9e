package bank

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stakefarm/storage"
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func TestLedgerCustodyFlow(t *testing.T) {
	kv := storage.NewKV(storage.NewMemDB())
	custody := addr(0xff)
	ledger := NewLedger(kv, custody)
	alice := addr(0x01)

	require.NoError(t, ledger.Credit("stake", alice, big.NewInt(100)))
	require.NoError(t, ledger.TransferIn("STAKE", alice, big.NewInt(60)))

	bal, err := ledger.BalanceOf("stake", alice)
	require.NoError(t, err)
	require.Equal(t, int64(40), bal.Int64())
	held, err := ledger.BalanceOf("stake", custody)
	require.NoError(t, err)
	require.Equal(t, int64(60), held.Int64())

	require.NoError(t, ledger.TransferOut("stake", alice, big.NewInt(60)))
	bal, err = ledger.BalanceOf("stake", alice)
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.Int64())
}

func TestLedgerRejectsOverdraft(t *testing.T) {
	kv := storage.NewKV(storage.NewMemDB())
	ledger := NewLedger(kv, addr(0xff))
	err := ledger.TransferOut("reward", addr(0x02), big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	require.ErrorIs(t, ledger.Credit("", addr(1), big.NewInt(1)), ErrTokenRequired)
	require.ErrorIs(t, ledger.Credit("x", addr(1), big.NewInt(0)), ErrInvalidAmount)
}

func TestLedgerZeroTransferIsNoop(t *testing.T) {
	kv := storage.NewKV(storage.NewMemDB())
	ledger := NewLedger(kv, addr(0xff))
	require.NoError(t, ledger.TransferOut("reward", addr(0x02), big.NewInt(0)))
	require.Zero(t, kv.Pending())
}
