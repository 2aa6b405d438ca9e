package farm

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

var (
	globalsKey    = []byte("farm/globals")
	poolPrefix    = []byte("farm/pool/")
	accountPrefix = []byte("farm/account/")
	stakersPrefix = []byte("farm/stakers/")
)

func poolKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte(nil), poolPrefix...), id)
}

func accountKey(poolID uint64, owner [20]byte) []byte {
	buf := binary.BigEndian.AppendUint64(append([]byte(nil), accountPrefix...), poolID)
	buf = append(buf, '/')
	return append(buf, owner[:]...)
}

func stakersKey(poolID uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte(nil), stakersPrefix...), poolID)
}

// accountRecord is the persisted form of Account. RLP has no signed integers,
// so the reward debt is split into a sign flag and magnitude.
type accountRecord struct {
	PoolID         uint64
	Owner          [20]byte
	VirtualBalance *big.Int
	DebtNegative   bool
	DebtMagnitude  *big.Int
	NextDepositID  uint64
	Deposits       []Deposit
}

func encodeAccount(acc *Account) accountRecord {
	debt := copyBig(acc.RewardDebt)
	negative := debt.Sign() < 0
	return accountRecord{
		PoolID:         acc.PoolID,
		Owner:          acc.Owner,
		VirtualBalance: copyBig(acc.VirtualBalance),
		DebtNegative:   negative,
		DebtMagnitude:  debt.Abs(debt),
		NextDepositID:  acc.NextDepositID,
		Deposits:       acc.Deposits,
	}
}

func decodeAccount(rec accountRecord) *Account {
	debt := copyBig(rec.DebtMagnitude)
	if rec.DebtNegative {
		debt.Neg(debt)
	}
	acc := &Account{
		PoolID:         rec.PoolID,
		Owner:          rec.Owner,
		VirtualBalance: copyBig(rec.VirtualBalance),
		RewardDebt:     debt,
		NextDepositID:  rec.NextDepositID,
		Deposits:       make([]Deposit, len(rec.Deposits)),
	}
	for i, dep := range rec.Deposits {
		acc.Deposits[i] = dep.Clone()
	}
	return acc
}

type stakerIndex struct {
	Owners [][20]byte
}

func loadGlobals(state engineState) (*Globals, error) {
	var rec Globals
	ok, err := state.KVGet(globalsKey, &rec)
	if err != nil {
		return nil, fmt.Errorf("farm: load globals: %w", err)
	}
	if !ok {
		return &Globals{EmissionPerTick: big.NewInt(0)}, nil
	}
	rec.EmissionPerTick = copyBig(rec.EmissionPerTick)
	return &rec, nil
}
