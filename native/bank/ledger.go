package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrTokenRequired     = errors.New("bank: token required")
	ErrBalanceOverflow   = errors.New("bank: balance exceeds 256 bits")
)

// ledgerState is the subset of the KV store the ledger needs.
type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var balancePrefix = []byte("bank/balance/")

type balanceRecord struct {
	Amount *big.Int
}

// Ledger tracks fungible token balances per address and holds deposits in a
// module custody account. Writes are staged on the shared state and become
// durable when the owner of that state commits.
type Ledger struct {
	state   ledgerState
	custody [20]byte
}

// NewLedger binds the ledger to state with the supplied custody account.
func NewLedger(state ledgerState, custody [20]byte) *Ledger {
	return &Ledger{state: state, custody: custody}
}

// Custody returns the module custody account.
func (l *Ledger) Custody() [20]byte { return l.custody }

func balanceKey(token string, addr [20]byte) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(token)+1+len(addr))
	buf = append(buf, balancePrefix...)
	buf = append(buf, token...)
	buf = append(buf, '/')
	buf = append(buf, addr[:]...)
	return buf
}

func normalizeToken(token string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(token))
	if trimmed == "" {
		return "", ErrTokenRequired
	}
	return trimmed, nil
}

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(token string, addr [20]byte) (*big.Int, error) {
	symbol, err := normalizeToken(token)
	if err != nil {
		return nil, err
	}
	return l.load(symbol, addr)
}

func (l *Ledger) load(symbol string, addr [20]byte) (*big.Int, error) {
	var record balanceRecord
	ok, err := l.state.KVGet(balanceKey(symbol, addr), &record)
	if err != nil {
		return nil, fmt.Errorf("bank: load balance: %w", err)
	}
	if !ok || record.Amount == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(record.Amount), nil
}

func (l *Ledger) store(symbol string, addr [20]byte, amount *big.Int) error {
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrBalanceOverflow
	}
	return l.state.KVPut(balanceKey(symbol, addr), balanceRecord{Amount: amount})
}

// Credit increases the balance of addr. It is used to fund accounts from
// genesis and to top up the custody reward reserve.
func (l *Ledger) Credit(token string, addr [20]byte, amount *big.Int) error {
	symbol, err := normalizeToken(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.load(symbol, addr)
	if err != nil {
		return err
	}
	return l.store(symbol, addr, balance.Add(balance, amount))
}

// Transfer moves amount of token between two accounts.
func (l *Ledger) Transfer(token string, from, to [20]byte, amount *big.Int) error {
	symbol, err := normalizeToken(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBal, err := l.load(symbol, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientFunds, formatAddr(from), fromBal, symbol, amount)
	}
	toBal, err := l.load(symbol, to)
	if err != nil {
		return err
	}
	if err := l.store(symbol, from, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.store(symbol, to, toBal.Add(toBal, amount))
}

// TransferIn moves amount from the owner into module custody.
func (l *Ledger) TransferIn(token string, from [20]byte, amount *big.Int) error {
	return l.Transfer(token, from, l.custody, amount)
}

// TransferOut releases amount from module custody to the recipient.
func (l *Ledger) TransferOut(token string, to [20]byte, amount *big.Int) error {
	return l.Transfer(token, l.custody, to, amount)
}

func formatAddr(addr [20]byte) string {
	return fmt.Sprintf("0x%x", addr[:])
}
