package farm

import (
	"math/big"

	"github.com/holiman/uint256"
)

// scale is the fixed-point unit for multipliers and accRewardPerShare.
var scale = big.NewInt(1_000_000_000_000_000_000)

// Scale returns the 1e18 fixed-point unit.
func Scale() *big.Int { return new(big.Int).Set(scale) }

// mulDiv computes a*b/c truncating toward zero.
func mulDiv(a, b, c *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// virtualAmount converts principal into reward-earning weight.
func virtualAmount(principal, multiplier *big.Int) *big.Int {
	return mulDiv(principal, multiplier, scale)
}

// accumulated is the gross reward earned by virtual weight at accPerShare.
func accumulated(virtual, accPerShare *big.Int) *big.Int {
	return mulDiv(virtual, accPerShare, scale)
}

// pending is gross accrued minus debt. It can be negative by truncation dust
// after withdrawals; callers clamp at payout time.
func pending(account *Account, accPerShare *big.Int) *big.Int {
	gross := accumulated(account.VirtualBalance, accPerShare)
	return gross.Sub(gross, account.RewardDebt)
}

func clampZero(v *big.Int) *big.Int {
	if v.Sign() < 0 {
		return big.NewInt(0)
	}
	return v
}

// checkAmount enforces a positive amount that fits the 256-bit token range.
func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return errInvalidAmount
	}
	return nil
}

// checkRate is checkAmount that also admits zero.
func checkRate(rate *big.Int) error {
	if rate == nil || rate.Sign() < 0 {
		return errInvalidAmount
	}
	if _, overflow := uint256.FromBig(rate); overflow {
		return errInvalidAmount
	}
	return nil
}
