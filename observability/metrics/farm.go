package metrics

import (
	"math"
	"math/big"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type FarmMetrics struct {
	operations     *prometheus.CounterVec
	rewardsPaid    *prometheus.CounterVec
	forfeited      *prometheus.CounterVec
	virtualSupply  *prometheus.GaugeVec
	accPerShare    *prometheus.GaugeVec
	poolWeight     *prometheus.GaugeVec
	emissionRate   prometheus.Gauge
	undistributed  *prometheus.CounterVec
	invariantFails *prometheus.CounterVec
}

var (
	farmOnce     sync.Once
	farmRegistry *FarmMetrics
)

// Farm returns the lazily registered ledger metrics.
func Farm() *FarmMetrics {
	farmOnce.Do(func() {
		farmRegistry = &FarmMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farm",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			rewardsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farm",
				Name:      "rewards_paid_total",
				Help:      "Reward token paid out per pool.",
			}, []string{"pool"}),
			forfeited: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farm",
				Name:      "rewards_forfeited_total",
				Help:      "Pending reward forfeited through emergency withdrawals per pool.",
			}, []string{"pool"}),
			virtualSupply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "farm",
				Name:      "pool_virtual_supply",
				Help:      "Multiplier weighted stake per pool.",
			}, []string{"pool"}),
			accPerShare: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "farm",
				Name:      "pool_acc_reward_per_share",
				Help:      "Cumulative reward per unit of virtual stake (1e18 scaled).",
			}, []string{"pool"}),
			poolWeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "farm",
				Name:      "pool_allocation_weight",
				Help:      "Allocation weight per pool.",
			}, []string{"pool"}),
			emissionRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "farm",
				Name:      "emission_per_tick",
				Help:      "Reward token emitted per tick across all pools.",
			}),
			undistributed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farm",
				Name:      "undistributed_reward_total",
				Help:      "Emission skipped because the pool had no virtual supply.",
			}, []string{"pool"}),
			invariantFails: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farm",
				Name:      "invariant_failures_total",
				Help:      "Virtual supply invariant violations detected per pool.",
			}, []string{"pool"}),
		}
		prometheus.MustRegister(
			farmRegistry.operations,
			farmRegistry.rewardsPaid,
			farmRegistry.forfeited,
			farmRegistry.virtualSupply,
			farmRegistry.accPerShare,
			farmRegistry.poolWeight,
			farmRegistry.emissionRate,
			farmRegistry.undistributed,
			farmRegistry.invariantFails,
		)
	})
	return farmRegistry
}

func (m *FarmMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *FarmMetrics) ObserveRewardPaid(poolID uint64, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardsPaid.WithLabelValues(poolLabel(poolID)).Add(bigToFloat(amount))
}

func (m *FarmMetrics) ObserveForfeited(poolID uint64, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.forfeited.WithLabelValues(poolLabel(poolID)).Add(bigToFloat(amount))
}

func (m *FarmMetrics) ObserveUndistributed(poolID uint64, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.undistributed.WithLabelValues(poolLabel(poolID)).Add(bigToFloat(amount))
}

// SetPoolState publishes the accrual snapshot of a pool.
func (m *FarmMetrics) SetPoolState(poolID, weight uint64, virtualSupply, accPerShare *big.Int) {
	if m == nil {
		return
	}
	label := poolLabel(poolID)
	m.poolWeight.WithLabelValues(label).Set(float64(weight))
	m.virtualSupply.WithLabelValues(label).Set(bigToFloat(virtualSupply))
	m.accPerShare.WithLabelValues(label).Set(bigToFloat(accPerShare))
}

func (m *FarmMetrics) SetEmissionRate(rate *big.Int) {
	if m == nil {
		return
	}
	m.emissionRate.Set(bigToFloat(rate))
}

func (m *FarmMetrics) IncInvariantFailure(poolID uint64) {
	if m == nil {
		return
	}
	m.invariantFails.WithLabelValues(poolLabel(poolID)).Inc()
}

func poolLabel(poolID uint64) string {
	return strconv.FormatUint(poolID, 10)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
