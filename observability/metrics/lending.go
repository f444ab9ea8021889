package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics tracks the headline gauges and counters called for by
// the pool's risk surface: reserve utilization, accrued indices, and
// liquidation/flash-loan activity.
type LendingMetrics struct {
	utilization      *prometheus.GaugeVec
	borrowerRate     *prometheus.GaugeVec
	lenderRate       *prometheus.GaugeVec
	lenderAR         *prometheus.GaugeVec
	borrowerAR       *prometheus.GaugeVec
	liquidations     *prometheus.CounterVec
	liquidatedBase   *prometheus.GaugeVec
	flashLoans       *prometheus.CounterVec
	flashLoanVolume  *prometheus.GaugeVec
	gracePeriodTrips *prometheus.CounterVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the process-wide lending metrics singleton,
// registering it with the default prometheus registry on first use.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_reserve_utilization",
				Help: "Current utilization ratio of a reserve, as a fixedpoint fraction of 1.",
			}, []string{"reserve"}),
			borrowerRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_reserve_borrower_rate",
				Help: "Current borrower interest rate of a reserve, as a fixedpoint fraction of 1.",
			}, []string{"reserve"}),
			lenderRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_reserve_lender_rate",
				Help: "Current lender interest rate of a reserve, as a fixedpoint fraction of 1.",
			}, []string{"reserve"}),
			lenderAR: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_reserve_lender_ar",
				Help: "Current lender accrued-rate index of a reserve.",
			}, []string{"reserve"}),
			borrowerAR: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_reserve_borrower_ar",
				Help: "Current borrower accrued-rate index of a reserve.",
			}, []string{"reserve"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_liquidations_total",
				Help: "Count of completed liquidations by outcome.",
			}, []string{"outcome"}),
			liquidatedBase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_liquidated_base_value",
				Help: "Discounted base-asset value seized in the most recent liquidation per borrower.",
			}, []string{"borrower"}),
			flashLoans: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_flash_loans_total",
				Help: "Count of completed flash loans by settlement mode.",
			}, []string{"mode"}),
			flashLoanVolume: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_flash_loan_volume",
				Help: "Underlying amount moved by the most recent flash loan per asset.",
			}, []string{"reserve"}),
			gracePeriodTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_grace_period_rejections_total",
				Help: "Count of operations rejected because the pool was within its post-unpause grace period.",
			}, []string{"module"}),
		}
		prometheus.MustRegister(
			lendingRegistry.utilization,
			lendingRegistry.borrowerRate,
			lendingRegistry.lenderRate,
			lendingRegistry.lenderAR,
			lendingRegistry.borrowerAR,
			lendingRegistry.liquidations,
			lendingRegistry.liquidatedBase,
			lendingRegistry.flashLoans,
			lendingRegistry.flashLoanVolume,
			lendingRegistry.gracePeriodTrips,
		)
	})
	return lendingRegistry
}

func (m *LendingMetrics) SetUtilization(reserve string, ratio float64) {
	if m == nil {
		return
	}
	m.utilization.WithLabelValues(normaliseReserve(reserve)).Set(ratio)
}

func (m *LendingMetrics) SetRates(reserve string, borrowerRate, lenderRate float64) {
	if m == nil {
		return
	}
	label := normaliseReserve(reserve)
	m.borrowerRate.WithLabelValues(label).Set(borrowerRate)
	m.lenderRate.WithLabelValues(label).Set(lenderRate)
}

func (m *LendingMetrics) SetAccruedRates(reserve string, lenderAR, borrowerAR float64) {
	if m == nil {
		return
	}
	label := normaliseReserve(reserve)
	m.lenderAR.WithLabelValues(label).Set(lenderAR)
	m.borrowerAR.WithLabelValues(label).Set(borrowerAR)
}

func (m *LendingMetrics) ObserveLiquidation(outcome string, borrower string, seizedBaseValue float64) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.liquidations.WithLabelValues(outcome).Inc()
	m.liquidatedBase.WithLabelValues(normaliseReserve(borrower)).Set(seizedBaseValue)
}

func (m *LendingMetrics) ObserveFlashLoan(mode string, reserve string, amount float64) {
	if m == nil {
		return
	}
	if mode == "" {
		mode = "repaid"
	}
	m.flashLoans.WithLabelValues(mode).Inc()
	m.flashLoanVolume.WithLabelValues(normaliseReserve(reserve)).Set(amount)
}

func (m *LendingMetrics) IncGracePeriodRejection(module string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	m.gracePeriodTrips.WithLabelValues(module).Inc()
}

func normaliseReserve(reserve string) string {
	trimmed := strings.TrimSpace(reserve)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}
