package compose

import (
	"github.com/Gaon3/loom/internal/money"
	"github.com/holiman/uint256"
)

// TxComposeBest is the per-selection-window admission filter over competing
// candidates. It retains the best-known candidate along four independent
// dimensions (absolute profit, tip amount, tip/gas ratio, profit/gas ratio)
// and optionally lets near-best candidates through a tolerance band so that a
// single early leader does not starve close competitors.
//
// Memory is O(1) in the number of candidates seen: four retained slots.
// The selector is owned by one goroutine for one window (one block); it is
// not safe for concurrent use.
type TxComposeBest struct {
	validityPct *money.BPS

	bestProfit         *TxComposeData
	bestProfitGasRatio *TxComposeData
	bestTips           *TxComposeData
	bestTipsGasRatio   *TxComposeData
}

// NewTxComposeBest creates a selector without a tolerance band: only strict
// improvements are kept.
func NewTxComposeBest() *TxComposeBest {
	return &TxComposeBest{}
}

// NewTxComposeBestWithPct creates a selector with a tolerance band in basis
// points over scale 10000. With 9000 a candidate within 90% of the best is
// still let through.
func NewTxComposeBestWithPct(pct money.BPS) *TxComposeBest {
	return &TxComposeBest{validityPct: &pct}
}

// Check decides whether the candidate warrants continued processing. For each
// dimension: an empty slot or a strict improvement takes the slot and
// accepts; otherwise, with a tolerance configured, the candidate is accepted
// without taking the slot when best*pct/10000 < value. Tip dimensions are
// only evaluated when the candidate has a tip; gas ratios only when gas is
// non-zero. The call accepts when any dimension accepted.
func (b *TxComposeBest) Check(request *TxComposeData) bool {
	if request == nil {
		return false
	}
	ok := false

	if b.checkDimension(&b.bestProfit, request, func(d *TxComposeData) *uint256.Int {
		return d.Swap.AbsProfitETH()
	}) {
		ok = true
	}

	if request.Tips != nil {
		if b.checkDimension(&b.bestTips, request, func(d *TxComposeData) *uint256.Int {
			if d.Tips == nil {
				return uint256.NewInt(0)
			}
			return d.Tips
		}) {
			ok = true
		}
	}

	if request.Gas != 0 {
		if b.checkDimension(&b.bestTipsGasRatio, request, func(d *TxComposeData) *uint256.Int {
			return d.TipsGasRatio()
		}) {
			ok = true
		}
		if b.checkDimension(&b.bestProfitGasRatio, request, func(d *TxComposeData) *uint256.Int {
			return d.ProfitETHGasRatio()
		}) {
			ok = true
		}
	}

	return ok
}

// checkDimension applies the slot rule for one scoring dimension.
func (b *TxComposeBest) checkDimension(slot **TxComposeData, request *TxComposeData, metric func(*TxComposeData) *uint256.Int) bool {
	best := *slot
	if best == nil {
		*slot = request.Clone()
		return true
	}
	bestValue, value := metric(best), metric(request)
	if bestValue.Cmp(value) < 0 {
		*slot = request.Clone()
		return true
	}
	if b.validityPct != nil {
		if b.validityPct.ApplyTo(bestValue).Cmp(value) < 0 {
			return true
		}
	}
	return false
}

// BestProfit returns the retained best-profit candidate, nil when none seen.
func (b *TxComposeBest) BestProfit() *TxComposeData { return b.bestProfit }

// BestTips returns the retained best-tips candidate.
func (b *TxComposeBest) BestTips() *TxComposeData { return b.bestTips }

// BestTipsGasRatio returns the retained best tip/gas candidate.
func (b *TxComposeBest) BestTipsGasRatio() *TxComposeData { return b.bestTipsGasRatio }

// BestProfitGasRatio returns the retained best profit/gas candidate.
func (b *TxComposeBest) BestProfitGasRatio() *TxComposeData { return b.bestProfitGasRatio }
