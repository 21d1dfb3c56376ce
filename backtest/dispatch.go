package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/backtester/ledger"
	"github.com/rustyeddy/backtester/risk"
	"github.com/rustyeddy/backtester/strategy"
	"github.com/sirupsen/logrus"
)

// ErrUnknownKind is returned for a signal whose kind is not one of the
// declared strategy kinds. It aborts the run.
var ErrUnknownKind = errors.New("unknown signal kind")

// DispatchOptions are entry guards applied before a signal reaches the
// ledger. The zero value applies none.
type DispatchOptions struct {
	// MinConfidence skips entries whose confidence is below it.
	MinConfidence float64

	// RiskPerTrade, when positive, shrinks entries that carry a stop loss
	// so that hitting the stop loses at most this share of the balance.
	RiskPerTrade float64

	// Policy blocks entries that break its limits. Blocked entries count
	// as rejected.
	Policy risk.Policy
}

// Dispatcher routes signals to the ledger. Buy and Sell open, CloseLong
// and CloseShort close, Hold is dropped. The signal price is the fill.
type Dispatcher struct {
	ledger *ledger.Ledger
	opts   DispatchOptions
	log    logrus.FieldLogger

	rejected int
	skipped  int
}

func NewDispatcher(l *ledger.Ledger, opts DispatchOptions, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{ledger: l, opts: opts, log: log}
}

// Rejected counts signals the ledger refused or the risk policy blocked.
func (d *Dispatcher) Rejected() int { return d.rejected }

// Skipped counts entries dropped by MinConfidence.
func (d *Dispatcher) Skipped() int { return d.skipped }

// Dispatch applies sig to the ledger. Ledger refusals are logged and
// counted, not returned; only an unknown kind or an unexpected ledger
// error is.
func (d *Dispatcher) Dispatch(sig strategy.Signal) error {
	switch sig.Kind {
	case strategy.Hold:
		return nil
	case strategy.Buy:
		return d.open(sig, ledger.Long)
	case strategy.Sell:
		return d.open(sig, ledger.Short)
	case strategy.CloseLong:
		return d.close(sig, ledger.Long)
	case strategy.CloseShort:
		return d.close(sig, ledger.Short)
	default:
		return fmt.Errorf("%w: %s for %s at %s",
			ErrUnknownKind, sig.Kind, sig.Symbol, sig.Time.Format(time.RFC3339))
	}
}

func (d *Dispatcher) fields(sig strategy.Signal) logrus.Fields {
	return logrus.Fields{
		"symbol": sig.Symbol,
		"kind":   sig.Kind.String(),
		"price":  sig.Price,
		"time":   sig.Time.Format(time.RFC3339),
	}
}

func (d *Dispatcher) open(sig strategy.Signal, side ledger.Side) error {
	if sig.Confidence < d.opts.MinConfidence {
		d.skipped++
		d.log.WithFields(d.fields(sig)).
			WithField("confidence", sig.Confidence).
			Debug("entry below min confidence")
		return nil
	}

	e := ledger.Entry{
		Symbol:   sig.Symbol,
		Side:     side,
		Price:    sig.Price,
		Amount:   sig.Amount,
		Leverage: sig.Leverage,
		Time:     sig.Time,
	}
	if sig.StopLoss != nil {
		e.StopLoss = *sig.StopLoss
	}
	if sig.TakeProfit != nil {
		e.TakeProfit = *sig.TakeProfit
	}
	if d.opts.RiskPerTrade > 0 && e.StopLoss > 0 {
		e.Amount = risk.Size(d.ledger.Balance(), d.opts.RiskPerTrade, e.Price, e.StopLoss, e.Amount)
	}
	if d.opts.Policy.Enabled() {
		dec := d.opts.Policy.Evaluate(risk.Intent{
			Size:       e.Amount,
			Entry:      e.Price,
			Stop:       e.StopLoss,
			TakeProfit: e.TakeProfit,
		}, d.ledger.Balance(), len(d.ledger.Positions()))
		if !dec.Allowed {
			d.rejected++
			d.log.WithFields(d.fields(sig)).
				WithField("violations", dec.Codes()).
				Warn("open blocked by risk policy")
			return nil
		}
	}

	pos, err := d.ledger.Open(e)
	switch {
	case err == nil:
		f := d.fields(sig)
		f["size"] = pos.Size
		if pos.StopLoss > 0 {
			planned := risk.PlannedRisk(pos.Size, pos.EntryPrice, pos.StopLoss)
			f["risk_pct"] = risk.RiskPct(planned, d.ledger.Balance())
			if pos.TakeProfit > 0 {
				f["rr"] = risk.RR(pos.EntryPrice, pos.StopLoss, pos.TakeProfit)
			}
		}
		d.log.WithFields(f).Debug("position opened")
		return nil
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrPositionExists),
		errors.Is(err, ledger.ErrInvalidEntry):
		d.rejected++
		d.log.WithFields(d.fields(sig)).WithError(err).Warn("open rejected")
		return nil
	default:
		return fmt.Errorf("open %s: %w", sig.Symbol, err)
	}
}

func (d *Dispatcher) close(sig strategy.Signal, side ledger.Side) error {
	rec, ok, err := d.ledger.Close(ledger.Exit{
		Symbol: sig.Symbol,
		Side:   side,
		Price:  sig.Price,
		Time:   sig.Time,
		Reason: sig.Kind.String(),
	})
	switch {
	case err == nil && ok:
		d.log.WithFields(d.fields(sig)).
			WithField("pnl", rec.PnL).
			Debug("position closed")
		return nil
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrSideMismatch):
		d.rejected++
		d.log.WithFields(d.fields(sig)).WithError(err).Warn("close rejected")
		return nil
	default:
		return fmt.Errorf("close %s: %w", sig.Symbol, err)
	}
}
