package main

import (
	"fmt"
	"strings"

	"github.com/gregLibert/smart-card-atr/pkg/atr"
	"github.com/gregLibert/smart-card-atr/pkg/tlv"
	"github.com/moov-io/bertlv"
	"github.com/sirupsen/logrus"
)

// EDIT TRACE:
// Every command line edit is applied in order: removals, then indications,
// then the historical bytes (raw hex or COMPACT-TLV objects). A Step is
// recorded each time the ATR actually changes, so edits that were already
// satisfied leave no trace.

// Step is one effective change of the ATR.
type Step struct {
	Op     string
	Result string
}

// Trace is the chronological list of effective changes.
type Trace []Step

// Last returns the final step, or nil if nothing changed.
func (t Trace) Last() *Step {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// applyEdits mutates a according to opts and returns the recorded trace.
func applyEdits(a *atr.Atr, opts options, log *logrus.Logger) (Trace, error) {
	var trace Trace
	current := ""

	cancel := a.OnChange(func() {
		step := Step{Op: current, Result: a.String()}
		trace = append(trace, step)
		log.WithField("op", step.Op).Debugf("ATR now %s", step.Result)
	})
	defer cancel()

	for _, name := range opts.Remove {
		p, err := atr.ParseProtocol(name)
		if err != nil {
			return trace, err
		}
		current = "remove " + p.String()
		if err := a.RemoveProtocol(p); err != nil {
			return trace, err
		}
	}

	for _, name := range opts.Indicate {
		p, err := atr.ParseProtocol(name)
		if err != nil {
			return trace, err
		}
		current = "indicate " + p.String()
		if err := a.IndicateProtocol(p); err != nil {
			return trace, err
		}
	}

	data, replace, err := historicalBytes(opts)
	if err != nil {
		return trace, err
	}
	if replace {
		current = "set historical bytes"
		if err := a.SetHistoricalBytes(data); err != nil {
			return trace, err
		}
	}

	return trace, nil
}

// historicalBytes returns the requested replacement for the historical bytes,
// either raw hex or assembled from COMPACT-TLV objects.
func historicalBytes(opts options) ([]byte, bool, error) {
	if len(opts.HistoricalObjects) > 0 {
		objects := make([]bertlv.TLV, 0, len(opts.HistoricalObjects))
		for _, arg := range opts.HistoricalObjects {
			tag, value, ok := strings.Cut(arg, "=")
			if !ok {
				return nil, false, fmt.Errorf("--historical-object %q: want TAG=HEX", arg)
			}
			data, err := tlv.ParseHex(value)
			if err != nil {
				return nil, false, fmt.Errorf("--historical-object %q: %w", arg, err)
			}
			objects = append(objects, bertlv.TLV{Tag: strings.ToUpper(strings.TrimSpace(tag)), Value: data})
		}

		data, err := atr.CompactHistorical(objects)
		if err != nil {
			return nil, false, fmt.Errorf("--historical-object: %w", err)
		}
		return data, true, nil
	}

	if !opts.replaceHist {
		return nil, false, nil
	}
	data, err := tlv.ParseHex(opts.Historical)
	if err != nil {
		return nil, false, fmt.Errorf("--historical: %w", err)
	}
	return data, true, nil
}
