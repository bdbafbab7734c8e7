package main

import (
	"fmt"

	"github.com/ebfe/scard"
	"github.com/gregLibert/smart-card-atr/pkg/atr"
	"github.com/sirupsen/logrus"
)

// READER ACCESS:
// The ATR is already known to the PC/SC resource manager once a card is
// powered. Connecting in shared mode and asking for the card status is enough
// to fetch it; no APDU is exchanged.

// pcscContext abstracts *scard.Context.
type pcscContext interface {
	ListReaders() ([]string, error)
	Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (connectedCard, error)
	Release() error
}

// statusCard abstracts the part of *scard.Card that reports the ATR.
type statusCard interface {
	Status() (*scard.CardStatus, error)
}

// connectedCard is a card handle returned by pcscContext.Connect.
type connectedCard interface {
	statusCard
	Disconnect(d scard.Disposition) error
}

// scardContext adapts *scard.Context to pcscContext.
type scardContext struct {
	*scard.Context
}

func (c scardContext) Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (connectedCard, error) {
	card, err := c.Context.Connect(reader, mode, proto)
	if err != nil {
		return nil, err
	}
	return card, nil
}

// pickReader resolves the --reader value against the connected readers.
func pickReader(readers []string, want string) (string, error) {
	if len(readers) == 0 {
		return "", fmt.Errorf("no smart card reader found")
	}
	if want == autoReader {
		return readers[0], nil
	}
	for _, r := range readers {
		if r == want {
			return r, nil
		}
	}
	return "", fmt.Errorf("reader %q not found (available: %q)", want, readers)
}

// atrFromCard parses the ATR reported by the card status.
func atrFromCard(card statusCard, opts ...atr.ParseOption) (*atr.Atr, error) {
	status, err := card.Status()
	if err != nil {
		return nil, fmt.Errorf("card status: %w", err)
	}
	a, err := atr.Parse(status.Atr, opts...)
	if err != nil {
		return nil, fmt.Errorf("ATR from reader %q: %w", status.Reader, err)
	}
	return a, nil
}

// readATR connects to the selected reader and returns the ATR of its card.
func readATR(log *logrus.Logger, want string, opts ...atr.ParseOption) (*atr.Atr, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establishing PC/SC context: %w", err)
	}
	return readATRWith(scardContext{ctx}, log, want, opts...)
}

// readATRWith fetches the ATR through ctx and always releases it.
func readATRWith(ctx pcscContext, log *logrus.Logger, want string, opts ...atr.ParseOption) (*atr.Atr, error) {
	defer func() {
		if err := ctx.Release(); err != nil {
			log.Warnf("Failed to release context: %v", err)
		}
	}()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("listing readers: %w", err)
	}
	reader, err := pickReader(readers, want)
	if err != nil {
		return nil, err
	}
	log.Infof("Using reader: %s", reader)

	// Force T=0 or T=1 to avoid "Parameter Incorrect" errors (Error 57)
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		return nil, fmt.Errorf("connecting to card in %q: %w", reader, err)
	}
	defer func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			log.Warnf("Failed to disconnect card: %v", err)
		}
	}()

	return atrFromCard(card, opts...)
}
