/*
Package atr decodes, edits and re-encodes the Answer-To-Reset (ATR) of a smart card according to ISO/IEC 7816-3.

The ATR is the first thing a card sends after a cold or warm reset. It tells the
terminal which bit convention is in use, which transmission protocols the card
offers and with which parameters, and carries a few card-specific historical bytes.

# Structure

	TS  T0  [TA1 TB1 TC1 TD1]  [TA2 TB2 TC2 TD2]  ...  T1..TK  [TCK]

  - TS: Initial character. 0x3B (direct convention) or 0x3F (inverse convention).
  - T0: Format byte. Bits 8-5 (Y1) flag the presence of TA1, TB1, TC1 and TD1.
    Bits 4-1 (K) give the number of historical bytes.
  - Interface groups: each TDi announces, in its high nibble (Yi+1), which bytes
    of the next group follow, and in its low nibble the protocol T the next
    group's bytes apply to. A group without TD ends the chain.
  - Historical bytes: K bytes describing the card (see ParseHistorical).
  - TCK: check byte. Present as soon as a TD byte indicates a protocol other than
    T=0. The exclusive-or of all bytes from T0 to TCK inclusive is zero.

When TD1 is absent the card implicitly offers T=0 only.

# Editing

An Atr is an editable model. Every mutation re-links the chain (T0 and TD
high nibbles) and, on serialisation, recomputes T0's K nibble and the TCK:

	a, err := atr.Parse(tlv.Hex("3F 42 00 21 45"))
	if err != nil {
	    log.Fatal(err)
	}

	// The card implicitly offered T=0. Offering T=1 as well makes T=0
	// explicit (TD1) before chaining the new declaration (TD2).
	if err := a.IndicateProtocol(atr.T1); err != nil {
	    log.Fatal(err)
	}

	fmt.Println(a) // 3F C2 00 80 01 21 45 27

Observers registered with OnChange are called synchronously after each
mutation that changes the serialised form.

An Atr is not safe for concurrent use; callers sharing one across goroutines
must serialise access themselves.
*/
package atr
