// atrtool decodes and edits smart card Answer-To-Reset strings.
//
// The ATR is given as a hex argument or read from a PC/SC reader:
//
//	atrtool "3F 42 00 21 45" --indicate T=1 --format hex
//	atrtool --reader auto
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gregLibert/smart-card-atr/pkg/atr"
	"github.com/gregLibert/smart-card-atr/pkg/bits"
	"github.com/gregLibert/smart-card-atr/pkg/tlv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	log := logrus.New()
	if err := run(os.Args[1:], os.Stdout, log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer, log *logrus.Logger) error {
	var v flagValues
	fs := newFlagSet(&v)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stdout, fs)
			return nil
		}
		return err
	}
	if help, _ := fs.GetBool("help"); help {
		printHelp(stdout, fs)
		return nil
	}

	opts, err := resolveOptions(fs, v)
	if err != nil {
		return err
	}
	log.SetLevel(opts.LogLevel)

	a, err := loadATR(fs.Args(), opts, log)
	if err != nil {
		return err
	}
	if !a.ChecksumValid() {
		log.Warnf("TCK does not match, expected %02X", expectedTCK(a))
	}

	trace, err := applyEdits(a, opts, log)
	if err != nil {
		return err
	}
	if last := trace.Last(); last != nil {
		log.Infof("%d edit(s) applied, last: %s", len(trace), last.Op)
	}

	out, err := render(a, trace, opts.Format)
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, out)
	return err
}

// loadATR takes the ATR from the positional hex argument or from a reader.
func loadATR(args []string, opts options, log *logrus.Logger) (*atr.Atr, error) {
	var parseOpts []atr.ParseOption
	if opts.LenientChecksum {
		parseOpts = append(parseOpts, atr.WithLenientChecksum())
	}

	if opts.Reader != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("give either --reader or a hex ATR, not both")
		}
		return readATR(log, opts.Reader, parseOpts...)
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("no ATR given (pass hex bytes or --reader)")
	}
	raw, err := tlv.ParseHex(strings.Join(args, " "))
	if err != nil {
		return nil, err
	}
	log.Debugf("Parsing %d byte ATR", len(raw))
	return atr.Parse(raw, parseOpts...)
}

// expectedTCK recomputes the check byte of a leniently parsed ATR.
func expectedTCK(a *atr.Atr) byte {
	out := a.Bytes()
	return bits.XOR(out[1 : len(out)-1])
}

func printHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: atrtool [flags] [hex ATR]")
	fmt.Fprintln(w)
	fmt.Fprint(w, fs.FlagUsages())
}
