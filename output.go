package main

import (
	"fmt"

	"github.com/gregLibert/smart-card-atr/pkg/atr"
	"github.com/gregLibert/smart-card-atr/pkg/tlv"
	"gopkg.in/yaml.v3"
)

// atrView is the YAML document emitted by --format yaml.
type atrView struct {
	ATR           string   `yaml:"atr"`
	Convention    string   `yaml:"convention"`
	Protocols     []string `yaml:"protocols"`
	Implicit      bool     `yaml:"implicit_protocol,omitempty"`
	Groups        []string `yaml:"interface_groups,omitempty"`
	Historical    string   `yaml:"historical_bytes,omitempty"`
	TCK           string   `yaml:"tck,omitempty"`
	ChecksumValid bool     `yaml:"checksum_valid"`

	Global globalView `yaml:"global"`
	T0     *t0View    `yaml:"t0,omitempty"`
	T1     *t1View    `yaml:"t1,omitempty"`
	T15    *t15View   `yaml:"t15,omitempty"`

	HistoricalInfo *historicalView `yaml:"historical,omitempty"`
	Edits          []stepView      `yaml:"edits,omitempty"`
}

type globalView struct {
	Fi             int     `yaml:"fi"`
	Di             int     `yaml:"di"`
	FMaxMHz        float64 `yaml:"f_max_mhz"`
	ExtraGuardTime byte    `yaml:"extra_guard_time"`
	SpecificMode   string  `yaml:"specific_mode,omitempty"`
}

type t0View struct {
	WI byte `yaml:"wi"`
}

type t1View struct {
	IFSC           int    `yaml:"ifsc"`
	BWI            byte   `yaml:"bwi"`
	CWI            byte   `yaml:"cwi"`
	ErrorDetection string `yaml:"error_detection"`
}

type t15View struct {
	ClockStop string   `yaml:"clock_stop"`
	Classes   []string `yaml:"classes"`
	SPU       string   `yaml:"spu,omitempty"`
}

type historicalView struct {
	Category     string `yaml:"category"`
	Status       string `yaml:"status,omitempty"`
	DIRReference string `yaml:"dir_reference,omitempty"`
	Proprietary  string `yaml:"proprietary,omitempty"`
	Standard     string `yaml:"contactless_standard,omitempty"`
	CardName     string `yaml:"contactless_card,omitempty"`
	Error        string `yaml:"error,omitempty"`
}

type stepView struct {
	Op     string `yaml:"op"`
	Result string `yaml:"result"`
}

func newATRView(a *atr.Atr, trace Trace) atrView {
	v := atrView{
		ATR:           a.String(),
		Convention:    a.Convention().String(),
		Implicit:      a.IsProtocolImplicit(),
		Historical:    tlv.FormatHex(a.HistoricalBytes()),
		ChecksumValid: a.ChecksumValid(),
	}

	for _, p := range a.Protocols() {
		v.Protocols = append(v.Protocols, p.String())
	}
	for _, g := range a.Groups() {
		v.Groups = append(v.Groups, g.String())
	}
	if tck, ok := a.Checksum(); ok {
		v.TCK = fmt.Sprintf("%02X", tck)
	}

	g := a.Global()
	v.Global = globalView{Fi: g.Fi, Di: g.Di, FMaxMHz: g.FMax, ExtraGuardTime: g.ExtraGuardTime}
	if g.SpecificMode != nil {
		v.Global.SpecificMode = g.SpecificMode.Protocol.String()
	}

	if a.Indicates(atr.T0) {
		v.T0 = &t0View{WI: a.T0Params().WI}
	}
	if a.Indicates(atr.T1) {
		t1 := a.T1Params()
		v.T1 = &t1View{IFSC: t1.IFSC, BWI: t1.BWI, CWI: t1.CWI, ErrorDetection: t1.ErrorDetection.String()}
	}
	if t15 := a.T15Params(); t15.Present {
		v.T15 = &t15View{ClockStop: t15.ClockStop.String(), Classes: t15.ClassNames()}
		if t15.SPU != nil {
			v.T15.SPU = fmt.Sprintf("%02X", *t15.SPU)
		}
	}

	if len(a.HistoricalBytes()) > 0 {
		v.HistoricalInfo = newHistoricalView(a)
	}

	for _, step := range trace {
		v.Edits = append(v.Edits, stepView(step))
	}
	return v
}

func newHistoricalView(a *atr.Atr) *historicalView {
	h, err := a.Historical()
	if err != nil {
		return &historicalView{Error: err.Error()}
	}

	v := &historicalView{
		Category:     fmt.Sprintf("%02X", h.Category),
		Status:       tlv.FormatHex(h.Status),
		DIRReference: tlv.FormatHex(h.DIRReference),
		Proprietary:  tlv.FormatHex(h.Proprietary),
	}
	if h.Contactless != nil {
		v.Standard = h.Contactless.StandardName()
		v.CardName = h.Contactless.Name()
	}
	return v
}

// render formats the ATR for output.
func render(a *atr.Atr, trace Trace, format string) (string, error) {
	switch format {
	case formatHex:
		return a.String() + "\n", nil
	case formatYAML:
		out, err := yaml.Marshal(newATRView(a, trace))
		if err != nil {
			return "", fmt.Errorf("yaml output: %w", err)
		}
		return string(out), nil
	default:
		return a.Describe() + "\n", nil
	}
}
