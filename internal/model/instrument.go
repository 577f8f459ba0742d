package model

import (
	"fmt"
	"strings"
)

// Source selects the acquisition strategy family for an instrument.
type Source int

const (
	SourceUnknown Source = iota
	SourceCNIndex
	SourceSector
	SourcePreciousMetal
	SourceOffshore
	SourceCrypto
)

var sourceNames = map[Source]string{
	SourceCNIndex:       "cn_index",
	SourceSector:        "sector",
	SourcePreciousMetal: "precious_metal",
	SourceOffshore:      "offshore",
	SourceCrypto:        "crypto",
}

// sourceDesignators maps every accepted designator, including legacy ones, onto a source.
var sourceDesignators = map[string]Source{
	"cn_index":                SourceCNIndex,
	"cs_index":                SourceCNIndex,
	"eastmoney":               SourceCNIndex,
	"sector":                  SourceSector,
	"eastmoney_sector":        SourceSector,
	"ths":                     SourceSector,
	"precious_metal":          SourcePreciousMetal,
	"spot_price":              SourcePreciousMetal,
	"commodity":               SourcePreciousMetal,
	"ths_commodity":           SourcePreciousMetal,
	"commodity_international": SourcePreciousMetal,
	"offshore":                SourceOffshore,
	"hk":                      SourceOffshore,
	"us":                      SourceOffshore,
	"jp":                      SourceOffshore,
	"crypto":                  SourceCrypto,
}

// Sources lists every known source in a stable order.
func Sources() []Source {
	return []Source{SourceCNIndex, SourceSector, SourcePreciousMetal, SourceOffshore, SourceCrypto}
}

// ParseSource resolves a designator. Unknown designators yield SourceUnknown and an error.
func ParseSource(s string) (Source, error) {
	if src, ok := sourceDesignators[strings.ToLower(strings.TrimSpace(s))]; ok {
		return src, nil
	}
	return SourceUnknown, fmt.Errorf("unknown source designator %q", s)
}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "unknown"
}

// UnmarshalText lets yaml and envconfig decode designators straight into the enum.
func (s *Source) UnmarshalText(text []byte) error {
	src, err := ParseSource(string(text))
	if err != nil {
		return err
	}
	*s = src
	return nil
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Instrument is one tracked index or sector group.
type Instrument struct {
	Code   string `yaml:"code"`
	Name   string `yaml:"name"`
	Source Source `yaml:"source"`
	// Alias is the name used for name-based fallback lookups when it differs from Name.
	Alias string `yaml:"alias,omitempty"`
}

// LookupName returns the name used for name-based lookups.
func (i Instrument) LookupName() string {
	if i.Alias != "" {
		return i.Alias
	}
	return i.Name
}
