package filter

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/net/bpf"

	"firestige.xyz/rxsink/internal/core"
)

// Element type names accepted in configuration.
const (
	TypeSourceAddress      = "source_address"
	TypeDestinationAddress = "destination_address"
	TypeSenderAddress      = "sender_address"
	TypeProtocol           = "protocol"
	TypeMinLength          = "min_length"
	TypeBPF                = "bpf"
	TypeAll                = "all"
	TypeAny                = "any"
	TypeNot                = "not"
)

// Spec is the configuration form of an Element.
type Spec struct {
	Type   string         `mapstructure:"type" yaml:"type"`
	Params map[string]any `mapstructure:"params" yaml:"params,omitempty"`
}

type addressParams struct {
	Address string `mapstructure:"address"`
	Port    uint16 `mapstructure:"port"`
}

type protocolParams struct {
	Number uint8  `mapstructure:"number"`
	Name   string `mapstructure:"name"`
}

type lengthParams struct {
	Bytes int `mapstructure:"bytes"`
}

type bpfParams struct {
	// Each instruction is [op, jt, jf, k].
	Instructions [][4]uint32 `mapstructure:"instructions"`
}

type compositeParams struct {
	Elements []Spec `mapstructure:"elements"`
}

type notParams struct {
	Element Spec `mapstructure:"element"`
}

// Build turns a list of specs into one Element. Several specs are combined with All;
// an empty list returns nil, meaning "no filter".
func Build(specs []Spec) (Element, error) {
	switch len(specs) {
	case 0:
		return nil, nil
	case 1:
		return BuildOne(specs[0])
	}
	all := make(All, 0, len(specs))
	for i, s := range specs {
		e, err := BuildOne(s)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		all = append(all, e)
	}
	return all, nil
}

// BuildOne constructs a single Element from its spec.
func BuildOne(s Spec) (Element, error) {
	switch strings.ToLower(s.Type) {
	case TypeSourceAddress:
		addr, _, err := decodeAddress(s)
		if err != nil {
			return nil, err
		}
		return NewSourceAddress(addr), nil

	case TypeDestinationAddress:
		addr, _, err := decodeAddress(s)
		if err != nil {
			return nil, err
		}
		return NewDestinationAddress(addr), nil

	case TypeSenderAddress:
		addr, port, err := decodeAddress(s)
		if err != nil {
			return nil, err
		}
		return NewSenderAddress(addr, port), nil

	case TypeProtocol:
		var p protocolParams
		if err := decodeParams(s, &p); err != nil {
			return nil, err
		}
		switch strings.ToLower(p.Name) {
		case "":
			if p.Number == 0 {
				return nil, fmt.Errorf("%w: protocol filter requires 'number' or 'name'", core.ErrConfigInvalid)
			}
			return NewProtocol(p.Number), nil
		case "tcp":
			return NewProtocol(core.IPProtoTCP), nil
		case "udp":
			return NewProtocol(core.IPProtoUDP), nil
		default:
			return nil, fmt.Errorf("%w: unknown protocol name %q", core.ErrConfigInvalid, p.Name)
		}

	case TypeMinLength:
		var p lengthParams
		if err := decodeParams(s, &p); err != nil {
			return nil, err
		}
		if p.Bytes < 0 {
			return nil, fmt.Errorf("%w: min_length bytes must be >= 0", core.ErrConfigInvalid)
		}
		return MinLength{N: p.Bytes}, nil

	case TypeBPF:
		var p bpfParams
		if err := decodeParams(s, &p); err != nil {
			return nil, err
		}
		if len(p.Instructions) == 0 {
			return nil, fmt.Errorf("%w: bpf filter requires 'instructions'", core.ErrConfigInvalid)
		}
		raw := make([]bpf.RawInstruction, len(p.Instructions))
		for i, ins := range p.Instructions {
			raw[i] = bpf.RawInstruction{Op: uint16(ins[0]), Jt: uint8(ins[1]), Jf: uint8(ins[2]), K: ins[3]}
		}
		return NewBPF(raw)

	case TypeAll, TypeAny:
		var p compositeParams
		if err := decodeParams(s, &p); err != nil {
			return nil, err
		}
		elems := make([]Element, 0, len(p.Elements))
		for i, child := range p.Elements {
			e, err := BuildOne(child)
			if err != nil {
				return nil, fmt.Errorf("%s element %d: %w", s.Type, i, err)
			}
			elems = append(elems, e)
		}
		if strings.ToLower(s.Type) == TypeAll {
			return All(elems), nil
		}
		return Any(elems), nil

	case TypeNot:
		var p notParams
		if err := decodeParams(s, &p); err != nil {
			return nil, err
		}
		e, err := BuildOne(p.Element)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return Not{Element: e}, nil

	default:
		return nil, fmt.Errorf("%w: unknown filter type %q", core.ErrConfigInvalid, s.Type)
	}
}

func decodeAddress(s Spec) (netip.Addr, uint16, error) {
	var p addressParams
	if err := decodeParams(s, &p); err != nil {
		return netip.Addr{}, 0, err
	}
	addr, err := netip.ParseAddr(p.Address)
	if err != nil {
		return netip.Addr{}, 0, fmt.Errorf("%w: %s address %q: %v", core.ErrConfigInvalid, s.Type, p.Address, err)
	}
	return addr, p.Port, nil
}

// decodeParams decodes the loosely typed params map (YAML/viper output) into a typed struct.
func decodeParams(s Spec, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(s.Params); err != nil {
		return fmt.Errorf("%w: %s params: %v", core.ErrConfigInvalid, s.Type, err)
	}
	return nil
}
