package filter

import (
	"fmt"

	"golang.org/x/net/bpf"

	"firestige.xyz/rxsink/internal/core"
)

// BPF runs a classic BPF program over the packet's raw frame and matches when
// the program accepts it (returns a non-zero length). Packets without a frame never match.
type BPF struct {
	vm *bpf.VM
}

// NewBPF builds a BPF predicate from instructions in `tcpdump -dd` form.
func NewBPF(raw []bpf.RawInstruction) (*BPF, error) {
	insts, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("%w: bpf program contains undecodable instructions", core.ErrConfigInvalid)
	}
	vm, err := bpf.NewVM(insts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return &BPF{vm: vm}, nil
}

func (b *BPF) Match(p core.Packet) bool {
	if len(p.Raw) == 0 {
		return false
	}
	n, err := b.vm.Run(p.Raw)
	return err == nil && n > 0
}
