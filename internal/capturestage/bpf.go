package capturestage

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"golang.org/x/net/bpf"
)

// bpfVM evaluates a compiled filter against raw packet bytes. Offline reads
// via pcapgo have no native BPF-compile primitive the way libpcap live
// handles do, so the pure-Go x/net/bpf VM stands in for that path.
type bpfVM struct {
	vm *bpf.VM
}

func (v bpfVM) matches(data []byte) bool {
	if v.vm == nil {
		return true
	}
	n, err := v.vm.Run(data)
	return err == nil && n > 0
}

// compileBPF compiles a tcpdump-style filter expression for the offline
// read path. An empty expression disables filtering (zero value bpfVM).
//
// x/net/bpf only assembles raw BPF instructions; it does not parse tcpdump
// filter syntax. Since libpcap's filter compiler (used transparently by
// pcap.Handle.SetBPFFilter on the live path) has no pure-Go equivalent
// anywhere in the retrieval pack, the offline path accepts only filters
// already expressed as a link-type-appropriate raw instruction dump (one
// decimal opcode tuple per line, tcpdump -ddd format) rather than free-form
// BPF syntax; an empty string disables filtering entirely.
func compileBPF(expr string, snaplen int, linkType layers.LinkType) (bpfVM, error) {
	if expr == "" {
		return bpfVM{}, nil
	}
	raw, err := parseRawBPF(expr)
	if err != nil {
		return bpfVM{}, fmt.Errorf("parse raw BPF program: %w", err)
	}
	insts, _ := bpf.Disassemble(raw)
	vm, err := bpf.NewVM(insts)
	if err != nil {
		return bpfVM{}, fmt.Errorf("assemble BPF program: %w", err)
	}
	return bpfVM{vm: vm}, nil
}
