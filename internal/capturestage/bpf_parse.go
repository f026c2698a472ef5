package capturestage

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/bpf"
)

// parseRawBPF parses `tcpdump -ddd`-style output: a first line giving the
// instruction count, then one "op jt jf k" tuple per line.
func parseRawBPF(s string) ([]bpf.RawInstruction, error) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("expected a count line followed by instruction lines")
	}

	count, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, fmt.Errorf("invalid instruction count %q: %w", lines[0], err)
	}

	instrLines := lines[1:]
	if len(instrLines) != count {
		return nil, fmt.Errorf("instruction count mismatch: header says %d, got %d lines", count, len(instrLines))
	}

	out := make([]bpf.RawInstruction, 0, count)
	for _, line := range instrLines {
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("malformed instruction line %q", line)
		}
		var vals [4]uint64
		for i, f := range fields {
			v, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("parse field %q: %w", f, err)
			}
			vals[i] = v
		}
		out = append(out, bpf.RawInstruction{
			Op: uint16(vals[0]), Jt: uint8(vals[1]), Jf: uint8(vals[2]), K: uint32(vals[3]),
		})
	}
	return out, nil
}
