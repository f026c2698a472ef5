package pcapio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// CurrentName returns the in-flight file name for a pcap ring (spec §6):
// <dir>/pcap.current.<pid>.
func CurrentName(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("pcap.current.%d", os.Getpid()))
}

// FinalName returns the published file name for a window: <dir>/pcapd.<ts>.
func FinalName(dir, timestamp string) string {
	return filepath.Join(dir, "pcapd."+timestamp)
}

// OpenNew creates (or truncates) the current pcap file and writes its
// header for the given link type and snap length, returning the open file
// and a ready-to-use packet writer.
func OpenNew(path string, linkType layers.LinkType, snaplen int) (*os.File, *pcapgo.Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open pcap file %s: %w", path, err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(uint32(snaplen), linkType); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("write pcap header %s: %w", path, err)
	}
	return f, w, nil
}

// RenameAtomic publishes the current file under its final window name. A
// failure here is logged by the caller and treated as non-fatal data loss
// for the window (spec §4.2 step 6, §4.3 failure semantics).
func RenameAtomic(from, to string) error {
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", from, to, err)
	}
	return nil
}
