package hostid

import (
	"os"
	"strconv"
	"strings"

	gopsutilnet "github.com/shirou/gopsutil/v3/net"

	"github.com/endlessm/eos-metrics-go/internal/obslog"
)

// SentinelMachineID is returned when no identifying hardware MAC address
// could be found: 1 << 48, one bit beyond the 48 bits a real MAC occupies.
const SentinelMachineID int64 = 1 << 48

// softwareMACMarkerFile mirrors original_source/eosmetrics/emtr-mac.c's
// heuristic for detecting a platform (e.g. the ODROID U2) that burns in a
// fake MAC address rather than a real one.
const softwareMACMarkerFile = "/etc/smsc95xx_mac_addr"

// computeMachineID enumerates network interfaces and derives a 48-bit
// machine identifier from a hardware address, preferring "eth0" over any
// other non-loopback interface and otherwise taking the last one
// enumerated. Returns SentinelMachineID if no suitable
// interface is found or the platform is known to fake its MAC address.
func computeMachineID() int64 {
	if isSoftwareGeneratedMAC() {
		obslog.Default().Debug("platform has software-generated MAC address")
		return SentinelMachineID
	}

	interfaces, err := gopsutilnet.Interfaces()
	if err != nil {
		obslog.Default().Warn("could not enumerate network interfaces", "error", err)
		return SentinelMachineID
	}

	var chosen string
	foundEth0 := false
	for _, iface := range interfaces {
		if iface.Name == "lo" {
			continue
		}
		if iface.HardwareAddr == "" {
			continue
		}
		if foundEth0 {
			continue
		}
		chosen = iface.HardwareAddr
		foundEth0 = iface.Name == "eth0"
	}

	if chosen == "" {
		obslog.Default().Warn("no network interface with a hardware address found")
		return SentinelMachineID
	}

	parsed, ok := ParseMACAddress(chosen)
	if !ok {
		obslog.Default().Warn("could not parse MAC address", "mac", chosen)
		return SentinelMachineID
	}
	return parsed
}

// ParseMACAddress parses a colon-separated hex MAC address
// ("01:23:45:67:89:ab") into a 48-bit integer
// b[0]<<40 | b[1]<<32 | ... | b[5]. Returns ok=false on any malformed input.
func ParseMACAddress(s string) (int64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return 0, false
	}
	var result int64
	for i, p := range parts {
		if len(p) != 2 {
			return 0, false
		}
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return 0, false
		}
		shift := uint((5 - i) * 8)
		result |= int64(b) << shift
	}
	return result, true
}

func isSoftwareGeneratedMAC() bool {
	_, err := os.Stat(softwareMACMarkerFile)
	return err == nil
}
