package wpa

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-edge/internal/link"
)

// Default locations of the kernel routing table and resolver config.
const (
	DefaultRouteFile  = "/proc/net/route"
	DefaultResolvFile = "/etc/resolv.conf"
)

// AddrLookup returns the addresses assigned to an interface.
type AddrLookup func(iface string) ([]netip.Prefix, error)

// interfaceAddrs is the AddrLookup backed by the net package.
func interfaceAddrs(iface string) ([]netip.Prefix, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, err
	}

	prefixes := make([]netip.Prefix, 0, len(addrs))
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok {
			continue
		}
		ones, _ := ipNet.Mask.Size()
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), ones))
	}
	return prefixes, nil
}

// pickIPv4 returns the first non-link-local IPv4 prefix.
func pickIPv4(prefixes []netip.Prefix) (netip.Prefix, bool) {
	for _, p := range prefixes {
		if p.Addr().Is4() && !p.Addr().IsLinkLocalUnicast() {
			return p, true
		}
	}
	return netip.Prefix{}, false
}

// defaultGateway reads the IPv4 default route for iface from a
// /proc/net/route formatted file.
func defaultGateway(path, iface string) (netip.Addr, error) {
	f, err := os.Open(path)
	if err != nil {
		return netip.Addr{}, err
	}
	defer f.Close()
	return parseRoutes(f, iface)
}

func parseRoutes(r io.Reader, iface string) (netip.Addr, error) {
	scanner := bufio.NewScanner(r)
	scanner.Scan() // header

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[0] != iface || fields[1] != "00000000" {
			continue
		}
		raw, err := hex.DecodeString(fields[2])
		if err != nil || len(raw) != 4 {
			return netip.Addr{}, fmt.Errorf("malformed gateway %q", fields[2])
		}
		// The kernel prints the address in host (little-endian) order.
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], binary.LittleEndian.Uint32(raw))
		return netip.AddrFrom4(b), nil
	}
	if err := scanner.Err(); err != nil {
		return netip.Addr{}, err
	}
	return netip.Addr{}, errors.New("no default route")
}

// nameservers reads nameserver lines from a resolv.conf formatted file.
func nameservers(path string) ([]netip.Addr, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseResolv(f)
}

func parseResolv(r io.Reader) ([]netip.Addr, error) {
	var servers []netip.Addr
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "nameserver" {
			continue
		}
		if addr, err := netip.ParseAddr(fields[1]); err == nil {
			servers = append(servers, addr)
		}
	}
	return servers, scanner.Err()
}

// ipInfo assembles the interface addressing. Only the address is
// required; gateway and DNS are best effort.
func (d *Driver) ipInfo(status map[string]string) (link.IPInfo, error) {
	info := link.IPInfo{Interface: d.cfg.Interface}

	prefixes, err := d.lookup(d.cfg.Interface)
	if err != nil {
		return info, fmt.Errorf("reading %s addresses: %w", d.cfg.Interface, err)
	}
	prefix, ok := pickIPv4(prefixes)
	if !ok {
		// Fall back to the supplicant's view, which lacks the mask.
		addr, perr := netip.ParseAddr(status["ip_address"])
		if perr != nil {
			return info, link.ErrNotAvailable
		}
		prefix = netip.PrefixFrom(addr, addr.BitLen())
	}
	info.Address = prefix

	if gw, err := defaultGateway(d.cfg.RouteFile, d.cfg.Interface); err == nil {
		info.Gateway = gw
	} else {
		d.logger.Debug("no default gateway", "interface", d.cfg.Interface, "error", err)
	}
	if dns, err := nameservers(d.cfg.ResolvFile); err == nil {
		info.DNS = dns
	}
	return info, nil
}
