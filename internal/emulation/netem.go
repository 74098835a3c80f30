package emulation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	// DefaultMTU is the MTU of an Ethernet interface.
	DefaultMTU = 1500

	tcPath       = "/usr/sbin/tc"
	iptablesPath = "/usr/sbin/iptables"
	ipPath       = "/usr/sbin/ip"
)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command on the host.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("command '%s %s' failed: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Host configures netem qdiscs and iptables rules through tc, ip and
// iptables.
type Host struct {
	run Runner
}

// NewHost creates a Host that issues its commands through run.
func NewHost(run Runner) *Host {
	if run == nil {
		run = ExecRunner
	}
	return &Host{run: run}
}

// AddQdisc installs the root netem qdisc of iface.
func (h *Host) AddQdisc(ctx context.Context, iface string, e Entry) error {
	return h.qdisc(ctx, "add", iface, e)
}

// ChangeQdisc updates the root netem qdisc of iface.
func (h *Host) ChangeQdisc(ctx context.Context, iface string, e Entry) error {
	return h.qdisc(ctx, "change", iface, e)
}

func (h *Host) qdisc(ctx context.Context, op, iface string, e Entry) error {
	args := append([]string{"qdisc", op, "root", "handle", "1:", "dev", iface}, e.NetemArgs()...)
	if _, err := h.run(ctx, tcPath, args...); err != nil {
		return fmt.Errorf("failed to %s netem qdisc on '%s': %w", op, iface, err)
	}
	return nil
}

// DeleteQdisc removes the root qdisc of iface.
func (h *Host) DeleteQdisc(ctx context.Context, iface string) error {
	if _, err := h.run(ctx, tcPath, "qdisc", "del", "root", "dev", iface); err != nil {
		return fmt.Errorf("failed to delete qdisc on '%s': %w", iface, err)
	}
	return nil
}

// CheckQdisc verifies that iface carries exactly one qdisc and that it is
// netem.
func (h *Host) CheckQdisc(ctx context.Context, iface string) error {
	out, err := h.run(ctx, tcPath, "-j", "qdisc", "sh", "dev", iface)
	if err != nil {
		return fmt.Errorf("failed to query qdiscs of '%s': %w", iface, err)
	}
	var qdiscs []struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(out, &qdiscs); err != nil {
		return fmt.Errorf("failed to parse qdiscs of '%s': %w", iface, err)
	}
	if len(qdiscs) != 1 || qdiscs[0].Kind != "netem" {
		return fmt.Errorf("interface '%s' has no netem root qdisc", iface)
	}
	return nil
}

// SetMTU sets the MTU of iface. With clear the FORWARD chain is flushed;
// otherwise a non-default MTU is enforced on TCP handshakes by clamping
// the MSS.
func (h *Host) SetMTU(ctx context.Context, iface string, mtu int, clear bool) error {
	if _, err := h.run(ctx, ipPath, "link", "set", "dev", iface, "mtu", strconv.Itoa(mtu)); err != nil {
		return fmt.Errorf("failed to set MTU of '%s': %w", iface, err)
	}
	var err error
	switch {
	case clear:
		_, err = h.run(ctx, iptablesPath, "-F", "FORWARD")
	case mtu != DefaultMTU:
		_, err = h.run(ctx, iptablesPath, "-A", "FORWARD", "-p", "tcp", "--tcp-flags", "SYN,RST", "SYN",
			"-j", "TCPMSS", "--set-mss", strconv.Itoa(mtu))
	}
	if err != nil {
		return fmt.Errorf("failed to update FORWARD chain for '%s': %w", iface, err)
	}
	return nil
}

func ttlArgs(hops int) []string {
	mode := "--ttl-dec"
	if hops < 0 {
		mode = "--ttl-inc"
	}
	if hops < 1 {
		hops = 1
	}
	return []string{"-j", "TTL", mode, strconv.Itoa(hops)}
}

// InstallTTL appends the mangle rule that makes forwarded packets of iface
// look like they crossed hops routers.
func (h *Host) InstallTTL(ctx context.Context, iface string, hops int) error {
	args := append([]string{"-t", "mangle", "-A", "FORWARD", "-i", iface}, ttlArgs(hops)...)
	if _, err := h.run(ctx, iptablesPath, args...); err != nil {
		return fmt.Errorf("failed to install TTL rule for '%s': %w", iface, err)
	}
	return nil
}

// UpdateTTL replaces the TTL rule of iface at the given chain index.
func (h *Host) UpdateTTL(ctx context.Context, iface string, hops, index int) error {
	args := append([]string{"-t", "mangle", "-R", "FORWARD", strconv.Itoa(index), "-i", iface}, ttlArgs(hops)...)
	if _, err := h.run(ctx, iptablesPath, args...); err != nil {
		return fmt.Errorf("failed to update TTL rule for '%s': %w", iface, err)
	}
	return nil
}

// IndexTTL returns the chain index of the TTL rule of iface.
func (h *Host) IndexTTL(ctx context.Context, iface string) (int, error) {
	out, err := h.run(ctx, iptablesPath, "-t", "mangle", "-L", "FORWARD", "-v", "--line-numbers")
	if err != nil {
		return 0, fmt.Errorf("failed to list mangle rules: %w", err)
	}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "TTL") || !strings.Contains(line, iface) {
			continue
		}
		fields := strings.Fields(line)
		index, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		return index, nil
	}
	return 0, fmt.Errorf("no TTL rule for interface '%s'", iface)
}

// FlushTTL removes every mangle FORWARD rule.
func (h *Host) FlushTTL(ctx context.Context) error {
	if _, err := h.run(ctx, iptablesPath, "-t", "mangle", "-F", "FORWARD"); err != nil {
		return fmt.Errorf("failed to flush TTL rules: %w", err)
	}
	return nil
}

// InstallReject rejects forwarded packets whose TTL ran out.
func (h *Host) InstallReject(ctx context.Context) error {
	_, err := h.run(ctx, iptablesPath, "-A", "FORWARD", "-m", "ttl", "--ttl-eq", "0",
		"-j", "REJECT", "--reject-with", "icmp-net-unreachable")
	if err != nil {
		return fmt.Errorf("failed to install TTL reject rule: %w", err)
	}
	return nil
}
