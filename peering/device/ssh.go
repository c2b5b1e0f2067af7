// Copyright 2025 The peermgr authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package device

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/pkg/bgp"
	"github.com/peermgr/peermgr/pkg/private/serrors"
)

// Markers wrapping the device-reported candidate diff in push scripts, so
// the diff can be extracted from the raw terminal output.
const (
	diffBegin = "PEERMGR-DIFF-BEGIN"
	diffEnd   = "PEERMGR-DIFF-END"
)

// platformCommands is the per-platform command vocabulary of the ssh
// driver. Summary output differs per platform, so each entry carries its
// own parser.
type platformCommands struct {
	// showSessions prints the BGP neighbor summary.
	showSessions string
	// parseSessions turns the summary output into the live session table.
	parseSessions func(out string) map[netip.Addr]BGPSession
	// clearSession resets the session to one peer.
	clearSession func(ip netip.Addr) string
	// pushScript loads the candidate configuration, prints the diff
	// between the markers, and commits or discards.
	pushScript func(config string, commit bool) string
}

func junosCommands() platformCommands {
	return platformCommands{
		showSessions: "show bgp summary | no-more",
		parseSessions: parseJunosSummary,
		clearSession: func(ip netip.Addr) string {
			return fmt.Sprintf("clear bgp neighbor %s", ip)
		},
		pushScript: func(config string, commit bool) string {
			finish := "rollback 0\nexit"
			if commit {
				finish = "commit and-quit"
			}
			return strings.Join([]string{
				"configure exclusive",
				"load override terminal",
				config,
				"\x04", // terminal EOF ends the inline load
				"run echo " + diffBegin,
				"show | compare",
				"run echo " + diffEnd,
				finish,
			}, "\n")
		},
	}
}

func iosxrCommands() platformCommands {
	return platformCommands{
		showSessions: "show bgp all all summary",
		parseSessions: parseXRSummary,
		clearSession: func(ip netip.Addr) string {
			return fmt.Sprintf("clear bgp *  %s", ip)
		},
		pushScript: func(config string, commit bool) string {
			finish := "abort"
			if commit {
				finish = "commit replace\nyes\nend"
			}
			return strings.Join([]string{
				"configure terminal",
				config,
				"echo " + diffBegin,
				"show commit changes diff",
				"echo " + diffEnd,
				finish,
			}, "\n")
		},
	}
}

func eosCommands() platformCommands {
	return platformCommands{
		showSessions: "show ip bgp summary",
		parseSessions: parseEOSSummary,
		clearSession: func(ip netip.Addr) string {
			return fmt.Sprintf("clear ip bgp %s", ip)
		},
		pushScript: func(config string, commit bool) string {
			finish := "abort"
			if commit {
				finish = "commit\nend"
			}
			return strings.Join([]string{
				"configure session peermgr",
				"rollback clean-config",
				config,
				"echo " + diffBegin,
				"show session-config diffs",
				"echo " + diffEnd,
				finish,
			}, "\n")
		},
	}
}

func init() {
	Register("junos", sshFactory(junosCommands()))
	Register("iosxr", sshFactory(iosxrCommands()))
	Register("eos", sshFactory(eosCommands()))
}

func sshFactory(cmds platformCommands) Factory {
	return func(router *peering.Router, auth Auth,
		timeout time.Duration) (Driver, error) {

		return dialSSH(router, auth, timeout, cmds)
	}
}

type sshDriver struct {
	client   *ssh.Client
	hostname string
	cmds     platformCommands
}

func dialSSH(router *peering.Router, auth Auth, timeout time.Duration,
	cmds platformCommands) (Driver, error) {

	methods, err := authMethods(auth)
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User: auth.Username,
		Auth: methods,
		// Bounds the TCP connect and the ssh handshake; without it a
		// blackholed router hangs the gateway call past its budget.
		Timeout: timeout,
		// Routers live on the management network; host keys rotate with
		// RMA'd hardware too often to pin them here.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	addr := router.Hostname
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, serrors.Join(peering.ErrDeviceUnreachable, err,
			"router", router.Hostname)
	}
	return &sshDriver{client: client, hostname: router.Hostname, cmds: cmds}, nil
}

func authMethods(auth Auth) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if auth.PrivateKeyFile != "" {
		raw, err := os.ReadFile(auth.PrivateKeyFile)
		if err != nil {
			return nil, serrors.WrapStr("reading ssh key", err,
				"file", auth.PrivateKeyFile)
		}
		signer, err := ssh.ParsePrivateKey(raw)
		if err != nil {
			return nil, serrors.WrapStr("parsing ssh key", err,
				"file", auth.PrivateKeyFile)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if auth.Password != "" {
		methods = append(methods, ssh.Password(auth.Password))
	}
	if len(methods) == 0 {
		return nil, serrors.New("no ssh credentials configured")
	}
	return methods, nil
}

func (d *sshDriver) FetchBGPSessions(
	ctx context.Context) (map[netip.Addr]BGPSession, error) {

	out, err := d.run(ctx, d.cmds.showSessions)
	if err != nil {
		return nil, err
	}
	return d.cmds.parseSessions(out), nil
}

func (d *sshDriver) PushConfig(ctx context.Context, config string,
	commit bool) (PushResult, error) {

	out, err := d.runScript(ctx, d.cmds.pushScript(config, commit))
	if err != nil {
		return PushResult{}, err
	}
	diff := extractDiff(out)
	return PushResult{Changed: diff != "", Diff: diff}, nil
}

func (d *sshDriver) TestConnection(ctx context.Context) error {
	_, err := d.run(ctx, "show version")
	return err
}

func (d *sshDriver) ClearBGPSession(ctx context.Context,
	ip netip.Addr) (string, error) {

	return d.run(ctx, d.cmds.clearSession(ip))
}

func (d *sshDriver) Close() error {
	return d.client.Close()
}

// run executes a single command. The ssh library has no context support;
// the session is torn down when ctx expires, which aborts the pending
// call.
func (d *sshDriver) run(ctx context.Context, cmd string) (string, error) {
	session, err := d.client.NewSession()
	if err != nil {
		return "", serrors.Join(peering.ErrDeviceUnreachable, err,
			"router", d.hostname)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out: out, err: err}
	}()
	select {
	case <-ctx.Done():
		session.Close()
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", serrors.WrapStr("running command", res.err,
				"router", d.hostname, "cmd", cmd)
		}
		return string(res.out), nil
	}
}

// runScript feeds a multi-line script to an interactive shell and returns
// everything the device printed.
func (d *sshDriver) runScript(ctx context.Context, script string) (string, error) {
	session, err := d.client.NewSession()
	if err != nil {
		return "", serrors.Join(peering.ErrDeviceUnreachable, err,
			"router", d.hostname)
	}
	defer session.Close()

	modes := ssh.TerminalModes{ssh.ECHO: 0}
	if err := session.RequestPty("vt100", 80, 240, modes); err != nil {
		return "", serrors.WrapStr("requesting pty", err, "router", d.hostname)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		return "", serrors.WrapStr("opening stdin", err, "router", d.hostname)
	}
	var out strings.Builder
	session.Stdout = &out
	session.Stderr = &out
	if err := session.Shell(); err != nil {
		return "", serrors.Join(peering.ErrDeviceUnreachable, err,
			"router", d.hostname)
	}
	if _, err := fmt.Fprintln(stdin, script); err != nil {
		return "", serrors.WrapStr("sending script", err, "router", d.hostname)
	}
	stdin.Close()

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()
	select {
	case <-ctx.Done():
		session.Close()
		return "", ctx.Err()
	case err := <-done:
		// A non-zero exit after the shell closes is expected on some
		// platforms; the captured output is still authoritative.
		_ = err
		return out.String(), nil
	}
}

// extractDiff returns the text between the diff markers, trimmed.
func extractDiff(out string) string {
	begin := strings.Index(out, diffBegin)
	end := strings.LastIndex(out, diffEnd)
	if begin < 0 || end < 0 || end <= begin {
		return ""
	}
	return strings.TrimSpace(out[begin+len(diffBegin) : end])
}

// parseJunosSummary parses "show bgp summary" peer lines. An established
// peer with a single RIB ends its line with the
// Active/Received/Accepted/Damped counts; with several RIBs the line ends
// in "Establ" and each RIB reports its counts on an indented continuation
// line such as "inet.0: 120/150/150/0". Any other state ends the line
// with the state name. Headers, table statistics and prompts never start
// with an address and are skipped.
func parseJunosSummary(out string) map[netip.Addr]BGPSession {
	sessions := make(map[netip.Addr]BGPSession)
	var multiRIB netip.Addr
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip, err := netip.ParseAddr(fields[0])
		if err != nil {
			if multiRIB.IsValid() && strings.HasSuffix(fields[0], ":") {
				if received, ok := junosPrefixCounts(fields[1]); ok {
					session := sessions[multiRIB]
					session.ReceivedPrefixes += received
					sessions[multiRIB] = session
				}
			}
			continue
		}
		multiRIB = netip.Addr{}
		tail := fields[len(fields)-1]
		var session BGPSession
		if received, ok := junosPrefixCounts(tail); ok {
			session.State = bgp.StateEstablished
			session.ReceivedPrefixes = received
		} else if strings.HasPrefix(tail, "Establ") {
			session.State = bgp.StateEstablished
			multiRIB = ip
		} else if state, err := bgp.ParseState(tail); err == nil {
			session.State = state
		} else {
			continue
		}
		sessions[ip] = session
	}
	return sessions
}

// junosPrefixCounts reads an Active/Received/Accepted/Damped tuple and
// returns the received count.
func junosPrefixCounts(s string) (int64, bool) {
	counts := strings.Split(s, "/")
	if len(counts) != 4 {
		return 0, false
	}
	for _, count := range counts {
		if _, err := strconv.ParseInt(count, 10, 64); err != nil {
			return 0, false
		}
	}
	received, _ := strconv.ParseInt(counts[1], 10, 64)
	return received, true
}

// parseXRSummary parses "show bgp summary" neighbor lines. The last
// column, St/PfxRcd, is the received prefix count for established
// neighbors and the state name otherwise.
func parseXRSummary(out string) map[netip.Addr]BGPSession {
	sessions := make(map[netip.Addr]BGPSession)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip, err := netip.ParseAddr(fields[0])
		if err != nil {
			continue
		}
		tail := fields[len(fields)-1]
		var session BGPSession
		if prefixes, err := strconv.ParseInt(tail, 10, 64); err == nil {
			session.State = bgp.StateEstablished
			session.ReceivedPrefixes = prefixes
		} else if state, err := bgp.ParseState(tail); err == nil {
			session.State = state
		} else {
			continue
		}
		sessions[ip] = session
	}
	return sessions
}

// parseEOSSummary parses "show ip bgp summary" neighbor lines.
// Established peers report "... Up/Down Estab PfxRcd PfxAcc"; peers in
// any other state end the line with the state name.
func parseEOSSummary(out string) map[netip.Addr]BGPSession {
	sessions := make(map[netip.Addr]BGPSession)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip, err := netip.ParseAddr(fields[0])
		if err != nil {
			continue
		}
		var session BGPSession
		if state, err := bgp.ParseState(fields[len(fields)-1]); err == nil {
			session.State = state
		} else if len(fields) >= 4 && strings.HasPrefix(fields[len(fields)-3], "Estab") {
			session.State = bgp.StateEstablished
			if prefixes, err := strconv.ParseInt(fields[len(fields)-2], 10, 64); err == nil {
				session.ReceivedPrefixes = prefixes
			}
		} else {
			continue
		}
		sessions[ip] = session
	}
	return sessions
}
