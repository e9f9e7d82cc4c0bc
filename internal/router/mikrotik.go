package router

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// MikroTikConfig holds the connection settings for a MikroTik gateway.
type MikroTikConfig struct {
	Address    string // Router SSH address (e.g., "192.168.88.1")
	Port       int    // SSH port (default: 22)
	Username   string // SSH username (usually "admin")
	Password   string // SSH password
	PrivateKey string // SSH private key (alternative to password)
}

// MikroTikClient controls the hotspot allow-list on a MikroTik router over SSH.
// Connections are short-lived: each call dials, runs one command and closes,
// so a stale cached channel can never fail silently.
type MikroTikClient struct {
	config    MikroTikConfig
	sshConfig *ssh.ClientConfig
	logger    *zap.Logger

	// run executes one RouterOS command; defaults to runSSHCommand.
	run func(ctx context.Context, cmd string) (string, error)
}

// NewMikroTikClient creates a new MikroTik gateway client.
func NewMikroTikClient(config MikroTikConfig, logger *zap.Logger) (*MikroTikClient, error) {
	if config.Port == 0 {
		config.Port = 22
	}

	var authMethods []ssh.AuthMethod

	if config.Password != "" {
		authMethods = append(authMethods, ssh.Password(config.Password))
	}

	if config.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(config.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication method provided (password or private key required)")
	}

	sshConfig := &ssh.ClientConfig{
		User:            config.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // For simplicity; use known_hosts in production
		Timeout:         10 * time.Second,
	}

	c := &MikroTikClient{
		config:    config,
		sshConfig: sshConfig,
		logger:    logger,
	}
	c.run = c.runSSHCommand
	return c, nil
}

// Allow adds a bypassed ip-binding for the device, tagged with the session
// comment so Deny can match exactly this grant.
func (c *MikroTikClient) Allow(ctx context.Context, deviceIdentifier, tag string) error {
	c.logger.Info("allowing device on gateway",
		zap.String("device", deviceIdentifier),
		zap.String("tag", tag),
	)

	cmd := fmt.Sprintf(`/ip hotspot ip-binding add %s type=bypassed comment="%s"`,
		bindingMatch(deviceIdentifier), tag)

	output, err := c.run(ctx, cmd)
	if err != nil {
		return err
	}

	// RouterOS reports duplicates as a failure. The surviving binding still
	// carries the previous session's tag, so it must be re-tagged: otherwise
	// that session's expiry would remove this grant, and our own deny would
	// find nothing.
	if strings.Contains(output, "already have") || strings.Contains(output, "entry already exists") {
		return c.retag(ctx, deviceIdentifier, tag)
	}

	if strings.Contains(output, "failure") || strings.Contains(output, "syntax error") {
		return &GatewayError{Kind: KindRejected, Detail: strings.TrimSpace(output)}
	}

	return nil
}

// retag moves the device's existing binding onto the given session tag.
func (c *MikroTikClient) retag(ctx context.Context, deviceIdentifier, tag string) error {
	c.logger.Info("re-tagging existing binding",
		zap.String("device", deviceIdentifier),
		zap.String("tag", tag),
	)

	cmd := fmt.Sprintf(`/ip hotspot ip-binding set [find %s] comment="%s"`,
		bindingMatch(deviceIdentifier), tag)

	output, err := c.run(ctx, cmd)
	if err != nil {
		return err
	}

	if strings.Contains(output, "failure") || strings.Contains(output, "syntax error") {
		return &GatewayError{Kind: KindRejected, Detail: strings.TrimSpace(output)}
	}

	return nil
}

// Deny removes the ip-binding carrying the session tag. A missing entry is
// not an error: the grant is already gone.
func (c *MikroTikClient) Deny(ctx context.Context, deviceIdentifier, tag string) error {
	c.logger.Info("denying device on gateway",
		zap.String("device", deviceIdentifier),
		zap.String("tag", tag),
	)

	cmd := fmt.Sprintf(`/ip hotspot ip-binding remove [find comment="%s"]`, tag)

	output, err := c.run(ctx, cmd)
	if err != nil {
		return err
	}

	if strings.Contains(output, "failure") || strings.Contains(output, "syntax error") {
		return &GatewayError{Kind: KindRejected, Detail: strings.TrimSpace(output)}
	}

	return nil
}

// TestConnection verifies the router is reachable and accepts our credentials.
func (c *MikroTikClient) TestConnection(ctx context.Context) error {
	output, err := c.run(ctx, "/system identity print")
	if err != nil {
		return err
	}

	if strings.Contains(output, "name:") {
		c.logger.Info("gateway connection test successful")
		return nil
	}

	return &GatewayError{Kind: KindRejected, Detail: "unexpected identity output: " + strings.TrimSpace(output)}
}

// runSSHCommand dials the router, executes one command and closes the channel.
func (c *MikroTikClient) runSSHCommand(ctx context.Context, cmd string) (string, error) {
	addr := net.JoinHostPort(c.config.Address, fmt.Sprintf("%d", c.config.Port))

	dialer := net.Dialer{Timeout: c.sshConfig.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", &GatewayError{Kind: KindUnreachable, Detail: "dial " + addr, Err: err}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, c.sshConfig)
	if err != nil {
		netConn.Close()
		kind := KindUnreachable
		if strings.Contains(err.Error(), "unable to authenticate") {
			kind = KindAuth
		}
		return "", &GatewayError{Kind: kind, Detail: "ssh handshake", Err: err}
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", &GatewayError{Kind: KindUnreachable, Detail: "ssh session", Err: err}
	}
	defer session.Close()

	output, err := session.CombinedOutput(cmd)
	if err != nil {
		// RouterOS exits non-zero but still prints the useful diagnostic.
		if len(output) > 0 {
			return string(output), nil
		}
		return "", &GatewayError{Kind: KindRejected, Detail: "command failed", Err: err}
	}

	return string(output), nil
}

// bindingMatch picks the ip-binding match key for the identifier: address
// for IPs, mac-address for everything that parses as a MAC.
func bindingMatch(deviceIdentifier string) string {
	if ip := net.ParseIP(deviceIdentifier); ip != nil {
		return "address=" + deviceIdentifier
	}
	return "mac-address=" + NormalizeMAC(deviceIdentifier)
}

// NormalizeMAC converts a MAC address to uppercase colon-separated format,
// which is how RouterOS stores it.
func NormalizeMAC(mac string) string {
	mac = strings.ReplaceAll(mac, ":", "")
	mac = strings.ReplaceAll(mac, "-", "")
	mac = strings.ReplaceAll(mac, ".", "")
	mac = strings.ToUpper(mac)

	if len(mac) == 12 {
		return fmt.Sprintf("%s:%s:%s:%s:%s:%s",
			mac[0:2], mac[2:4], mac[4:6],
			mac[6:8], mac[8:10], mac[10:12])
	}

	return mac
}
