package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"cdpcrawler/internal/domain"
)

// SSHConfig holds settings for SSH sessions to network devices
type SSHConfig struct {
	Username       string
	Password       string
	KeyPath        string
	KeyPassphrase  string
	KnownHostsPath string // empty disables host key verification
	Port           int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	// LegacyAlgorithms allows the SHA-1 key exchanges and CBC ciphers older
	// IOS images still require
	LegacyAlgorithms bool
}

// SSHDialer opens exec-channel sessions to devices
type SSHDialer struct {
	config       SSHConfig
	clientConfig *ssh.ClientConfig
}

// NewSSHDialer validates cfg and prepares the client configuration.
// Problems with credentials or key files are configuration errors.
func NewSSHDialer(cfg SSHConfig) (*SSHDialer, error) {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 60 * time.Second
	}

	clientConfig, err := buildSSHConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &SSHDialer{config: cfg, clientConfig: clientConfig}, nil
}

// buildSSHConfig creates an SSH client config from the credentials
func buildSSHConfig(cfg SSHConfig) (*ssh.ClientConfig, error) {
	if cfg.Username == "" {
		return nil, domain.NewConfigurationError("credentials.username", "is required")
	}

	var auth []ssh.AuthMethod

	if cfg.KeyPath != "" {
		keyData, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, &domain.ConfigurationError{Source: cfg.KeyPath, Reason: "read private key", Err: err}
		}

		var signer ssh.Signer
		if cfg.KeyPassphrase != "" {
			// Encrypted key
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(cfg.KeyPassphrase))
		} else {
			// Unencrypted key
			signer, err = ssh.ParsePrivateKey(keyData)
		}
		if err != nil {
			return nil, &domain.ConfigurationError{Source: cfg.KeyPath, Reason: "parse private key", Err: err}
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
		// IOS often offers keyboard-interactive instead of password
		auth = append(auth, ssh.KeyboardInteractive(
			func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = cfg.Password
				}
				return answers, nil
			}))
	}

	if len(auth) == 0 {
		return nil, domain.NewConfigurationError("credentials", "no password or key configured")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, &domain.ConfigurationError{Source: cfg.KnownHostsPath, Reason: "load known hosts", Err: err}
		}
		hostKeyCallback = cb
	}

	config := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.ConnectTimeout,
	}

	if cfg.LegacyAlgorithms {
		supported := ssh.SupportedAlgorithms()
		insecure := ssh.InsecureAlgorithms()
		config.KeyExchanges = append(supported.KeyExchanges, insecure.KeyExchanges...)
		config.Ciphers = append(supported.Ciphers, insecure.Ciphers...)
		config.MACs = append(supported.MACs, insecure.MACs...)
		config.HostKeyAlgorithms = append(supported.HostKeys, insecure.HostKeys...)
	}

	return config, nil
}

// Dial establishes an SSH connection to target (hostname or address)
func (d *SSHDialer) Dial(ctx context.Context, target string) (Session, error) {
	addr := net.JoinHostPort(target, strconv.Itoa(d.config.Port))

	dialer := &net.Dialer{
		Timeout: d.config.ConnectTimeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &domain.ConnectionError{Target: target, Err: err}
	}

	// The handshake has no context of its own; bound it with a deadline
	deadline := time.Now().Add(d.config.ConnectTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, d.clientConfig)
	if err != nil {
		conn.Close()
		return nil, &domain.ConnectionError{Target: target, Err: fmt.Errorf("ssh handshake: %w", err)}
	}
	_ = conn.SetDeadline(time.Time{})

	return &sshSession{
		client:  ssh.NewClient(sshConn, chans, reqs),
		target:  target,
		timeout: d.config.CommandTimeout,
	}, nil
}

type sshSession struct {
	client  *ssh.Client
	target  string
	timeout time.Duration
}

// Run executes a command on its own exec channel and returns the output
func (s *sshSession) Run(ctx context.Context, command string) (string, error) {
	fail := func(err error) (string, error) {
		return "", &domain.CommandError{Target: s.target, Command: command, Err: err}
	}

	session, err := s.client.NewSession()
	if err != nil {
		return fail(fmt.Errorf("create session: %w", err))
	}
	defer session.Close()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)

	go func() {
		output, err := session.CombinedOutput(command)
		done <- result{output, err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			// A non-zero exit status still produced usable output
			var exitErr *ssh.ExitError
			if errors.As(res.err, &exitErr) {
				return string(res.output), nil
			}
			return fail(res.err)
		}
		return string(res.output), nil
	case <-timer.C:
		_ = session.Signal(ssh.SIGKILL)
		return fail(context.DeadlineExceeded)
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return fail(ctx.Err())
	}
}

// Close tears down the SSH connection
func (s *sshSession) Close() error {
	return s.client.Close()
}
