// Package adapter connects the crawler to the outside world.
//
// SSHDialer is the session collaborator: it opens an SSH connection to a
// device and runs CLI commands on exec channels, each bounded by a command
// timeout. Connect failures surface as *domain.ConnectionError, command
// failures as *domain.CommandError; the crawl engine treats both as retryable.
//
// NmapPreflight wraps any Dialer with a single-port nmap scan so targets that
// are down fail in seconds rather than after a full SSH connect timeout.
//
// SNMPEnricher reads the SNMP system group as an optional second source of
// self-description, and NATSSink forwards crawl events to a NATS subject tree.
package adapter
