// Package discovery browses for hosts on the local
// network over mDNS, per spec §6. A client browses for a TXT record
// describing a host's capabilities and populates HostCapabilities before
// the reliable handshake. The host-side Advertiser runs an mDNS server
// and keeps the capability set and its TXT encoding, but does not
// register that TXT record with the server.
package discovery

import (
	"context"
	"strconv"

	"github.com/cybergarage/go-mdns/mdns"
)

const (
	// ServiceType is the DNS-SD service type this module advertises
	// and browses for, mirroring the "_service._proto" convention used
	// by _matter._tcp in the reference mDNS consumer.
	ServiceType = "_hevcstream._udp"
	// SearchDomain is the multicast DNS domain searched for ServiceType.
	SearchDomain = "local."
)

// TXT record keys, per spec §6.
const (
	txtMaxStreams      = "maxStreams"
	txtHEVC            = "hevc"
	txtP3              = "p3"
	txtMaxFPS          = "maxFps"
	txtProtocolVersion = "protocolVersion"
)

// Capabilities is the subset of HostCapabilities advertised over mDNS
// before the reliable control-channel handshake fills in the rest.
type Capabilities struct {
	MaxStreams      uint32
	SupportsHEVC    bool
	SupportsP3      bool
	MaxFrameRate    float64
	ProtocolVersion uint16
}

func boolTXT(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// txtRecord renders c as the TXT key/value pairs spec §6 names.
func (c Capabilities) txtRecord() map[string]string {
	return map[string]string{
		txtMaxStreams:      strconv.FormatUint(uint64(c.MaxStreams), 10),
		txtHEVC:            boolTXT(c.SupportsHEVC),
		txtP3:              boolTXT(c.SupportsP3),
		txtMaxFPS:          strconv.FormatFloat(c.MaxFrameRate, 'f', -1, 64),
		txtProtocolVersion: strconv.FormatUint(uint64(c.ProtocolVersion), 10),
	}
}

// parseCapabilities reads Capabilities back out of a TXT attribute
// lookup function, as exposed by an mdns.Service's
// LookupResourceAttribute method.
func parseCapabilities(lookup func(name string) (string, bool)) Capabilities {
	var c Capabilities
	if v, ok := lookup(txtMaxStreams); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.MaxStreams = uint32(n)
		}
	}
	if v, ok := lookup(txtHEVC); ok {
		c.SupportsHEVC = v == "1"
	}
	if v, ok := lookup(txtP3); ok {
		c.SupportsP3 = v == "1"
	}
	if v, ok := lookup(txtMaxFPS); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.MaxFrameRate = f
		}
	}
	if v, ok := lookup(txtProtocolVersion); ok {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			c.ProtocolVersion = uint16(n)
		}
	}
	return c
}

// DiscoveredHost is one browse result: the raw mDNS service record
// (for the caller to resolve into a connectable address) plus its
// parsed capabilities.
type DiscoveredHost struct {
	Service      mdns.Service
	Capabilities Capabilities
}

// Browser searches the local network for advertised hosts.
type Browser struct {
	client mdns.Client
}

// NewBrowser returns a Browser. Call Start before Search.
func NewBrowser() *Browser {
	return &Browser{client: mdns.NewClient()}
}

// Start begins listening for mDNS responses.
func (b *Browser) Start() error { return b.client.Start() }

// Stop stops listening.
func (b *Browser) Stop() error { return b.client.Stop() }

// Search queries for hosts advertising ServiceType and returns their
// parsed capabilities alongside the raw service record.
func (b *Browser) Search(ctx context.Context) ([]DiscoveredHost, error) {
	query := mdns.NewQuery(
		mdns.WithQueryService(ServiceType),
		mdns.WithQueryDomain(SearchDomain),
	)

	services, err := b.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	hosts := make([]DiscoveredHost, 0, len(services))
	for _, svc := range services {
		caps := parseCapabilities(func(name string) (string, bool) {
			attr, ok := svc.LookupResourceAttribute(name)
			if !ok {
				return "", false
			}
			return attr.Value(), true
		})
		hosts = append(hosts, DiscoveredHost{Service: svc, Capabilities: caps})
	}
	return hosts, nil
}
