package discovery

import (
	"sync"

	"github.com/cybergarage/go-logger/log"
	"github.com/cybergarage/go-mdns/mdns"
	"github.com/cybergarage/go-mdns/mdns/dns"
)

// Advertiser holds a host's capability set next to an embedded mDNS
// server, the way the reference mDNS responder does (override
// MessageReceived on an embedded *mdns.Server). It does not publish the
// capability set: txtRecord() is never registered with the server.
type Advertiser struct {
	*mdns.Server

	mu   sync.RWMutex
	caps Capabilities
}

// NewAdvertiser returns an Advertiser announcing caps. Call Start to
// begin responding to queries.
func NewAdvertiser(caps Capabilities) *Advertiser {
	return &Advertiser{
		Server: mdns.NewServer(),
		caps:   caps,
	}
}

// UpdateCapabilities replaces the advertised capability set, e.g.
// after a refresh-rate override changes max_frame_rate.
func (a *Advertiser) UpdateCapabilities(caps Capabilities) {
	a.mu.Lock()
	a.caps = caps
	a.mu.Unlock()
}

// Capabilities returns the currently advertised capability set.
func (a *Advertiser) Capabilities() Capabilities {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.caps
}

// MessageReceived observes inbound mDNS traffic and only logs it; it
// builds no response record, and no TXT record carrying the
// capabilities is registered with the embedded server either.
func (a *Advertiser) MessageReceived(msg *dns.Message) {
	log.Debugf("discovery: mDNS message received")
}
