package domain

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StoredProxy is the persisted, deduplicated form of an endpoint. ID and
// AddedAt are written once on insert and never touched afterwards.
type StoredProxy struct {
	ID        string       `gorm:"primaryKey;size:36"`
	IP        string       `gorm:"size:45;not null;uniqueIndex:idx_proxy_endpoint,priority:1"`
	Port      int          `gorm:"not null;uniqueIndex:idx_proxy_endpoint,priority:2"`
	Proxy     EndpointMap  `gorm:"column:proxy;type:text"`
	Protocols ProtocolList `gorm:"column:protocols;type:text"`
	Country   string       `gorm:"size:64;default:''"`
	IsValid   bool         `gorm:"not null;default:false;index"`
	AddedAt   time.Time    `gorm:"not null"`
}

func (StoredProxy) TableName() string {
	return "proxies"
}

func (proxy *StoredProxy) BeforeCreate(_ *gorm.DB) error {
	if proxy.ID == "" {
		proxy.ID = StoredProxyID(proxy.IP, proxy.Port)
	}
	if proxy.AddedAt.IsZero() {
		proxy.AddedAt = time.Now().UTC()
	}
	return nil
}

// StoredProxyID derives the record id from the endpoint identity, so the same
// ip:port always maps to the same id.
func StoredProxyID(ip string, port int) string {
	hash := sha256.Sum256([]byte(
		strings.ToLower(
			fmt.Sprintf("%s|%d", strings.TrimSpace(ip), port),
		)))
	return uuid.NewSHA1(uuid.NameSpaceDNS, hash[:]).String()
}

func NewStoredProxy(candidate Candidate) StoredProxy {
	return StoredProxy{
		ID:        StoredProxyID(candidate.IP, candidate.Port),
		IP:        candidate.IP,
		Port:      candidate.Port,
		Proxy:     EndpointMapOf(candidate.Endpoints),
		Protocols: ProtocolList(candidate.Protocols()),
		Country:   candidate.Country,
		IsValid:   candidate.IsValid,
	}
}

// ToCandidate rebuilds a pipeline candidate from the stored record. The
// stored validity flag is kept as is, even when it disagrees with the
// endpoint map, because re-validation only demotes the flag.
func (proxy *StoredProxy) ToCandidate() Candidate {
	candidate := NewCandidate(proxy.IP, proxy.Port)
	candidate.Country = proxy.Country
	candidate.DeclaredProtocols = NormalizeProtocols(proxy.Protocols)
	for p, uri := range proxy.Proxy {
		if p.Valid() {
			candidate.Endpoints[p] = uri
		}
	}
	candidate.IsValid = proxy.IsValid
	return candidate
}

func (proxy *StoredProxy) GetFullProxy() string {
	return EndpointKey(proxy.IP, proxy.Port)
}

// SameEndpoints reports whether the stored endpoint data already matches the
// candidate.
func (proxy *StoredProxy) SameEndpoints(candidate Candidate) bool {
	if !proxy.Proxy.Equal(EndpointMapOf(candidate.Endpoints)) {
		return false
	}
	return proxy.Protocols.Equal(ProtocolList(candidate.Protocols()))
}
