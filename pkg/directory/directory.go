package directory

import (
	"context"
	"fmt"
)

// Domain is one domain of the forest
type Domain struct {
	// Name is the DNS name of the domain (crossRef dnsRoot)
	Name string
	// NamingContext is the domain partition DN (crossRef nCName)
	NamingContext string
	// NetBIOSName is the pre-Windows 2000 domain name
	NetBIOSName string
}

// Directory lists the domains of a forest and their domain controllers
type Directory interface {
	Domains(ctx context.Context) ([]Domain, error)
	DomainControllers(ctx context.Context, domain Domain) ([]string, error)
}

// EnumerateHosts returns the domain controllers of every domain, in
// directory order. A host listed under several domains is kept once.
func EnumerateHosts(ctx context.Context, dir Directory) ([]string, error) {
	domains, err := dir.Domains(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	seen := make(map[string]struct{})
	var hosts []string
	for _, domain := range domains {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dcs, err := dir.DomainControllers(ctx, domain)
		if err != nil {
			return nil, fmt.Errorf("failed to list domain controllers of %s: %w", domain.Name, err)
		}
		for _, dc := range dcs {
			if _, ok := seen[dc]; ok {
				continue
			}
			seen[dc] = struct{}{}
			hosts = append(hosts, dc)
		}
	}
	return hosts, nil
}

// StaticDirectory serves a fixed host list as a single pseudo-domain
type StaticDirectory struct {
	Hosts []string
}

// NewStaticDirectory creates a directory returning hosts as-is
func NewStaticDirectory(hosts []string) *StaticDirectory {
	return &StaticDirectory{Hosts: hosts}
}

// Domains returns one pseudo-domain, or none when there are no hosts
func (d *StaticDirectory) Domains(ctx context.Context) ([]Domain, error) {
	if len(d.Hosts) == 0 {
		return nil, nil
	}
	return []Domain{{Name: "static"}}, nil
}

// DomainControllers returns the configured hosts
func (d *StaticDirectory) DomainControllers(ctx context.Context, domain Domain) ([]string, error) {
	return append([]string(nil), d.Hosts...), nil
}
