package gateway

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/mdns"
)

const serviceType = "_jigsaw._tcp"

// Advertise announces the gateway on the local network so players on the same
// LAN can find a hosted table.
func Advertise(port int, publicURL string) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}

	service, err := mdns.NewMDNSService(host, serviceType, "", "", port, nil, []string{"jigsaw", "url=" + publicURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return server, nil
}

// Browse lists gateways advertised on the local network
func Browse(ctx context.Context, timeout time.Duration) ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	var found []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			found = append(found, fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port))
		}
	}()

	params := mdns.DefaultParams(serviceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	errCh := make(chan error, 1)
	go func() { errCh <- mdns.Query(params) }()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
		<-errCh
	}
	close(entries)
	<-done
	return found, err
}
