// Command riskbench load-tests classifier.Classify directly, in-process,
// with a synthetic populated registry - no network, no HTTP layer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riskcore/riskcored/internal/classifier"
	"github.com/riskcore/riskcored/internal/ipmatch"
	"github.com/riskcore/riskcored/internal/mxresolver"
	"github.com/riskcore/riskcored/internal/registry"
)

var (
	workers  = flag.Int("workers", 10, "Number of concurrent workers")
	duration = flag.Duration("duration", 10*time.Second, "Test duration")
	ip       = flag.String("ip", "203.0.113.9", "IP to classify on every call")
	email    = flag.String("email", "someone@gmail.com", "Email to classify on every call")
)

// noOpResolver reports every domain as having a valid MX record, so the
// benchmark measures classification overhead without touching the network.
type noOpResolver struct{}

func (noOpResolver) LookupMX(ctx context.Context, domain string) ([]mxresolver.MXRecord, error) {
	return []mxresolver.MXRecord{{Priority: 10, Host: "mail." + domain}}, nil
}

func main() {
	flag.Parse()

	log.Printf("Starting classify benchmark with %d workers for %v", *workers, *duration)

	reg := registry.New()
	reg.Swap("suspicious_ip", registry.FromSet(map[string]bool{*ip: true}))
	deps := classifier.Deps{
		Registry: reg,
		Matcher:  ipmatch.New(reg),
		Resolver: noOpResolver{},
	}

	var count uint64
	start := time.Now()
	done := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := classifier.Input{IP: *ip, Email: *email}
			for {
				select {
				case <-done:
					return
				default:
					classifier.Classify(context.Background(), deps, in)
					atomic.AddUint64(&count, 1)
				}
			}
		}()
	}

	time.Sleep(*duration)
	close(done)
	wg.Wait()

	totalTime := time.Since(start)
	rps := float64(count) / totalTime.Seconds()

	fmt.Printf("\n--- Results ---\n")
	fmt.Printf("Total Classifications: %d\n", count)
	fmt.Printf("Duration:               %.2fs\n", totalTime.Seconds())
	fmt.Printf("RPS:                    %.2f\n", rps)
}
