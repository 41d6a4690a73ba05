// Command riskcore-admin exposes the two admin operations over HTTP
// (update_now, status) plus a gRPC health/reflection endpoint and a
// Prometheus /metrics endpoint and a rate-limited /classify endpoint, all
// backed by its own in-process loader and classifier.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riskcore/riskcored/api/grpc/middleware"
	"github.com/riskcore/riskcored/api/grpc/server"
	"github.com/riskcore/riskcored/internal/classifier"
	"github.com/riskcore/riskcored/internal/eventbus"
	"github.com/riskcore/riskcored/internal/fetcher"
	"github.com/riskcore/riskcored/internal/ipmatch"
	"github.com/riskcore/riskcored/internal/loader"
	"github.com/riskcore/riskcored/internal/mxresolver"
	"github.com/riskcore/riskcored/internal/ratelimit"
	"github.com/riskcore/riskcored/internal/registry"
	"github.com/riskcore/riskcored/internal/riskconfig"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config file")
	httpAddr := flag.String("http", ":8090", "Admin/classify HTTP listen address")
	grpcAddr := flag.String("grpc", "", "gRPC health listen address (overrides config)")
	metricsAddr := flag.String("metrics-listen", "", "Prometheus metrics listen address (overrides config)")
	apiKeys := flag.String("api-keys", "", "Comma-separated API keys for the gRPC health endpoint")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	fileCfg, err := riskconfig.Load(*cfgPath)
	if err != nil {
		log.Error("loading config", "error", err)
		os.Exit(1)
	}
	cfg := riskconfig.Resolve(fileCfg, riskconfig.Overrides{ListenAddr: *grpcAddr, MetricsListen: *metricsAddr})

	reg := registry.New()
	fetch := fetcher.New()
	defer fetch.Close()
	bus := eventbus.New(16)
	ld := loader.New(reg, fetch, cfg.SnapshotDir, bus, loader.WithURLOverrides(cfg.FeedURLs), loader.WithLogger(log))
	ld.Boot(context.Background())

	resolvers := resolversFromConfig(cfg.Resolvers)
	resolver, err := mxresolver.New(resolvers, mxresolver.WithBucketCapacity(cfg.BucketCapacity), mxresolver.WithLogger(log))
	if err != nil {
		log.Error("constructing mx resolver pool", "error", err)
		os.Exit(1)
	}

	deps := classifier.Deps{
		Registry: reg,
		Matcher:  ipmatch.New(reg),
		Resolver: resolver,
		Log:      log,
	}

	go serveMetrics(cfg.MetricsListen, log)
	go serveGRPCHealth(cfg.ListenAddr, splitKeys(*apiKeys), bus, log)

	limiter := ratelimit.New(ratelimit.DefaultConfig())
	limiter.AddExempt("127.0.0.1/32")

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/update_now", updateNowHandler(ld))
	mux.HandleFunc("/admin/status", statusHandler(ld))
	mux.HandleFunc("/classify", rateLimited(limiter, classifyHandler(deps)))

	log.Info("admin http listening", "addr", *httpAddr)
	if err := http.ListenAndServe(*httpAddr, mux); err != nil {
		log.Error("admin http server exited", "error", err)
		os.Exit(1)
	}
}

func resolversFromConfig(entries []riskconfig.ResolverEntry) []mxresolver.Endpoint {
	if len(entries) == 0 {
		return defaultResolverPool
	}
	out := make([]mxresolver.Endpoint, len(entries))
	for i, e := range entries {
		out[i] = mxresolver.Endpoint{IP: e.IP, Port: e.Port, DisplayName: e.DisplayName}
	}
	return out
}

// defaultResolverPool is the compile-time list of public resolvers used
// when no pool is configured. mxresolver.New rejects pools smaller than
// three; ten spreads the per-resolver rate budget across five providers.
var defaultResolverPool = []mxresolver.Endpoint{
	{IP: "1.1.1.1", Port: 53, DisplayName: "cloudflare-primary"},
	{IP: "1.0.0.1", Port: 53, DisplayName: "cloudflare-secondary"},
	{IP: "8.8.8.8", Port: 53, DisplayName: "google-primary"},
	{IP: "8.8.4.4", Port: 53, DisplayName: "google-secondary"},
	{IP: "9.9.9.9", Port: 53, DisplayName: "quad9-primary"},
	{IP: "149.112.112.112", Port: 53, DisplayName: "quad9-secondary"},
	{IP: "208.67.222.222", Port: 53, DisplayName: "opendns-primary"},
	{IP: "208.67.220.220", Port: 53, DisplayName: "opendns-secondary"},
	{IP: "94.140.14.14", Port: 53, DisplayName: "adguard-primary"},
	{IP: "94.140.15.15", Port: 53, DisplayName: "adguard-secondary"},
}

func splitKeys(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server exited", "error", err)
	}
}

// healthServiceName is the service whose gRPC health status tracks loader
// freshness. Only this name is updated; a check on the empty service name
// reports the health server's own default (SERVING) regardless of loader
// state.
const healthServiceName = "riskcore"

func serveGRPCHealth(addr string, apiKeys []string, bus *eventbus.Bus, log *slog.Logger) {
	h := health.NewServer()
	h.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	cfg := server.Config{ListenAddr: addr, APIKeys: apiKeys}
	deps := server.Deps{
		Unary:  []grpc.UnaryServerInterceptor{middleware.UnaryLoggingMetrics()},
		Stream: []grpc.StreamServerInterceptor{middleware.StreamLoggingMetrics()},
		Register: func(s *grpc.Server) {
			healthpb.RegisterHealthServer(s, h)
			reflection.Register(s)
		},
	}
	gs, ln, err := server.New(cfg, deps)
	if err != nil {
		log.Error("grpc health server setup failed", "error", err)
		return
	}

	go watchLoaderHealth(context.Background(), bus, h, log)

	log.Info("grpc health listening", "addr", addr)
	if err := gs.Serve(ln); err != nil {
		log.Error("grpc health server exited", "error", err)
	}
}

// watchLoaderHealth flips the gRPC health status to SERVING as soon as the
// loader has a usable snapshot (boot or a successful refresh) and back to
// NOT_SERVING the moment a refresh fails, per the loader's own lifecycle
// events. It never exits; the subscription is closed only by ctx, which here
// lives for the process.
func watchLoaderHealth(ctx context.Context, bus *eventbus.Bus, h *health.Server, log *slog.Logger) {
	sub := bus.Subscribe(ctx, eventbus.TopicLoader)
	defer sub.Close()
	for evt := range sub.Ch {
		fields, ok := evt.Data.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := fields["event"].(string)
		switch name {
		case "boot_loaded_snapshot", "refresh_succeeded":
			h.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_SERVING)
		case "refresh_failed":
			h.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
			log.Warn("grpc health: loader refresh failed, reporting not serving")
		}
	}
}

func updateNowHandler(ld *loader.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Deliberately not r.Context(): the refresh must outlive this
		// request, which returns 202 immediately.
		go ld.RequestRefresh(context.Background())
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "refresh_requested"})
	}
}

func statusHandler(ld *loader.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := ld.Status()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"last_update":        st.LastUpdate,
			"last_status":        st.LastStatus,
			"update_count":       st.UpdateCount,
			"next_update_at":     st.NextUpdateAt,
			"per_category_sizes": st.PerCategorySizes,
		})
	}
}

// classifyRequest mirrors the external classify({email?, ip?}) contract;
// validation of malformed IPv4/email shapes is the HTTP layer's job, not
// the classifier's.
type classifyRequest struct {
	Email string `json:"email"`
	IP    string `json:"ip"`
}

// rateLimited throttles a handler per remote client IP, returning 429 once a
// client exceeds its token bucket.
func rateLimited(limiter *ratelimit.ClientLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !limiter.AllowString(host) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func classifyHandler(deps classifier.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req classifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
			return
		}
		res := classifier.Classify(r.Context(), deps, classifier.Input{Email: req.Email, IP: req.IP})
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"risk_level": res.Level,
			"reasons":    res.Reasons,
		})
	}
}
