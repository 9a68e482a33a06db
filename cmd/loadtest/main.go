// Command loadtest drives the search service with a fixed query mix and
// reports throughput, latency percentiles and cache hit rate.
//
// Usage:
//
//	go run ./cmd/loadtest -mode fused -concurrency 20 -duration 1m
//	go run ./cmd/loadtest -rpc localhost:9000 -queries queries.txt
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/proto"
)

var defaultQueries = []string{
	"information retrieval",
	"cosine similarity",
	"search engine",
	"world war",
	"united states history",
	"machine learning",
	"climate change",
	"solar system",
	"roman empire",
	"computer science",
	"football club",
	"#hashtag",
	"o'brien",
	"rock-and-roll",
	"zzzzqqq",
}

type Config struct {
	BaseURL     string
	RPCAddr     string
	Mode        string
	Limit       int
	BodyWeight  float64
	TitleWeight float64
	Concurrency int
	Duration    time.Duration
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	emptyResults  atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

// outcome is what one request reports back.
type outcome struct {
	status   int
	cacheHit bool
	results  int
}

func (s *Stats) RecordRequest(duration time.Duration, out outcome, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if out.status >= 200 && out.status < 300 {
		s.successCount.Add(1)
		if out.cacheHit {
			s.cacheHits.Add(1)
		}
		if out.results == 0 {
			s.emptyResults.Add(1)
		}
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[out.status]; !ok {
		s.statusCodes[out.status] = &atomic.Int64{}
	}
	s.statusCodes[out.status].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	rpcAddr := flag.String("rpc", "", "RPC address; when set, queries go over RPC instead of HTTP")
	mode := flag.String("mode", "body", "search mode: body or fused")
	limit := flag.Int("limit", 10, "results per query")
	bodyWeight := flag.Float64("body-weight", 0.6, "body channel weight (fused mode)")
	titleWeight := flag.Float64("title-weight", 0.4, "title channel weight (fused mode)")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	queryFile := flag.String("queries", "", "file with one query per line")
	flag.Parse()

	if *mode != "body" && *mode != "fused" {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
	queries := defaultQueries
	if *queryFile != "" {
		loaded, err := readQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		queries = loaded
	}

	cfg := Config{
		BaseURL:     *baseURL,
		RPCAddr:     *rpcAddr,
		Mode:        *mode,
		Limit:       *limit,
		BodyWeight:  *bodyWeight,
		TitleWeight: *titleWeight,
		Concurrency: *concurrency,
		Duration:    *duration,
		Queries:     queries,
	}

	target := cfg.BaseURL
	if cfg.RPCAddr != "" {
		target = "rpc://" + cfg.RPCAddr
	}
	fmt.Println("=== Search Load Test ===")
	fmt.Printf("Target:      %s\n", target)
	fmt.Printf("Mode:        %s\n", cfg.Mode)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats, err := runLoadTest(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	printReport(stats, cfg.Duration)
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			queries = append(queries, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return queries, nil
}

// searchFunc runs one query and reports its outcome.
type searchFunc func(ctx context.Context, query string) (outcome, error)

func runLoadTest(cfg Config) (*Stats, error) {
	stats := NewStats()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	workers := make([]searchFunc, cfg.Concurrency)
	for w := range workers {
		search, closeFn, err := newSearchFunc(cfg)
		if err != nil {
			return nil, err
		}
		defer closeFn()
		workers[w] = search
	}

	fmt.Print("Running")
	g, gctx := errgroup.WithContext(ctx)
	for w, search := range workers {
		g.Go(func() error {
			queryIdx := w
			for gctx.Err() == nil {
				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				start := time.Now()
				out, err := search(gctx, query)
				if gctx.Err() != nil {
					return nil
				}
				stats.RecordRequest(time.Since(start), out, err)
			}
			return nil
		})
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	err := g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats, err
}

// newSearchFunc returns a per-worker search function; RPC workers each hold
// their own connection.
func newSearchFunc(cfg Config) (searchFunc, func(), error) {
	if cfg.RPCAddr != "" {
		client, err := grpc.Dial(cfg.RPCAddr, 5*time.Second)
		if err != nil {
			return nil, nil, err
		}
		return rpcSearch(client, cfg), func() { client.Close() }, nil
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return httpSearch(client, cfg), func() {}, nil
}

func httpSearch(client *http.Client, cfg Config) searchFunc {
	path := "/api/v1/search"
	if cfg.Mode == "fused" {
		path = "/api/v1/search/fused"
	}
	return func(ctx context.Context, query string) (outcome, error) {
		params := url.Values{}
		params.Set("q", query)
		params.Set("limit", fmt.Sprint(cfg.Limit))
		if cfg.Mode == "fused" {
			params.Set("body_weight", fmt.Sprint(cfg.BodyWeight))
			params.Set("title_weight", fmt.Sprint(cfg.TitleWeight))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return outcome{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return outcome{}, err
		}
		defer resp.Body.Close()

		out := outcome{status: resp.StatusCode}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return out, nil
		}
		var body struct {
			CacheHit bool              `json:"cache_hit"`
			Results  []json.RawMessage `json:"results"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return out, fmt.Errorf("decoding response: %w", err)
		}
		out.cacheHit = body.CacheHit
		out.results = len(body.Results)
		return out, nil
	}
}

func rpcSearch(client *grpc.Client, cfg Config) searchFunc {
	return func(ctx context.Context, query string) (outcome, error) {
		var resp proto.SearchResponse
		var err error
		if cfg.Mode == "fused" {
			err = client.Call(ctx, proto.MethodSearchFused, proto.SearchFusedRequest{
				Query:       query,
				Limit:       int32(cfg.Limit),
				BodyWeight:  cfg.BodyWeight,
				TitleWeight: cfg.TitleWeight,
			}, &resp)
		} else {
			err = client.Call(ctx, proto.MethodSearch, proto.SearchRequest{Query: query, Limit: int32(cfg.Limit)}, &resp)
		}
		if err != nil {
			var remote *grpc.RemoteError
			if errors.As(err, &remote) {
				return outcome{status: remote.Code}, nil
			}
			return outcome{}, err
		}
		return outcome{status: http.StatusOK, cacheHit: resp.CacheHit, results: len(resp.Results)}, nil
	}
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	failed := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", failed)

	if total > 0 {
		errorRate := float64(failed) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}
	if success > 0 {
		fmt.Printf("Cache Hit Rate:  %.2f%%\n", float64(stats.cacheHits.Load())/float64(success)*100)
		fmt.Printf("Empty Results:   %d\n", stats.emptyResults.Load())
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
