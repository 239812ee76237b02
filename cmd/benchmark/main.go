package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Created
	fail409       uint64 // Duplicate references
	fail400       uint64 // Validation rejects
	failOther     uint64
)

// hotRefs is the small set of references the hotspot workload hammers to
// measure duplicate-reference contention.
var hotRefs = []string{
	"UTRHOT000000000001",
	"UTRHOT000000000002",
	"UTRHOT000000000003",
}

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		payload := map[string]interface{}{
			"name":      "Bench Contributor",
			"email":     "bench@example.com",
			"phone":     "+919000000000",
			"amount":    199,
			"reference": generateReference(),
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/receipts", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&success201, 1)
		case 409:
			atomic.AddUint64(&fail409, 1)
		case 400:
			atomic.AddUint64(&fail400, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func generateReference() string {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic replays one of a few references, so all
		// but the first submission of each must come back 409.
		if rand.Float32() < 0.90 {
			return hotRefs[rand.Intn(len(hotRefs))]
		}
	}

	// Uniform: every submission carries a fresh reference.
	return "UTR" + uuid.NewString()
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	f409 := atomic.LoadUint64(&fail409)
	f400 := atomic.LoadUint64(&fail400)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	dupRate := float64(f409) / float64(total) * 100

	results := map[string]interface{}{
		"workload":           workload,
		"duration_sec":       d.Seconds(),
		"total_requests":     total,
		"throughput_tps":     tps,
		"success_created":    s201,
		"reject_duplicate":   f409,
		"reject_validation":  f400,
		"duplicate_rate_pct": dupRate,
		"errors":             fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
