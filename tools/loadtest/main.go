package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SkynetNext/serverinfo-rest/internal/protocol"
)

var (
	host        = flag.String("host", "localhost", "Target host")
	port        = flag.Int("port", 60202, "Target port")
	connections = flag.Int("connections", 50, "Number of concurrent workers")
	duration    = flag.Duration("duration", 30*time.Second, "Test duration")
	path        = flag.String("path", "/api/v1/players", "Request path, may include a query")
	token       = flag.String("token", "", "Auth token appended as ?token=")
	timeout     = flag.Duration("timeout", 5*time.Second, "Per-request timeout")
	verbose     = flag.Bool("verbose", false, "Verbose output")
)

type Stats struct {
	TotalRequests int64
	Successful    int64 // 2xx
	Rejected      int64 // non-2xx
	TotalBytes    int64
	MinLatency    time.Duration
	MaxLatency    time.Duration
	TotalLatency  time.Duration
	ConnErrors    int64
	WriteErrors   int64
	ReadErrors    int64
	ParseErrors   int64
}

var (
	stats Stats

	statusMu     sync.Mutex
	statusCounts = map[int]int64{}
)

func main() {
	flag.Parse()

	raw := buildRequest()
	addr := net.JoinHostPort(*host, strconv.Itoa(*port))

	fmt.Printf("=== serverinfo-rest Load Test ===\n")
	fmt.Printf("Target: %s\n", addr)
	fmt.Printf("Workers: %d\n", *connections)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Request: %q\n", firstLine(raw))
	fmt.Printf("\n")

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	// Start stats reporter
	statsDone := make(chan struct{})
	go reportStats(ctx, statsDone)

	var wg sync.WaitGroup
	startTime := time.Now()
	for i := 0; i < *connections; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if err := doRequest(addr, raw); err != nil && *verbose {
					fmt.Printf("request failed: %v\n", err)
				}
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(startTime)

	<-statsDone
	printFinalReport(elapsed)
}

// buildRequest encodes the GET request every worker sends
func buildRequest() []byte {
	target, query, _ := strings.Cut(*path, "?")
	if *token != "" {
		if query != "" {
			query += "&"
		}
		query += "token=" + *token
	}

	return protocol.EncodeRequest(&protocol.Request{
		Method:  "GET",
		Path:    target,
		Query:   query,
		Headers: map[string]string{"Host": *host, "User-Agent": "serverinfo-loadtest"},
	})
}

func firstLine(raw []byte) string {
	if i := bytes.Index(raw, []byte("\r\n")); i >= 0 {
		return string(raw[:i])
	}
	return string(raw)
}

// doRequest sends one request on a new connection and reads until the server closes it
func doRequest(addr string, raw []byte) error {
	start := time.Now()
	atomic.AddInt64(&stats.TotalRequests, 1)

	conn, err := net.DialTimeout("tcp", addr, *timeout)
	if err != nil {
		atomic.AddInt64(&stats.ConnErrors, 1)
		return err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(*timeout))

	if _, err := conn.Write(raw); err != nil {
		atomic.AddInt64(&stats.WriteErrors, 1)
		return err
	}

	resp, err := io.ReadAll(conn)
	if err != nil {
		atomic.AddInt64(&stats.ReadErrors, 1)
		return err
	}
	atomic.AddInt64(&stats.TotalBytes, int64(len(raw)+len(resp)))

	code, err := statusCode(resp)
	if err != nil {
		atomic.AddInt64(&stats.ParseErrors, 1)
		return err
	}
	statusMu.Lock()
	statusCounts[code]++
	statusMu.Unlock()
	if code >= 200 && code < 300 {
		atomic.AddInt64(&stats.Successful, 1)
	} else {
		atomic.AddInt64(&stats.Rejected, 1)
	}

	recordLatency(time.Since(start))
	return nil
}

// statusCode parses the status line "HTTP/1.1 200 OK"
func statusCode(resp []byte) (int, error) {
	line := firstLine(resp)
	fields := bytes.Fields([]byte(line))
	if len(fields) < 2 || !bytes.HasPrefix(fields[0], []byte("HTTP/")) {
		return 0, errors.New("malformed status line: " + strconv.Quote(line))
	}
	return strconv.Atoi(string(fields[1]))
}

func recordLatency(latency time.Duration) {
	for {
		oldMin := atomic.LoadInt64((*int64)(&stats.MinLatency))
		if oldMin != 0 && latency >= time.Duration(oldMin) {
			break
		}
		if atomic.CompareAndSwapInt64((*int64)(&stats.MinLatency), oldMin, int64(latency)) {
			break
		}
	}

	for {
		oldMax := atomic.LoadInt64((*int64)(&stats.MaxLatency))
		if latency <= time.Duration(oldMax) {
			break
		}
		if atomic.CompareAndSwapInt64((*int64)(&stats.MaxLatency), oldMax, int64(latency)) {
			break
		}
	}

	atomic.AddInt64((*int64)(&stats.TotalLatency), int64(latency))
}

func reportStats(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Printf("\r[Stats] Requests: %d | 2xx: %d | other: %d | Bytes: %d",
				atomic.LoadInt64(&stats.TotalRequests),
				atomic.LoadInt64(&stats.Successful),
				atomic.LoadInt64(&stats.Rejected),
				atomic.LoadInt64(&stats.TotalBytes),
			)
		}
	}
}

func printFinalReport(elapsed time.Duration) {
	fmt.Printf("\n\n=== Final Report ===\n")
	fmt.Printf("Duration: %v\n", elapsed)

	total := atomic.LoadInt64(&stats.TotalRequests)
	successful := atomic.LoadInt64(&stats.Successful)
	rejected := atomic.LoadInt64(&stats.Rejected)
	completed := successful + rejected
	failed := total - completed

	fmt.Printf("\n--- Requests ---\n")
	fmt.Printf("Total: %d\n", total)
	if total > 0 {
		fmt.Printf("2xx: %d (%.2f%%)\n", successful, float64(successful)/float64(total)*100)
		fmt.Printf("Other status: %d (%.2f%%)\n", rejected, float64(rejected)/float64(total)*100)
		fmt.Printf("Failed: %d (%.2f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("Throughput: %.2f req/s\n", float64(completed)/elapsed.Seconds())

	statusMu.Lock()
	codes := make([]int, 0, len(statusCounts))
	for code := range statusCounts {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Printf("\n--- Status codes ---\n")
	for _, code := range codes {
		fmt.Printf("%d: %d\n", code, statusCounts[code])
	}
	statusMu.Unlock()

	fmt.Printf("\n--- Latency ---\n")
	if completed > 0 {
		fmt.Printf("Min: %v\n", time.Duration(atomic.LoadInt64((*int64)(&stats.MinLatency))))
		fmt.Printf("Max: %v\n", time.Duration(atomic.LoadInt64((*int64)(&stats.MaxLatency))))
		fmt.Printf("Avg: %v\n", time.Duration(atomic.LoadInt64((*int64)(&stats.TotalLatency))/completed))
	}

	totalBytes := atomic.LoadInt64(&stats.TotalBytes)
	fmt.Printf("\n--- Throughput ---\n")
	fmt.Printf("Total Bytes: %d (%.2f MB)\n", totalBytes, float64(totalBytes)/1024/1024)

	fmt.Printf("\n--- Errors ---\n")
	fmt.Printf("Connection Errors: %d\n", atomic.LoadInt64(&stats.ConnErrors))
	fmt.Printf("Write Errors: %d\n", atomic.LoadInt64(&stats.WriteErrors))
	fmt.Printf("Read Errors: %d\n", atomic.LoadInt64(&stats.ReadErrors))
	fmt.Printf("Parse Errors: %d\n", atomic.LoadInt64(&stats.ParseErrors))

	if total == 0 || failed > total/10 {
		fmt.Printf("\nTest failed: too many errors\n")
		os.Exit(1)
	}
	fmt.Printf("\nTest completed successfully\n")
}
