// Package main - agitator
// Load generator for stress testing: many concurrent players adopting,
// feeding and playing with pets over the websocket API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/PetGuild/internal/domain/item"
	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
	"github.com/MRamiBalles/PetGuild/internal/network"
)

// Config for the agitator
type Config struct {
	ServerURL      string
	APIURL         string
	NumClients     int
	ActionInterval time.Duration
	TestDuration   time.Duration
	Tenant         string
	Grant          int64
}

// Stats tracks performance metrics
type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	Results          int64
	Rejections       int64
	Errors           int64
	Events           int64
	Latencies        []time.Duration
	mu               sync.Mutex
}

func (s *Stats) observe(d time.Duration) {
	s.mu.Lock()
	s.Latencies = append(s.Latencies, d)
	s.mu.Unlock()
}

// Weighted action mix for simulation
var actionMix = []string{
	network.ActionFeed,
	network.ActionFeed,
	network.ActionPlay,
	network.ActionPlay,
	network.ActionPlay,
	network.ActionStatus,
	network.ActionBalance,
	network.ActionChat,
	network.ActionBuyItem,
}

func main() {
	// Parse flags
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	apiURL := flag.String("api", "http://localhost:8080", "HTTP API base URL")
	numClients := flag.Int("clients", 50, "Number of concurrent players")
	interval := flag.Duration("interval", 500*time.Millisecond, "Action interval per player")
	duration := flag.Duration("duration", 60*time.Second, "Test duration")
	tenant := flag.String("tenant", "stress-test-001", "Tenant to play in")
	grant := flag.Int64("grant", 1000, "Tokens granted to every player before the run")
	flag.Parse()

	config := Config{
		ServerURL:      *serverURL,
		APIURL:         strings.TrimSuffix(*apiURL, "/"),
		NumClients:     *numClients,
		ActionInterval: *interval,
		TestDuration:   *duration,
		Tenant:         *tenant,
		Grant:          *grant,
	}

	fmt.Println("=========================================")
	fmt.Println("🐾 AGITATOR - PetGuild Stress Test Tool")
	fmt.Println("=========================================")
	fmt.Printf("Server:   %s\n", config.ServerURL)
	fmt.Printf("Tenant:   %s\n", config.Tenant)
	fmt.Printf("Clients:  %d\n", config.NumClients)
	fmt.Printf("Interval: %v\n", config.ActionInterval)
	fmt.Printf("Duration: %v\n", config.TestDuration)
	fmt.Println("=========================================")

	if err := prepare(config); err != nil {
		log.Fatalf("setup failed: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\n⚠️ Interrupt received, stopping...")
		cancel()
	}()

	stats := runStressTest(ctx, config)
	printResults(stats, config)
}

// prepare provisions the tenant and funds every player over HTTP.
func prepare(config Config) error {
	client := &http.Client{Timeout: 10 * time.Second}
	if _, err := post(client, fmt.Sprintf("%s/api/tenants/%s", config.APIURL, config.Tenant), nil); err != nil {
		return fmt.Errorf("provision tenant: %w", err)
	}
	if config.Grant <= 0 {
		return nil
	}
	for i := 0; i < config.NumClients; i++ {
		u := fmt.Sprintf("%s/api/tenants/%s/accounts/%s/grants", config.APIURL, config.Tenant, accountID(i))
		if _, err := post(client, u, map[string]int64{"amount": config.Grant}); err != nil {
			return fmt.Errorf("grant %s: %w", accountID(i), err)
		}
	}
	return nil
}

func post(client *http.Client, u string, body any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	resp, err := client.Post(u, "application/json", &buf)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.StatusCode, nil
}

func accountID(i int) string {
	return fmt.Sprintf("player-%03d", i)
}

func runStressTest(ctx context.Context, config Config) *Stats {
	stats := &Stats{
		Latencies: make([]time.Duration, 0, 10000),
	}

	var wg sync.WaitGroup

	fmt.Println("\n🚀 Starting clients...")

	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runClient(ctx, clientID, config, stats)
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}

	fmt.Printf("✅ All %d clients started\n\n", config.NumClients)

	// Progress updates
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Printf("📊 Progress: Sent=%d Results=%d Rejected=%d Errors=%d Events=%d\n",
					atomic.LoadInt64(&stats.MessagesSent),
					atomic.LoadInt64(&stats.Results),
					atomic.LoadInt64(&stats.Rejections),
					atomic.LoadInt64(&stats.Errors),
					atomic.LoadInt64(&stats.Events))
			}
		}
	}()

	wg.Wait()
	return stats
}

// player is one simulated connection.
type player struct {
	account string
	petID   atomic.Value // string

	mu      sync.Mutex
	pending map[string]time.Time
	nextID  int64
}

func (p *player) action(typ string) network.PlayerAction {
	p.mu.Lock()
	p.nextID++
	id := p.account + "-" + strconv.FormatInt(p.nextID, 10)
	p.pending[id] = time.Now()
	p.mu.Unlock()

	a := network.PlayerAction{Type: typ, RequestID: id}
	if petID, _ := p.petID.Load().(string); petID != "" {
		a.PetID = petID
	}
	return a
}

func (p *player) settle(requestID string) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sent, ok := p.pending[requestID]
	if !ok {
		return 0, false
	}
	delete(p.pending, requestID)
	return time.Since(sent), true
}

func runClient(ctx context.Context, clientID int, config Config, stats *Stats) {
	pl := &player{account: accountID(clientID), pending: map[string]time.Time{}}

	// Parse URL and add query params
	u, err := url.Parse(config.ServerURL)
	if err != nil {
		log.Printf("Client %d: URL parse error: %v", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}

	q := u.Query()
	q.Set("tenant", config.Tenant)
	q.Set("account", pl.account)
	u.RawQuery = q.Encode()

	// Connect
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		log.Printf("Client %d: Connection failed: %v", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	// Start receiver goroutine
	go receive(conn, pl, stats)

	adopt := pl.action(network.ActionAdopt)
	adopt.Species = pet.AllSpecies()[rand.IntN(len(pet.AllSpecies()))].String()
	if err := conn.WriteJSON(adopt); err != nil {
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	atomic.AddInt64(&stats.MessagesSent, 1)

	// Send actions at configured interval
	ticker := time.NewTicker(config.ActionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if err := conn.WriteJSON(generateRandomAction(pl)); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			atomic.AddInt64(&stats.MessagesSent, 1)
		}
	}
}

// receive reads frames until the connection closes. The server may batch
// several JSON messages into one frame, separated by newlines.
func receive(conn *websocket.Conn, pl *player, stats *Stats) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		for _, line := range bytes.Split(frame, []byte{'\n'}) {
			if len(line) == 0 {
				continue
			}
			atomic.AddInt64(&stats.MessagesReceived, 1)

			var reply network.Reply
			if err := json.Unmarshal(line, &reply); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				continue
			}
			switch reply.Type {
			case network.ReplyEvent:
				atomic.AddInt64(&stats.Events, 1)
				continue
			case network.ReplyResult:
				atomic.AddInt64(&stats.Results, 1)
				if reply.Action == network.ActionAdopt && reply.Outcome != nil {
					pl.petID.Store(reply.Outcome.Pet.ID)
				}
			case network.ReplyRejected:
				atomic.AddInt64(&stats.Rejections, 1)
			default:
				atomic.AddInt64(&stats.Errors, 1)
			}
			if d, ok := pl.settle(reply.RequestID); ok {
				stats.observe(d)
			}
		}
	}
}

func generateRandomAction(pl *player) network.PlayerAction {
	action := pl.action(actionMix[rand.IntN(len(actionMix))])

	// Add type-specific payloads
	switch action.Type {
	case network.ActionChat:
		messages := []string{
			"who wants to trade snacks?",
			"my dragon just evolved!",
			"feeding time",
			"anyone seen the new hats?",
		}
		action.Text = messages[rand.IntN(len(messages))]

	case network.ActionBuyItem:
		items := []string{item.PetToy, item.PetFood, item.PetHouse}
		action.Item = items[rand.IntN(len(items))]
	}

	return action
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printResults(stats *Stats, config Config) {
	fmt.Println("\n=========================================")
	fmt.Println("📊 STRESS TEST RESULTS")
	fmt.Println("=========================================")

	sent := atomic.LoadInt64(&stats.MessagesSent)
	recv := atomic.LoadInt64(&stats.MessagesReceived)
	results := atomic.LoadInt64(&stats.Results)
	rejected := atomic.LoadInt64(&stats.Rejections)
	errs := atomic.LoadInt64(&stats.Errors)
	evts := atomic.LoadInt64(&stats.Events)

	fmt.Printf("Messages Sent:     %d\n", sent)
	fmt.Printf("Messages Received: %d\n", recv)
	fmt.Printf("Results:           %d\n", results)
	fmt.Printf("Rejections:        %d\n", rejected)
	fmt.Printf("Events:            %d\n", evts)
	fmt.Printf("Errors:            %d\n", errs)
	fmt.Printf("Error Rate:        %.2f%%\n", float64(errs)/float64(sent+1)*100)

	// Calculate throughput
	throughput := float64(sent) / config.TestDuration.Seconds()
	fmt.Printf("Throughput:        %.2f msg/sec\n", throughput)

	// Latency stats
	stats.mu.Lock()
	latencies := append([]time.Duration(nil), stats.Latencies...)
	stats.mu.Unlock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	if len(latencies) > 0 {
		fmt.Printf("\nRound-trip latency:\n")
		fmt.Printf("  Min: %v\n", latencies[0])
		fmt.Printf("  P50: %v\n", percentile(latencies, 0.50))
		fmt.Printf("  P99: %v\n", percentile(latencies, 0.99))
		fmt.Printf("  Max: %v\n", latencies[len(latencies)-1])
	}

	// Verdict
	fmt.Println("\n-----------------------------------------")
	switch {
	case errs == 0 && results > 0:
		fmt.Println("✅ TEST PASSED: System handled the load")
	case float64(errs)/float64(sent+1) < 0.05:
		fmt.Println("⚠️ TEST WARNING: Some errors detected")
	default:
		fmt.Println("❌ TEST FAILED: High error rate")
	}
	fmt.Println("=========================================")

	// Export results as JSON
	out := map[string]interface{}{
		"messages_sent":      sent,
		"messages_received":  recv,
		"results":            results,
		"rejections":         rejected,
		"events":             evts,
		"errors":             errs,
		"throughput_per_sec": throughput,
		"p50_latency_ms":     float64(percentile(latencies, 0.50)) / float64(time.Millisecond),
		"p99_latency_ms":     float64(percentile(latencies, 0.99)) / float64(time.Millisecond),
		"config": map[string]interface{}{
			"tenant":   config.Tenant,
			"clients":  config.NumClients,
			"interval": config.ActionInterval.String(),
			"duration": config.TestDuration.String(),
		},
	}

	jsonData, _ := json.MarshalIndent(out, "", "  ")
	if err := os.WriteFile("stress_test_results.json", jsonData, 0644); err != nil {
		log.Printf("failed to save results: %v", err)
		return
	}
	fmt.Println("\n📁 Results saved to stress_test_results.json")
}
