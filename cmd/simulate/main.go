package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/school-visit-booking/internal/api"
	"github.com/hackgods/school-visit-booking/internal/appointment"
	"github.com/hackgods/school-visit-booking/internal/config"
	"github.com/hackgods/school-visit-booking/internal/db"
)

// The simulator drives the HTTP API with visitors competing for slots, an admin
// approving requests and guides racing to take them.

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	ApproveRatio  float64
	AssignRatio   float64
	ReadRatio     float64
	VisitorLimit  int
	GuideLimit    int
	DayWindow     int // bookings land on one of the next DayWindow days
	Password      string
	AdminEmail    string
	AdminPassword string
	PostgresDSN   string
}

type session struct {
	email string
	token string
}

type DataPool struct {
	Visitors []session
	Guides   []session
	Admin    session

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	at := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), at(50), at(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking        OperationMetrics
	Approve        OperationMetrics
	Assign         OperationMetrics
	AvailableTimes OperationMetrics
	ListMine       OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f approve=%.2f assign=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.ApproveRatio, cfg.AssignRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.pool, err = sim.loadDataPool(ctx, pgPool)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("logged in: %d visitors, %d guides", len(sim.pool.Visitors), len(sim.pool.Guides))

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.4),
		ApproveRatio:  getFloat("SIM_APPROVE_RATIO", 0.2),
		AssignRatio:   getFloat("SIM_ASSIGN_RATIO", 0.2),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.2),
		VisitorLimit:  getInt("SIM_VISITOR_LIMIT", 50),
		GuideLimit:    getInt("SIM_GUIDE_LIMIT", 10),
		DayWindow:     getInt("SIM_DAY_WINDOW", 14),
		Password:      getEnv("SIM_PASSWORD", "abcd1234"),
		AdminEmail:    baseCfg.AdminEmail,
		AdminPassword: baseCfg.AdminPassword,
		PostgresDSN:   baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.ApproveRatio + cfg.AssignRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ApproveRatio /= total
		cfg.AssignRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.DayWindow <= 0 {
		return fmt.Errorf("SIM_DAY_WINDOW must be > 0")
	}
	return nil
}

// loadDataPool picks seeded accounts from Postgres and logs each one in.
// Visitors without a school cannot book and are left out.
func (s *Simulator) loadDataPool(ctx context.Context, pool *pgxpool.Pool) (*DataPool, error) {
	visitors, err := emails(ctx, pool, `SELECT email FROM users WHERE role = 'visitor' AND school_id IS NOT NULL LIMIT $1`, s.config.VisitorLimit)
	if err != nil {
		return nil, fmt.Errorf("load visitors: %w", err)
	}
	guides, err := emails(ctx, pool, `SELECT email FROM users WHERE role = 'guide' LIMIT $1`, s.config.GuideLimit)
	if err != nil {
		return nil, fmt.Errorf("load guides: %w", err)
	}

	dp := &DataPool{}
	if dp.Admin, err = s.login(ctx, s.config.AdminEmail, s.config.AdminPassword); err != nil {
		return nil, fmt.Errorf("admin login: %w", err)
	}
	for _, e := range visitors {
		if sess, err := s.login(ctx, e, s.config.Password); err == nil {
			dp.Visitors = append(dp.Visitors, sess)
		}
	}
	for _, e := range guides {
		if sess, err := s.login(ctx, e, s.config.Password); err == nil {
			dp.Guides = append(dp.Guides, sess)
		}
	}

	if len(dp.Visitors) == 0 {
		return nil, fmt.Errorf("no visitors could log in")
	}
	if len(dp.Guides) == 0 {
		return nil, fmt.Errorf("no guides could log in")
	}
	return dp, nil
}

func emails(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]string, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Simulator) login(ctx context.Context, email, password string) (session, error) {
	form := url.Values{"username": {email}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return session{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return session{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return session{}, fmt.Errorf("login %s: status %d", email, resp.StatusCode)
	}

	var out api.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return session{}, err
	}
	return session{email: email, token: out.AccessToken}, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.BookingRatio:
			s.doBooking(ctx, rng)
		case r < c.BookingRatio+c.ApproveRatio:
			s.doLifecycle(ctx, rng, s.pool.Admin, "approve", &s.metrics.Approve)
		case r < c.BookingRatio+c.ApproveRatio+c.AssignRatio:
			guide := s.pool.Guides[rng.Intn(len(s.pool.Guides))]
			s.doLifecycle(ctx, rng, guide, "assign-guide", &s.metrics.Assign)
		default:
			if rng.Intn(2) == 0 {
				s.doAvailableTimes(ctx, rng)
			} else {
				s.doListMine(ctx, rng)
			}
		}
	}
}

func (s *Simulator) randomDate(rng *rand.Rand) string {
	return time.Now().UTC().AddDate(0, 0, 1+rng.Intn(s.config.DayWindow)).Format(appointment.DateLayout)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	visitor := s.pool.Visitors[rng.Intn(len(s.pool.Visitors))]
	body, _ := json.Marshal(api.CreateAppointmentRequest{
		Date:           s.randomDate(rng),
		Time:           appointment.TimeSlots[rng.Intn(len(appointment.TimeSlots))],
		VisitorsNumber: 1 + rng.Intn(40),
	})

	var created api.AppointmentResponse
	status, latency := s.call(ctx, http.MethodPost, "/create-appointment", visitor.token, body, &created)
	if status == http.StatusCreated && created.ID != uuid.Nil {
		s.pool.AddAppointment(created.ID)
	}
	s.metrics.Booking.Record(latency, status)
}

func (s *Simulator) doLifecycle(ctx context.Context, rng *rand.Rand, who session, action string, om *OperationMetrics) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, latency := s.call(ctx, http.MethodPut, fmt.Sprintf("/appointments/%s/%s", id, action), who.token, nil, nil)
	om.Record(latency, status)
}

func (s *Simulator) doAvailableTimes(ctx context.Context, rng *rand.Rand) {
	status, latency := s.call(ctx, http.MethodGet, "/appointments/available-times/"+s.randomDate(rng), "", nil, nil)
	s.metrics.AvailableTimes.Record(latency, status)
}

func (s *Simulator) doListMine(ctx context.Context, rng *rand.Rand) {
	visitor := s.pool.Visitors[rng.Intn(len(s.pool.Visitors))]
	status, latency := s.call(ctx, http.MethodGet, "/appointment?limit=20", visitor.token, nil, nil)
	s.metrics.ListMine.Record(latency, status)
}

// call returns status 0 when the request never got a response.
func (s *Simulator) call(ctx context.Context, method, path, token string, body []byte, out any) (int, time.Duration) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, 0
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, latency
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Approve", &s.metrics.Approve)
	printOperationReport("Assign guide", &s.metrics.Assign)
	printOperationReport("Available times", &s.metrics.AvailableTimes)
	printOperationReport("List mine", &s.metrics.ListMine)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
