package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-calendar/internal/config"
	"github.com/hackgods/clinic-calendar/internal/db"
	"github.com/hackgods/clinic-calendar/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	Days         int
	BookingRatio float64
	MoveRatio    float64
	ConfirmRatio float64
	ReadRatio    float64
	PatientLimit int
	PostgresDSN  string
}

type slotRef struct {
	Day   string
	Start time.Time
}

type DataPool struct {
	Patients     []uuid.UUID
	Slots        []slotRef
	Days         []string
	mu           sync.RWMutex
	appointments []uuid.UUID // Thread-safe list of created appointment IDs
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
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
	Rejected  int64
	Throttled int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRejected
	outcomeThrottled
	outcomeError
)

func classify(resp *http.Response, err error, okStatus int) outcome {
	if err != nil {
		return outcomeError
	}
	switch resp.StatusCode {
	case okStatus:
		return outcomeSuccess
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return outcomeRejected
	case http.StatusTooManyRequests:
		return outcomeThrottled
	}
	return outcomeError
}

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch o {
	case outcomeSuccess:
		atomic.AddInt64(&om.Success, 1)
	case outcomeRejected:
		atomic.AddInt64(&om.Rejected, 1)
	case outcomeThrottled:
		atomic.AddInt64(&om.Throttled, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min95(len(latencies))]
	return avg, min, max, p50, p95
}

func min95(n int) int {
	idx := n * 95 / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking  OperationMetrics
	Move     OperationMetrics
	Confirm  OperationMetrics
	Slots    OperationMetrics
	Calendar OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *zap.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.Must(baseCfg.Env, baseCfg.LogLevel).Named("simulate")
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Int("days", cfg.Days),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("move", cfg.MoveRatio),
		zap.Float64("confirm", cfg.ConfirmRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.pool, err = sim.loadDataPool(ctx, pgPool)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("data pool loaded", zap.Int("patients", len(sim.pool.Patients)), zap.Int("slots", len(sim.pool.Slots)))

	sim.Run()

	overlaps, err := countOverlaps(context.Background(), pgPool)
	if err != nil {
		logger.Error("overlap audit failed", zap.Error(err))
	}

	sim.PrintReport(overlaps)
	if overlaps > 0 {
		os.Exit(1)
	}
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 20),
		Days:         getInt("SIM_DAYS", 5),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		MoveRatio:    getFloat("SIM_MOVE_RATIO", 0.1),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 1000),
		PostgresDSN:  base.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.MoveRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.MoveRatio /= total
		cfg.ConfirmRatio /= total
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
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

// loadDataPool reads patients from Postgres and the slot grid of the next
// cfg.Days days from the API.
func (s *Simulator) loadDataPool(ctx context.Context, pool *pgxpool.Pool) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, s.config.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	today := time.Now()
	for i := 1; i <= s.config.Days; i++ {
		day := today.AddDate(0, 0, i).Format("2006-01-02")
		dataPool.Days = append(dataPool.Days, day)

		slots, err := s.fetchSlots(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("load slots for %s: %w", day, err)
		}
		for _, sl := range slots {
			dataPool.Slots = append(dataPool.Slots, slotRef{Day: day, Start: sl.Start})
		}
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no slots in the next %d days", s.config.Days)
	}

	return dataPool, nil
}

type slotJSON struct {
	Time        string    `json:"time"`
	Start       time.Time `json:"start"`
	IsAvailable bool      `json:"isAvailable"`
}

func (s *Simulator) fetchSlots(ctx context.Context, day string) ([]slotJSON, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/schedule/slots?date="+day, nil)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var slots []slotJSON
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.MoveRatio:
				s.doMove(ctx, rng)
			case r < s.config.BookingRatio+s.config.MoveRatio+s.config.ConfirmRatio:
				s.doConfirm(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doSlots(ctx, rng)
				} else {
					s.doCalendar(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) send(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data, nil
}

// doBooking aims many workers at the same slot grid, so most attempts race.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	// Occasionally offset the start to probe partial overlaps.
	start := slot.Start
	if rng.Intn(4) == 0 {
		start = start.Add(time.Duration(rng.Intn(6)*10) * time.Minute)
	}

	began := time.Now()
	resp, data, err := s.send(ctx, http.MethodPost, "/appointments", map[string]any{
		"patient_id": patientID.String(),
		"start":      start,
	})
	latency := time.Since(began)

	o := classify(resp, err, http.StatusCreated)
	if o == outcomeSuccess {
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(data, &created) == nil && created.ID != uuid.Nil {
			s.pool.AddAppointment(created.ID)
		}
	}
	if ctx.Err() == nil {
		s.metrics.Booking.Record(latency, o)
	}
}

func (s *Simulator) doMove(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	day := s.pool.Days[rng.Intn(len(s.pool.Days))]

	began := time.Now()
	resp, _, err := s.send(ctx, http.MethodPost, "/appointments/"+apptID.String()+"/move", map[string]string{"date": day})
	if ctx.Err() == nil {
		s.metrics.Move.Record(time.Since(began), classify(resp, err, http.StatusOK))
	}
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	began := time.Now()
	resp, _, err := s.send(ctx, http.MethodPost, "/appointments/"+apptID.String()+"/status", map[string]string{"status": "confirmed"})
	if ctx.Err() == nil {
		s.metrics.Confirm.Record(time.Since(began), classify(resp, err, http.StatusOK))
	}
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	day := s.pool.Days[rng.Intn(len(s.pool.Days))]

	began := time.Now()
	resp, _, err := s.send(ctx, http.MethodGet, "/schedule/slots?date="+day, nil)
	if ctx.Err() == nil {
		s.metrics.Slots.Record(time.Since(began), classify(resp, err, http.StatusOK))
	}
}

func (s *Simulator) doCalendar(ctx context.Context, rng *rand.Rand) {
	day := s.pool.Days[rng.Intn(len(s.pool.Days))]
	view := "week"
	if rng.Intn(2) == 0 {
		view = "month"
	}

	began := time.Now()
	resp, _, err := s.send(ctx, http.MethodGet, "/calendar?view="+view+"&date="+day, nil)
	if ctx.Err() == nil {
		s.metrics.Calendar.Record(time.Since(began), classify(resp, err, http.StatusOK))
	}
}

// countOverlaps audits the table directly: any pair of live entries whose
// occupied ranges intersect is a double booking.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM calendar_entries a
		JOIN calendar_entries b
		  ON a.id < b.id
		 AND a.start_time < b.occupied_until
		 AND b.start_time < a.occupied_until
		WHERE a.status <> 'cancelled'
		  AND b.status <> 'cancelled'
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport(overlaps int) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Move (drag and drop)", &s.metrics.Move)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Slot listing", &s.metrics.Slots)
	printOperationReport("Calendar view", &s.metrics.Calendar)

	if overlaps > 0 {
		fmt.Printf("DOUBLE BOOKINGS DETECTED: %d overlapping pairs\n", overlaps)
	} else {
		fmt.Println("No overlapping entries found")
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Rejected)
	throttled := atomic.LoadInt64(&om.Throttled)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, pct(rejected))
	}
	if throttled > 0 {
		fmt.Printf("  Throttled: %d (%.1f%%)\n", throttled, pct(throttled))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

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
