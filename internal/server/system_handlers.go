package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/disentangle/internal/database"
	"github.com/aristath/disentangle/internal/modules/quantum/handlers"
	"github.com/aristath/disentangle/internal/scheduler"
)

// SystemHandlers handles monitoring and manual job triggers
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	db          *database.DB
	sessions    *handlers.SessionStore
	sched       *scheduler.Scheduler

	mu   sync.RWMutex
	jobs map[string]scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	db *database.DB,
	sessions *handlers.SessionStore,
	sched *scheduler.Scheduler,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		db:          db,
		sessions:    sessions,
		sched:       sched,
		jobs:        make(map[string]scheduler.Job),
	}
}

// SetJobs registers jobs that can be triggered manually.
func (h *SystemHandlers) SetJobs(jobs ...scheduler.Job) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, job := range jobs {
		if job != nil {
			h.jobs[job.Name()] = job
		}
	}
}

// SystemStatusResponse represents the system status
type SystemStatusResponse struct {
	Status         string  `json:"status"` // "healthy" or "unhealthy"
	UptimeSeconds  int64   `json:"uptime_seconds"`
	Sessions       int     `json:"sessions"`
	RunCount       int     `json:"run_count"`
	LastRun        string  `json:"last_run,omitempty"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryPercent  float64 `json:"memory_percent"`
	Goroutines     int     `json:"goroutines"`
	ScheduledJobs  int     `json:"scheduled_jobs"`
	RegisteredJobs int     `json:"registered_jobs"`
}

// DatabaseStatsResponse represents run store statistics
type DatabaseStatsResponse struct {
	Name        string          `json:"name"`
	Path        string          `json:"path"`
	Stats       *database.Stats `json:"stats"`
	SizeMB      float64         `json:"size_mb"`
	LastChecked string          `json:"last_checked"`
}

// DiskUsageResponse represents disk usage of the data directory
type DiskUsageResponse struct {
	DataDirMB float64 `json:"data_dir_mb"`
}

// JobStatus describes one manually triggerable job
type JobStatus struct {
	Name string `json:"name"`
}

// GetSystemStatusSnapshot returns a snapshot of the current system status.
func (h *SystemHandlers) GetSystemStatusSnapshot() (SystemStatusResponse, error) {
	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}
	response.CPUPercent, response.MemoryPercent = h.getSystemStats()

	if h.sessions != nil {
		response.Sessions = h.sessions.Len()
	}
	if h.sched != nil {
		response.ScheduledJobs = h.sched.Entries()
	}
	h.mu.RLock()
	response.RegisteredJobs = len(h.jobs)
	h.mu.RUnlock()

	if h.db == nil {
		return response, nil
	}

	var lastRun sql.NullInt64
	err := h.db.Conn().QueryRow(`
		SELECT COUNT(*), MAX(created_at)
		FROM runs
	`).Scan(&response.RunCount, &lastRun)
	if err != nil && err != sql.ErrNoRows {
		h.log.Error().Err(err).Msg("Failed to query runs")
		response.Status = "unhealthy"
		return response, err
	}
	if lastRun.Valid {
		response.LastRun = time.Unix(lastRun.Int64, 0).UTC().Format(time.RFC3339)
	}
	return response, nil
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	response, err := h.GetSystemStatusSnapshot()
	if err != nil {
		h.log.Warn().Err(err).Msg("System status collected with warnings")
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "Run store not configured", http.StatusServiceUnavailable)
		return
	}

	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get database stats")
		http.Error(w, "Failed to get database stats", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, DatabaseStatsResponse{
		Name:        h.db.Name(),
		Path:        h.db.Path(),
		Stats:       stats,
		SizeMB:      float64(stats.SizeBytes+stats.WALSizeBytes) / 1024 / 1024,
		LastChecked: time.Now().Format(time.RFC3339),
	})
}

// HandleDiskUsage handles GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, DiskUsageResponse{DataDirMB: h.getDirSize(h.dataDir)})
}

// HandleJobsStatus handles GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	jobs := make([]JobStatus, 0, len(h.jobs))
	for name := range h.jobs {
		jobs = append(jobs, JobStatus{Name: name})
	}
	h.mu.RUnlock()
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// HandleTriggerJob handles POST /api/system/jobs/{name}
// The job runs in the background; failures are logged by the scheduler. A job
// that is already running is rejected with 409.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	h.mu.RLock()
	job, ok := h.jobs[name]
	h.mu.RUnlock()
	if !ok {
		http.Error(w, "Job not registered", http.StatusNotFound)
		return
	}
	if h.sched == nil {
		http.Error(w, "Scheduler not running", http.StatusServiceUnavailable)
		return
	}

	if err := h.sched.RunAsync(job); err != nil {
		if errors.Is(err, scheduler.ErrJobRunning) {
			http.Error(w, "Job already running", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.log.Info().Str("job", name).Msg("Manual job triggered")

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "success",
		"message": name + " triggered successfully",
	})
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	if dirPath == "" {
		return 0
	}
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats returns CPU and RAM usage percentages, sampling CPU over
// 100ms.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
