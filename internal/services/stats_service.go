// internal/services/stats_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/Corphon/MoodboardPitch/internal/storage"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

const (
	statsDir       = "stats"
	statsFile      = "usage_stats.json"
	statsKeepDays  = 31
	statsKeepMonth = 12
)

// UsageStats counts model calls. DailyStats holds requests per day,
// MonthlyStats tokens per month and Models requests per model.
type UsageStats struct {
	TodayRequests int            `json:"today_requests"`
	TodayTokens   int            `json:"today_tokens"`
	MonthlyTokens int            `json:"monthly_tokens"`
	DailyStats    map[string]int `json:"daily_stats"`
	MonthlyStats  map[string]int `json:"monthly_stats"`
	Models        map[string]int `json:"models"`
	LastUpdated   time.Time      `json:"last_updated"`
}

// StatsService tracks Gemini usage against the free-tier quotas. With a
// FileStorage the counters survive restarts.
type StatsService struct {
	files *storage.FileStorage
	mutex sync.Mutex
	stats UsageStats
	dirty bool
	now   func() time.Time
}

// NewStatsService restores the saved counters from files, if any.
// A nil files keeps the counters in memory.
func NewStatsService(files *storage.FileStorage) *StatsService {
	s := &StatsService{files: files, now: time.Now}
	s.stats = emptyUsage()

	if files == nil {
		return s
	}
	var saved UsageStats
	err := files.LoadJSONFile(statsDir, statsFile, &saved)
	switch {
	case err == nil:
		s.stats = saved
		fillUsageMaps(&s.stats)
	case !errors.Is(err, storage.ErrFileNotFound):
		utils.GetLogger().Warn("⚠️ Usage stats unreadable, starting from zero", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return s
}

func emptyUsage() UsageStats {
	u := UsageStats{}
	fillUsageMaps(&u)
	return u
}

func fillUsageMaps(u *UsageStats) {
	if u.DailyStats == nil {
		u.DailyStats = make(map[string]int)
	}
	if u.MonthlyStats == nil {
		u.MonthlyStats = make(map[string]int)
	}
	if u.Models == nil {
		u.Models = make(map[string]int)
	}
}

// RecordRequest counts one completed model call.
func (s *StatsService) RecordRequest(model string, tokens int) {
	if s == nil {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	s.rollLocked(now)

	day := now.Format("2006-01-02")
	month := now.Format("2006-01")
	s.stats.TodayRequests++
	s.stats.TodayTokens += tokens
	s.stats.MonthlyTokens += tokens
	s.stats.DailyStats[day]++
	s.stats.MonthlyStats[month] += tokens
	if model != "" {
		s.stats.Models[model]++
	}
	s.stats.LastUpdated = now
	s.dirty = true
}

// rollLocked resets the day and month counters when the period changed
// and drops history beyond the retention window.
func (s *StatsService) rollLocked(now time.Time) {
	last := s.stats.LastUpdated
	if last.IsZero() {
		return
	}
	if now.Format("2006-01-02") != last.Format("2006-01-02") {
		s.stats.TodayRequests = 0
		s.stats.TodayTokens = 0
		s.dirty = true
	}
	if now.Format("2006-01") != last.Format("2006-01") {
		s.stats.MonthlyTokens = 0
		s.dirty = true
	}
	pruneOldest(s.stats.DailyStats, statsKeepDays)
	pruneOldest(s.stats.MonthlyStats, statsKeepMonth)
}

// pruneOldest keeps the keep most recent keys; keys sort chronologically.
func pruneOldest(m map[string]int, keep int) {
	if len(m) <= keep {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys[:len(keys)-keep] {
		delete(m, k)
	}
}

// GetUsageStats returns a copy with the current period applied.
func (s *StatsService) GetUsageStats() UsageStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.rollLocked(s.now())
	cp := s.stats
	cp.DailyStats = maps.Clone(s.stats.DailyStats)
	cp.MonthlyStats = maps.Clone(s.stats.MonthlyStats)
	cp.Models = maps.Clone(s.stats.Models)
	return cp
}

// Flush writes the counters if they changed since the last save.
func (s *StatsService) Flush() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.files == nil || !s.dirty {
		return nil
	}
	if err := s.files.SaveJSONFile(statsDir, statsFile, s.stats); err != nil {
		return fmt.Errorf("save usage stats: %w", err)
	}
	s.dirty = false
	return nil
}

// StartPeriodicSave flushes every interval until ctx is done.
func (s *StatsService) StartPeriodicSave(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Flush(); err != nil {
					utils.GetLogger().Warn("⚠️ Usage stats not saved", map[string]interface{}{"error": err.Error()})
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *StatsService) Close() error {
	return s.Flush()
}
