package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"psti_chatbot/internal/logger"
)

const (
	DefaultLongtermThreshold  = 0.8
	DefaultLongtermMaxEntries = 200
)

// LongtermKeywords are the topics worth remembering across sessions.
var LongtermKeywords = []string{"lab", "booking", "kelas", "jadwal", "psti", "beasiswa", "skill"}

type LongtermEntry struct {
	Message    string    `json:"message"`
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// LongtermMemory is the per-user file content.
type LongtermMemory struct {
	UserID  string          `json:"user_id"`
	Facts   []string        `json:"facts"`
	History []LongtermEntry `json:"history"`
}

// JSONLongtermManager stores one JSON file per user under baseDir.
type JSONLongtermManager struct {
	baseDir    string
	maxEntries int
	threshold  float64
	mu         sync.Mutex
}

func NewJSONLongtermManager(baseDir string, maxEntries int, threshold float64) *JSONLongtermManager {
	if maxEntries <= 0 {
		maxEntries = DefaultLongtermMaxEntries
	}
	if threshold <= 0 {
		threshold = DefaultLongtermThreshold
	}
	return &JSONLongtermManager{baseDir: baseDir, maxEntries: maxEntries, threshold: threshold}
}

// fileName maps a user id onto a file name that stays inside the base directory. The readable
// prefix is lossy, so a digest of the full id keeps distinct users in distinct files.
func fileName(userID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, userID)
	if len(safe) > 32 {
		safe = safe[:32]
	}
	sum := sha256.Sum256([]byte(userID))
	return safe + "-" + hex.EncodeToString(sum[:8]) + ".json"
}

func (j *JSONLongtermManager) path(userID string) string {
	return filepath.Join(j.baseDir, fileName(userID))
}

// LoadMemory returns an empty memory when the user has no file yet.
func (j *JSONLongtermManager) LoadMemory(userID string) (*LongtermMemory, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.load(userID)
}

func (j *JSONLongtermManager) load(userID string) (*LongtermMemory, error) {
	return j.loadFile(j.path(userID), userID)
}

func (j *JSONLongtermManager) loadFile(path, userID string) (*LongtermMemory, error) {
	mem := &LongtermMemory{UserID: userID, Facts: []string{}, History: []LongtermEntry{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return mem, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read longterm memory file: %w", err)
	}
	if err := sonic.Unmarshal(data, mem); err != nil {
		return nil, fmt.Errorf("failed to parse longterm memory file: %w", err)
	}
	return mem, nil
}

func (j *JSONLongtermManager) write(mem *LongtermMemory) error {
	return j.writeFile(j.path(mem.UserID), mem)
}

func (j *JSONLongtermManager) writeFile(path string, mem *LongtermMemory) error {
	if err := os.MkdirAll(j.baseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create longterm directory: %w", err)
	}
	data, err := sonic.ConfigStd.MarshalIndent(mem, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal longterm memory data: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write longterm memory file: %w", err)
	}
	return nil
}

// ShouldSaveToLongterm reports whether an answer is confident enough to remember.
func (j *JSONLongtermManager) ShouldSaveToLongterm(confidence float64) bool {
	return confidence >= j.threshold
}

// MatchKeywords returns the long-term keywords found in message, in keyword order.
func MatchKeywords(message string) []string {
	lower := strings.ToLower(message)
	var found []string
	for _, kw := range LongtermKeywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// SaveEntry appends entry, records its keywords as facts and keeps the newest maxEntries.
func (j *JSONLongtermManager) SaveEntry(userID string, entry LongtermEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	mem, err := j.load(userID)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("failed to load existing longterm memory, starting fresh")
		mem = &LongtermMemory{UserID: userID}
	}
	mem.UserID = userID
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	for _, kw := range MatchKeywords(entry.Message) {
		if !contains(mem.Facts, kw) {
			mem.Facts = append(mem.Facts, kw)
		}
	}
	mem.History = append(mem.History, entry)
	if over := len(mem.History) - j.maxEntries; over > 0 {
		mem.History = append([]LongtermEntry(nil), mem.History[over:]...)
	}

	if err := j.write(mem); err != nil {
		return err
	}
	logger.Debug().Str("user_id", userID).Str("intent", entry.Intent).
		Float64("confidence", entry.Confidence).Msg("saved to longterm memory")
	return nil
}

// KnownTopics lists the remembered facts of a user.
func (j *JSONLongtermManager) KnownTopics(userID string) ([]string, error) {
	mem, err := j.LoadMemory(userID)
	if err != nil {
		return nil, err
	}
	return mem.Facts, nil
}

// MemoryStats provides statistics about longterm memory
type MemoryStats struct {
	UserID        string    `json:"user_id"`
	TotalEntries  int       `json:"total_entries"`
	Facts         []string  `json:"facts"`
	AvgConfidence float64   `json:"avg_confidence"`
	OldestEntry   time.Time `json:"oldest_entry,omitempty"`
	NewestEntry   time.Time `json:"newest_entry,omitempty"`
	TopIntents    []string  `json:"top_intents"`
	FileSizeBytes int64     `json:"file_size_bytes"`
}

func (j *JSONLongtermManager) GetMemoryStats(userID string) (*MemoryStats, error) {
	mem, err := j.LoadMemory(userID)
	if err != nil {
		return nil, err
	}

	stats := &MemoryStats{UserID: userID, Facts: mem.Facts, TopIntents: []string{}}
	if len(mem.History) == 0 {
		return stats, nil
	}
	stats.TotalEntries = len(mem.History)

	var total float64
	intentCounts := make(map[string]int)
	stats.OldestEntry = mem.History[0].Timestamp
	stats.NewestEntry = mem.History[0].Timestamp
	for _, e := range mem.History {
		total += e.Confidence
		if e.Intent != "" {
			intentCounts[e.Intent]++
		}
		if e.Timestamp.Before(stats.OldestEntry) {
			stats.OldestEntry = e.Timestamp
		}
		if e.Timestamp.After(stats.NewestEntry) {
			stats.NewestEntry = e.Timestamp
		}
	}
	stats.AvgConfidence = total / float64(len(mem.History))
	stats.TopIntents = getTopIntents(intentCounts, 5)

	if info, err := os.Stat(j.path(userID)); err == nil {
		stats.FileSizeBytes = info.Size()
	}
	return stats, nil
}

// CleanupAll drops entries older than maxAge from every stored user and returns how many were
// removed. Unreadable files are skipped and logged.
func (j *JSONLongtermManager) CleanupAll(maxAge time.Duration) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := os.ReadDir(j.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list longterm directory: %w", err)
	}

	total := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(j.baseDir, e.Name())
		removed, err := j.cleanupFile(path, "", maxAge)
		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name()).Msg("skipping longterm memory file")
			continue
		}
		total += removed
	}
	logger.Info().Int("files", len(entries)).Int("removed", total).Dur("max_age", maxAge).
		Msg("longterm retention pass finished")
	return total, nil
}

// cleanupFile must be called with mu held.
func (j *JSONLongtermManager) cleanupFile(path, userID string, maxAge time.Duration) (int, error) {
	mem, err := j.loadFile(path, userID)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	kept := make([]LongtermEntry, 0, len(mem.History))
	for _, e := range mem.History {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(mem.History) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	mem.History = kept
	if err := j.writeFile(path, mem); err != nil {
		return 0, err
	}
	return removed, nil
}

// getTopIntents orders by count, then by name for equal counts.
func getTopIntents(intentCounts map[string]int, limit int) []string {
	type intentCount struct {
		intent string
		count  int
	}

	counts := make([]intentCount, 0, len(intentCounts))
	for intent, count := range intentCounts {
		counts = append(counts, intentCount{intent, count})
	}
	sort.Slice(counts, func(a, b int) bool {
		if counts[a].count != counts[b].count {
			return counts[a].count > counts[b].count
		}
		return counts[a].intent < counts[b].intent
	})

	if len(counts) > limit {
		counts = counts[:limit]
	}
	top := make([]string, len(counts))
	for i, c := range counts {
		top[i] = c.intent
	}
	return top
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
