package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

type CollectionConfig struct {
	MaxEntries    int           // max distinct entries kept (e.g., 200)
	Retention     time.Duration // drop entries not seen within this window
	PruneInterval time.Duration // how often stale entries are pruned
}

// AggregatedLogEntry is one distinct warn/error line with occurrence counts.
// Identical lines are deduplicated so a flapping provider does not flood
// the diagnostics view.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector keeps a bounded, deduplicated buffer of recent warn/error
// logs for the diagnostics endpoint.
type LogCollector struct {
	config *CollectionConfig
	logMap map[string]*AggregatedLogEntry
	mutex  sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 200
	}
	if config.Retention <= 0 {
		config.Retention = time.Hour
	}
	if config.PruneInterval <= 0 {
		config.PruneInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	collector := &LogCollector{
		config: config,
		logMap: make(map[string]*AggregatedLogEntry),
		ctx:    ctx,
		cancel: cancel,
	}

	collector.wg.Add(1)
	go collector.periodicPrune()

	return collector
}

func (d *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := d.generateKey(level, message, fields, caller)

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if entry, exists := d.logMap[key]; exists {
		entry.Count++
		entry.LastSeen = now
		return
	}

	if len(d.logMap) >= d.config.MaxEntries {
		d.evictOldest()
	}

	d.logMap[key] = &AggregatedLogEntry{
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
}

// Recent returns entries ordered by last occurrence, newest first.
func (d *LogCollector) Recent() []AggregatedLogEntry {
	d.mutex.RLock()
	logs := make([]AggregatedLogEntry, 0, len(d.logMap))
	for _, entry := range d.logMap {
		logs = append(logs, *entry)
	}
	d.mutex.RUnlock()

	sort.Slice(logs, func(i, j int) bool {
		return logs[i].LastSeen.After(logs[j].LastSeen)
	})
	return logs
}

func (d *LogCollector) generateKey(level, message string, fields map[string]interface{}, caller string) string {
	// Create a consistent hash from level + message + fields + caller
	data := struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{
		Level:   level,
		Message: message,
		Fields:  fields,
		Caller:  caller,
	}

	jsonData, _ := json.Marshal(data)
	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash)
}

func (d *LogCollector) evictOldest() {
	var oldestKey string
	var oldest time.Time

	for key, entry := range d.logMap {
		if oldestKey == "" || entry.LastSeen.Before(oldest) {
			oldestKey = key
			oldest = entry.LastSeen
		}
	}
	if oldestKey != "" {
		delete(d.logMap, oldestKey)
	}
}

func (d *LogCollector) periodicPrune() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-d.config.Retention)
			d.mutex.Lock()
			for key, entry := range d.logMap {
				if entry.LastSeen.Before(cutoff) {
					delete(d.logMap, key)
				}
			}
			d.mutex.Unlock()
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *LogCollector) Close() {
	d.cancel()
	d.wg.Wait()
}
