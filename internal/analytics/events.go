package analytics

import "time"

type EventType string

const (
	EventMine        EventType = "mine"
	EventCacheHit    EventType = "cache_hit"
	EventCacheMiss   EventType = "cache_miss"
	EventIngest      EventType = "ingest"
	EventEmptyResult EventType = "empty_result"
)

type MineEvent struct {
	Type         EventType `json:"type"`
	Dataset      string    `json:"dataset"`
	Params       string    `json:"params"`
	ItemsetCount int       `json:"itemset_count"`
	RuleCount    int       `json:"rule_count"`
	Levels       int       `json:"levels"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
}

type IngestEvent struct {
	Type      EventType `json:"type"`
	Dataset   string    `json:"dataset"`
	Records   int       `json:"records"`
	Dropped   int       `json:"dropped"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}
