package store

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"
)

type ItemType string

const (
	ItemLost      ItemType = "Lost"
	ItemFound     ItemType = "Found"
	ItemKnowledge ItemType = "Knowledge"
)

// Valid reports whether t names one of the report collections.
func (t ItemType) Valid() bool {
	return t == ItemLost || t == ItemFound
}

type ReportStatus string

const (
	StatusActive   ReportStatus = "Active"
	StatusResolved ReportStatus = "Resolved"
	StatusClosed   ReportStatus = "Closed"
	StatusExpired  ReportStatus = "Expired"
)

type MatchStatus string

const (
	MatchPending   MatchStatus = "Pending"
	MatchConfirmed MatchStatus = "Confirmed"
	MatchRejected  MatchStatus = "Rejected"
	MatchResolved  MatchStatus = "Resolved"
)

// Deleted selects whether soft-deleted rows take part in a query.
// Every list query takes it explicitly.
type Deleted int

const (
	ExcludeDeleted Deleted = iota
	IncludeDeleted
)

type Store struct {
	db *sql.DB

	// sqlite allows one writer; upserts that read before writing hold this
	// so the read and the write see the same row
	writeMu sync.Mutex
}

type Location struct {
	Address     string
	Latitude    *float64
	Longitude   *float64
	City        string
	Governorate string
}

// HasCoordinates reports whether both latitude and longitude are known.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Report is a lost or found report. Type decides which table it lives in.
type Report struct {
	ID          string
	OwnerID     string
	Type        ItemType
	Category    string
	Title       string
	Description string
	ImageRef    string
	Location    Location
	OccurredAt  time.Time // loss date for lost reports, found date for found reports
	Status      ReportStatus
	Deleted     bool
	CreatedAt   time.Time
}

type KnowledgeEntry struct {
	ID        string
	Category  string
	Title     string
	Content   string
	Deleted   bool
	UpdatedAt time.Time
}

type Signal string

const (
	SignalText     Signal = "text"
	SignalImage    Signal = "image"
	SignalLocation Signal = "location"
	SignalDate     Signal = "date"
)

// Contribution explains how one signal fed the aggregate score.
type Contribution struct {
	Score    float64 `json:"score"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
	Detail   string  `json:"detail,omitempty"`
}

// Reasons is the per-signal explanation stored with a candidate.
type Reasons map[Signal]Contribution

func (r Reasons) encode() (string, error) {
	if r == nil {
		return "{}", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeReasons(s string) (Reasons, error) {
	r := Reasons{}
	if s == "" {
		return r, nil
	}
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, err
	}
	return r, nil
}

type MatchCandidate struct {
	ID             string
	LostItemID     string
	FoundItemID    string
	TextScore      float64
	ImageScore     float64
	LocationScore  float64
	DateScore      float64
	AggregateScore float64
	Reasons        Reasons
	Promoted       bool
	CreatedAt      time.Time
	DeletedAt      *time.Time
}

type Match struct {
	ID                 string
	LostItemID         string
	FoundItemID        string
	ConfidenceScore    float64
	Status             MatchStatus
	LostOwnerNotified  bool
	FoundOwnerNotified bool
	CreatedAt          time.Time
}

type ItemEmbedding struct {
	ID          string
	ItemID      string
	ItemType    ItemType
	Vector      []float32
	Text        string
	Category    string
	City        string
	Governorate string
	UpdatedAt   time.Time
}

type KnowledgeEmbedding struct {
	ID          string
	KnowledgeID string
	Category    string
	Text        string
	Vector      []float32
	UpdatedAt   time.Time
}

// EmbeddingFilter narrows item embeddings by exact match on the denormalized
// filter columns. Empty fields do not filter.
type EmbeddingFilter struct {
	Category    string
	City        string
	Governorate string
	ItemType    ItemType
}

// CandidateFilter narrows candidate listings.
type CandidateFilter struct {
	OnlyUnpromoted bool
	Deleted        Deleted
}
