package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	PageStatusOK     = "ok"
	PageStatusFailed = "failed"
)

type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// ScrapedPage is one fetched URL of a bot's training corpus.
type ScrapedPage struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BotID       uuid.UUID `gorm:"type:uuid;column:bot_id;not null;uniqueIndex:idx_scraped_page_bot_url" json:"bot_id"`
	URL         string    `gorm:"column:url;not null;uniqueIndex:idx_scraped_page_bot_url" json:"url"`
	Title       string    `gorm:"column:title" json:"title,omitempty"`
	Description string    `gorm:"column:description" json:"description,omitempty"`
	Content     string    `gorm:"column:content" json:"-"`

	Headings    datatypes.JSONSlice[Heading] `gorm:"column:headings;type:jsonb" json:"headings,omitempty"`
	WordCount   int                          `gorm:"column:word_count;not null;default:0" json:"word_count"`
	ContentHash string                       `gorm:"column:content_hash" json:"content_hash,omitempty"`
	Status      string                       `gorm:"column:status;not null;default:'ok';index" json:"status"`
	Error       string                       `gorm:"column:error" json:"error,omitempty"`
	StorageKey  string                       `gorm:"column:storage_key" json:"-"`

	ScrapedAt time.Time `gorm:"column:scraped_at;not null;default:now()" json:"scraped_at"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ScrapedPage) TableName() string { return "scraped_page" }

// Embedding records a chunk vector stored in the vector index. The vector
// itself only lives upstream.
type Embedding struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BotID          uuid.UUID `gorm:"type:uuid;column:bot_id;not null;index" json:"bot_id"`
	PageID         uuid.UUID `gorm:"type:uuid;column:page_id;not null;index" json:"page_id"`
	ChunkIndex     int       `gorm:"column:chunk_index;not null" json:"chunk_index"`
	VectorID       string    `gorm:"column:vector_id;not null;uniqueIndex" json:"vector_id"`
	Heading        string    `gorm:"column:heading" json:"heading,omitempty"`
	ContentPreview string    `gorm:"column:content_preview" json:"content_preview"`
	TokenCount     int       `gorm:"column:token_count;not null;default:0" json:"token_count"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Embedding) TableName() string { return "embedding" }
