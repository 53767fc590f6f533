package models

import "time"

const StoreVersion = 2

const (
	SourcePDFCache = "pdf-cache"
	SourceAbstract = "abstract"
	SourceTitle    = "title"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type TextChunk struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type PaperIndex struct {
	Hash      string      `json:"hash"`
	Title     string      `json:"title"`
	Source    string      `json:"source"`
	Chunks    []TextChunk `json:"chunks"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type SectionLink struct {
	Title        string `json:"title"`
	PageNumber   int    `json:"pageNumber"`
	AttachmentID string `json:"attachmentId,omitempty"`
}

type ChatMessage struct {
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	CreatedAt    time.Time     `json:"createdAt"`
	SectionLinks []SectionLink `json:"sectionLinks,omitempty"`
}

type ConversationMemory struct {
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updatedAt"`
	TurnCount int       `json:"turnCount"`
}

type PaperEmbeddings struct {
	Endpoint    string               `json:"endpoint"`
	Model       string               `json:"model"`
	ChunkHashes map[string]string    `json:"chunkHashes"`
	Vectors     map[string][]float32 `json:"vectors"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

type PaperStore struct {
	Version       int                           `json:"version"`
	Papers        map[string]PaperIndex         `json:"papers"`
	Conversations map[string][]ChatMessage      `json:"conversations"`
	Memories      map[string]ConversationMemory `json:"memories"`
	Embeddings    map[string]PaperEmbeddings    `json:"embeddings"`
	// TurnTotals counts every completed turn per paper, including turns
	// trimmed from Conversations.
	TurnTotals map[string]int `json:"turnTotals,omitempty"`
}

func NewPaperStore() PaperStore {
	return PaperStore{
		Version:       StoreVersion,
		Papers:        map[string]PaperIndex{},
		Conversations: map[string][]ChatMessage{},
		Memories:      map[string]ConversationMemory{},
		Embeddings:    map[string]PaperEmbeddings{},
		TurnTotals:    map[string]int{},
	}
}

type PdfOutlineNode struct {
	Title      string           `json:"title"`
	PageNumber *int             `json:"pageNumber,omitempty"`
	URL        string           `json:"url,omitempty"`
	Children   []PdfOutlineNode `json:"children"`
	Depth      int              `json:"depth"`
}

type PdfSectionContext struct {
	Title           string `json:"title"`
	Depth           int    `json:"depth"`
	PageNumber      *int   `json:"pageNumber,omitempty"`
	StartPageNumber *int   `json:"startPageNumber,omitempty"`
	EndPageNumber   *int   `json:"endPageNumber,omitempty"`
	Path            string `json:"path"`
	ContextText     string `json:"contextText"`
	PreviewText     string `json:"previewText"`
	Truncated       bool   `json:"truncated"`
}

// CountTurns counts user messages directly answered by an assistant message.
func CountTurns(msgs []ChatMessage) int {
	n := 0
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Role == RoleAssistant && msgs[i-1].Role == RoleUser {
			n++
		}
	}
	return n
}

// IntPtr is a small helper for optional page numbers.
func IntPtr(v int) *int {
	return &v
}
