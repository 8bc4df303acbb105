package store

import "time"

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobPaused     JobStatus = "paused"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobType selects the processing pipeline for a job.
type JobType string

const (
	JobTypeAnalyze   JobType = "analyze"
	JobTypeTranslate JobType = "translate"
)

// Job is one persisted unit-of-work instance. The row is the durable
// contract between the action that created the job and the periodic worker
// that advances it: the batch plan is immutable after creation and the
// cursor only moves forward.
type Job struct {
	ID     string `gorm:"primaryKey;size:36"`
	WorkID string `gorm:"index;size:36"`
	UserID string `gorm:"size:36"`
	Type   JobType

	Status            JobStatus `gorm:"index"`
	BatchPlan         BatchPlan `gorm:"type:text"`
	CurrentBatchIndex int

	// Lease metadata. Null/empty when unlocked. A worker may claim the job
	// only when LockedAt is null or older than the lease duration.
	LockedAt *time.Time
	LockedBy string `gorm:"size:36"`

	RetryCount   int
	MaxRetries   int
	LastError    string // machine-readable kind of the last failure
	ErrorMessage string // human-readable description of the last failure

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// UnitStatus is the per-content-unit processing state.
type UnitStatus string

const (
	UnitPending    UnitStatus = "pending"
	UnitInProgress UnitStatus = "in_progress"
	UnitDone       UnitStatus = "done"
	UnitFailed     UnitStatus = "failed"
)

// ContentUnit is one chapter of a serialized work. ChunkIndex and
// PartialOutput checkpoint mid-unit translation progress so an abandoned
// unit can resume from its last completed chunk instead of starting over.
type ContentUnit struct {
	ID     string `gorm:"primaryKey;size:36"`
	WorkID string `gorm:"index:idx_unit_work_seq,unique;size:36"`
	SeqNum int    `gorm:"index:idx_unit_work_seq,unique"`
	Title  string
	Body   string `gorm:"type:text"`

	Status     UnitStatus `gorm:"index"`
	FailReason string

	// Mid-unit translation checkpoint.
	ChunkIndex     int
	PartialOutput  string `gorm:"type:text"`
	TranslatedBody string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

// Character is an extracted character entity. Name is the natural key
// within the owning work; aliases accumulate across batches and are never
// removed by a merge.
type Character struct {
	ID          string    `gorm:"primaryKey;size:36"`
	WorkID      string    `gorm:"index:idx_char_work_name,unique;size:36"`
	Name        string    `gorm:"index:idx_char_work_name,unique"`
	Aliases     StringSet `gorm:"type:text"`
	Description string    `gorm:"type:text"`
	Role        string
	OrderIndex  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Term is an extracted glossary term. The original-language form is the
// natural key within the owning work.
type Term struct {
	ID          string    `gorm:"primaryKey;size:36"`
	WorkID      string    `gorm:"index:idx_term_work_orig,unique;size:36"`
	Original    string    `gorm:"index:idx_term_work_orig,unique"`
	Translation string
	Category    string
	Variants    StringSet `gorm:"type:text"`
	Notes       string    `gorm:"type:text"`
	OrderIndex  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimelineEvent is an extracted timeline event. Title plus the sequence
// position where the event starts forms the natural key.
type TimelineEvent struct {
	ID         string    `gorm:"primaryKey;size:36"`
	WorkID     string    `gorm:"index:idx_event_work_key,unique;size:36"`
	Title      string    `gorm:"index:idx_event_work_key,unique"`
	StartSeq   int       `gorm:"index:idx_event_work_key,unique"`
	Summary    string    `gorm:"type:text"`
	Characters StringSet `gorm:"type:text"`
	OrderIndex int

	CreatedAt time.Time
	UpdatedAt time.Time
}
