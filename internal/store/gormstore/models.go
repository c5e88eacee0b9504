package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LedgerAccount represents the ledger_accounts table.
type LedgerAccount struct {
	LedgerID      string `gorm:"type:uuid;primaryKey"`
	MemberID      string `gorm:"not null;uniqueIndex:uniq_ledger_member"`
	Remaining     int64  `gorm:"not null"`
	Locked        int64  `gorm:"not null"`
	Total         int64  `gorm:"not null"`
	PurchaseCents int64  `gorm:"not null"`
	Status        string `gorm:"not null"`
	Expiry        *time.Time
	CreatedAt     time.Time `gorm:"not null"`
}

func (LedgerAccount) TableName() string { return "ledger_accounts" }

// AuditRecord mirrors the audit_entries table. Rows are append-only.
type AuditRecord struct {
	EntryID   string    `gorm:"type:uuid;primaryKey"`
	LedgerID  string    `gorm:"type:uuid;not null;index:idx_audit_ledger_created,priority:1"`
	Amount    int64     `gorm:"not null"`
	Kind      string    `gorm:"not null"`
	RelatedID string    `gorm:""`
	Notes     string    `gorm:""`
	CreatedAt time.Time `gorm:"not null;index:idx_audit_ledger_created,priority:2"`
}

func (AuditRecord) TableName() string { return "audit_entries" }

func (record *AuditRecord) BeforeCreate(tx *gorm.DB) error {
	if record.EntryID == "" {
		record.EntryID = uuid.NewString()
	}
	return nil
}

// CourseRow mirrors the courses table.
type CourseRow struct {
	CourseID        string    `gorm:"primaryKey"`
	Name            string    `gorm:"not null"`
	CoachID         string    `gorm:"index"`
	Capacity        int       `gorm:"not null"`
	MinCapacity     int       `gorm:"not null"`
	ConfirmedCount  int       `gorm:"not null"`
	NextWaitingRank int       `gorm:"not null"`
	StartTime       time.Time `gorm:"not null;index"`
	EndTime         time.Time `gorm:"not null;index"`
	RequiredPoints  int64     `gorm:"not null"`
	Status          string    `gorm:"not null;index"`
	Confirmed       bool      `gorm:"not null"`
}

func (CourseRow) TableName() string { return "courses" }

// BookingRow mirrors the bookings table.
type BookingRow struct {
	BookingID      string         `gorm:"type:uuid;primaryKey"`
	MemberID       string         `gorm:"not null;index:idx_bookings_member"`
	CourseID       string         `gorm:"not null;index:idx_bookings_course_status,priority:1"`
	Status         string         `gorm:"not null;index:idx_bookings_course_status,priority:2"`
	PointsReserved int64          `gorm:"not null"`
	WaitingRank    int            `gorm:"not null"`
	LockExpiry     *time.Time     `gorm:"index"`
	Participant    datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null"`
	CancelledAt    *time.Time
	AttendedAt     *time.Time
}

func (BookingRow) TableName() string { return "bookings" }

// TransferRow mirrors the transfer_escrows table.
type TransferRow struct {
	TransferID        string    `gorm:"type:uuid;primaryKey"`
	SenderLedgerID    string    `gorm:"type:uuid;not null;index"`
	RecipientLedgerID string    `gorm:"type:uuid;not null;index"`
	Amount            int64     `gorm:"not null"`
	Status            string    `gorm:"not null"`
	Expiry            time.Time `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (TransferRow) TableName() string { return "transfer_escrows" }

// PurchaseRow mirrors the purchases table.
type PurchaseRow struct {
	TransactionID string    `gorm:"type:uuid;primaryKey"`
	MemberID      string    `gorm:"not null;index"`
	AmountCents   int64     `gorm:"not null"`
	Points        int64     `gorm:"not null"`
	Status        string    `gorm:"not null"`
	Description   string    `gorm:""`
	CreatedAt     time.Time `gorm:"not null"`
}

func (PurchaseRow) TableName() string { return "purchases" }
