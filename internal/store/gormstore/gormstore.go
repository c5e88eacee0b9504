// Package gormstore implements booking.Store on PostgreSQL or SQLite via
// GORM. ForUpdate reads take SELECT ... FOR UPDATE row locks, so the lock
// discipline of the service layer maps directly onto database row locks.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/bookings/pkg/booking"
	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectLedger    = "ledger"
	errorSubjectAudit     = "audit"
	errorSubjectCourse    = "course"
	errorSubjectBooking   = "booking"
	errorSubjectTransfer  = "transfer"
	errorSubjectPurchase  = "purchase"
	errorCodeCreate       = "create"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeSave         = "save"
)

var openStatuses = []string{string(booking.StatusConfirmed), string(booking.StatusReserved)}

// Store implements booking.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema. Used for SQLite; Postgres deployments manage
// the schema externally.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&LedgerAccount{},
		&AuditRecord{},
		&CourseRow{},
		&BookingRow{},
		&TransferRow{},
		&PurchaseRow{},
	)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateLedger(ctx context.Context, ledger points.Ledger) error {
	model := ledgerModel(ledger)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectLedger, errorCodeDuplicate, booking.ErrAlreadyExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectLedger, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetLedger(ctx context.Context, memberID string) (points.Ledger, error) {
	return store.findLedger(ctx, store.db, "member_id = ?", memberID)
}

func (store *Store) GetLedgerForUpdate(ctx context.Context, memberID string) (points.Ledger, error) {
	return store.findLedger(ctx, store.db.Clauses(clause.Locking{Strength: "UPDATE"}), "member_id = ?", memberID)
}

func (store *Store) GetLedgerByIDForUpdate(ctx context.Context, ledgerID string) (points.Ledger, error) {
	return store.findLedger(ctx, store.db.Clauses(clause.Locking{Strength: "UPDATE"}), "ledger_id = ?", ledgerID)
}

func (store *Store) findLedger(ctx context.Context, db *gorm.DB, query string, argument string) (points.Ledger, error) {
	var model LedgerAccount
	err := db.WithContext(ctx).Where(query, argument).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return points.Ledger{}, wrapStoreError(errorSubjectLedger, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return points.Ledger{}, wrapStoreError(errorSubjectLedger, errorCodeGet, err)
	}
	return mapLedger(model), nil
}

func (store *Store) SaveLedger(ctx context.Context, ledger points.Ledger) error {
	model := ledgerModel(ledger)
	result := store.db.WithContext(ctx).Model(&LedgerAccount{}).
		Where("ledger_id = ?", ledger.LedgerID).
		Updates(map[string]interface{}{
			"remaining":      model.Remaining,
			"locked":         model.Locked,
			"total":          model.Total,
			"purchase_cents": model.PurchaseCents,
			"status":         model.Status,
			"expiry":         model.Expiry,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectLedger, errorCodeSave, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectLedger, errorCodeSave, booking.ErrNotFound)
	}
	return nil
}

func (store *Store) AppendAudit(ctx context.Context, entry points.AuditEntry) error {
	model := AuditRecord{
		EntryID:   entry.EntryID,
		LedgerID:  entry.LedgerID,
		Amount:    entry.Amount.Int64(),
		Kind:      string(entry.Kind),
		RelatedID: entry.RelatedID,
		Notes:     entry.Notes,
		CreatedAt: entry.CreatedAt,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectAudit, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) ListAudit(ctx context.Context, ledgerID string, filter booking.AuditFilter) ([]points.AuditEntry, error) {
	query := store.db.WithContext(ctx).Where("ledger_id = ?", ledgerID)
	if filter.Kind != "" {
		query = query.Where("kind = ?", string(filter.Kind))
	}
	if !filter.From.IsZero() {
		query = query.Where("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("created_at < ?", filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []AuditRecord
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectAudit, errorCodeList, err)
	}
	entries := make([]points.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, points.AuditEntry{
			EntryID:   row.EntryID,
			LedgerID:  row.LedgerID,
			Amount:    points.Amount(row.Amount),
			Kind:      points.AuditKind(row.Kind),
			RelatedID: row.RelatedID,
			Notes:     row.Notes,
			CreatedAt: row.CreatedAt,
		})
	}
	return entries, nil
}

func (store *Store) CreateCourse(ctx context.Context, course booking.Course) error {
	model := courseModel(course)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectCourse, errorCodeDuplicate, booking.ErrAlreadyExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectCourse, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetCourse(ctx context.Context, courseID string) (booking.Course, error) {
	return store.findCourse(ctx, store.db, courseID)
}

func (store *Store) GetCourseForUpdate(ctx context.Context, courseID string) (booking.Course, error) {
	return store.findCourse(ctx, store.db.Clauses(clause.Locking{Strength: "UPDATE"}), courseID)
}

func (store *Store) findCourse(ctx context.Context, db *gorm.DB, courseID string) (booking.Course, error) {
	var model CourseRow
	err := db.WithContext(ctx).Where("course_id = ?", courseID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Course{}, wrapStoreError(errorSubjectCourse, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Course{}, wrapStoreError(errorSubjectCourse, errorCodeGet, err)
	}
	return mapCourse(model), nil
}

func (store *Store) SaveCourse(ctx context.Context, course booking.Course) error {
	model := courseModel(course)
	result := store.db.WithContext(ctx).Model(&CourseRow{}).
		Where("course_id = ?", course.CourseID).
		Updates(map[string]interface{}{
			"name":              model.Name,
			"coach_id":          model.CoachID,
			"capacity":          model.Capacity,
			"min_capacity":      model.MinCapacity,
			"confirmed_count":   model.ConfirmedCount,
			"next_waiting_rank": model.NextWaitingRank,
			"start_time":        model.StartTime,
			"end_time":          model.EndTime,
			"required_points":   model.RequiredPoints,
			"status":            model.Status,
			"confirmed":         model.Confirmed,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectCourse, errorCodeSave, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectCourse, errorCodeSave, booking.ErrNotFound)
	}
	return nil
}

func (store *Store) ListCoursesToFinalize(ctx context.Context, cutoff time.Time) ([]booking.Course, error) {
	var rows []CourseRow
	err := store.db.WithContext(ctx).
		Where("status = ? AND end_time < ?", string(booking.CourseScheduled), cutoff).
		Order("end_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectCourse, errorCodeList, err)
	}
	return mapCourses(rows), nil
}

func (store *Store) ListCoursesAwaitingConfirmation(ctx context.Context, from time.Time, to time.Time) ([]booking.Course, error) {
	var rows []CourseRow
	err := store.db.WithContext(ctx).
		Where("status = ? AND confirmed = ? AND start_time >= ? AND start_time < ?",
			string(booking.CourseScheduled), false, from, to).
		Order("start_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectCourse, errorCodeList, err)
	}
	return mapCourses(rows), nil
}

func (store *Store) CreateBooking(ctx context.Context, entry booking.Booking) error {
	model, err := bookingModel(entry)
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	err = store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectBooking, errorCodeDuplicate, booking.ErrAlreadyExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetBooking(ctx context.Context, bookingID string) (booking.Booking, error) {
	return store.findBooking(ctx, store.db, bookingID)
}

func (store *Store) GetBookingForUpdate(ctx context.Context, bookingID string) (booking.Booking, error) {
	return store.findBooking(ctx, store.db.Clauses(clause.Locking{Strength: "UPDATE"}), bookingID)
}

func (store *Store) findBooking(ctx context.Context, db *gorm.DB, bookingID string) (booking.Booking, error) {
	var model BookingRow
	err := db.WithContext(ctx).Where("booking_id = ?", bookingID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	entry, err := mapBooking(model)
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) SaveBooking(ctx context.Context, entry booking.Booking) error {
	model, err := bookingModel(entry)
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	result := store.db.WithContext(ctx).Model(&BookingRow{}).
		Where("booking_id = ?", entry.BookingID).
		Updates(map[string]interface{}{
			"status":       model.Status,
			"waiting_rank": model.WaitingRank,
			"lock_expiry":  model.LockExpiry,
			"cancelled_at": model.CancelledAt,
			"attended_at":  model.AttendedAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeSave, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeSave, booking.ErrNotFound)
	}
	return nil
}

func (store *Store) ListActiveOverlapping(ctx context.Context, memberID string, start time.Time, end time.Time) ([]booking.Booking, error) {
	var rows []BookingRow
	err := store.db.WithContext(ctx).
		Model(&BookingRow{}).
		Joins("JOIN courses ON courses.course_id = bookings.course_id").
		Where("bookings.member_id = ? AND bookings.status IN ?", memberID, openStatuses).
		Where("courses.start_time < ? AND courses.end_time > ?", end, start).
		Order("bookings.booking_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return mapBookings(rows)
}

func (store *Store) NextReserved(ctx context.Context, courseID string) (booking.Booking, error) {
	var model BookingRow
	err := store.db.WithContext(ctx).
		Where("course_id = ? AND status = ?", courseID, string(booking.StatusReserved)).
		Order("waiting_rank ASC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	entry, err := mapBooking(model)
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) ListReservedExpired(ctx context.Context, now time.Time) ([]booking.Booking, error) {
	var rows []BookingRow
	err := store.db.WithContext(ctx).
		Where("status = ? AND lock_expiry IS NOT NULL AND lock_expiry <= ?", string(booking.StatusReserved), now).
		Order("lock_expiry ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return mapBookings(rows)
}

func (store *Store) ListOpenByCourse(ctx context.Context, courseID string) ([]booking.Booking, error) {
	var rows []BookingRow
	err := store.db.WithContext(ctx).
		Where("course_id = ? AND status IN ?", courseID, openStatuses).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return mapBookings(rows)
}

func (store *Store) ListReservedByMember(ctx context.Context, memberID string) ([]booking.Booking, error) {
	var rows []BookingRow
	err := store.db.WithContext(ctx).
		Where("member_id = ? AND status = ?", memberID, string(booking.StatusReserved)).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return mapBookings(rows)
}

func (store *Store) ListBookingsByMember(ctx context.Context, memberID string) ([]booking.Booking, error) {
	var rows []BookingRow
	err := store.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return mapBookings(rows)
}

func (store *Store) CreateTransfer(ctx context.Context, transfer booking.TransferEscrow) error {
	model := transferModel(transfer)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectTransfer, errorCodeDuplicate, booking.ErrAlreadyExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransfer, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetTransferForUpdate(ctx context.Context, transferID string) (booking.TransferEscrow, error) {
	var model TransferRow
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transfer_id = ?", transferID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.TransferEscrow{}, wrapStoreError(errorSubjectTransfer, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.TransferEscrow{}, wrapStoreError(errorSubjectTransfer, errorCodeGet, err)
	}
	return mapTransfer(model), nil
}

func (store *Store) SaveTransfer(ctx context.Context, transfer booking.TransferEscrow) error {
	result := store.db.WithContext(ctx).Model(&TransferRow{}).
		Where("transfer_id = ?", transfer.TransferID).
		Update("status", string(transfer.Status))
	if result.Error != nil {
		return wrapStoreError(errorSubjectTransfer, errorCodeSave, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectTransfer, errorCodeSave, booking.ErrNotFound)
	}
	return nil
}

func (store *Store) CreatePurchase(ctx context.Context, purchase booking.Purchase) error {
	model := purchaseModel(purchase)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectPurchase, errorCodeDuplicate, booking.ErrAlreadyExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPurchase, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetPurchaseForUpdate(ctx context.Context, transactionID string) (booking.Purchase, error) {
	var model PurchaseRow
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transaction_id = ?", transactionID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Purchase{}, wrapStoreError(errorSubjectPurchase, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Purchase{}, wrapStoreError(errorSubjectPurchase, errorCodeGet, err)
	}
	return mapPurchase(model), nil
}

func (store *Store) SavePurchase(ctx context.Context, purchase booking.Purchase) error {
	result := store.db.WithContext(ctx).Model(&PurchaseRow{}).
		Where("transaction_id = ?", purchase.TransactionID).
		Update("status", string(purchase.Status))
	if result.Error != nil {
		return wrapStoreError(errorSubjectPurchase, errorCodeSave, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPurchase, errorCodeSave, booking.ErrNotFound)
	}
	return nil
}

func ledgerModel(ledger points.Ledger) LedgerAccount {
	return LedgerAccount{
		LedgerID:      ledger.LedgerID,
		MemberID:      ledger.MemberID,
		Remaining:     ledger.Remaining.Int64(),
		Locked:        ledger.Locked.Int64(),
		Total:         ledger.Total.Int64(),
		PurchaseCents: ledger.PurchaseCents,
		Status:        string(ledger.Status),
		Expiry:        ledger.Expiry,
		CreatedAt:     ledger.CreatedAt,
	}
}

func mapLedger(model LedgerAccount) points.Ledger {
	return points.Ledger{
		LedgerID:      model.LedgerID,
		MemberID:      model.MemberID,
		Remaining:     points.Amount(model.Remaining),
		Locked:        points.Amount(model.Locked),
		Total:         points.Amount(model.Total),
		PurchaseCents: model.PurchaseCents,
		Status:        points.LedgerStatus(model.Status),
		Expiry:        model.Expiry,
		CreatedAt:     model.CreatedAt,
	}
}

func courseModel(course booking.Course) CourseRow {
	return CourseRow{
		CourseID:        course.CourseID,
		Name:            course.Name,
		CoachID:         course.CoachID,
		Capacity:        course.Capacity,
		MinCapacity:     course.MinCapacity,
		ConfirmedCount:  course.ConfirmedCount,
		NextWaitingRank: course.NextWaitingRank,
		StartTime:       course.StartTime,
		EndTime:         course.EndTime,
		RequiredPoints:  course.RequiredPoints.Int64(),
		Status:          string(course.Status),
		Confirmed:       course.Confirmed,
	}
}

func mapCourse(model CourseRow) booking.Course {
	return booking.Course{
		CourseID:        model.CourseID,
		Name:            model.Name,
		CoachID:         model.CoachID,
		Capacity:        model.Capacity,
		MinCapacity:     model.MinCapacity,
		ConfirmedCount:  model.ConfirmedCount,
		NextWaitingRank: model.NextWaitingRank,
		StartTime:       model.StartTime,
		EndTime:         model.EndTime,
		RequiredPoints:  points.Amount(model.RequiredPoints),
		Status:          booking.CourseStatus(model.Status),
		Confirmed:       model.Confirmed,
	}
}

func mapCourses(rows []CourseRow) []booking.Course {
	courses := make([]booking.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, mapCourse(row))
	}
	return courses
}

func bookingModel(entry booking.Booking) (BookingRow, error) {
	participant, err := json.Marshal(entry.Participant)
	if err != nil {
		return BookingRow{}, err
	}
	return BookingRow{
		BookingID:      entry.BookingID,
		MemberID:       entry.MemberID,
		CourseID:       entry.CourseID,
		Status:         string(entry.Status),
		PointsReserved: entry.PointsReserved.Int64(),
		WaitingRank:    entry.WaitingRank,
		LockExpiry:     entry.LockExpiry,
		Participant:    datatypes.JSON(participant),
		CreatedAt:      entry.CreatedAt,
		CancelledAt:    entry.CancelledAt,
		AttendedAt:     entry.AttendedAt,
	}, nil
}

func mapBooking(model BookingRow) (booking.Booking, error) {
	var participant booking.Participant
	if len(model.Participant) > 0 {
		if err := json.Unmarshal(model.Participant, &participant); err != nil {
			return booking.Booking{}, err
		}
	}
	return booking.Booking{
		BookingID:      model.BookingID,
		MemberID:       model.MemberID,
		CourseID:       model.CourseID,
		Status:         booking.BookingStatus(model.Status),
		PointsReserved: points.Amount(model.PointsReserved),
		WaitingRank:    model.WaitingRank,
		LockExpiry:     model.LockExpiry,
		Participant:    participant,
		CreatedAt:      model.CreatedAt,
		CancelledAt:    model.CancelledAt,
		AttendedAt:     model.AttendedAt,
	}, nil
}

func mapBookings(rows []BookingRow) ([]booking.Booking, error) {
	entries := make([]booking.Booking, 0, len(rows))
	for _, row := range rows {
		entry, err := mapBooking(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func transferModel(transfer booking.TransferEscrow) TransferRow {
	return TransferRow{
		TransferID:        transfer.TransferID,
		SenderLedgerID:    transfer.SenderLedgerID,
		RecipientLedgerID: transfer.RecipientLedgerID,
		Amount:            transfer.Amount.Int64(),
		Status:            string(transfer.Status),
		Expiry:            transfer.Expiry,
		CreatedAt:         transfer.CreatedAt,
	}
}

func mapTransfer(model TransferRow) booking.TransferEscrow {
	return booking.TransferEscrow{
		TransferID:        model.TransferID,
		SenderLedgerID:    model.SenderLedgerID,
		RecipientLedgerID: model.RecipientLedgerID,
		Amount:            points.Amount(model.Amount),
		Status:            booking.EscrowStatus(model.Status),
		Expiry:            model.Expiry,
		CreatedAt:         model.CreatedAt,
	}
}

func purchaseModel(purchase booking.Purchase) PurchaseRow {
	return PurchaseRow{
		TransactionID: purchase.TransactionID,
		MemberID:      purchase.MemberID,
		AmountCents:   purchase.AmountCents,
		Points:        purchase.Points.Int64(),
		Status:        string(purchase.Status),
		Description:   purchase.Description,
		CreatedAt:     purchase.CreatedAt,
	}
}

func mapPurchase(model PurchaseRow) booking.Purchase {
	return booking.Purchase{
		TransactionID: model.TransactionID,
		MemberID:      model.MemberID,
		AmountCents:   model.AmountCents,
		Points:        points.Amount(model.Points),
		Status:        booking.PurchaseStatus(model.Status),
		Description:   model.Description,
		CreatedAt:     model.CreatedAt,
	}
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

var _ booking.Store = (*Store)(nil)
