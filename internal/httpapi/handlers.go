package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/bookings/pkg/booking"
	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

func (server *Server) handleRegister(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	ledger, err := server.service.RegisterMember(ctx.Request.Context(), capability.MemberID, points.Amount(server.startingGrant))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"ledger": ledgerPayloadFrom(ledger)})
}

func (server *Server) handleBalance(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	ledger, err := server.service.Balance(ctx.Request.Context(), capability, ctx.Param("memberId"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ledger": ledgerPayloadFrom(ledger)})
}

func (server *Server) handleHistory(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	var query historyQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_query", "bad history filter"))
		return
	}
	filter := booking.AuditFilter{
		Kind:  points.AuditKind(query.Kind),
		Limit: query.Limit,
	}
	if query.From != "" {
		from, err := time.Parse(time.RFC3339, query.From)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_query", "from must be RFC3339"))
			return
		}
		filter.From = from
	}
	if query.To != "" {
		to, err := time.Parse(time.RFC3339, query.To)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_query", "to must be RFC3339"))
			return
		}
		filter.To = to
	}
	entries, err := server.service.History(ctx.Request.Context(), capability, ctx.Param("memberId"), filter)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payload := make([]auditPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, auditPayload{
			EntryID:   entry.EntryID,
			Amount:    entry.Amount.Int64(),
			Kind:      string(entry.Kind),
			RelatedID: entry.RelatedID,
			Notes:     entry.Notes,
			CreatedAt: entry.CreatedAt,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": payload})
}

func (server *Server) handleListBookings(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	bookings, err := server.service.ListBookings(ctx.Request.Context(), capability, ctx.Param("memberId"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payload := make([]bookingPayload, 0, len(bookings))
	for _, entry := range bookings {
		payload = append(payload, bookingPayloadFrom(entry))
	}
	ctx.JSON(http.StatusOK, gin.H{"bookings": payload})
}

func (server *Server) handleCreateBooking(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	var request createBookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	participants := make([]booking.Participant, 0, len(request.Participants))
	for _, participant := range request.Participants {
		participants = append(participants, booking.Participant{
			ChildID:   participant.ChildID,
			GuestName: participant.GuestName,
			GuestAge:  participant.GuestAge,
		})
	}
	if len(participants) == 0 {
		participants = []booking.Participant{{}}
	}
	results, err := server.service.Create(ctx.Request.Context(), capability, booking.CreateRequest{
		CourseID:      request.CourseID,
		Participants:  participants,
		ForceOverride: request.ForceOverride,
	})
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payload := make([]createResultPayload, 0, len(results))
	for _, result := range results {
		payload = append(payload, createResultPayload{
			BookingID:   result.BookingID,
			Status:      string(result.Status),
			WaitingRank: result.WaitingRank,
			Rejected:    result.Rejected,
			Reason:      result.Reason,
		})
	}
	ctx.JSON(http.StatusCreated, gin.H{"results": payload})
}

func (server *Server) handleGetBooking(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	entry, err := server.service.GetBooking(ctx.Request.Context(), capability, ctx.Param("bookingId"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"booking": bookingPayloadFrom(entry)})
}

func (server *Server) handleCancelBooking(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	refund, err := server.service.Cancel(ctx.Request.Context(), capability, ctx.Param("bookingId"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"refunded_points": refund.Int64()})
}

func (server *Server) handleCreateCourse(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	var request createCourseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	created, err := server.service.CreateCourse(ctx.Request.Context(), capability, booking.Course{
		Name:           request.Name,
		CoachID:        request.CoachID,
		Capacity:       request.Capacity,
		MinCapacity:    request.MinCapacity,
		StartTime:      request.StartTime,
		EndTime:        request.EndTime,
		RequiredPoints: points.Amount(request.RequiredPoints),
	})
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"course": coursePayloadFrom(created)})
}

func (server *Server) handleGetCourse(ctx *gin.Context) {
	course, err := server.service.GetCourse(ctx.Request.Context(), ctx.Param("courseId"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"course": coursePayloadFrom(course)})
}

func (server *Server) handleAttendance(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	var request attendanceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	updates := make([]booking.AttendanceUpdate, 0, len(request.Updates))
	for _, update := range request.Updates {
		updates = append(updates, booking.AttendanceUpdate{
			BookingID: update.BookingID,
			Status:    booking.BookingStatus(update.Status),
		})
	}
	results, err := server.service.MarkAttendance(ctx.Request.Context(), capability, ctx.Param("courseId"), updates)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payload := make([]attendanceResultPayload, 0, len(results))
	for _, result := range results {
		payload = append(payload, attendanceResultPayload{
			BookingID: result.BookingID,
			Applied:   result.Applied,
			Reason:    result.Reason,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"results": payload})
}

func (server *Server) handleInitiateTransfer(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	var request transferRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	escrow, err := server.service.InitiateTransfer(ctx.Request.Context(), capability, request.RecipientMemberID, points.Amount(request.Amount))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"transfer": transferPayloadFrom(escrow)})
}

func (server *Server) handleExecuteTransfer(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	if err := server.service.ExecuteTransfer(ctx.Request.Context(), capability, ctx.Param("transferId")); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "confirmed"})
}

func (server *Server) handleCancelTransfer(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	if err := server.service.CancelTransfer(ctx.Request.Context(), capability, ctx.Param("transferId")); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (server *Server) handleInitiatePurchase(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	var request purchaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	purchase, err := server.service.InitiatePurchase(ctx.Request.Context(), capability, request.AmountCents, points.Amount(request.Points), request.Plan)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"transaction_id": purchase.TransactionID,
		"status":         string(purchase.Status),
	})
}

func (server *Server) handlePurchaseCallback(ctx *gin.Context) {
	var request purchaseCallbackRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if err := server.service.CompletePurchase(ctx.Request.Context(), request.TransactionID, request.Succeeded); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (server *Server) handleAdjustPoints(ctx *gin.Context) {
	capability := capabilityFrom(ctx)
	var request adjustRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	ledger, err := server.service.AdjustPoints(ctx.Request.Context(), capability, request.MemberID, points.Amount(request.Delta), request.Notes)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ledger": ledgerPayloadFrom(ledger)})
}

// respondError maps domain errors onto HTTP status codes.
func (server *Server) respondError(ctx *gin.Context, err error) {
	var conflict booking.ConflictError
	switch {
	case errors.As(err, &conflict):
		ctx.JSON(http.StatusConflict, gin.H{
			"error": gin.H{
				"code":        "scheduling_conflict",
				"message":     conflict.Error(),
				"booking_ids": conflict.BookingIDs,
			},
		})
	case errors.Is(err, booking.ErrValidation), errors.Is(err, points.ErrInvalidAmount):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", err.Error()))
	case errors.Is(err, booking.ErrForbidden):
		ctx.JSON(http.StatusForbidden, errorResponse("forbidden", err.Error()))
	case errors.Is(err, booking.ErrNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, booking.ErrAlreadyExists), errors.Is(err, booking.ErrInvalidState):
		ctx.JSON(http.StatusConflict, errorResponse("conflict", err.Error()))
	case errors.Is(err, booking.ErrExpired):
		ctx.JSON(http.StatusGone, errorResponse("expired", err.Error()))
	case errors.Is(err, booking.ErrDeadlinePassed),
		errors.Is(err, booking.ErrAttendanceWindow),
		errors.Is(err, points.ErrInsufficientBalance):
		ctx.JSON(http.StatusUnprocessableEntity, errorResponse("unprocessable", err.Error()))
	case errors.Is(err, points.ErrDataIntegrity):
		server.logger.Error("data integrity violation", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "data integrity violation"))
	default:
		server.logger.Error("request failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "unexpected failure"))
	}
}

type historyQuery struct {
	Kind  string `form:"kind"`
	From  string `form:"from"`
	To    string `form:"to"`
	Limit int    `form:"limit"`
}

type participantPayload struct {
	ChildID   string `json:"child_id,omitempty"`
	GuestName string `json:"guest_name,omitempty"`
	GuestAge  int    `json:"guest_age,omitempty"`
}

type createBookingRequest struct {
	CourseID      string               `json:"course_id"`
	Participants  []participantPayload `json:"participants"`
	ForceOverride bool                 `json:"force_override"`
}

type createResultPayload struct {
	BookingID   string `json:"booking_id,omitempty"`
	Status      string `json:"status,omitempty"`
	WaitingRank int    `json:"waiting_rank,omitempty"`
	Rejected    bool   `json:"rejected,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type createCourseRequest struct {
	Name           string    `json:"name"`
	CoachID        string    `json:"coach_id"`
	Capacity       int       `json:"capacity"`
	MinCapacity    int       `json:"min_capacity"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	RequiredPoints int64     `json:"required_points"`
}

type attendanceRequest struct {
	Updates []attendanceUpdatePayload `json:"updates"`
}

type attendanceUpdatePayload struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type attendanceResultPayload struct {
	BookingID string `json:"booking_id"`
	Applied   bool   `json:"applied"`
	Reason    string `json:"reason,omitempty"`
}

type transferRequest struct {
	RecipientMemberID string `json:"recipient_member_id"`
	Amount            int64  `json:"amount"`
}

type purchaseRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Points      int64  `json:"points"`
	Plan        string `json:"plan"`
}

type purchaseCallbackRequest struct {
	TransactionID string `json:"transaction_id"`
	Succeeded     bool   `json:"succeeded"`
}

type adjustRequest struct {
	MemberID string `json:"member_id"`
	Delta    int64  `json:"delta"`
	Notes    string `json:"notes"`
}

type ledgerPayload struct {
	LedgerID      string `json:"ledger_id"`
	MemberID      string `json:"member_id"`
	Remaining     int64  `json:"remaining"`
	Locked        int64  `json:"locked"`
	Total         int64  `json:"total"`
	PurchaseCents int64  `json:"purchase_cents"`
	Status        string `json:"status"`
}

func ledgerPayloadFrom(ledger points.Ledger) ledgerPayload {
	return ledgerPayload{
		LedgerID:      ledger.LedgerID,
		MemberID:      ledger.MemberID,
		Remaining:     ledger.Remaining.Int64(),
		Locked:        ledger.Locked.Int64(),
		Total:         ledger.Total.Int64(),
		PurchaseCents: ledger.PurchaseCents,
		Status:        string(ledger.Status),
	}
}

type auditPayload struct {
	EntryID   string    `json:"entry_id"`
	Amount    int64     `json:"amount"`
	Kind      string    `json:"kind"`
	RelatedID string    `json:"related_id,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type bookingPayload struct {
	BookingID      string             `json:"booking_id"`
	MemberID       string             `json:"member_id"`
	CourseID       string             `json:"course_id"`
	Status         string             `json:"status"`
	PointsReserved int64              `json:"points_reserved"`
	WaitingRank    int                `json:"waiting_rank,omitempty"`
	LockExpiry     *time.Time         `json:"lock_expiry,omitempty"`
	Participant    participantPayload `json:"participant"`
	CreatedAt      time.Time          `json:"created_at"`
}

func bookingPayloadFrom(entry booking.Booking) bookingPayload {
	return bookingPayload{
		BookingID:      entry.BookingID,
		MemberID:       entry.MemberID,
		CourseID:       entry.CourseID,
		Status:         string(entry.Status),
		PointsReserved: entry.PointsReserved.Int64(),
		WaitingRank:    entry.WaitingRank,
		LockExpiry:     entry.LockExpiry,
		Participant: participantPayload{
			ChildID:   entry.Participant.ChildID,
			GuestName: entry.Participant.GuestName,
			GuestAge:  entry.Participant.GuestAge,
		},
		CreatedAt: entry.CreatedAt,
	}
}

type coursePayload struct {
	CourseID       string    `json:"course_id"`
	Name           string    `json:"name"`
	CoachID        string    `json:"coach_id,omitempty"`
	Capacity       int       `json:"capacity"`
	MinCapacity    int       `json:"min_capacity"`
	ConfirmedCount int       `json:"confirmed_count"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	RequiredPoints int64     `json:"required_points"`
	Status         string    `json:"status"`
	Confirmed      bool      `json:"confirmed"`
}

func coursePayloadFrom(course booking.Course) coursePayload {
	return coursePayload{
		CourseID:       course.CourseID,
		Name:           course.Name,
		CoachID:        course.CoachID,
		Capacity:       course.Capacity,
		MinCapacity:    course.MinCapacity,
		ConfirmedCount: course.ConfirmedCount,
		StartTime:      course.StartTime,
		EndTime:        course.EndTime,
		RequiredPoints: course.RequiredPoints.Int64(),
		Status:         string(course.Status),
		Confirmed:      course.Confirmed,
	}
}

type transferPayload struct {
	TransferID string    `json:"transfer_id"`
	Amount     int64     `json:"amount"`
	Status     string    `json:"status"`
	Expiry     time.Time `json:"expiry"`
}

func transferPayloadFrom(escrow booking.TransferEscrow) transferPayload {
	return transferPayload{
		TransferID: escrow.TransferID,
		Amount:     escrow.Amount.Int64(),
		Status:     string(escrow.Status),
		Expiry:     escrow.Expiry,
	}
}
