package main

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classattend/internal/admission"
	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/config"
	"classattend/internal/metrics"
	"classattend/internal/qrcode"
	"classattend/internal/qrdecode"
	"classattend/internal/schedule"
)

func scheduleSkips(s string) []schedule.Skip {
	_, skips := schedule.Parse(s)
	return skips
}

type handlers struct {
	cfg     config.App
	repo    *attendance.Repository
	engine  *admission.Engine
	decoder *qrdecode.Client
	log     *zap.Logger
}

func (h *handlers) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lect, err := h.repo.GetLecturerByUsername(c.Request.Context(), req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if lect == nil || !auth.CheckPassword(lect.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	tokens, err := auth.Issue(lect.ID, lect.Name, "lecturer", h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// recorder pulls the lecturer identity out of the verified token.
func recorder(c *gin.Context) admission.Recorder {
	claims, _ := auth.FromContext(c)
	return admission.Recorder{ID: claims.Subject, Name: claims.Name}
}

func (h *handlers) recordScan(c *gin.Context) {
	var req struct {
		ClassID     string `json:"class_id" binding:"required"`
		Payload     string `json:"payload"`
		SubjectID   string `json:"subject_id"`
		DisplayName string `json:"display_name"`
		Contact     string `json:"contact"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	class, err := h.repo.GetClass(c.Request.Context(), req.ClassID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if class == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
		return
	}

	var res admission.Result
	if req.Payload != "" {
		res = h.engine.Admit(c.Request.Context(), *class, recorder(c), req.Payload)
	} else {
		res = h.engine.AdmitIdentity(c.Request.Context(), *class, recorder(c), req.SubjectID, req.DisplayName, req.Contact)
	}
	h.writeResult(c, res)
}

func (h *handlers) recordScanImage(c *gin.Context) {
	classID := c.PostForm("class_id")
	if classID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class_id field required"})
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
		return
	}

	class, err := h.repo.GetClass(c.Request.Context(), classID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if class == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
		return
	}

	payload, err := h.decoder.Decode(c.Request.Context(), header.Filename, data)
	if err != nil {
		h.log.Warn("qr image decode failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "QR decode failed: " + err.Error()})
		return
	}

	res := h.engine.Admit(c.Request.Context(), *class, recorder(c), payload)
	h.writeResult(c, res)
}

// writeResult maps each admission outcome to its own status and body so the
// operator UI can show a distinct dialog per rejection.
func (h *handlers) writeResult(c *gin.Context, res admission.Result) {
	metrics.ScanDecisions.WithLabelValues(string(res.Outcome)).Inc()

	body := gin.H{"outcome": res.Outcome, "message": res.Message}
	switch res.Outcome {
	case admission.Admitted:
		body["event"] = res.Event
		c.JSON(http.StatusCreated, body)
	case admission.RejectedOutOfWindow:
		body["schedule"] = res.Schedule
		body["now"] = res.Now
		c.JSON(http.StatusForbidden, body)
	case admission.RejectedInvalidPayload:
		body["expected_format"] = qrcode.Grammar
		c.JSON(http.StatusUnprocessableEntity, body)
	case admission.RejectedDuplicate:
		if !res.PriorAt.IsZero() {
			body["prior_at"] = res.PriorAt
		}
		c.JSON(http.StatusConflict, body)
	case admission.RejectedPersistenceFailed:
		body["event"] = res.Event
		c.JSON(http.StatusBadGateway, body)
	default:
		c.JSON(http.StatusInternalServerError, body)
	}
}

func (h *handlers) listAttendance(c *gin.Context) {
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	events, err := h.repo.ListEvents(c.Request.Context(), c.Query("class_id"), c.Query("subject_id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

type classRequest struct {
	CourseCode string `json:"course_code" binding:"required"`
	CourseName string `json:"course_name" binding:"required"`
	Section    string `json:"section"`
	Room       string `json:"room"`
	Schedule   string `json:"schedule" binding:"required"`
	LecturerID string `json:"lecturer_id"`
}

func (h *handlers) createClass(c *gin.Context) {
	var req classRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cls := attendance.Class{
		CourseCode: req.CourseCode,
		CourseName: req.CourseName,
		Section:    req.Section,
		Room:       req.Room,
		Schedule:   req.Schedule,
		LecturerID: req.LecturerID,
	}
	if cls.LecturerID == "" {
		cls.LecturerID = recorder(c).ID
	}
	created, err := h.repo.CreateClass(c.Request.Context(), cls)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, warnIfUnparseable(created))
}

// warnIfUnparseable attaches schedule parse diagnostics to class responses
// so a bad schedule surfaces at save time, not at the first scan.
func warnIfUnparseable(cls attendance.Class) gin.H {
	out := gin.H{"class": cls}
	if skips := scheduleSkips(cls.Schedule); len(skips) > 0 {
		out["schedule_warnings"] = skips
	}
	return out
}

func (h *handlers) getClass(c *gin.Context) {
	cls, err := h.repo.GetClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cls == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"class": cls})
}

func (h *handlers) listClasses(c *gin.Context) {
	classes, err := h.repo.ListClasses(c.Request.Context(), c.Query("lecturer_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

func (h *handlers) updateClass(c *gin.Context) {
	var req classRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cls := attendance.Class{
		ID:         c.Param("id"),
		CourseCode: req.CourseCode,
		CourseName: req.CourseName,
		Section:    req.Section,
		Room:       req.Room,
		Schedule:   req.Schedule,
		LecturerID: req.LecturerID,
	}
	if err := h.repo.UpdateClass(c.Request.Context(), cls); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, warnIfUnparseable(cls))
}

func (h *handlers) deleteClass(c *gin.Context) {
	if err := h.repo.DeleteClass(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) upsertStudent(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		Name      string `json:"name" binding:"required"`
		Email     string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// The badge payload is pipe-delimited, so the fields must be pipe-free.
	if _, err := qrcode.FromFields(req.StudentID, req.Name, req.Email); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	s, err := h.repo.UpsertStudent(c.Request.Context(), attendance.Student{
		StudentID: req.StudentID,
		Name:      req.Name,
		Email:     req.Email,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"student": s})
}

func (h *handlers) getStudent(c *gin.Context) {
	s, err := h.repo.GetStudent(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": s})
}

func (h *handlers) listStudents(c *gin.Context) {
	students, err := h.repo.ListStudents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

// studentQRCode returns the text a student badge QR should encode.
func (h *handlers) studentQRCode(c *gin.Context) {
	s, err := h.repo.GetStudent(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}
	identity, err := qrcode.FromFields(s.StudentID, s.Name, s.Email)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payload": identity.Encode()})
}

func (h *handlers) deleteStudent(c *gin.Context) {
	if err := h.repo.DeleteStudent(c.Request.Context(), c.Param("studentId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
