// Package handler exposes the attendance service over HTTP.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"smartscan/internal/apperr"
	"smartscan/internal/attendance"
	"smartscan/internal/auth"
	"smartscan/internal/export"
	"smartscan/internal/metrics"
	"smartscan/internal/response"
	"smartscan/internal/roster"
	"smartscan/internal/schedule"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) bool

// Options wires a Handler.
type Options struct {
	Service     *attendance.Service
	Roster      *roster.Roster
	Credentials auth.Credentials
	JWTIssuer   string
	JWTKey      string
	TokenTTL    time.Duration
	Location    *time.Location
	PublicURL   string
	Checks      map[string]HealthCheck
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

type Handler struct {
	svc       *attendance.Service
	roster    *roster.Roster
	creds     auth.Credentials
	issuer    string
	key       string
	ttl       time.Duration
	loc       *time.Location
	publicURL string
	checks    map[string]HealthCheck
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func New(o Options) *Handler {
	h := &Handler{
		svc:       o.Service,
		roster:    o.Roster,
		creds:     o.Credentials,
		issuer:    o.JWTIssuer,
		key:       o.JWTKey,
		ttl:       o.TokenTTL,
		loc:       o.Location,
		publicURL: strings.TrimRight(o.PublicURL, "/"),
		checks:    o.Checks,
		metrics:   o.Metrics,
		log:       o.Logger,
	}
	if h.ttl <= 0 {
		h.ttl = 12 * time.Hour
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	return h
}

// NewEngine builds a gin engine that only honours X-Forwarded-For from the listed
// proxies (IPs or CIDRs). With none listed, ClientIP is the socket peer.
func NewEngine(trustedProxies []string) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	return r, nil
}

// Register mounts every route. gate guards the /v1 group.
func (h *Handler) Register(r gin.IRouter, gate ...gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1", gate...)
	{
		v1.GET("/period", h.CurrentPeriod)
		v1.GET("/timetable", h.Timetable)
		v1.GET("/students", h.ListStudents)
		v1.GET("/students/:roll", h.GetStudent)
		v1.GET("/students/:roll/percentages", h.Percentages)
		v1.GET("/students/:roll/records", h.StudentRecords)
		v1.POST("/attendance", h.Submit)
		v1.GET("/qr", h.QRCode)

		v1.POST("/admin/login", h.Login)
		v1.POST("/admin/logout", h.Logout)

		admin := v1.Group("/admin", auth.AdminAuth(h.key, h.issuer))
		admin.GET("/attendance", h.ListAttendance)
		admin.POST("/attendance", h.AddManual)
		admin.PATCH("/attendance/:id", h.UpdateStatus)
		admin.GET("/attendance/export", h.Export)
		admin.GET("/classes", h.Classes)
	}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Schedule ----------

type periodView struct {
	schedule.Period
	Slot       string    `json:"slot,omitempty"`
	Attendable bool      `json:"attendable"`
	At         time.Time `json:"at"`
}

func (h *Handler) periodView(p schedule.Period) periodView {
	v := periodView{Period: p, Attendable: p.Attendable(), At: h.svc.Now().In(h.loc)}
	if p.Index >= 0 && p.Index < len(schedule.Slots) {
		v.Slot = schedule.Slots[p.Index]
	}
	return v
}

func (h *Handler) CurrentPeriod(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.periodView(h.svc.CurrentPeriod()))
}

func (h *Handler) Timetable(c *gin.Context) {
	table := h.svc.Timetable()
	response.JSON(c, http.StatusOK, gin.H{
		"slots":    schedule.Slots,
		"days":     table.Days(),
		"subjects": table.SubjectCounts(),
	})
}

// ---------- Students ----------

func (h *Handler) ListStudents(c *gin.Context) {
	rolls := h.roster.RollNumbers()
	response.JSON(c, http.StatusOK, rolls, gin.H{"count": len(rolls)})
}

// GetStudent shows the student's email next to the class running now.
func (h *Handler) GetStudent(c *gin.Context) {
	st, err := h.svc.Student(c.Param("roll"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"student": st,
		"period":  h.periodView(h.svc.CurrentPeriod()),
	})
}

func (h *Handler) Percentages(c *gin.Context) {
	st, err := h.svc.Student(c.Param("roll"))
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, err := h.svc.Percentages(c.Request.Context(), st.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, gin.H{"student": st})
}

func (h *Handler) StudentRecords(c *gin.Context) {
	st, err := h.svc.Student(c.Param("roll"))
	if err != nil {
		response.Error(c, err)
		return
	}
	recs, err := h.svc.History(c.Request.Context(), st.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, recs, gin.H{"student": st, "count": len(recs)})
}

// ---------- Submission ----------

type submitRequest struct {
	RollNumber string `json:"roll_number" form:"roll_number" binding:"required"`
}

// Submit marks attendance for the running period. Host is the client address.
func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, apperr.Validation("roll_number is required"))
		return
	}

	res, err := h.svc.Submit(c.Request.Context(), attendance.Submission{RollNumber: req.RollNumber, Host: c.ClientIP()})
	if err != nil {
		response.Error(c, err)
		return
	}

	switch res.Outcome {
	case attendance.OutcomeNotRequired:
		response.Error(c, apperr.Wrap(nil, apperr.ErrNotRequired, notRequiredMessage(res.Period)))
	case attendance.OutcomeDuplicate:
		response.JSON(c, http.StatusOK, res, gin.H{"message": "attendance already marked"})
	default:
		response.JSON(c, http.StatusCreated, res, gin.H{"message": fmt.Sprintf("attendance marked for %s", res.Period.Label)})
	}
}

func notRequiredMessage(p schedule.Period) string {
	switch {
	case p.Kind == schedule.KindBreak:
		return "attendance is not required during the break"
	case p.Kind == schedule.KindNoClass:
		return "no class is running now"
	default:
		return fmt.Sprintf("no class is scheduled on %s", p.Weekday)
	}
}

// QRCode renders a PNG pointing at the submission page.
func (h *Handler) QRCode(c *gin.Context) {
	size := 256
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 1024 {
			response.Error(c, apperr.Validation("size must be between 64 and 1024"))
			return
		}
		size = n
	}
	png, err := qrcode.Encode(h.submissionURL(c), qrcode.Medium, size)
	if err != nil {
		response.Error(c, fmt.Errorf("encode qr: %w", err))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) submissionURL(c *gin.Context) string {
	if h.publicURL != "" {
		return h.publicURL + "/"
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + "/"
}

// ---------- Admin ----------

type loginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, apperr.Validation("username and password are required"))
		return
	}

	ok := h.creds.Verify(req.Username, req.Password)
	h.metrics.AdminLogin(ok)
	if !ok {
		h.log.Warn("admin login failed", zap.String("username", req.Username), zap.String("ip", c.ClientIP()))
		response.Error(c, apperr.ErrInvalidCredentials)
		return
	}

	tok, err := auth.Issue(req.Username, auth.RoleAdmin, h.issuer, h.key, h.ttl)
	if err != nil {
		response.Error(c, fmt.Errorf("issue admin token: %w", err))
		return
	}
	if err := auth.StartSession(c, req.Username, tok.ExpiresAt); err != nil {
		response.Error(c, fmt.Errorf("save admin session: %w", err))
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"access_token": tok.Value,
		"token_type":   "Bearer",
		"expires_at":   tok.ExpiresAt.Unix(),
	})
}

func (h *Handler) Logout(c *gin.Context) {
	if err := auth.EndSession(c); err != nil {
		response.Error(c, fmt.Errorf("clear admin session: %w", err))
		return
	}
	response.NoContent(c)
}

func (h *Handler) ListAttendance(c *gin.Context) {
	recs, err := h.svc.Records(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, recs, gin.H{"count": len(recs)})
}

type manualRequest struct {
	RollNumber string `json:"roll_number" binding:"required"`
	ClassName  string `json:"class_name" binding:"required"`
	Status     string `json:"status" binding:"required"`
}

func (h *Handler) AddManual(c *gin.Context) {
	var req manualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.Validation("roll_number, class_name and status are required"))
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		response.Error(c, apperr.Validation(err.Error()))
		return
	}
	rec, err := h.svc.AddManual(c.Request.Context(), attendance.ManualEntry{
		RollNumber: req.RollNumber,
		ClassName:  req.ClassName,
		Status:     status,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, rec)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, apperr.Validation("id must be a positive integer"))
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.Validation("status is required"))
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		response.Error(c, apperr.Validation(err.Error()))
		return
	}
	if err := h.svc.UpdateStatus(c.Request.Context(), id, status); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": id, "status": status})
}

// exportBasename names the download, e.g. attendance.csv.
const exportBasename = "attendance"

// Export downloads the whole table, unfiltered.
func (h *Handler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, apperr.Validation(err.Error()))
		return
	}
	recs, err := h.svc.Records(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	body, err := export.Render(format, recs, h.loc, "Attendance")
	if err != nil {
		response.Error(c, apperr.Wrap(err, apperr.ErrInternal, "export failed"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.Filename(exportBasename)))
	c.Data(http.StatusOK, format.ContentType(), body)
}

// Classes lists the manual entry choices.
func (h *Handler) Classes(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{
		"classes":         h.svc.Timetable().Classes(),
		"manual_statuses": attendance.ManualStatuses,
		"statuses":        attendance.Statuses,
	})
}
