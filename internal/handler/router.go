package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctor-voice-api/internal/middleware"
	"github.com/noah-isme/doctor-voice-api/internal/models"
)

// Routes groups every handler mounted under the API prefix.
type Routes struct {
	Auth        *AuthHandler
	Submissions *SubmissionHandler
	Consent     *ConsentHandler
	Voice       *VoiceHandler
	Media       *MediaHandler
	QC          *QCHandler
	Reports     *ReportHandler
	Users       *UserHandler

	// Authenticate validates the bearer token. Required.
	Authenticate gin.HandlerFunc
	// ConsentLimit throttles OTP send and verify. Optional.
	ConsentLimit gin.HandlerFunc
	// LoginLimit throttles credential checks. Optional.
	LoginLimit gin.HandlerFunc
}

// Register mounts the API on api. ADMIN passes every role check.
func (r Routes) Register(api *gin.RouterGroup) {
	var (
		anyone    = middleware.RequireRoles(models.RoleMR, models.RoleEditor, models.RoleReviewer)
		field     = middleware.RequireRoles(models.RoleMR, models.RoleEditor)
		editors   = middleware.RequireRoles(models.RoleEditor)
		reviewers = middleware.RequireRoles(models.RoleReviewer)
		studio    = middleware.RequireRoles(models.RoleReviewer, models.RoleEditor)
		admins    = middleware.RequireRoles()
	)

	auth := api.Group("/auth")
	auth.POST("/login", optional(r.LoginLimit, r.Auth.Login)...)
	auth.POST("/refresh", optional(r.LoginLimit, r.Auth.Refresh)...)
	auth.POST("/logout", r.Authenticate, r.Auth.Logout)
	auth.GET("/me", r.Authenticate, r.Auth.Me)

	secured := api.Group("")
	secured.Use(r.Authenticate)

	subs := secured.Group("/submissions")
	subs.POST("", field, r.Submissions.Create)
	subs.POST("/gcs", field, r.Submissions.CreateFromStorage)
	subs.POST("/retry", admins, r.Submissions.Retry)
	subs.GET("", anyone, r.Submissions.List)
	subs.GET("/:id", anyone, r.Submissions.Get)
	subs.GET("/:id/languages", anyone, r.Media.Languages)
	subs.GET("/:id/validations", anyone, r.Submissions.Validations)
	subs.POST("/:id/audio/:lang", editors, r.Media.RegisterAudio)
	subs.POST("/:id/video/:lang", editors, r.Media.RegisterVideo)
	subs.POST("/:id/complete", reviewers, r.Submissions.Complete)
	subs.POST("/:id/fail", admins, r.Submissions.Fail)
	subs.DELETE("/:id", studio, r.Submissions.Delete)

	admin := secured.Group("/admin", admins)
	admin.DELETE("/submissions/:id", r.Submissions.Purge)
	admin.GET("/submissions/:id/audit", r.Submissions.AuditTrail)
	admin.GET("/users", r.Users.List)
	admin.POST("/users", r.Users.Create)
	admin.GET("/users/:id", r.Users.Get)
	admin.PUT("/users/:id", r.Users.Update)
	admin.DELETE("/users/:id", r.Users.Deactivate)

	consent := secured.Group("/consent")
	consent.GET("/:id", field, r.Consent.Status)
	consent.POST("/:id/send", optional(r.ConsentLimit, field, r.Consent.Send)...)
	consent.POST("/:id/verify", optional(r.ConsentLimit, field, r.Consent.Verify)...)

	voice := secured.Group("/voice")
	voice.POST("/process/:id", field, r.Voice.Process)
	voice.POST("/release/:id", admins, r.Voice.Release)

	qc := secured.Group("/qc")
	qc.GET("/queue", studio, r.QC.Queue)
	qc.GET("/history/:id", studio, r.QC.History)
	qc.POST("/start-review/:id", reviewers, r.QC.StartReview)
	qc.POST("/approve/:id", reviewers, r.QC.Approve)
	qc.POST("/reject/:id", reviewers, r.QC.Reject)
	qc.POST("/request-changes/:id", reviewers, r.QC.RequestChanges)

	reports := secured.Group("/reports")
	reports.GET("/languages", anyone, r.Reports.Languages)
	reports.GET("/summary", studio, r.Reports.Summary)
	reports.POST("/sync", admins, r.Reports.Sync)
}

// optional drops nil handlers so unset limiters do not break the chain.
func optional(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}
