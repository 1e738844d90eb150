package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coursehub/internal/domain/course"
)

type grantRequest struct {
	UserID   string `validate:"required,max=128"`
	CourseID string `validate:"required,max=128"`
}

// AdminEnroll grants an enrollment without a payment. It is the manual
// recovery path for paid orders whose course could not be resolved.
func (h *Handler) AdminEnroll(w http.ResponseWriter, r *http.Request) {
	p, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !p.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req grantRequest
	if err := decodeFields(body, func(key, value string) {
		switch key {
		case "userId":
			req.UserID = value
		case "courseId":
			req.CourseID = value
		}
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx := r.Context()
	if _, err := h.courses.GetByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, course.ErrNotFound) {
			writeError(w, http.StatusNotFound, "course not found")
			return
		}
		zctx.From(ctx).Error("Get course failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	e, created, err := h.enrollments.Grant(ctx, req.UserID, req.CourseID)
	if err != nil {
		zctx.From(ctx).Error("Grant enrollment failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	zctx.From(ctx).Info("Manual enrollment",
		zap.String("admin_id", p.UserID),
		zap.String("user_id", req.UserID),
		zap.String("course_id", req.CourseID),
		zap.Bool("created", created),
	)

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, func(enc *jx.Encoder) {
		enc.ObjStart()
		enc.FieldStart("created")
		enc.Bool(created)
		enc.FieldStart("enrollment")
		encodeEnrollment(enc, e)
		enc.ObjEnd()
	})
}
