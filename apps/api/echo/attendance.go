package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/school"
)

const dateLayout = "2006-01-02"

type attendanceApi struct {
	svc       attendance.Service
	schoolSvc school.Service
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc attendance.Service, schoolSvc school.Service) {
	api := attendanceApi{svc: svc, schoolSvc: schoolSvc}

	ag := g.Group("/attendance", jwt)

	ag.POST("/grants", api.issueGrant, staffMiddleware())
	ag.GET("/grants", api.listGrants)

	dg := ag.Group("/:classroomID/:date")
	dg.GET("", api.retrieve)
	dg.PUT("", api.saveMarks)
	dg.POST("/submit", api.submit)
	dg.POST("/review", api.startReview, staffMiddleware())
	dg.POST("/approve", api.approve, staffMiddleware())
	dg.POST("/reject", api.reject, staffMiddleware())
}

// RecordResponse is the read model of one (classroom, date) pair: the
// record if any, the derived presentation fields, and what the caller may
// currently do with it.
type RecordResponse struct {
	ClassroomID int                 `json:"classroom_id"`
	Date        string              `json:"date"`
	Status      attendance.Status   `json:"status"`
	StatusColor string              `json:"status_color"`
	Counts      attendance.Counts   `json:"counts"`
	Record      *attendance.Record  `json:"record,omitempty"`
	Editability attendance.Decision `json:"editability"`
}

func newRecordResponse(classroomID int, date time.Time, rec *attendance.Record, decision attendance.Decision) RecordResponse {
	resp := RecordResponse{
		ClassroomID: classroomID,
		Date:        date.Format(dateLayout),
		Status:      attendance.StatusNotMarked,
		Record:      rec,
		Editability: decision,
	}
	if rec != nil {
		resp.Status = rec.Status
		resp.Counts = rec.Counts()
	}
	resp.StatusColor = resp.Status.Color()
	return resp
}

func (api *attendanceApi) bindKey(ctx echo.Context) (int, time.Time, error) {
	classroomID, err := strconv.Atoi(ctx.Param("classroomID"))
	if err != nil {
		return 0, time.Time{}, core.NewValidationError(nil, core.FieldError{
			Field: "classroomID", Error: "must be an integer",
		})
	}
	date, err := time.Parse(dateLayout, ctx.Param("date"))
	if err != nil {
		return 0, time.Time{}, core.NewValidationError(nil, core.FieldError{
			Field: "date", Error: "must be formatted as " + dateLayout,
		})
	}
	return classroomID, date, nil
}

// Handlers

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	classroomID, date, err := api.bindKey(ctx)
	if err != nil {
		return err
	}
	actor, err := getContextActor(ctx, api.schoolSvc)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	decision, err := api.svc.Editability(actor, classroomID, date)
	if err != nil {
		return errors.Wrap(err, "resolving editability")
	}

	var recPtr *attendance.Record
	rec, err := api.svc.GetRecord(classroomID, date)
	switch errors.Cause(err) {
	case nil:
		recPtr = &rec
	case attendance.ErrRecordNotFound:
		// a day that was never marked is a valid read, not a 404
	default:
		return errors.Wrap(err, "getting attendance record")
	}

	return ctx.JSON(http.StatusOK, newRecordResponse(classroomID, date, recPtr, decision))
}

func (api *attendanceApi) saveMarks(ctx echo.Context) error {
	classroomID, date, err := api.bindKey(ctx)
	if err != nil {
		return err
	}
	actor, err := getContextActor(ctx, api.schoolSvc)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	var data attendance.SaveMarks
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveMarks")
	}
	if err = data.Validate(core.Validate); err != nil {
		return err
	}

	rec, err := api.svc.SaveMarks(actor, classroomID, date, data)
	if err != nil {
		return errors.Wrap(err, "saving marks")
	}
	return ctx.JSON(http.StatusOK, newRecordResponse(classroomID, date, &rec, attendance.Decision{Allowed: true}))
}

func (api *attendanceApi) submit(ctx echo.Context) error {
	return api.transition(ctx, api.svc.Submit)
}

func (api *attendanceApi) startReview(ctx echo.Context) error {
	return api.transition(ctx, api.svc.StartReview)
}

func (api *attendanceApi) approve(ctx echo.Context) error {
	return api.transition(ctx, api.svc.Approve)
}

func (api *attendanceApi) reject(ctx echo.Context) error {
	classroomID, date, err := api.bindKey(ctx)
	if err != nil {
		return err
	}
	actor, err := getContextActor(ctx, api.schoolSvc)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	var data RejectRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RejectRequest")
	}
	if err = data.Validate(core.Validate); err != nil {
		return err
	}

	rec, err := api.svc.Reject(actor, classroomID, date, data.Reason)
	if err != nil {
		return errors.Wrap(err, "rejecting record")
	}
	return ctx.JSON(http.StatusOK, newRecordResponse(classroomID, date, &rec, attendance.Decision{}))
}

func (api *attendanceApi) transition(
	ctx echo.Context,
	fn func(attendance.Actor, int, time.Time) (attendance.Record, error),
) error {
	classroomID, date, err := api.bindKey(ctx)
	if err != nil {
		return err
	}
	actor, err := getContextActor(ctx, api.schoolSvc)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	rec, err := fn(actor, classroomID, date)
	if err != nil {
		return errors.Wrap(err, "transitioning record")
	}
	return ctx.JSON(http.StatusOK, newRecordResponse(classroomID, date, &rec, attendance.Decision{}))
}

func (api *attendanceApi) issueGrant(ctx echo.Context) error {
	actor, err := getContextActor(ctx, api.schoolSvc)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	var data attendance.NewGrant
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrant")
	}
	if err = data.Validate(core.Validate); err != nil {
		return err
	}

	grant, err := api.svc.IssueGrant(actor, data)
	if err != nil {
		return errors.Wrap(err, "issuing grant")
	}
	return ctx.JSON(http.StatusCreated, grant)
}

func (api *attendanceApi) listGrants(ctx echo.Context) error {
	actor, err := getContextActor(ctx, api.schoolSvc)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	grants, err := api.svc.ListGrants(actor)
	if err != nil {
		return errors.Wrap(err, "listing grants")
	}
	if grants == nil {
		grants = []attendance.Grant{}
	}
	return ctx.JSON(http.StatusOK, grants)
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (rr *RejectRequest) Validate(validate *validator.Validate) error {
	rr.Reason = core.CleanString(rr.Reason)
	return validate.Struct(rr)
}
