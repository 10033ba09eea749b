package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kolisoft/makuta/core"
	"github.com/kolisoft/makuta/core/billing"
)

type billingAPIDeps struct {
	invoiceSvc *billing.InvoiceService
	paymentSvc *billing.PaymentService
	validate   *validator.Validate
}

type billingApi struct {
	billingAPIDeps
}

func registerBillingAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps billingAPIDeps) {
	api := billingApi{deps}

	bg := g.Group("/billing", jwt)

	ig := bg.Group("/invoices")
	ig.POST("", api.generateInvoice)
	ig.GET("/unpaid", api.queryUnpaidInvoices)
	ig.GET("/total-due", api.calculateTotalDue)
	ig.GET("/:id", api.retrieveInvoice)
	ig.POST("/:id/issue", api.issueInvoice)
	ig.POST("/:id/cancel", api.cancelInvoice, adminMiddleware())
	ig.POST("/:id/reconcile", api.reconcileInvoice, adminMiddleware())

	pg := bg.Group("/payments")
	pg.POST("", api.recordPayment)
	pg.GET("", api.queryPayments)
	pg.GET("/:id", api.retrievePayment)
	pg.POST("/:id/validate", api.validatePayment, adminMiddleware())
	pg.POST("/:id/cancel", api.cancelPayment, adminMiddleware())

	bg.GET("/students/:id/balance", api.studentBalance)
}

// Request/Response DTOs

type (
	IssueInvoiceRequest struct {
		Notify bool `json:"notify"`
	}

	CancelRequest struct {
		Reason string `json:"reason" validate:"required"`
	}

	TotalDueRequest struct {
		StudentID      string `query:"student_id" json:"student_id" validate:"required"`
		AcademicYearID string `query:"academic_year_id" json:"academic_year_id" validate:"required"`
		Period         string `query:"period" json:"period" validate:"required,billingperiod"`
	}
)

func (r *CancelRequest) Validate(validate *validator.Validate) error {
	r.Reason = core.CleanString(r.Reason)
	return validate.Struct(r)
}

func (r *TotalDueRequest) Validate(validate *validator.Validate) error {
	r.StudentID = core.CleanString(r.StudentID)
	r.AcademicYearID = core.CleanString(r.AcademicYearID)
	r.Period = core.CleanString(r.Period, true /* lower */)
	return validate.Struct(r)
}

// Invoice handlers

func (api *billingApi) generateInvoice(ctx echo.Context) error {
	var data billing.NewInvoice
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInvoice")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}

	inv, err := api.invoiceSvc.Generate(ctx.Request().Context(), data, actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, inv)
}

func (api *billingApi) retrieveInvoice(ctx echo.Context) error {
	inv, err := api.invoiceSvc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *billingApi) queryUnpaidInvoices(ctx echo.Context) error {
	invs, err := api.invoiceSvc.QueryUnpaid(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying unpaid invoices")
	}
	return ctx.JSON(http.StatusOK, invs)
}

func (api *billingApi) calculateTotalDue(ctx echo.Context) error {
	var data TotalDueRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TotalDueRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	due, err := api.invoiceSvc.CalculateTotalDue(ctx.Request().Context(), data.StudentID, data.AcademicYearID, data.Period)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, due)
}

func (api *billingApi) issueInvoice(ctx echo.Context) error {
	var data IssueInvoiceRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to IssueInvoiceRequest")
	}

	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}

	inv, err := api.invoiceSvc.Issue(ctx.Request().Context(), ctx.Param("id"), data.Notify, actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *billingApi) cancelInvoice(ctx echo.Context) error {
	var data CancelRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CancelRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}

	inv, err := api.invoiceSvc.Cancel(ctx.Request().Context(), ctx.Param("id"), data.Reason, actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *billingApi) reconcileInvoice(ctx echo.Context) error {
	inv, err := api.invoiceSvc.Reconcile(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inv)
}

// Payment handlers

func (api *billingApi) recordPayment(ctx echo.Context) error {
	var data billing.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}

	pmt, err := api.paymentSvc.Record(ctx.Request().Context(), data, actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, pmt)
}

func (api *billingApi) retrievePayment(ctx echo.Context) error {
	pmt, err := api.paymentSvc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *billingApi) queryPayments(ctx echo.Context) error {
	var filter billing.PaymentFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to PaymentFilter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	pmts, err := api.paymentSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	return ctx.JSON(http.StatusOK, pmts)
}

func (api *billingApi) validatePayment(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}

	pmt, err := api.paymentSvc.Validate(ctx.Request().Context(), ctx.Param("id"), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *billingApi) cancelPayment(ctx echo.Context) error {
	var data CancelRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CancelRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}

	pmt, err := api.paymentSvc.Cancel(ctx.Request().Context(), ctx.Param("id"), data.Reason, actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *billingApi) studentBalance(ctx echo.Context) error {
	yearID := core.CleanString(ctx.QueryParam("academic_year_id"))
	if yearID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "academic_year_id", Error: "required"})
	}

	bal, err := api.paymentSvc.CalculateBalance(ctx.Request().Context(), ctx.Param("id"), yearID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, bal)
}
