package protocol

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emdr/protokoll/internal/platform/auth"
	"github.com/emdr/protokoll/pkg/pagination"
)

// DocumentExporter is the export collaborator: PDF in the fixed printable
// layout, plus a canonical JSON byte stream. Failures are reported to the
// user, never retried.
type DocumentExporter interface {
	PDF(p *Protocol) ([]byte, error)
	JSON(p *Protocol) ([]byte, error)
}

type Handler struct {
	svc      *Service
	exporter DocumentExporter
}

func NewHandler(svc *Service, exporter DocumentExporter) *Handler {
	return &Handler{svc: svc, exporter: exporter}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/protocols", h.List)
	api.GET("/protocols/:id", h.Get)
	api.POST("/protocols", h.Create)
	api.PUT("/protocols/:id", h.Update)
	api.DELETE("/protocols/:id", h.Delete)
	api.POST("/protocols/import", h.Import)
	api.GET("/protocols/:id/export", h.Export)
}

func ownerID(c echo.Context) (string, error) {
	id := auth.IdentityFromContext(c.Request().Context())
	if id == nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return id.ID, nil
}

// httpError converts domain failures into the boundary responses: validation
// details with 422, not-found with 404, everything else 500.
func httpError(err error) error {
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": "validation failed",
			"fields":  verrs,
		})
	}
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "protocol not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// List returns summaries, most recently touched first, optionally filtered by
// ?type= and ?q=. With ?group=chiffre the result is grouped and sorted the
// way the list view shows it.
func (h *Handler) List(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	q := ListQuery{Type: c.QueryParam("type"), Search: c.QueryParam("q")}

	if c.QueryParam("group") == "chiffre" {
		groups, err := h.svc.Grouped(c.Request().Context(), owner, q)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"groups": groups})
	}

	items, err := h.svc.Search(c.Request().Context(), owner, q)
	if err != nil {
		return httpError(err)
	}
	pg := pagination.FromContext(c)
	start, end := pg.Slice(len(items))
	return c.JSON(http.StatusOK, pagination.NewResponse(items[start:end], len(items), pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), owner, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Create(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	var p Protocol
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), owner, &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, &p)
}

func (h *Handler) Update(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	var p Protocol
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Update(c.Request().Context(), owner, c.Param("id"), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, &p)
}

func (h *Handler) Delete(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), owner, c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Import(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	var records []*Protocol
	if err := c.Bind(&records); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	imported, err := h.svc.ImportMany(c.Request().Context(), owner, records)
	if err != nil {
		// Partial batches still report how far they got.
		return echo.NewHTTPError(http.StatusInternalServerError, map[string]interface{}{
			"message":  err.Error(),
			"imported": imported,
		})
	}
	return c.JSON(http.StatusOK, map[string]int{"imported": imported})
}

// Export streams the record as PDF (default) or canonical JSON.
func (h *Handler) Export(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), owner, c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	switch format := c.QueryParam("format"); format {
	case "", "pdf":
		data, err := h.exporter.PDF(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "pdf export failed: "+err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			`attachment; filename="protokoll-`+p.ID+`.pdf"`)
		return c.Blob(http.StatusOK, "application/pdf", data)
	case "json":
		data, err := h.exporter.JSON(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "json export failed: "+err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			`attachment; filename="protokoll-`+p.ID+`.json"`)
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "format must be pdf or json")
	}
}
