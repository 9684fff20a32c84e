package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JBD-GER/maklernull-sub000/internal/catalog"
)

// RestPackageHandler serves the read-only package catalog.
type RestPackageHandler struct {
	catalog           catalog.ICatalog
	allowTestPackages bool
}

// NewRestPackageHandler creates a new RestPackageHandler.
// Test packages stay hidden unless allowTestPackages is set.
func NewRestPackageHandler(cat catalog.ICatalog, allowTestPackages bool) *RestPackageHandler {
	return &RestPackageHandler{catalog: cat, allowTestPackages: allowTestPackages}
}

// ListPackages handles GET /v1/packages?segment=
func (h *RestPackageHandler) ListPackages(c *gin.Context) {
	segment := c.Query("segment")
	if segment == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "segment is required"})
		return
	}
	var packages []catalog.Package
	if segment != catalog.SegmentTest || h.allowTestPackages {
		packages = h.catalog.ListBySegment(segment)
	}
	if packages == nil {
		packages = []catalog.Package{}
	}
	c.JSON(http.StatusOK, gin.H{"version": h.catalog.Version(), "data": packages})
}

// GetPackage handles GET /v1/packages/:code
func (h *RestPackageHandler) GetPackage(c *gin.Context) {
	pkg, err := h.catalog.Lookup(c.Param("code"))
	if err == nil && pkg.Segment == catalog.SegmentTest && !h.allowTestPackages {
		err = catalog.ErrPackageNotFound
	}
	if err != nil {
		if errors.Is(err, catalog.ErrPackageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Package not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up package"})
		return
	}
	c.JSON(http.StatusOK, pkg)
}
