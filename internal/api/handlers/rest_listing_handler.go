package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/JBD-GER/maklernull-sub000/internal/api/middleware"
	"github.com/JBD-GER/maklernull-sub000/internal/models"
	"github.com/JBD-GER/maklernull-sub000/internal/services"
)

// RestListingHandler handles the owner-facing listing endpoints.
type RestListingHandler struct {
	listingService   services.IListingService
	lifecycleService services.ILifecycleService
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(listingService services.IListingService, lifecycleService services.ILifecycleService) *RestListingHandler {
	return &RestListingHandler{
		listingService:   listingService,
		lifecycleService: lifecycleService,
	}
}

// CreateListing handles POST /v1/listings
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	var content models.ListingContent
	if err := c.ShouldBindJSON(&content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing payload"})
		return
	}

	listing, err := h.listingService.CreateDraft(c.Request.Context(), middleware.OwnerID(c), content)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

// ListListings handles GET /v1/listings?status=&limit=
func (h *RestListingHandler) ListListings(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	status := models.ListingStatus(c.Query("status"))

	listings, err := h.listingService.ListByOwner(c.Request.Context(), middleware.OwnerID(c), status, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if listings == nil {
		listings = []models.Listing{}
	}
	c.JSON(http.StatusOK, gin.H{"data": listings})
}

// GetListing handles GET /v1/listings/:id
func (h *RestListingHandler) GetListing(c *gin.Context) {
	listing, err := h.listingService.Get(c.Request.Context(), c.Param("id"), middleware.OwnerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// UpdateListing handles PUT /v1/listings/:id. The body replaces the whole content.
func (h *RestListingHandler) UpdateListing(c *gin.Context) {
	var content models.ListingContent
	if err := c.ShouldBindJSON(&content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing payload"})
		return
	}

	listing, err := h.listingService.UpdateDraft(c.Request.Context(), c.Param("id"), middleware.OwnerID(c), content)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// DeleteListing handles DELETE /v1/listings/:id
func (h *RestListingHandler) DeleteListing(c *gin.Context) {
	listingID := c.Param("id")
	if err := h.listingService.Delete(c.Request.Context(), listingID, middleware.OwnerID(c)); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": listingID})
}

// GetReadiness handles GET /v1/listings/:id/readiness
func (h *RestListingHandler) GetReadiness(c *gin.Context) {
	report, err := h.lifecycleService.Readiness(c.Request.Context(), c.Param("id"), middleware.OwnerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Deactivate handles POST /v1/listings/:id/deactivate
func (h *RestListingHandler) Deactivate(c *gin.Context) {
	h.ownerAction(c, h.lifecycleService.Deactivate)
}

// MarkMarketed handles POST /v1/listings/:id/marketed
func (h *RestListingHandler) MarkMarketed(c *gin.Context) {
	h.ownerAction(c, h.lifecycleService.MarkMarketed)
}

// Archive handles POST /v1/listings/:id/archive
func (h *RestListingHandler) Archive(c *gin.Context) {
	h.ownerAction(c, h.lifecycleService.Archive)
}

type ownerActionFunc func(ctx context.Context, listingID, ownerID string) (*models.Listing, error)

func (h *RestListingHandler) ownerAction(c *gin.Context, action ownerActionFunc) {
	listing, err := action(c.Request.Context(), c.Param("id"), middleware.OwnerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}
