package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	activitydomain "github.com/strataops/atrium/internal/activity/domain"
	"github.com/strataops/atrium/pkg/db/pagination"
)

type listActivityQuery struct {
	PageToken       string `form:"page_token"`
	PageSize        int    `form:"page_size"`
	EntityType      string `form:"entity_type"`
	EntityID        string `form:"entity_id"`
	Action          string `form:"action"`
	Category        string `form:"category"`
	PerformedByID   string `form:"performed_by_id"`
	PerformedByType string `form:"performed_by_type"`
	CaseID          string `form:"case_id"`
	JobID           string `form:"job_id"`
	WorkOrderID     string `form:"work_order_id"`
	AssociationID   string `form:"association_id"`
	UnitID          string `form:"unit_id"`
	Q               string `form:"q"`
	StartAt         string `form:"start_at"`
	EndAt           string `form:"end_at"`
}

func (q listActivityQuery) filter(c *gin.Context) (activitydomain.Filter, bool) {
	var filter activitydomain.Filter

	if v := strings.TrimSpace(q.EntityType); v != "" {
		entityType := activitydomain.EntityType(v)
		if !entityType.Valid() {
			AbortWithError(c, newValidationError("entity_type", "invalid_entity_type", "invalid entity_type"))
			return filter, false
		}
		filter.EntityType = &entityType
	}
	if v := strings.TrimSpace(q.EntityID); v != "" {
		filter.EntityID = &v
	}
	if v := strings.TrimSpace(q.Action); v != "" {
		action := activitydomain.Action(v)
		if !action.Valid() {
			AbortWithError(c, newValidationError("action", "invalid_action", "invalid action"))
			return filter, false
		}
		filter.Action = &action
	}
	if v := strings.TrimSpace(q.Category); v != "" {
		category := activitydomain.Category(v)
		if !category.Valid() {
			AbortWithError(c, newValidationError("category", "invalid_category", "invalid category"))
			return filter, false
		}
		filter.Category = &category
	}
	if v := strings.TrimSpace(q.PerformedByID); v != "" {
		filter.PerformedByID = &v
	}
	if v := strings.TrimSpace(q.PerformedByType); v != "" {
		performerType := activitydomain.PerformerType(v)
		if !performerType.Valid() {
			AbortWithError(c, newValidationError("performed_by_type", "invalid_performer", "invalid performed_by_type"))
			return filter, false
		}
		filter.PerformedByType = &performerType
	}
	if v := strings.TrimSpace(q.Q); v != "" {
		filter.SummaryContains = &v
	}
	if v := strings.TrimSpace(q.CaseID); v != "" {
		filter.Refs.CaseID = &v
	}
	if v := strings.TrimSpace(q.JobID); v != "" {
		filter.Refs.JobID = &v
	}
	if v := strings.TrimSpace(q.WorkOrderID); v != "" {
		filter.Refs.WorkOrderID = &v
	}
	if v := strings.TrimSpace(q.AssociationID); v != "" {
		filter.Refs.AssociationID = &v
	}
	if v := strings.TrimSpace(q.UnitID); v != "" {
		filter.Refs.UnitID = &v
	}

	startAt, ok := parseTimeParam(c, "start_at", q.StartAt)
	if !ok {
		return filter, false
	}
	filter.StartAt = startAt

	endAt, ok := parseTimeParam(c, "end_at", q.EndAt)
	if !ok {
		return filter, false
	}
	filter.EndAt = endAt

	return filter, true
}

func parseTimeParam(c *gin.Context, field, value string) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		AbortWithError(c, newValidationError(field, "invalid_"+field, "invalid "+field))
		return nil, false
	}
	return &parsed, true
}

func (s *Server) ListActivity(c *gin.Context) {
	var query listActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter, ok := query.filter(c)
	if !ok {
		return
	}

	resp, err := s.activityQuery.List(c.Request.Context(), activitydomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Actor:  actorString(c),
		Filter: filter,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Events, "page_info": resp.PageInfo})
}

func (s *Server) GetActivityByEntity(c *gin.Context) {
	var query listActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.activityQuery.GetByEntity(c.Request.Context(), activitydomain.GetByEntityRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Actor:      actorString(c),
		EntityType: activitydomain.EntityType(strings.TrimSpace(query.EntityType)),
		EntityID:   strings.TrimSpace(query.EntityID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Events, "page_info": resp.PageInfo})
}

func (s *Server) ListActivityByCase(c *gin.Context) {
	var query listActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter, ok := query.filter(c)
	if !ok {
		return
	}
	filter.Refs.CaseID = nil

	resp, err := s.activityQuery.ListByCase(c.Request.Context(), activitydomain.ListByCaseRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Actor:  actorString(c),
		CaseID: c.Param("case_id"),
		Filter: filter,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Events, "page_info": resp.PageInfo})
}

func (s *Server) ListActivityByActor(c *gin.Context) {
	var query listActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var performerType *activitydomain.PerformerType
	if v := strings.TrimSpace(query.PerformedByType); v != "" {
		pt := activitydomain.PerformerType(v)
		if !pt.Valid() {
			AbortWithError(c, newValidationError("performed_by_type", "invalid_performer", "invalid performed_by_type"))
			return
		}
		performerType = &pt
	}

	resp, err := s.activityQuery.ListByActor(c.Request.Context(), activitydomain.ListByActorRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Actor:           actorString(c),
		PerformedByID:   strings.TrimSpace(query.PerformedByID),
		PerformedByType: performerType,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Events, "page_info": resp.PageInfo})
}

type exportActivityQuery struct {
	listActivityQuery
	MaxRecords int `form:"max_records"`
}

func (s *Server) ExportActivity(c *gin.Context) {
	var query exportActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter, ok := query.filter(c)
	if !ok {
		return
	}

	resp, err := s.activityQuery.Export(c.Request.Context(), activitydomain.ExportRequest{
		Actor:      actorString(c),
		Filter:     filter,
		MaxRecords: query.MaxRecords,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":         resp.Events,
		"exported_at":  resp.ExportedAt,
		"record_count": resp.RecordCount,
	})
}
