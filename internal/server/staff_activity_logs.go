package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	activitydomain "github.com/strataops/atrium/internal/activity/domain"
	"github.com/strataops/atrium/pkg/db/pagination"
)

type staffListActivityQuery struct {
	listActivityQuery
	OrgID string `form:"org_id"`
}

// StaffListActivity is the cross-tenant listing. It is a separate route and a
// separate service operation so tenant reach never hinges on a query flag.
func (s *Server) StaffListActivity(c *gin.Context) {
	var query staffListActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter, ok := query.filter(c)
	if !ok {
		return
	}

	var orgID *snowflake.ID
	if raw := strings.TrimSpace(query.OrgID); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed == 0 {
			AbortWithError(c, newValidationError("org_id", "invalid_org_id", "invalid org_id"))
			return
		}
		id := snowflake.ID(parsed)
		orgID = &id
	}

	resp, err := s.activityQuery.StaffList(c.Request.Context(), activitydomain.StaffListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Actor:  actorString(c),
		OrgID:  orgID,
		Filter: filter,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Events, "page_info": resp.PageInfo})
}

func (s *Server) StaffGetActivityByEntity(c *gin.Context) {
	var query listActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.activityQuery.StaffGetByEntity(c.Request.Context(), activitydomain.GetByEntityRequest{
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
