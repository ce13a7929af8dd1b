package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/portal_backend/models"
	"bitbucket.org/mmdatafocus/portal_backend/workflow"
	"github.com/gin-gonic/gin"
)

func getPayoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		head, err := models.GetPayoutHead(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		statement, err := models.GetStatementByHead(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		var items []*models.StatementItem
		if statement != nil {
			items = statement.Items
		}
		summary := workflow.Reconcile(head.Balance, items)

		c.JSON(http.StatusOK, gin.H{
			"payout":         head,
			"statement":      statement,
			"reconciliation": summary,
		})
	}
}

type saveStatementRequest struct {
	Status string                     `json:"status" binding:"required"`
	Items  []*models.NewStatementItem `json:"items"`
}

func saveStatementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req saveStatementRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		statement, err := workflow.SaveStatement(c.Request.Context(), id, req.Status, req.Items)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"statement": statement})
	}
}

type adjustStatementRequest struct {
	Items []*models.NewStatementItem `json:"items" binding:"required"`
}

func adjustStatementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req adjustStatementRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		statement, err := workflow.AdjustApproved(c.Request.Context(), id, req.Items)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"statement": statement})
	}
}
