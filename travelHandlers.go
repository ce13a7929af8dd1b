package main

import (
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/portal_backend/models"
	"bitbucket.org/mmdatafocus/portal_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func createTravelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewTravel
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		travel, warnings, err := workflow.CreateTravel(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"travel": travel, "warnings": warnings})
	}
}

func listTravelsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter models.TravelFilter
		if s := c.Query("status"); s != "" {
			status, err := models.ParseTravelStatus(s)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			filter.Status = &status
		}
		if p := c.Query("participant_id"); p != "" {
			id, err := strconv.Atoi(p)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid participant_id"})
				return
			}
			filter.ParticipantId = &id
		}
		if f, t := c.Query("from"), c.Query("to"); f != "" && t != "" {
			from, err1 := time.Parse(time.RFC3339, f)
			to, err2 := time.Parse(time.RFC3339, t)
			if err1 != nil || err2 != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date range"})
				return
			}
			filter.FromDate = &from
			filter.ToDate = &to
		}

		travels, err := models.ListTravels(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"travels": travels})
	}
}

func getTravelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		travel, err := models.GetTravel(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"travel": travel})
	}
}

func updateTravelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewTravel
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		travel, warnings, err := workflow.UpdateTravel(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"travel": travel, "warnings": warnings})
	}
}

func deleteTravelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		travel, err := models.DeleteTravel(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"travel": travel})
	}
}

type approveTravelRequest struct {
	VehicleId int                  `json:"vehicle_id"`
	Payouts   *workflow.PayoutBatch `json:"payouts"`
}

func approveTravelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req approveTravelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		travel, warnings, err := workflow.ApproveTravel(c.Request.Context(), id, req.VehicleId, req.Payouts)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"travel": travel, "warnings": warnings})
	}
}

type rejectTravelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func rejectTravelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req rejectTravelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
			return
		}

		travel, err := workflow.RejectTravel(c.Request.Context(), id, req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"travel": travel})
	}
}

type cancelTravelRequest struct {
	Reason string `json:"reason"`
}

func cancelTravelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req cancelTravelRequest
		_ = c.ShouldBindJSON(&req)

		travel, err := workflow.CancelTravel(c.Request.Context(), id, req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"travel": travel})
	}
}

func startTravelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		travel, err := workflow.StartTravel(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"travel": travel})
	}
}

type completeTravelRequest struct {
	OdometerAfter decimal.Decimal `json:"odometer_after"`
}

func completeTravelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req completeTravelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		travel, err := workflow.CompleteTravel(c.Request.Context(), id, req.OdometerAfter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"travel": travel})
	}
}

type reviewTravelRequest struct {
	Payouts *workflow.PayoutBatch `json:"payouts"`
}

func reviewTravelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req reviewTravelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		travel, err := workflow.SaveReview(c.Request.Context(), id, req.Payouts)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"travel": travel})
	}
}

type conflictQueryRequest struct {
	DepartureTime   time.Time `json:"departure_time" binding:"required"`
	ReturnTime      time.Time `json:"return_time" binding:"required"`
	ParticipantIds  []int     `json:"participant_ids"`
	VehicleId       int       `json:"vehicle_id"`
	ExcludeTravelId int       `json:"exclude_travel_id"`
}

func findConflictsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req conflictQueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		conflicts, err := workflow.FindConflicts(c.Request.Context(),
			req.DepartureTime, req.ReturnTime, req.ParticipantIds, req.VehicleId, req.ExcludeTravelId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
	}
}
