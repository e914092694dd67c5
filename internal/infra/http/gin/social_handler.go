package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	messagesapp "carshare/internal/app/handlers/messages"
	reviewsapp "carshare/internal/app/handlers/reviews"
	"carshare/internal/app/queries"
)

// SocialHandler serves reviews and booking messages.
type SocialHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type reviewRequest struct {
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

func (h SocialHandler) SubmitReview(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := reviewsapp.SubmitReviewCommand{ActorID: user.ID(), BookingID: c.Param("id"), Rating: req.Rating, Text: req.Text}
	result, err := commands.Dispatch[reviewsapp.SubmitReviewCommand, *dto.Review](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h SocialHandler) VehicleReviews(c *gin.Context) {
	query := reviewsapp.ListVehicleReviewsQuery{
		VehicleID: c.Param("id"),
		Limit:     parseIntWithDefault(c.Query("limit"), 20),
		Offset:    parseIntWithDefault(c.Query("offset"), 0),
	}
	result, err := queries.Ask[reviewsapp.ListVehicleReviewsQuery, dto.ReviewCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type messageRequest struct {
	Body string `json:"body"`
}

func (h SocialHandler) SendMessage(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := messagesapp.SendMessageCommand{ActorID: user.ID(), BookingID: c.Param("id"), Body: req.Body}
	result, err := commands.Dispatch[messagesapp.SendMessageCommand, *dto.Message](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h SocialHandler) ListMessages(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	query := messagesapp.ListMessagesQuery{ActorID: user.ID(), BookingID: c.Param("id"), Limit: parseIntWithDefault(c.Query("limit"), 0)}
	result, err := queries.Ask[messagesapp.ListMessagesQuery, dto.MessageCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ SocialHTTP = SocialHandler{}
