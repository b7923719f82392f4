package rest

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/dmitrijs2005/chatgate/internal/server/models"
	"github.com/dmitrijs2005/chatgate/internal/server/upstream"
	"github.com/gin-gonic/gin"
)

// bindParams reads parameters from a JSON body or from form/query values,
// picked by Content-Type. An empty body leaves dst untouched.
func bindParams(c *gin.Context, dst any) error {
	if err := c.ShouldBind(dst); err != nil && !errors.Is(err, io.EOF) {
		return errBadParams
	}
	return nil
}

type loginParams struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type messageParam struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionParams struct {
	Messages     []messageParam `json:"messages" form:"-"`
	Conversation string         `json:"conversation" form:"conversation"`
	Model        string         `json:"model" form:"model"`
	MaxTokens    int            `json:"max_token" form:"max_token"`
	Temperature  *float64       `json:"temperature" form:"temperature"`
}

// bindCompletion also accepts messages as a JSON-encoded form field.
func bindCompletion(c *gin.Context) (*completionParams, error) {
	var p completionParams
	if err := bindParams(c, &p); err != nil {
		return nil, err
	}
	if raw := c.PostForm("messages"); raw != "" && p.Messages == nil {
		if err := json.Unmarshal([]byte(raw), &p.Messages); err != nil {
			return nil, errBadParams
		}
	}
	return &p, nil
}

func (p *completionParams) messages() []upstream.Message {
	out := make([]upstream.Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		out = append(out, upstream.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

type pageParams struct {
	Page  int `json:"page" form:"page"`
	Limit int `json:"limit" form:"limit"`
}

type rangeParams struct {
	Start *int64 `json:"start" form:"start"`
	End   *int64 `json:"end" form:"end"`
}

type grantParams struct {
	Identifier string `json:"identifier" form:"identifier"`
	Days       int    `json:"days" form:"days"`
}

type keyParams struct {
	Secret string  `json:"secret" form:"secret"`
	Owner  *string `json:"owner" form:"owner"`
}

type liveParams struct {
	Live *bool `json:"live" form:"live"`
}

type userView struct {
	UserID     string `json:"user_id"`
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	CreateAt   int64  `json:"create_at"`
	Token      string `json:"token,omitempty"`
}

func newUserView(u *models.User) userView {
	return userView{
		UserID:     u.ID,
		Identifier: u.ID,
		Email:      u.Email,
		CreateAt:   u.CreatedAt.UnixMilli(),
	}
}

type recordView struct {
	ChatID       int64  `json:"chat_id"`
	Conversation int64  `json:"conversation"`
	Content      string `json:"content"`
	CreateAt     int64  `json:"create_at"`
	Role         int16  `json:"role"`
}

func newRecordViews(records []*models.ChatRecord) []recordView {
	out := make([]recordView, 0, len(records))
	for _, r := range records {
		out = append(out, recordView{
			ChatID:       r.ID,
			Conversation: r.ConversationID,
			Content:      r.Content,
			CreateAt:     r.CreatedAt,
			Role:         int16(r.Role),
		})
	}
	return out
}

type completionView struct {
	Content      string `json:"content"`
	Conversation string `json:"conversation"`
}

type windowView struct {
	BeganAt int64 `json:"began_at"`
	EndAt   int64 `json:"end_at"`
}

func newWindowView(g *models.AuthGrant) windowView {
	return windowView{BeganAt: g.BeganAt.UnixMilli(), EndAt: g.EndAt.UnixMilli()}
}

type credentialView struct {
	ID    int64   `json:"id"`
	Owner *string `json:"owner"`
	Live  bool    `json:"live"`
}
