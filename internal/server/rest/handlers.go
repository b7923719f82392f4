package rest

import (
	"errors"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/server/metrics"
	"github.com/dmitrijs2005/chatgate/internal/server/services"
	"github.com/gin-gonic/gin"
)

func (s *Server) login(c *gin.Context) {
	var p loginParams
	if err := bindParams(c, &p); err != nil {
		respondError(c, err)
		return
	}

	res, err := s.svc.Users.Login(c.Request.Context(), p.Email, p.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	v := newUserView(res.User)
	v.Token = res.Token
	respondOK(c, v)
}

func (s *Server) logout(c *gin.Context) {
	user, _ := currentUser(c)
	if err := s.svc.Users.Logout(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

func (s *Server) info(c *gin.Context) {
	user, _ := currentUser(c)
	respondOK(c, newUserView(user))
}

func (s *Server) completion(c *gin.Context) {
	p, err := bindCompletion(c)
	if err != nil {
		respondError(c, err)
		return
	}

	user, _ := currentUser(c)
	res, err := s.svc.Completions.Complete(c.Request.Context(), user, services.CompletionRequest{
		Messages:     p.messages(),
		Conversation: p.Conversation,
		Model:        p.Model,
		MaxTokens:    p.MaxTokens,
		Temperature:  p.Temperature,
	})
	s.observeCompletion(err)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, completionView{Content: res.Content, Conversation: res.Conversation})
}

func (s *Server) observeCompletion(err error) {
	if s.svc.Metrics == nil {
		return
	}
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, common.ErrServiceBusy):
		outcome = metrics.OutcomeBusy
	case errors.Is(err, common.ErrTryLater):
		outcome = metrics.OutcomeTryLater
	default:
		outcome = metrics.OutcomeInvalid
	}
	s.svc.Metrics.ObserveCompletion(outcome)
}

func (s *Server) chatRecords(c *gin.Context) {
	var p pageParams
	if err := bindParams(c, &p); err != nil {
		respondError(c, err)
		return
	}

	user, _ := currentUser(c)
	records, err := s.svc.Records.ListRecords(c.Request.Context(), user.ID, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, newRecordViews(records))
}

func (s *Server) chatRecordsRange(c *gin.Context) {
	var p rangeParams
	if err := bindParams(c, &p); err != nil {
		respondError(c, err)
		return
	}
	if p.Start == nil || p.End == nil {
		respondError(c, errBadParams)
		return
	}

	user, _ := currentUser(c)
	records, err := s.svc.Records.ListRecordsInRange(c.Request.Context(), user.ID, *p.Start, *p.End)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, newRecordViews(records))
}

func (s *Server) sharedKey(c *gin.Context) {
	user, _ := currentUser(c)
	key, err := s.svc.Grants.SharedKey(c.Request.Context(), user.ID, s.now())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, key)
}

func (s *Server) authWindow(c *gin.Context) {
	user, _ := currentUser(c)
	g, err := s.svc.Grants.Window(c.Request.Context(), user.ID, s.now())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, newWindowView(g))
}

func (s *Server) grantAuth(c *gin.Context) {
	var p grantParams
	if err := bindParams(c, &p); err != nil {
		respondError(c, err)
		return
	}
	if strings.TrimSpace(p.Identifier) == "" {
		respondError(c, errBadParams)
		return
	}

	g, err := s.svc.Grants.Grant(c.Request.Context(), p.Identifier, p.Days, s.now())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, newWindowView(g))
}

func (s *Server) addKey(c *gin.Context) {
	var p keyParams
	if err := bindParams(c, &p); err != nil {
		respondError(c, err)
		return
	}
	if p.Owner != nil && *p.Owner == "" {
		p.Owner = nil
	}

	cred, err := s.svc.Credentials.AddCredential(c.Request.Context(), p.Owner, p.Secret)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, credentialView{ID: cred.ID, Owner: cred.OwnerID, Live: cred.Live})
}

func (s *Server) setKeyLive(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, errBadParams)
		return
	}

	var p liveParams
	if err := bindParams(c, &p); err != nil {
		respondError(c, err)
		return
	}
	if p.Live == nil {
		respondError(c, errBadParams)
		return
	}

	if err := s.svc.Credentials.SetLive(c.Request.Context(), id, *p.Live); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"id": id, "live": *p.Live})
}
