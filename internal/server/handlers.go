package server

import (
	"errors"
	"math"
	"net/http"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mailblast/internal/accounts"
	"mailblast/internal/dispatch"
	logx "mailblast/pkg/logx"
)

type accountView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (s *Service) listAccounts(c *gin.Context) {
	list := s.deps.Registry.List()
	out := make([]accountView, 0, len(list))
	for _, a := range list {
		out = append(out, accountView{ID: a.ID, Name: a.Name, Address: a.Address})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

func (s *Service) quotaStatus(c *gin.Context) {
	snap := s.deps.Quota.SnapshotNow()
	c.JSON(http.StatusOK, gin.H{
		"dailyCount":  snap.Count,
		"dailyLimit":  snap.Limit,
		"remaining":   snap.Remaining,
		"canSendMore": snap.Remaining > 0,
	})
}

type startRequest struct {
	AccountID  string   `json:"accountId"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients"`
}

type startResponse struct {
	SessionID                string  `json:"sessionId"`
	TotalEmails              int     `json:"totalEmails"`
	LimitedFrom              int     `json:"limitedFrom,omitempty"`
	DailyLimit               int     `json:"dailyLimit"`
	DailyCount               int     `json:"dailyCount"`
	RemainingDaily           int     `json:"remainingDaily"`
	EstimatedDurationMinutes float64 `json:"estimatedDurationMinutes"`
}

func (s *Service) startCampaign(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req.Subject = strings.TrimSpace(req.Subject)
	req.Body = strings.TrimSpace(req.Body)
	switch {
	case req.Subject == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject is required"})
		return
	case req.Body == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "body is required"})
		return
	case len(req.Recipients) == 0:
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipients list is empty"})
		return
	}

	acct, err := s.deps.Registry.Get(strings.TrimSpace(req.AccountID))
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown account"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "account lookup failed"})
		return
	}

	recipients := normalizeRecipients(req.Recipients)
	if len(recipients) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no valid recipient addresses"})
		return
	}
	requested := len(recipients)

	// Per-campaign cap first, then whatever is left of today's budget.
	if max := s.campaignCap(); len(recipients) > max {
		recipients = recipients[:max]
	}
	quotaSnap := s.deps.Quota.SnapshotNow()
	if quotaSnap.Remaining <= 0 {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"dailyCount": quotaSnap.Count,
			"dailyLimit": quotaSnap.Limit,
			"message":    "daily send limit reached, try again tomorrow",
		})
		return
	}
	if len(recipients) > quotaSnap.Remaining {
		recipients = recipients[:quotaSnap.Remaining]
	}

	if err := s.deps.Preflight.Check(c.Request.Context(), acct); err != nil {
		s.log.Warn("campaign rejected by preflight", logx.String("account", acct.ID), logx.Any("err", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":      "account is currently unavailable",
			"suggestion": "choose a different account or retry later",
		})
		return
	}

	sess := s.deps.Dispatcher.Launch(dispatch.Campaign{
		Account:    acct,
		Subject:    req.Subject,
		Body:       req.Body,
		Recipients: recipients,
	})

	resp := startResponse{
		SessionID:                sess.ID,
		TotalEmails:              len(recipients),
		DailyLimit:               quotaSnap.Limit,
		DailyCount:               quotaSnap.Count,
		RemainingDaily:           quotaSnap.Remaining,
		EstimatedDurationMinutes: estimateMinutes(len(recipients), s.deps.Dispatcher.Interval()),
	}
	if len(recipients) < requested {
		resp.LimitedFrom = requested
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) progress(c *gin.Context) {
	snap, ok := s.deps.Sessions.Snapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Service) cancel(c *gin.Context) {
	err := s.deps.Sessions.RequestCancel(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// normalizeRecipients trims, drops unparseable addresses, and dedupes
// case-insensitively while preserving first-seen order.
func normalizeRecipients(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, err := netmail.ParseAddress(r); err != nil {
			continue
		}
		key := strings.ToLower(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func estimateMinutes(n int, interval time.Duration) float64 {
	total := time.Duration(n) * interval
	return math.Round(total.Minutes()*10) / 10
}
