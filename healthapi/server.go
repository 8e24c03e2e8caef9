// Package healthapi exposes the readiness and liveness checks the core
// state machine requires but does not itself transport, wired over gin
// following the teacher lineage's restapi package conventions (route
// groups under gin.Default(), one handler per check) minus the
// Okta/JWT/Swagger layers that package also carries, which have no bearing
// on a process-internal health probe.
package healthapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/batchworker"
)

// Server wires the readiness and liveness checks described in the root
// package's health-surface notes: readiness exercises store reachability
// and total-row count; liveness, when this instance holds the lease, checks
// that an outstanding file's run started within StaleAfter (see
// anyFileStale).
type Server struct {
	WorkerID       string
	InstanceID     string
	Reader         batchworker.PageReader
	Lease          batchworker.LeaseStore
	Progress       batchworker.ProgressStore
	FileIDs        []string
	StaleAfter     time.Duration
	RequestTimeout time.Duration
}

// DefaultStaleAfter bounds how long a leader may go without a progress
// update before liveness reports unhealthy.
const DefaultStaleAfter = 5 * time.Minute

// DefaultRequestTimeout bounds how long a single health check may block on
// the backing stores before replying unhealthy.
const DefaultRequestTimeout = 5 * time.Second

// Router builds a gin engine with /healthz/ready and /healthz/live
// registered. The caller drives its own http.Server (or calls Run
// directly) the way the teacher's restapi_main wires router.Run.
func (s *Server) Router() *gin.Engine {
	if s.StaleAfter <= 0 {
		s.StaleAfter = DefaultStaleAfter
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}

	router := gin.Default()
	health := router.Group("/healthz")
	{
		health.GET("/ready", s.handleReady)
		health.GET("/live", s.handleLive)
	}
	return router
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.RequestTimeout)
	defer cancel()

	count, err := s.Reader.GetTotalRowCount(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"ready": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ready":    true,
		"rowCount": count,
	})
}

func (s *Server) handleLive(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.RequestTimeout)
	defer cancel()

	lease, err := s.Lease.Get(ctx, s.WorkerID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"alive": false,
			"error": err.Error(),
		})
		return
	}
	if lease == nil || lease.InstanceID != s.InstanceID {
		// Not the current leader: trivially alive, nothing to verify.
		c.JSON(http.StatusOK, gin.H{"alive": true, "leading": false})
		return
	}

	stale, err := s.anyFileStale(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"alive": false,
			"error": err.Error(),
		})
		return
	}
	if stale {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"alive":   false,
			"leading": true,
			"reason":  "no recent progress update",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alive": true, "leading": true})
}

// anyFileStale reports whether the leader appears to have gone quiet.
// FileProgress carries no per-update timestamp (only startedAt/completedAt),
// so this uses startedAt as the freshness signal for files still
// outstanding: liveness holds while at least one outstanding file's run
// started within StaleAfter, and a run lasting longer than StaleAfter
// reports not alive even while pages are still being written. Files
// that have already reached Completed do not count against liveness — a
// leader between finalizing its last file and releasing the lease is not
// stuck.
func (s *Server) anyFileStale(ctx context.Context) (bool, error) {
	now := time.Now()
	sawOutstanding := false
	for _, fileID := range s.FileIDs {
		fp, err := s.Progress.Get(ctx, fileID)
		if err != nil {
			return false, err
		}
		if fp == nil || fp.Status == batchworker.StatusCompleted {
			continue
		}
		sawOutstanding = true
		if now.Sub(fp.StartedAt) <= s.StaleAfter {
			return false, nil
		}
	}
	return sawOutstanding, nil
}
