package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	mw "github.com/kasuganosora/questengine/middleware"
	"github.com/kasuganosora/questengine/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
	// maxBody caps the request body kept per entry.
	maxBody = 4096
)

// Entry holds one audited request.
type Entry struct {
	TraceID  string
	PlayerID uuid.UUID
	QuestID  string
	Action   string
	Status   int
	Request  []byte
	Error    string
	IP       string
	Duration time.Duration
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db     *gorm.DB
	ch     chan *model.AuditLog
	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an entry for an async DB write. Entries are dropped when
// the queue is full.
func (svc *Service) Log(entry Entry) {
	record := &model.AuditLog{
		TraceID:    entry.TraceID,
		QuestID:    entry.QuestID,
		Action:     entry.Action,
		Status:     entry.Status,
		Error:      entry.Error,
		IP:         entry.IP,
		DurationMs: int(entry.Duration.Milliseconds()),
	}
	if entry.PlayerID != uuid.Nil {
		record.PlayerUUID = entry.PlayerID.String()
	}
	if len(entry.Request) > 0 && len(entry.Request) <= maxBody && json.Valid(entry.Request) {
		record.Request = datatypes.JSON(entry.Request)
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	select {
	case <-svc.stopCh:
	default:
		close(svc.stopCh)
	}
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Error(err), zap.Int("entries", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Filter narrows Recent. Zero fields match everything.
type Filter struct {
	PlayerID uuid.UUID
	QuestID  string
	Limit    int
}

// Recent returns the newest stored entries first.
func (svc *Service) Recent(ctx context.Context, f Filter) ([]model.AuditLog, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q := svc.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(f.Limit)
	if f.PlayerID != uuid.Nil {
		q = q.Where("player_uuid = ?", f.PlayerID.String())
	}
	if f.QuestID != "" {
		q = q.Where("quest_id = ?", f.QuestID)
	}
	var out []model.AuditLog
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Middleware records every non-GET request passing through it. The player
// and quest come from the :id and :qid route parameters.
func Middleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}
		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}
		start := time.Now()
		c.Next()

		entry := Entry{
			TraceID:  mw.GetTraceID(c),
			QuestID:  c.Param("qid"),
			Action:   c.Request.Method + " " + c.FullPath(),
			Status:   c.Writer.Status(),
			Request:  redact(body),
			IP:       c.ClientIP(),
			Duration: time.Since(start),
		}
		if id, err := uuid.Parse(c.Param("id")); err == nil {
			entry.PlayerID = id
		}
		if len(c.Errors) > 0 {
			entry.Error = c.Errors.String()
		}
		svc.Log(entry)
	}
}

// redact blanks secret fields of a JSON object body.
func redact(body []byte) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return body
	}
	changed := false
	for _, k := range []string{"token", "key", "password"} {
		if _, ok := obj[k]; ok {
			obj[k] = json.RawMessage(`"[redacted]"`)
			changed = true
		}
	}
	if !changed {
		return body
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	return out
}
