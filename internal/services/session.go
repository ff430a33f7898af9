package services

import (
	"sync"
	"time"

	apperrors "bambu-slicer-advisor/internal/errors"
	"bambu-slicer-advisor/internal/logger"
	"bambu-slicer-advisor/internal/models"

	"github.com/sirupsen/logrus"
)

// SessionSnapshot 某個 session 在某一時刻的狀態副本
type SessionSnapshot struct {
	ID        string                 `json:"sessionId"`
	Status    models.AnalysisStatus  `json:"status"`
	Sequence  uint64                 `json:"sequence"`
	Filament  string                 `json:"filament,omitempty"`
	Result    *models.AnalysisResult `json:"result,omitempty"`
	ErrorType apperrors.ErrorType    `json:"errorType,omitempty"`
	Error     string                 `json:"error,omitempty"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

type sessionState struct {
	status    models.AnalysisStatus
	seq       uint64
	filament  string
	result    *models.AnalysisResult
	err       error
	updatedAt time.Time
}

// SessionRegistry 以 session 為單位保存分析狀態
// 同一個 session 同時間只允許一個分析，完成時序號不是最新的結果會被丟棄
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
	nextSeq  uint64
	now      func() time.Time
}

// NewSessionRegistry 建立空的 SessionRegistry
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*sessionState),
		now:      time.Now,
	}
}

func (r *SessionRegistry) getOrCreate(id string) *sessionState {
	s, ok := r.sessions[id]
	if !ok {
		s = &sessionState{status: models.StatusIdle, updatedAt: r.now()}
		r.sessions[id] = s
	}
	return s
}

// Begin 將 session 切到 ANALYZING 並回傳這次提交的序號，上一次的結果會被清除
// session 已在分析中時回傳 conflict 錯誤
func (r *SessionRegistry) Begin(id string, filament string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreate(id)
	if s.status == models.StatusAnalyzing {
		logger.WithField("session_id", id).Warn("警告：[SessionRegistry] 分析已在進行中，拒絕新的提交。")
		return 0, apperrors.NewConflictError("分析任務已在進行中，請稍候。", nil)
	}

	r.nextSeq++
	s.seq = r.nextSeq
	s.status = models.StatusAnalyzing
	s.filament = filament
	s.result = nil
	s.err = nil
	s.updatedAt = r.now()
	logger.WithFields(logrus.Fields{"session_id": id, "sequence": s.seq}).Debug("資訊：[SessionRegistry] 開始分析")
	return s.seq, nil
}

// Complete 記錄分析結果；序號過期時丟棄並回傳 false
// 成功時整個結果槽會被覆寫，失敗時舊結果會被清除
func (r *SessionRegistry) Complete(id string, seq uint64, result *models.AnalysisResult, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.seq != seq || s.status != models.StatusAnalyzing {
		logger.WithFields(logrus.Fields{"session_id": id, "sequence": seq}).Warn("警告：[SessionRegistry] 丟棄過期的分析結果。")
		return false
	}

	if err != nil {
		s.status = models.StatusError
		s.result = nil
		s.err = err
	} else {
		s.status = models.StatusSuccess
		s.result = result
		s.err = nil
	}
	s.updatedAt = r.now()
	return true
}

// Reset 將 session 回到 IDLE；若正在分析中，之後送達的結果會因序號過期而被丟棄
func (r *SessionRegistry) Reset(id string) SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreate(id)
	if s.status == models.StatusAnalyzing {
		r.nextSeq++
		s.seq = r.nextSeq
	}
	s.status = models.StatusIdle
	s.result = nil
	s.err = nil
	s.updatedAt = r.now()
	return snapshotOf(id, s)
}

// Snapshot 回傳 session 目前狀態；未知的 session 視為 IDLE
func (r *SessionRegistry) Snapshot(id string) SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return SessionSnapshot{ID: id, Status: models.StatusIdle, UpdatedAt: r.now()}
	}
	return snapshotOf(id, s)
}

// Sweep 移除閒置超過 idleTTL 的 session，分析中的 session 不會被移除
func (r *SessionRegistry) Sweep(idleTTL time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idleTTL)
	removed := 0
	for id, s := range r.sessions {
		if s.status == models.StatusAnalyzing {
			continue
		}
		if s.updatedAt.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Len 目前保存的 session 數量
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func snapshotOf(id string, s *sessionState) SessionSnapshot {
	snap := SessionSnapshot{
		ID:        id,
		Status:    s.status,
		Sequence:  s.seq,
		Filament:  s.filament,
		Result:    s.result,
		UpdatedAt: s.updatedAt,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
		snap.ErrorType = apperrors.GetType(s.err)
	}
	return snap
}
