package gateway

import (
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-voice-intake/internal/config"
)

type SessionManager interface {
	// Create new session
	CreateSession(id, patientID, locale string) (*Session, error)

	// Get active session by ID
	GetSession(id string) (*Session, error)

	// Update session activity
	UpdateActivity(id string) error

	// End session
	EndSession(id string) error

	// Get all active sessions
	GetActiveSessions() map[string]*Session

	// Update session cost
	UpdateSessionCost(id string, cost float64) error

	// Update audio time
	UpdateAudioTime(id string) error

	// Update token usage
	UpdateTokenUsage(id string, usage Usage) error
}

type sessionManager struct {
	logger   *zap.Logger
	cfg      *config.GatewayConfig
	sessions map[string]*Session
	mu       sync.RWMutex
}

func NewSessionManager(logger *zap.Logger, cfg *config.Config) SessionManager {
	return &sessionManager{
		logger:   logger,
		cfg:      &cfg.Gateway,
		sessions: make(map[string]*Session),
	}
}

func (sm *sessionManager) CreateSession(id, patientID, locale string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Check if session already exists
	if _, exists := sm.sessions[id]; exists {
		return nil, ErrSessionAlreadyExists
	}

	// Check session limit
	if len(sm.sessions) >= sm.cfg.MaxConcurrentSessions {
		return nil, ErrMaxSessionsReached
	}

	// Create new session
	session := &Session{
		ID:            id,
		PatientID:     patientID,
		Locale:        locale,
		StartTime:     time.Now(),
		LastActivity:  time.Now(),
		LastAudioTime: time.Now(),
		State:         SessionStateStarting,
	}

	sm.sessions[id] = session

	sm.logger.Info("Intake session created",
		zap.String("session_id", id),
		zap.String("patient_id", patientID))

	return session, nil
}

func (sm *sessionManager) GetSession(id string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}

	return session, nil
}

func (sm *sessionManager) UpdateActivity(id string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}

	session.LastActivity = time.Now()

	return nil
}

func (sm *sessionManager) EndSession(id string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}

	// Mark session as ended
	session.State = SessionStateEnded

	// Remove from active sessions
	delete(sm.sessions, id)

	sessionDuration := time.Since(session.StartTime)

	sm.logger.Info("Intake session removed",
		zap.String("session_id", id),
		zap.Duration("duration", sessionDuration),
		zap.Float64("cost", session.SessionCost))

	return nil
}

func (sm *sessionManager) GetActiveSessions() map[string]*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	// Return a copy to avoid concurrent access issues
	sessions := make(map[string]*Session)
	maps.Copy(sessions, sm.sessions)

	return sessions
}

// Helper methods for session state management

func (sm *sessionManager) UpdateSessionCost(id string, cost float64) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}

	session.SessionCost = cost

	return nil
}

func (sm *sessionManager) UpdateAudioTime(id string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}

	session.LastAudioTime = time.Now()
	session.LastActivity = time.Now()

	return nil
}

func (sm *sessionManager) UpdateTokenUsage(id string, usage Usage) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}

	session.Usage.InputTokens += usage.InputTokens
	session.Usage.OutputTokens += usage.OutputTokens
	session.Usage.InputAudioTokens += usage.InputAudioTokens
	session.Usage.OutputAudioTokens += usage.OutputAudioTokens

	return nil
}

// Error definitions
var (
	ErrSessionAlreadyExists = NewGatewayError("session already exists")
	ErrSessionNotFound      = NewGatewayError("session not found")
	ErrMaxSessionsReached   = NewGatewayError("maximum concurrent sessions reached")
)

// GatewayError represents errors specific to intake gateway operations
type GatewayError struct {
	message string
}

func NewGatewayError(message string) *GatewayError {
	return &GatewayError{message: message}
}

func (e *GatewayError) Error() string {
	return e.message
}
