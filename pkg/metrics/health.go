package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Health states reported by GetHealth and GetReadiness
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// HealthStatus is the body of the /health and /ready responses
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth is the last reported state of one daemon part: the
// router, the monitor handler, the registry or a single plugin
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// HealthChecker holds component states for the HTTP surface
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	startTime  time.Time
	version    string
	critical   []string
}

// DefaultCriticalComponents must be registered and healthy before the
// daemon reports ready. Plugins are not critical: a plugin that failed
// activation makes the daemon unhealthy but not unready.
var DefaultCriticalComponents = []string{"router", "monitor", "registry"}

var healthChecker = newHealthChecker()

func newHealthChecker() *HealthChecker {
	return &HealthChecker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
	}
}

// SetCriticalComponents replaces the components readiness waits on
func SetCriticalComponents(names ...string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.critical = append([]string(nil), names...)
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// RegisterComponent records the state of a component, replacing any
// previous one
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent is RegisterComponent for a component already known
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// RemoveComponent stops tracking a component, e.g. a halted plugin
func RemoveComponent(name string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	delete(healthChecker.components, name)
}

// GetHealth reports unhealthy as soon as any component is
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := healthChecker.snapshot(StatusHealthy)
	for name, comp := range healthChecker.components {
		if comp.Healthy {
			status.Components[name] = StatusHealthy
			continue
		}
		status.Status = StatusUnhealthy
		status.Components[name] = StatusUnhealthy + ": " + comp.Message
	}
	return status
}

// GetReadiness reports ready once every critical component is registered
// and healthy
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	critical := healthChecker.critical
	if critical == nil {
		critical = DefaultCriticalComponents
	}

	status := healthChecker.snapshot(StatusReady)
	for _, name := range critical {
		comp, ok := healthChecker.components[name]
		switch {
		case !ok:
			status.Status = StatusNotReady
			status.Message = "waiting for " + name + " initialization"
			status.Components[name] = "not registered"
		case !comp.Healthy:
			status.Status = StatusNotReady
			status.Message = "waiting for " + name
			status.Components[name] = "not ready: " + comp.Message
		default:
			status.Components[name] = StatusReady
		}
	}
	return status
}

// snapshot must be called with mu held
func (h *HealthChecker) snapshot(status string) HealthStatus {
	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]string),
		Version:    h.version,
		Uptime:     time.Since(h.startTime).String(),
	}
}

// HealthHandler serves GetHealth, 503 when unhealthy
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		health := GetHealth()
		writeStatus(w, health.Status == StatusHealthy, health)
	}
}

// ReadyHandler serves GetReadiness, 503 until ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		readiness := GetReadiness()
		writeStatus(w, readiness.Status == StatusReady, readiness)
	}
}

// LivenessHandler answers 200 for as long as the process can serve HTTP
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		healthChecker.mu.RLock()
		uptime := time.Since(healthChecker.startTime).String()
		healthChecker.mu.RUnlock()

		writeStatus(w, true, map[string]string{
			"status": "alive",
			"uptime": uptime,
		})
	}
}

func writeStatus(w http.ResponseWriter, ok bool, body any) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}
