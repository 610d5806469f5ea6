package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/eliwatch/internal/index"
	"github.com/MrSnakeDoc/eliwatch/internal/logger"
)

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time   // for testing, defaults to time.Now
	AllowedHosts []string           // Host headers allowed to access the API
	AllowedCIDRS []string           // IPs allowed to access readyz, metrics and run trigger
	TrustProxy   bool               // true if running behind a trusted reverse proxy (e.g., cloudflared)
	SourcesDir   string             // Root of the imagery catalog
	RedisClient  *redis.Client      // nil when persistence is disabled
	MemoryIndex  *index.MemoryIndex // Latest published run
	RunTrigger   chan struct{}      // Channel to trigger a manual validation run
}

// Now returns the current time using TimeNow when set.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
