package deps

import (
	"time"

	"github.com/MrSnakeDoc/marksync/internal/index"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	redisstore "github.com/MrSnakeDoc/marksync/internal/store/redis"
)

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	TimeNow        func() time.Time   // for testing, defaults to time.Now
	AllowedHosts   []string           // Host headers allowed to access the server
	AllowedCIDRS   []string           // IPs allowed to access the API
	TrustProxy     bool               // true if running behind a trusted reverse proxy (e.g., cloudflared)
	StateFile      string             // Path to the committed state file
	LinkCache      *redisstore.Store  // Link expansion cache (nil if disabled)
	MemoryIndex    *index.MemoryIndex // Read view of the committed state
	SyncTrigger    chan struct{}      // Channel to trigger a manual sync
	SyncRateBurst  int                // POST /sync burst per client
	SyncRatePerMin int                // POST /sync refill per client per minute
}
